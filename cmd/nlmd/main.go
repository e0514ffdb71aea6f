// Command nlmd runs the network lock manager daemon: an NLM v4 server
// paired with a local NSM peer for crash recovery, backed by the in-process
// lock-management core.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/marmos91/dittofs/internal/adminapi"
	"github.com/marmos91/dittofs/internal/audit"
	"github.com/marmos91/dittofs/internal/backup"
	"github.com/marmos91/dittofs/internal/logger"
	"github.com/marmos91/dittofs/internal/nlmcore"
	"github.com/marmos91/dittofs/internal/nsmcore"
	nlmproto "github.com/marmos91/dittofs/internal/protocol/nlm"
	nlmhandlers "github.com/marmos91/dittofs/internal/protocol/nlm/handlers"
	nsmproto "github.com/marmos91/dittofs/internal/protocol/nsm"
	nsmhandlers "github.com/marmos91/dittofs/internal/protocol/nsm/handlers"
	nsmtypes "github.com/marmos91/dittofs/internal/protocol/nsm/types"
	"github.com/marmos91/dittofs/internal/snapshot"
	"github.com/marmos91/dittofs/internal/telemetry"
	"github.com/marmos91/dittofs/pkg/config"
	"github.com/marmos91/dittofs/pkg/metadata/lock"
	"github.com/marmos91/dittofs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "nlmd",
		Short: "Run the NLM/NSM lock manager daemon",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: built-in defaults)")

	var schemaOut string
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the effective config struct's JSON Schema to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(schemaOut)
		},
	}
	schemaCmd.Flags().StringVarP(&schemaOut, "out", "o", "config.schema.json", "output path for the generated schema")
	root.AddCommand(schemaCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runSchema writes the Config struct's JSON Schema to path, for editors
// to offer completion on config.yaml. The loader never reads this file
// back; it exists purely for tooling.
func runSchema(path string) error {
	data, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("generate config schema: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config schema: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote config schema to %s\n", path)
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: "nlmd",
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if cfg.Telemetry.Profiling.Enabled {
		stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
			Enabled:      cfg.Telemetry.Profiling.Enabled,
			Endpoint:     cfg.Telemetry.Profiling.Endpoint,
			ProfileTypes: cfg.Telemetry.Profiling.ProfileTypes,
		})
		if err != nil {
			logger.Warn("profiling init failed, continuing without it", "error", err)
		} else {
			defer func() { _ = stopProfiling() }()
		}
	}

	registry := prometheus.NewRegistry()
	nlmMetrics := metrics.NullNLM()
	notifierMetrics := nsmproto.NullMetrics()
	if cfg.Metrics.Enabled {
		nlmMetrics = metrics.NewNLM(registry)
		metrics.NewNSM(registry)
		notifierMetrics = nsmproto.NewMetrics(registry)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer := &http.Server{Addr: ":" + strconv.Itoa(cfg.Metrics.Port), Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Close() }()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics collection disabled")
	}

	nsmTracker := lock.NewConnectionTracker(lock.DefaultConnectionTrackerConfig())
	localEngine := lock.NewManager()

	// The NSM server must be bound (but not yet serving) before the NSM
	// client can be built: the client dials this same process's local SM
	// at its actual bound address, which for an ephemeral port is only
	// known after Listen.
	nsmServer := nsmproto.NewServer(nsmproto.ServerConfig{Address: cfg.NSM.Address})
	if err := nsmServer.Listen(); err != nil {
		return fmt.Errorf("bind NSM listener: %w", err)
	}

	nsmClient := nsmcore.NewClient(nsmcore.Config{
		Addr:    nsmServer.Addr(),
		MyName:  cfg.NSM.Address,
		MyProg:  nsmtypes.ProgramNSM,
		MyVers:  nsmtypes.SMVersion1,
		MyProc:  nsmtypes.SMProcNotify,
		Retries: cfg.NSM.RPCBindRetries,
		Timeout: cfg.NSM.RPCBindTimeout,
	})

	monHost := func(ctx context.Context, h *nlmcore.Host) error {
		return nsmClient.Mon(ctx, h.CallerName())
	}
	unmonHost := func(ctx context.Context, h *nlmcore.Host) error {
		return nsmClient.Unmon(ctx, h.CallerName())
	}

	nlmRegistry, err := nlmcore.NewRegistry(nlmcore.Config{
		GracePeriod:       cfg.Lock.GracePeriod,
		IdlePeriod:        cfg.Lock.IdleTimeout,
		RetransmitTimeout: cfg.Lock.RetransmitTimeout,
		GCInterval:        cfg.Lock.GCInterval,
		MinSysid:          nlmcore.Sysid(cfg.Lock.MinSysid),
		MaxSysid:          nlmcore.Sysid(cfg.Lock.MaxSysid),
	}, localEngine, monHost, reclaimHost, unmonHost)
	if err != nil {
		return fmt.Errorf("init lock registry: %w", err)
	}
	nlmRegistry.Start(ctx)

	auditWriter, err := startAudit(ctx, cfg.Audit)
	if err != nil {
		return fmt.Errorf("start audit trail: %w", err)
	}

	snapshotStore, stopSnapshot, err := startSnapshot(ctx, cfg.Snapshot, nlmRegistry.Hosts)
	if err != nil {
		return fmt.Errorf("start snapshot writer: %w", err)
	}
	if stopSnapshot != nil {
		defer stopSnapshot()
	}

	if err := startBackup(ctx, cfg.Backup, snapshotStore); err != nil {
		return fmt.Errorf("start backup uploader: %w", err)
	}

	stopAdmin, err := startAdminAPI(ctx, cfg.Admin, nlmRegistry)
	if err != nil {
		return fmt.Errorf("start admin API: %w", err)
	}
	if stopAdmin != nil {
		defer stopAdmin()
	}

	nsmHandler := nsmhandlers.NewHandler(nsmhandlers.HandlerConfig{
		Tracker: nsmTracker,
		OnStateChange: func(monName string, newState int32) {
			host := nlmRegistry.Hosts.FindByCallerName(monName)
			if host == nil {
				logger.Debug("NSM notify for unknown host, ignoring", "mon_name", monName)
				return
			}
			if auditWriter != nil {
				auditWriter.Record(audit.DecisionNotify, uint32(host.Sysid()), host.CallerName(), "", fmt.Sprintf("sm_state=%d", newState))
			}
			nlmRegistry.NotifyServer(host, uint32(newState))
			nlmRegistry.NotifyClient(ctx, host, uint32(newState))
		},
	})

	notifier := nsmproto.NewNotifier(nsmproto.NotifierConfig{
		Handler:    nsmHandler,
		ServerName: cfg.NSM.Address,
		Metrics:    notifierMetrics,
		OnClientCrash: func(ctx context.Context, clientID string) error {
			logger.Info("NSM client crash cleanup (tracker already cleared)", "client_id", clientID)
			return nil
		},
	})

	// Restore any registrations persisted across a restart and tell them
	// this server's state just changed, so they reclaim against us.
	if err := notifier.LoadRegistrationsFromStore(ctx, nil); err != nil {
		logger.Warn("failed to load persisted NSM registrations", "error", err)
	}
	go notifier.NotifyAllClients(ctx)

	nlmHandler := nlmhandlers.NewHandlerWithConfig(nlmRegistry, cfg, nlmMetrics)

	nlmServer := nlmproto.NewServer(nlmproto.ServerConfig{Address: cfg.NLM.Address, Handler: nlmHandler})
	nsmServer.SetHandler(nsmHandler)

	serverDone := make(chan error, 2)
	go func() { serverDone <- nlmServer.Serve(ctx) }()
	go func() { serverDone <- nsmServer.Serve(ctx) }()

	if cfg.NLM.RegisterWithPortmapper {
		logger.Warn("register_with_portmapper is set but no portmap client is wired; skipping registration")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("nlmd is running", "nlm_address", cfg.NLM.Address, "nsm_address", cfg.NSM.Address)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	cancel()
	nlmServer.Stop()

	// Drain hosts (each gets its own UNMON) and issue a final catch-all
	// UNMON_ALL while the local SM listener this process itself owns is
	// still up; only then is it safe to stop it.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	nlmRegistry.Shutdown(shutdownCtx)

	if err := nsmClient.UnmonAll(shutdownCtx); err != nil {
		logger.Warn("UNMON_ALL during shutdown failed", "error", err)
	}

	nsmServer.Stop()

	logger.Info("nlmd stopped")
	return nil
}

// reclaimHost re-issues a host's outstanding locks against the peer. Unlike
// monHost/unmonHost above, this is NLM territory, not NSM: it requires an
// outbound LOCK(reclaim=true) caller symmetric to the inbound NLM server,
// which this service does not have. Left a documented no-op: the peer's
// own retransmits repopulate state once it is reachable, same as before
// this host had any monitoring wired up at all.
func reclaimHost(ctx context.Context, h *nlmcore.Host) error {
	logger.Debug("reclaim requested, no outbound NLM client wired", "host", h.CallerName())
	return nil
}

// startAudit opens the durable lock/share decision trail and launches its
// background drain loop, if enabled. Returns a nil writer when disabled: a
// daemon with only the NLM/NSM/portmap config section set must run with no
// audit recording at all.
func startAudit(ctx context.Context, cfg config.AuditConfig) (*audit.Writer, error) {
	if !cfg.Enabled {
		logger.Info("audit trail disabled")
		return nil, nil
	}

	w, err := audit.Open(audit.StoreConfig{
		Dialect:    audit.Dialect(cfg.Dialect),
		DSN:        cfg.DSN,
		SQLitePath: cfg.SQLitePath,
	}, cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	go w.Run(ctx)
	logger.Info("audit trail enabled", "dialect", cfg.Dialect)
	return w, nil
}

// startSnapshot opens the badger-backed host-snapshot store and launches
// its periodic writer, if enabled. The caller must invoke the returned
// stop function during shutdown to flush and close the store.
func startSnapshot(ctx context.Context, cfg config.SnapshotConfig, hosts *nlmcore.HostRegistry) (*snapshot.Store, func(), error) {
	if !cfg.Enabled {
		logger.Info("host snapshot writer disabled")
		return nil, nil, nil
	}

	store, err := snapshot.Open(cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}

	if expected := snapshot.ExpectedReclaims(store); expected > 0 {
		logger.Info("startup snapshot loaded", "expected_reclaims", expected)
	}

	writer := snapshot.NewWriter(store, hosts, cfg.Interval)
	go writer.Run(ctx)

	logger.Info("host snapshot writer enabled", "data_dir", cfg.DataDir, "interval", cfg.Interval)
	return store, func() { _ = store.Close() }, nil
}

// startBackup launches the periodic S3 snapshot uploader, if enabled. It
// requires an open snapshot store to read from, since backup data is
// never generated independently of the snapshot writer.
func startBackup(ctx context.Context, cfg config.BackupConfig, store *snapshot.Store) error {
	if !cfg.Enabled {
		logger.Info("snapshot backup uploader disabled")
		return nil
	}
	if store == nil {
		return fmt.Errorf("backup.enabled requires snapshot.enabled")
	}

	client, err := backup.NewClient(ctx, backup.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		KeyPrefix:       cfg.KeyPrefix,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		ForcePathStyle:  cfg.ForcePathStyle,
		RetainCount:     cfg.RetainCount,
	})
	if err != nil {
		return err
	}

	uploader := backup.NewUploader(client, backup.Config{
		Bucket:      cfg.Bucket,
		KeyPrefix:   cfg.KeyPrefix,
		RetainCount: cfg.RetainCount,
	}, store.ReadJSON, cfg.Interval)
	go uploader.Run(ctx)

	logger.Info("snapshot backup uploader enabled", "bucket", cfg.Bucket, "interval", cfg.Interval)
	return nil
}

// startAdminAPI starts the operator HTTP API nlmctl talks to, if enabled.
// A JWT secret gates mutating routes whenever the bind address is not
// loopback-only; config validation already enforces this is set in that
// case.
func startAdminAPI(ctx context.Context, cfg config.AdminConfig, registry *nlmcore.Registry) (func(), error) {
	if !cfg.Enabled {
		logger.Info("admin API disabled")
		return nil, nil
	}

	var issuer *adminapi.TokenIssuer
	if cfg.JWTSecret != "" {
		issuer = adminapi.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	}

	srv := &http.Server{Addr: cfg.Address, Handler: adminapi.NewRouter(registry, issuer)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin API server failed", "error", err)
		}
	}()

	logger.Info("admin API enabled", "address", cfg.Address)
	return func() { _ = srv.Close() }, nil
}
