package config

import (
	"path/filepath"
	"strings"
	"time"
)

// filepathJoinConfigDir joins name under the config directory, for
// defaults that live alongside config.yaml rather than in an arbitrary
// working directory.
func filepathJoinConfigDir(name string) string {
	return filepath.Join(getConfigDir(), name)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyNLMDefaults(&cfg.NLM)
	applyNSMDefaults(&cfg.NSM)
	applyPortmapDefaults(&cfg.Portmap)
	applyLockDefaults(&cfg.Lock)
	applySnapshotDefaults(&cfg.Snapshot)
	applyAuditDefaults(&cfg.Audit)
	applyBackupDefaults(&cfg.Backup)
	applyAdminDefaults(&cfg.Admin)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

// applyMetricsDefaults sets Prometheus metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyNLMDefaults sets NLM transport defaults.
//
// Port 4045 is the traditional NLM port used by most NFS implementations
// (it has no IANA-reserved assignment; lockd just picked it historically).
func applyNLMDefaults(cfg *NLMConfig) {
	if cfg.Address == "" {
		cfg.Address = ":4045"
	}
}

// applyNSMDefaults sets NSM peer defaults.
func applyNSMDefaults(cfg *NSMConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.RPCBindRetries == 0 {
		cfg.RPCBindRetries = 10
	}
	if cfg.RPCBindTimeout == 0 {
		cfg.RPCBindTimeout = 5 * time.Second
	}
}

// applyPortmapDefaults sets portmapper defaults.
func applyPortmapDefaults(cfg *PortmapConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:111"
	}
}

// applyLockDefaults sets lock engine tuning defaults.
//
// These mirror the illumos klm module's tunables: grace period 45s,
// client idle timeout 30s, RPC retransmit interval 5s.
func applyLockDefaults(cfg *LockConfig) {
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 45 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	if cfg.RetransmitTimeout == 0 {
		cfg.RetransmitTimeout = 5 * time.Second
	}
	if cfg.GCInterval == 0 {
		cfg.GCInterval = 15 * time.Second
	}
	if cfg.MinSysid == 0 {
		cfg.MinSysid = 1
	}
	if cfg.MaxSysid == 0 {
		cfg.MaxSysid = 1024
	}
	if cfg.MaxLocksPerFile == 0 {
		cfg.MaxLocksPerFile = 10000
	}
	if cfg.LeaseBreakTimeout == 0 {
		cfg.LeaseBreakTimeout = 35 * time.Second
	}
}

// applySnapshotDefaults sets host-snapshot writer defaults. Disabled
// unless explicitly turned on, since it writes to local disk.
func applySnapshotDefaults(cfg *SnapshotConfig) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepathJoinConfigDir("snapshot")
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
}

// applyAuditDefaults sets audit trail defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Dialect == "" {
		cfg.Dialect = "sqlite"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = filepathJoinConfigDir("audit.db")
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}
}

// applyBackupDefaults sets S3 snapshot backup defaults.
func applyBackupDefaults(cfg *BackupConfig) {
	if cfg.RetainCount == 0 {
		cfg.RetainCount = 5
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
}

// applyAdminDefaults sets admin API defaults. The loopback bind address
// keeps the default deployment safe without a JWT secret configured.
func applyAdminDefaults(cfg *AdminConfig) {
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:9009"
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = time.Hour
	}
}

// GetDefaultConfig returns a Config populated entirely with default values.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
