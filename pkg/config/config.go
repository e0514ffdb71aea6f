package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the lock manager daemon's static configuration.
//
// This structure captures every configuration aspect of the service:
//   - Logging and telemetry
//   - Transport binding (NLM, NSM loopback listener, portmapper registration)
//   - Lock manager tuning (grace period, idle timeouts, sysid range)
//
// There is no dynamic/REST-managed configuration; the lock manager has no
// persisted state of its own beyond what the in-memory registries track.
//
// Configuration sources: a YAML file, NLMD_* environment variables that
// override the keys the file sets, and default values for anything left
// unset. When no config file is found, the defaults are used as they are
// and the environment is not read.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// NLM configures the NLM (Network Lock Manager) RPC endpoint.
	NLM NLMConfig `mapstructure:"nlm" yaml:"nlm"`

	// NSM configures the local Network Status Monitor peer.
	NSM NSMConfig `mapstructure:"nsm" yaml:"nsm"`

	// Portmap configures registration with the RPC portmapper.
	Portmap PortmapConfig `mapstructure:"portmap" yaml:"portmap"`

	// Lock contains lock manager engine configuration: grace period,
	// idle host reaping, sysid allocation range, and RPC retransmit tuning.
	Lock LockConfig `mapstructure:"lock" yaml:"lock"`

	// Snapshot controls the periodic best-effort host-set dump used to
	// size expected reclaim traffic across a restart. Disabled by default.
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`

	// Audit controls the durable event trail; the daemon records one event
	// per NSM host status change. Disabled by default.
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Backup controls periodic upload of the host snapshot to an
	// S3-compatible bucket. Disabled by default.
	Backup BackupConfig `mapstructure:"backup" yaml:"backup"`

	// Admin controls the operator HTTP API nlmctl talks to. Disabled by
	// default; when enabled on a non-loopback address a JWT secret is
	// required.
	Admin AdminConfig `mapstructure:"admin" yaml:"admin"`
}

// SnapshotConfig configures the badger-backed host-set snapshot writer.
type SnapshotConfig struct {
	// Enabled controls whether the snapshot writer runs at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// DataDir is the directory the embedded badger database lives under.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// Interval is how often the live host set is re-snapshotted.
	// Default: 30s
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AuditConfig configures the durable audit event trail.
type AuditConfig struct {
	// Enabled controls whether events are recorded at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Dialect selects the backing database: "postgres" or "sqlite".
	Dialect string `mapstructure:"dialect" validate:"omitempty,oneof=postgres sqlite" yaml:"dialect"`

	// DSN is the Postgres connection string (ignored for sqlite).
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// SQLitePath is the database file path (ignored for postgres).
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`

	// BufferSize bounds the writer's in-memory queue of pending events
	// before the oldest pending event is dropped.
	// Default: 1024
	BufferSize int `mapstructure:"buffer_size" validate:"omitempty,min=1" yaml:"buffer_size"`
}

// BackupConfig configures periodic S3 upload of the host snapshot.
type BackupConfig struct {
	// Enabled controls whether the backup uploader runs at all. Requires
	// Snapshot.Enabled, since it reads from the same snapshot store.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`

	// RetainCount bounds how many past snapshot objects are kept.
	// Default: 5
	RetainCount int `mapstructure:"retain_count" validate:"omitempty,min=1" yaml:"retain_count"`

	// Interval is how often a snapshot is uploaded.
	// Default: 1h
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// AdminConfig configures the operator HTTP API (nlmctl's server side).
type AdminConfig struct {
	// Enabled controls whether the admin API listener starts at all.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address is the bind address for the admin HTTP API.
	// Default: "127.0.0.1:9009"
	Address string `mapstructure:"address" yaml:"address"`

	// JWTSecret signs bearer tokens for mutating routes. Required once
	// Address is bound to anything other than loopback.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`

	// TokenTTL bounds how long an issued bearer token remains valid.
	// Default: 1h
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// NLMConfig configures the NLM RPC server.
type NLMConfig struct {
	// Address is the bind address for the NLM TCP/UDP listeners.
	// Default: ":4045" (traditional NLM port)
	Address string `mapstructure:"address" yaml:"address"`

	// RegisterWithPortmapper controls whether the NLM program/version pairs
	// are advertised to the portmapper on startup.
	RegisterWithPortmapper bool `mapstructure:"register_with_portmapper" yaml:"register_with_portmapper"`
}

// NSMConfig configures the NSM peer used for crash-recovery notifications.
//
// Per convention NLM's NSM client only ever talks to the NSM instance on
// the same host (loopback), and only accepts inbound SM_NOTIFY on loopback.
type NSMConfig struct {
	// Address is the bind address for the local NSM listener (SM_NOTIFY inbound).
	// Default: "127.0.0.1:0" (ephemeral, loopback only)
	Address string `mapstructure:"address" yaml:"address"`

	// RPCBindRetries is how many more times the NSM client retries a MON or
	// UNMON call to the in-process NSM listener after a dial or I/O failure.
	// No portmapper lookup is made.
	// Default: 10
	RPCBindRetries int `mapstructure:"rpcbind_retries" yaml:"rpcbind_retries"`

	// RPCBindTimeout is the NSM client's per-attempt dial and I/O deadline.
	// Default: 5s
	RPCBindTimeout time.Duration `mapstructure:"rpcbind_timeout" yaml:"rpcbind_timeout"`
}

// PortmapConfig configures the RPC portmapper used for service discovery.
type PortmapConfig struct {
	// Address is the portmapper address, host:port. Default: "127.0.0.1:111"
	Address string `mapstructure:"address" yaml:"address"`
}

// LockConfig contains lock manager engine configuration.
//
// Field names and defaults follow the illumos klm tunables this service
// is modeled on (lockd grace period, client idle timeout, retransmit
// interval, sysid range).
type LockConfig struct {
	// GracePeriod is the duration after startup during which only lock
	// reclaim requests are honored; new lock requests are denied with
	// NLM4_DENIED_GRACE_PERIOD.
	// Default: 45s
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period"`

	// IdleTimeout is how long a host with no locks, shares, or vholds may
	// sit on the idle LRU before the garbage collector reclaims it.
	// Default: 30s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RetransmitTimeout is copied into the lock registry's config, where no
	// code reads it: a GRANTED callback is sent once and a failure is only
	// logged, and NSM calls use the nsm.rpcbind_* settings.
	// Default: 5s
	RetransmitTimeout time.Duration `mapstructure:"retransmit_timeout" yaml:"retransmit_timeout"`

	// GCInterval is how often the garbage collector sweeps the idle host
	// list and reaps unused vholds.
	// Default: 15s
	GCInterval time.Duration `mapstructure:"gc_interval" yaml:"gc_interval"`

	// MinSysid and MaxSysid bound the dense sysid bitmap. Sysid 0 is
	// reserved for purely local (non-NLM) locks and is never allocated.
	// Defaults: 1, 1024
	MinSysid uint32 `mapstructure:"min_sysid" yaml:"min_sysid"`
	MaxSysid uint32 `mapstructure:"max_sysid" yaml:"max_sysid"`

	// MaxLocksPerFile is defaulted and loaded but not passed to the lock
	// engine: the engine the daemon builds (lock.NewManager()) applies no
	// per-file lock limit.
	// Default: 10000
	MaxLocksPerFile int `mapstructure:"max_locks_per_file" yaml:"max_locks_per_file"`

	// LeaseBreakTimeout bounds how long an NLM LOCK/TEST request waits for
	// a conflicting SMB lease on the same file to break before failing.
	// Default: 35s
	LeaseBreakTimeout time.Duration `mapstructure:"lease_break_timeout" yaml:"lease_break_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// NLMD_* environment variables override the keys the config file sets, and
// defaults fill in whatever is left unset. When no config file is found,
// Load returns GetDefaultConfig() without reading the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NLMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration, e.g. "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "nlmd")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "nlmd")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
