package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config for structurally invalid values using the
// `validate` struct tags declared on Config and its nested types.
//
// This catches configuration mistakes (missing required fields, out of
// range ports, unrecognized log levels) early at load time rather than
// surfacing them as confusing runtime errors.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("%s", formatValidationErrors(verrs))
		}
		return err
	}

	if cfg.Lock.MinSysid == 0 {
		return fmt.Errorf("lock.min_sysid must be >= 1 (sysid 0 is reserved for local locks)")
	}
	if cfg.Lock.MaxSysid <= cfg.Lock.MinSysid {
		return fmt.Errorf("lock.max_sysid (%d) must be greater than lock.min_sysid (%d)",
			cfg.Lock.MaxSysid, cfg.Lock.MinSysid)
	}

	if cfg.Admin.Enabled && !isLoopbackAddress(cfg.Admin.Address) && cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required when admin.address is not loopback-only")
	}
	if cfg.Backup.Enabled && !cfg.Snapshot.Enabled {
		return fmt.Errorf("backup.enabled requires snapshot.enabled (backup uploads read from the snapshot store)")
	}

	return nil
}

// isLoopbackAddress reports whether addr's host portion is a loopback
// address, the one case the admin API's bearer-token requirement is
// relaxed for.
func isLoopbackAddress(addr string) bool {
	host := addr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		host = addr[:idx]
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

// formatValidationErrors turns validator.ValidationErrors into a compact,
// human-readable multi-line message.
func formatValidationErrors(verrs validator.ValidationErrors) string {
	msg := "invalid configuration:"
	for _, fe := range verrs {
		msg += fmt.Sprintf("\n  - %s: failed on %q", fe.Namespace(), fe.Tag())
	}
	return msg
}
