package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LookupFunc has the signature of os.LookupEnv
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables. Durations accept
// Go duration strings; a bare integer is read as milliseconds.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := parseEnvDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Sprintf("PORT: %v", err))
		} else {
			c.Server.Addr = ":" + v
		}
	}
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	str("JWT_SECRET", &c.Auth.Secret)
	dur("JWT_EXPIRY", &c.Auth.TokenTTL)
	str("DVR_USERNAME", &c.DVR.Username)
	str("DVR_PASSWORD", &c.DVR.Password)
	str("DVR_IP", &c.DVR.IP)
	num("DVR_PORT", &c.DVR.Port)
	num("MAX_CAMERAS", &c.DVR.MaxChannels)
	if v, ok := lookup("AUTO_DISCOVER"); ok && v != "" {
		c.Discovery.Auto = v != "false"
	}
	dur("DISCOVERY_INTERVAL", &c.Discovery.Interval)
	str("DISCOVERY_SUBNET", &c.Discovery.Sweep.Subnet)
	str("NMAP_PATH", &c.Discovery.Sweep.Nmap.Path)
	if v, ok := lookup("HEALTH_CHECK"); ok && v != "" {
		c.Health.Enabled = v != "false"
	}
	dur("HEALTH_INTERVAL", &c.Health.Interval)
	str("GO2RTC_API", &c.Engine.URL)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	if v, ok := lookup("STORAGE_PATH"); ok && v != "" {
		c.Storage.Path = v
	} else if dir, ok := lookup("DATA_DIR"); ok && dir != "" {
		c.Storage.Path = filepath.Join(dir, StorageFileName(c.Storage.Driver))
	}
	str("LOG_LEVEL", &c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}

	c.applyDefaults()
	return nil
}

// StorageFileName is the snapshot file name used inside a data directory
func StorageFileName(driver string) string {
	if driver == "sqlite" {
		return "cameras.db"
	}
	return "cameras.json"
}

func parseEnvDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
