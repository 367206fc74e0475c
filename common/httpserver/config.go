// common/httpserver/config.go

package httpserver

import (
	"fmt"
	"strings"
	"time"
)

// Config: служебный HTTP: /metrics, /healthz, /readyz.
type Config struct {
	Addr              string        `mapstructure:"addr"` // например ":8080"
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"` // graceful shutdown
	MetricsPath       string        `mapstructure:"metrics_path"`
	HealthzPath       string        `mapstructure:"healthz_path"`
	ReadyzPath        string        `mapstructure:"readyz_path"`
}

var defaultPaths = map[string]string{
	"metrics": "/metrics",
	"healthz": "/healthz",
	"readyz":  "/readyz",
}

func (c *Config) applyDefaults() {
	setDuration(&c.ReadHeaderTimeout, 5*time.Second)
	setDuration(&c.ReadTimeout, 10*time.Second)
	setDuration(&c.WriteTimeout, 15*time.Second)
	setDuration(&c.IdleTimeout, time.Minute)
	setDuration(&c.ShutdownTimeout, 5*time.Second)
	setString(&c.MetricsPath, defaultPaths["metrics"])
	setString(&c.HealthzPath, defaultPaths["healthz"])
	setString(&c.ReadyzPath, defaultPaths["readyz"])
}

func (c Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("httpserver: Addr is required")
	}
	seen := make(map[string]string, 3)
	for name, p := range map[string]string{
		"metrics_path": c.MetricsPath,
		"healthz_path": c.HealthzPath,
		"readyz_path":  c.ReadyzPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("httpserver: %s %q must start with /", name, p)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("httpserver: %s and %s share path %q", name, other, p)
		}
		seen[p] = name
	}
	return nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func setString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}
