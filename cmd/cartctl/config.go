package main

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/dralsallum/theKnot-sub000/pkg/config"
)

const envPrefix = "CARTCTL_"

// cliConfig holds defaults read from CARTCTL_* variables. Flags override them.
type cliConfig struct {
	APIURL   string        `env:"API_URL" envDefault:"http://localhost:8003"`
	UserID   string        `env:"USER_ID"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"15s"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"warn"`
}

func (c *cliConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API URL %q", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func loadConfig() (*cliConfig, error) {
	cfg := &cliConfig{}
	if err := pkgconfig.LoadWithPrefix(cfg, envPrefix); err != nil {
		return nil, fmt.Errorf("load cartctl config: %w", err)
	}
	return cfg, nil
}
