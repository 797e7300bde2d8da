// Package config loads the conductor configuration.
//
// Configuration comes from an optional YAML file layered over Default.
// Fields left out of the file keep their default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the conductor configuration.
type Config struct {
	// DataDir holds the chain database, the sensemaker database, and the
	// agent key.
	DataDir string `yaml:"data_dir"`

	// AdminPort is the port of the admin websocket interface.
	AdminPort int `yaml:"admin_port"`

	// AppPort is the port of the first app websocket interface.
	AppPort int `yaml:"app_port"`

	// HTTPAddr is the listen address of the HTTP API. Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// SensemakerApp is the installed app ID of the sensemaker cell.
	SensemakerApp string `yaml:"sensemaker_app"`

	// Apps lists the applications to install: memez, paperz, trailz.
	Apps []string `yaml:"apps"`

	// InitialSM seeds SM_INIT and SM_COMP at startup.
	InitialSM []SMSeed `yaml:"initial_sm"`
}

// SMSeed sets the SM_INIT and SM_COMP of one path through one app.
type SMSeed struct {
	App  string `yaml:"app"`
	Path string `yaml:"path"`
	Init string `yaml:"init"`
	Comp string `yaml:"comp"`
}

// Known application names.
const (
	AppMemez  = "memez"
	AppPaperz = "paperz"
	AppTrailz = "trailz"
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DataDir:       filepath.Join(homeDir, ".happz"),
		AdminPort:     9000,
		AppPort:       9999,
		HTTPAddr:      ":8080",
		SensemakerApp: "social_sensemaker",
		Apps:          []string{AppMemez, AppPaperz, AppTrailz},
	}
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the conductor cannot run
// with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.SensemakerApp == "" {
		return fmt.Errorf("config: sensemaker_app is required")
	}
	known := map[string]bool{AppMemez: true, AppPaperz: true, AppTrailz: true}
	installed := map[string]bool{}
	for _, app := range c.Apps {
		if !known[app] {
			return fmt.Errorf("config: unknown app %q", app)
		}
		if app == c.SensemakerApp {
			return fmt.Errorf("config: app %q collides with sensemaker_app", app)
		}
		installed[app] = true
	}
	for i, seed := range c.InitialSM {
		if !installed[seed.App] {
			return fmt.Errorf("config: initial_sm[%d]: app %q is not installed", i, seed.App)
		}
		if seed.App == AppTrailz {
			return fmt.Errorf("config: initial_sm[%d]: trailz has no sensemaker functions", i)
		}
		if seed.Path == "" {
			return fmt.Errorf("config: initial_sm[%d]: path is required", i)
		}
	}
	return nil
}

// ChainDB is the path of the chain database.
func (c *Config) ChainDB() string { return filepath.Join(c.DataDir, "chain.db") }

// SensemakerDB is the path of the sensemaker database.
func (c *Config) SensemakerDB() string { return filepath.Join(c.DataDir, "sensemaker.db") }

// AgentKey is the path of the agent's key seed.
func (c *Config) AgentKey() string { return filepath.Join(c.DataDir, "agent.key") }
