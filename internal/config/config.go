package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/source"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/task"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

const (
	// PathEnv names the environment variable holding the config path.
	PathEnv = "YK_DDNS_CONFIG"
	// DefaultPath is used when neither a flag nor PathEnv is set.
	DefaultPath = "configs/ddns.yaml"
)

// Config is the whole configuration file.
type Config struct {
	Schedule Schedule `yaml:"schedule"`
	Local    Local    `yaml:"local"`
	Router   Router   `yaml:"router"`
	Server   Server   `yaml:"server"`
	Targets  []Target `yaml:"targets"`
}

// Schedule holds the pacing shared by all targets.
type Schedule struct {
	Interval   time.Duration `yaml:"interval"`
	Jitter     float64       `yaml:"jitter"`
	RefreshMin int           `yaml:"refresh_min"`
	RefreshMax int           `yaml:"refresh_max"`
}

// Local configures address discovery from local interfaces.
type Local struct {
	InterfacePattern string `yaml:"interface_pattern"`
}

// Router configures the SSH connection used by router-sourced records.
type Router struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	KnownHosts string        `yaml:"known_hosts"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Server configures the health and metrics endpoint.
type Server struct {
	// Address to listen on; empty disables the endpoint.
	Address string `yaml:"address"`
}

// Default returns a configuration with every default filled in and no targets.
func Default() Config {
	p := task.DefaultPolicy()
	return Config{
		Schedule: Schedule{
			Interval:   p.Interval,
			Jitter:     p.Jitter,
			RefreshMin: p.RefreshMin,
			RefreshMax: p.RefreshMax,
		},
		Local: Local{InterfacePattern: source.DefaultInterfacePattern},
		Router: Router{
			Host:    "router.asus.com",
			Port:    22,
			Timeout: 5 * time.Second,
		},
		Server: Server{Address: ":8081"},
	}
}

// ResolvePath picks the config path from the flag value, PathEnv or DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads, resolves and validates the configuration at path. Secrets of
// the form keyring:<service>/<user> are read from the OS keyring.
func Load(path string) (*Config, error) {
	return LoadWith(path, KeyringLookup)
}

// LoadWith is Load with a custom secret lookup.
func LoadWith(path string, lookup SecretLookup) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, lookup)
}

// Parse decodes data on top of Default, resolves secrets and validates.
func Parse(data []byte, lookup SecretLookup) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	for i := range cfg.Targets {
		cfg.Targets[i].applyDefaults()
	}

	if err := cfg.resolveSecrets(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets(lookup SecretLookup) error {
	var err error
	if c.Router.Password, err = resolve(c.Router.Password, lookup); err != nil {
		return fmt.Errorf("router password: %w", err)
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		for k, v := range t.Settings {
			if t.Settings[k], err = resolve(v, lookup); err != nil {
				return fmt.Errorf("target %s: setting %q: %w", t.Name(), k, err)
			}
		}
	}
	return nil
}

// Validate checks the whole configuration. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	if err := c.Policy(Target{}).Validate(); err != nil {
		return fmt.Errorf("%w: schedule: %w", ErrInvalid, err)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no targets configured", ErrInvalid)
	}

	seen := map[string]bool{}
	for i := range c.Targets {
		t := &c.Targets[i]
		if err := t.validate(); err != nil {
			return fmt.Errorf("%w: target %d (%s): %w", ErrInvalid, i, t.Name(), err)
		}
		if seen[t.Name()] {
			return fmt.Errorf("%w: duplicate target %s", ErrInvalid, t.Name())
		}
		seen[t.Name()] = true
	}

	if c.UsesRouter() && c.Router.Host == "" {
		return fmt.Errorf("%w: router.host is required by router-sourced records", ErrInvalid)
	}
	return nil
}

// UsesRouter reports whether any record needs the router source.
func (c *Config) UsesRouter() bool {
	for _, t := range c.Targets {
		for _, r := range t.Records {
			if r.usesRouter() {
				return true
			}
		}
	}
	return false
}

// Policy returns the loop policy of target t.
func (c *Config) Policy(t Target) task.Policy {
	return task.Policy{
		Interval:    c.Schedule.Interval,
		Jitter:      c.Schedule.Jitter,
		RefreshMin:  c.Schedule.RefreshMin,
		RefreshMax:  c.Schedule.RefreshMax,
		MaxFailures: t.MaxFailures,
	}
}

// SSHOptions returns the router connection options.
func (c *Config) SSHOptions() source.SSHOptions {
	return source.SSHOptions{
		Host:       c.Router.Host,
		Port:       c.Router.Port,
		Username:   c.Router.Username,
		Password:   c.Router.Password,
		KnownHosts: c.Router.KnownHosts,
		Timeout:    c.Router.Timeout,
	}
}
