package client

import (
	"fmt"
	"os"

	"github.com/goliatone/go-hub/layering"
	"gopkg.in/yaml.v3"
)

// StoreOptions selects where scope snapshots are persisted.
type StoreOptions struct {
	// Driver is "memory", "sqlite" or empty for no persistence.
	Driver string `yaml:"driver" json:"driver,omitempty"`
	DSN    string `yaml:"dsn" json:"dsn,omitempty"`
	// Domain groups snapshots written by this client.
	Domain string `yaml:"domain" json:"domain,omitempty"`
}

// Options configures a Client. Zero fields fall back to DefaultOptions.
type Options struct {
	Enabled        *bool        `yaml:"enabled" json:"enabled,omitempty"`
	Name           string       `yaml:"name" json:"name,omitempty"`
	Release        string       `yaml:"release" json:"release,omitempty"`
	Environment    string       `yaml:"environment" json:"environment,omitempty"`
	ServerName     string       `yaml:"server_name" json:"server_name,omitempty"`
	MaxBreadcrumbs int          `yaml:"max_breadcrumbs" json:"max_breadcrumbs,omitempty"`
	IgnoreRules    []string     `yaml:"ignore_rules" json:"ignore_rules,omitempty"`
	RuleEngine     string       `yaml:"rule_engine" json:"rule_engine,omitempty"`
	Store          StoreOptions `yaml:"store" json:"store,omitempty"`
}

// DefaultOptions returns the baseline every loaded configuration is merged
// onto.
func DefaultOptions() Options {
	enabled := true
	hostname, _ := os.Hostname()
	return Options{
		Enabled:        &enabled,
		Name:           "client",
		Environment:    "production",
		ServerName:     hostname,
		MaxBreadcrumbs: 100,
		RuleEngine:     "expr",
		Store:          StoreOptions{Domain: "scope"},
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	return layering.MergeLayers(o, DefaultOptions())
}

// IsEnabled reports whether the client should capture anything. A nil
// Enabled counts as enabled.
func (o Options) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// ParseOptions decodes YAML and applies defaults.
func ParseOptions(data []byte) (Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("client: parse options: %w", err)
	}
	return opts.WithDefaults(), nil
}

// LoadOptions reads a YAML options file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("client: read options %q: %w", path, err)
	}
	return ParseOptions(data)
}
