package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/dispatchbuilder/internal/foundation/errors"
)

// Config represents the application configuration.
type Config struct {
	Plugins    PluginsConfig    `yaml:"plugins"`
	Dispatches DispatchesConfig `yaml:"dispatches"`
	Publish    PublishConfig    `yaml:"publish"`
	Logging    LoggingConfig    `yaml:"logging"`
	History    HistoryConfig    `yaml:"history"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// path of the file this configuration was loaded from; relative paths resolve against its directory.
	path string
}

// PluginsConfig locates plugin descriptor files.
type PluginsConfig struct {
	Directory string `yaml:"directory"`
	Extension string `yaml:"extension"`
}

// DispatchesConfig locates dispatch definitions and the dispatch ID store.
type DispatchesConfig struct {
	Files        []string `yaml:"files"`
	IDStore      string   `yaml:"id_store"`
	TemplatesDir string   `yaml:"templates_dir"`
	// Funcs names the compiled-in template functions made available to dispatch templates.
	Funcs []string `yaml:"funcs,omitempty"`
}

// PublishConfig controls how rendered dispatches are sent to the remote site.
type PublishConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Endpoint  string            `yaml:"endpoint"`
	UserAgent string            `yaml:"user_agent"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   time.Duration     `yaml:"timeout"`
	// Interval is the minimum spacing between two publish requests.
	Interval time.Duration `yaml:"interval"`
	// Placeholder is the text posted when a dispatch is created, before its
	// rendered content is sent as an edit.
	Placeholder string `yaml:"placeholder"`
	// Retry applies to edits only; a create is never repeated.
	Retry RetryConfig `yaml:"retry"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// HistoryConfig locates the publish history database. An empty path disables history.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig selects where run metrics are written. An empty path disables export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("configuration file not found").
				WithContext("path", configPath).
				Build()
		}
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			WithContext("path", configPath).
			Build()
	}
	cfg.path = configPath

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Plugins.Directory == "" {
		c.Plugins.Directory = "plugins"
	}
	if c.Plugins.Extension == "" {
		c.Plugins.Extension = ".plugin.toml"
	}
	if len(c.Dispatches.Files) == 0 {
		c.Dispatches.Files = []string{"dispatches.toml"}
	}
	if c.Dispatches.IDStore == "" {
		c.Dispatches.IDStore = "dispatch_ids.json"
	}
	if c.Dispatches.TemplatesDir == "" {
		c.Dispatches.TemplatesDir = "templates"
	}
	if c.Publish.UserAgent == "" {
		c.Publish.UserAgent = "dispatchbuilder"
	}
	if c.Publish.Timeout == 0 {
		c.Publish.Timeout = 30 * time.Second
	}
	if c.Publish.Interval == 0 {
		c.Publish.Interval = 6 * time.Second
	}
	if c.Publish.Placeholder == "" {
		c.Publish.Placeholder = "Placeholder"
	}
	c.Publish.Retry.applyDefaults()
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Publish.Enabled && c.Publish.Endpoint == "" {
		return errors.ValidationError("publish.endpoint is required when publishing is enabled").
			WithContext("field", "publish.endpoint").
			Build()
	}
	if c.Publish.Timeout < 0 || c.Publish.Interval < 0 {
		return errors.ValidationError("publish durations must not be negative").
			WithContext("timeout", c.Publish.Timeout.String()).
			WithContext("interval", c.Publish.Interval.String()).
			Build()
	}
	return nil
}

// Resolve returns p relative to the directory of the loaded config file.
// Absolute paths and configs built in memory are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Default()
	example.Publish.Endpoint = "https://www.example.org/cgi-bin/api.cgi"
	example.Publish.Headers = map[string]string{"X-Password": "${DISPATCH_PASSWORD}"}
	example.History.Path = "dispatchbuilder.db"

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
