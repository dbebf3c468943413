// Package config provides configuration management for plugsite: the local
// installation root, the list of known update sites (with their stable
// rank), and general settings. Config is YAML-backed, following the same
// load/validate/save discipline used throughout this module.
package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/fsutil"
	"gopkg.in/yaml.v3"
)

// Config is the persisted application configuration.
type Config struct {
	// Root is the local installation directory being managed.
	Root string `yaml:"root"`

	// Sites are the known update sites, in the stable rank order the
	// catalog merge invariant requires them to keep across reloads.
	Sites []*SiteConfig `yaml:"sites"`

	Settings Settings `yaml:"settings"`
}

// SiteConfig is the persisted form of a catalog Site (see pkg/catalog).
type SiteConfig struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Host         string `yaml:"host,omitempty"`
	UploadDir    string `yaml:"upload_dir,omitempty"`
	Description  string `yaml:"description,omitempty"`
	Maintainer   string `yaml:"maintainer,omitempty"`
	Rank         int    `yaml:"rank"`
	Active       bool   `yaml:"active"`
	Official     bool   `yaml:"official,omitempty"`
	KeepURL      bool   `yaml:"keep_url,omitempty"`
	LastKnown    string `yaml:"last_known_timestamp,omitempty"`

	// Upload credentials for sites whose transport requires them.
	AuthUsername    string `yaml:"auth_username,omitempty"`
	AuthPassword    string `yaml:"auth_password,omitempty"`
	AuthHeaderName  string `yaml:"auth_header_name,omitempty"`
	AuthHeaderValue string `yaml:"auth_header_value,omitempty"`
}

// Settings holds general, non-site-specific behavior knobs.
type Settings struct {
	CacheDir      string        `yaml:"cache_dir,omitempty"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	OutputFormat  string        `yaml:"output_format"`
	LogLevel      string        `yaml:"log_level"`
}

// Defaults.
const (
	DefaultCacheTTL      = 24 * time.Hour
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultMaxConcurrent = 4
	YAMLIndent           = 2
)

// DefaultConfig returns a configuration with sensible defaults and the
// current working directory as the root.
func DefaultConfig() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return &Config{
		Root:  root,
		Sites: []*SiteConfig{},
		Settings: Settings{
			CacheTTL:      DefaultCacheTTL,
			HTTPTimeout:   DefaultHTTPTimeout,
			MaxConcurrent: DefaultMaxConcurrent,
			OutputFormat:  "table",
			LogLevel:      "info",
		},
	}
}

// Load reads configuration from path, returning defaults if the file does
// not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errs.Wrap(errs.ErrProtectedLocation, "empty config path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(err, "invalid config path")
	}
	file, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errs.Wrapf(err, "failed to open config file %s", path)
	}
	defer func() { _ = file.Close() }()
	return LoadFromReader(file)
}

// LoadFromReader parses configuration from an io.Reader, applying defaults
// and validating ranks.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(err, "failed to read config")
	}
	cfg := DefaultConfig()
	cfg.Sites = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(err, "failed to parse config")
	}
	if cfg.Settings.CacheTTL == 0 {
		cfg.Settings.CacheTTL = DefaultCacheTTL
	}
	if cfg.Settings.HTTPTimeout == 0 {
		cfg.Settings.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.Settings.MaxConcurrent == 0 {
		cfg.Settings.MaxConcurrent = DefaultMaxConcurrent
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to path atomically (write to a .tmp sibling,
// then rename).
func (c *Config) Save(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(err, "invalid config path")
	}
	if err := fsutil.EnsureFileDir(abs); err != nil {
		return errs.Wrap(err, "failed to create config directory")
	}
	tmp := abs + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeDefault)
	if err != nil {
		return errs.Wrap(err, "failed to create config file")
	}
	enc := yaml.NewEncoder(file)
	enc.SetIndent(YAMLIndent)
	if err := enc.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return errs.Wrap(err, "failed to encode config")
	}
	_ = enc.Close()
	_ = file.Close()
	if err := os.Rename(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return errs.Wrap(err, "failed to replace config file")
	}
	return nil
}

// Validate checks the site list for the invariants the catalog merge
// relies on: unique names, and - per the Open Question in the design -
// no two active sites sharing a rank.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Sites))
	ranks := make(map[int]string, len(c.Sites))
	for _, s := range c.Sites {
		if names[s.Name] {
			return errs.Wrapf(errs.ErrShadowConflict, "duplicate site name %q", s.Name)
		}
		names[s.Name] = true
		if s.Active {
			if other, ok := ranks[s.Rank]; ok {
				return errs.Wrapf(errs.ErrShadowConflict, "sites %q and %q share rank %d", other, s.Name, s.Rank)
			}
			ranks[s.Rank] = s.Name
		}
	}
	return nil
}

// NextRank returns one past the highest rank currently in use, for
// appending a newly added site above every existing one.
func (c *Config) NextRank() int {
	max := -1
	for _, s := range c.Sites {
		if s.Rank > max {
			max = s.Rank
		}
	}
	return max + 1
}

// FindSite returns the named site, or nil.
func (c *Config) FindSite(name string) *SiteConfig {
	for _, s := range c.Sites {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// GetDefaultConfigPath returns the default per-user configuration file
// location.
func GetDefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errs.Wrap(err, "failed to get user config directory")
	}
	return filepath.Join(dir, "plugsite", "config.yaml"), nil
}

// DatabasePath returns the authoritative local catalog location under Root.
func (c *Config) DatabasePath() string { return filepath.Join(c.Root, "db.xml.gz") }

// ChecksumCachePath returns the digest cache location under Root.
func (c *Config) ChecksumCachePath() string { return filepath.Join(c.Root, ".checksums") }
