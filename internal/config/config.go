// Package config loads the lifelog configuration file.
//
// The file lives at $LIFELOG_CONFIG_DIR/config.yaml, falling back to
// $XDG_CONFIG_HOME/lifelog/config.yaml. Relative paths inside it are
// resolved against the directory holding the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/ingest"
)

// FileName is the name of the config file inside the config directory.
const FileName = "config.yaml"

// DatabaseName is the default archive file name inside the data directory.
const DatabaseName = "lifelog.db"

// ErrInvalidConfig is returned for config files that fail validation.
var ErrInvalidConfig = errors.New("invalid config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the lifelog configuration.
type Config struct {
	// Me identifies the owner of the imported data.
	Me MeConfig `yaml:"me,omitempty"`

	Index    IndexConfig `yaml:"index,omitempty"`
	Conflict string      `yaml:"conflict,omitempty" validate:"omitempty,oneof=keep-local keep-incoming keep-both"`

	// Aliases rename participants in the timeline, keyed by contact label.
	Aliases map[string]string `yaml:"aliases,omitempty"`

	// Timezone names the zone timelines are rendered in; default local.
	Timezone string `yaml:"timezone,omitempty" validate:"omitempty,timezone"`

	DriversDir  string          `yaml:"drivers_dir,omitempty"`
	Database    string          `yaml:"database,omitempty"`
	Parallelism int             `yaml:"parallelism,omitempty" validate:"gte=0,lte=64"`
	Sources     []ingest.Source `yaml:"sources,omitempty" validate:"dive"`
}

// MeConfig lists the owner's identifiers.
type MeConfig struct {
	Name   string   `yaml:"name,omitempty"`
	Phones []string `yaml:"phones,omitempty" validate:"dive,required"`
	Emails []string `yaml:"emails,omitempty" validate:"dive,email"`
}

// IndexConfig selects the fields the contact Book indexes.
type IndexConfig struct {
	Policy      string   `yaml:"policy,omitempty" validate:"omitempty,oneof=all blacklist whitelist none"`
	Indexable   []string `yaml:"indexable,omitempty" validate:"dive,required"`
	Unindexable []string `yaml:"unindexable,omitempty" validate:"dive,required"`
}

// ConfigDir returns the directory holding the config file.
func ConfigDir() (string, error) {
	if override := os.Getenv("LIFELOG_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "lifelog"), nil
}

// DataDir returns the platform-specific data directory.
func DataDir() (string, error) {
	if override := os.Getenv("LIFELOG_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Lifelog"), nil
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "lifelog"), nil
	}
	return filepath.Join(home, ".local", "share", "lifelog"), nil
}

// DefaultPath returns the path of the config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Default returns the configuration used when no file exists.
func Default() (*Config, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	configDir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		Aliases:    make(map[string]string),
		DriversDir: filepath.Join(configDir, "drivers"),
		Database:   filepath.Join(dataDir, DatabaseName),
	}, nil
}

// Load reads the config file at path, or at DefaultPath when path is
// empty. A missing default file yields Default().
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.resolve(filepath.Dir(path))
}

// Parse decodes and validates config YAML. Unknown keys are rejected.
// Relative paths are left as written.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Aliases == nil {
		cfg.Aliases = make(map[string]string)
	}
	return &cfg, nil
}

// Validate checks field constraints and reports every violation.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s: %q fails %s", yamlPath(fe.Namespace()), fmt.Sprint(fe.Value()), fe.Tag())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// resolve fills defaults and anchors relative paths at dir.
func (c *Config) resolve(dir string) error {
	def, err := Default()
	if err != nil {
		return err
	}
	if c.DriversDir == "" {
		c.DriversDir = def.DriversDir
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	c.DriversDir = anchor(dir, c.DriversDir)
	c.Database = anchor(dir, c.Database)
	for i := range c.Sources {
		c.Sources[i].Path = anchor(dir, c.Sources[i].Path)
	}
	return nil
}

// Save writes the config to path, creating its directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// BookOptions translates the index and conflict settings.
func (c *Config) BookOptions() ([]contacts.BookOption, error) {
	var opts []contacts.BookOption
	if c.Index.Policy != "" {
		p, err := contacts.ParseIndexPolicy(c.Index.Policy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, contacts.WithIndexPolicy(p))
	}
	if len(c.Index.Indexable) > 0 {
		opts = append(opts, contacts.WithIndexable(c.Index.Indexable...))
	}
	if len(c.Index.Unindexable) > 0 {
		opts = append(opts, contacts.WithUnindexable(c.Index.Unindexable...))
	}
	if c.Conflict != "" {
		p, err := contacts.ParseConflictPolicy(c.Conflict)
		if err != nil {
			return nil, err
		}
		opts = append(opts, contacts.WithConflictPolicy(p))
	}
	return opts, nil
}

// MeContact builds the owner contact, or returns nil when no identifier is
// configured.
func (c *Config) MeContact() (*contacts.Contact, error) {
	m := c.Me
	if m.Name == "" && len(m.Phones) == 0 && len(m.Emails) == 0 {
		return nil, nil
	}
	opts := []contacts.Option{contacts.AsMe(), contacts.WithPhones(m.Phones...), contacts.WithEmails(m.Emails...)}
	if m.Name != "" {
		opts = append(opts, contacts.WithName(m.Name))
	}
	return contacts.New(opts...)
}

// Location returns the configured timezone, or time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone: %v", ErrInvalidConfig, err)
	}
	return loc, nil
}

// anchor joins a relative path to dir. An archive member suffix
// ("data.zip#member") is preserved.
func anchor(dir, path string) string {
	if path == "" {
		return path
	}
	file, member, hasMember := strings.Cut(path, "#")
	if strings.HasPrefix(file, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			file = filepath.Join(home, file[2:])
		}
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	if hasMember {
		return file + "#" + member
	}
	return file
}

// yamlPath turns a validator namespace ("Config.Me.Emails[0]") into the
// YAML key path a user wrote ("me.emails[0]").
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		name, index, _ := strings.Cut(p, "[")
		name = snake(name)
		if index != "" {
			name += "[" + index
		}
		parts[i] = name
	}
	return strings.Join(parts, ".")
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
