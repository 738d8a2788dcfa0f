// Package config loads and validates the run settings.
package config

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/rflorenc/pan-deduper/internal/models"
)

//go:embed default.yaml
var defaultYAML []byte

// PanoramaConfig is the management endpoint to talk to.
type PanoramaConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port,omitempty"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	APIKey      string `yaml:"api_key"`
	Backend     string `yaml:"backend"`
	RESTVersion string `yaml:"rest_version"`
	Insecure    bool   `yaml:"insecure"`
	Ping        bool   `yaml:"ping"`
}

// Config holds all run settings (settings file + CLI flags).
type Config struct {
	Panorama          PanoramaConfig `yaml:"panorama"`
	PushEnabled       bool           `yaml:"push_enabled"`
	EmitCommands      bool           `yaml:"emit_commands"`
	DeleteSharedAfter bool           `yaml:"delete_shared_after"`
	DestinationUnits  []string       `yaml:"destination_units"`
	UnitAllowlist     []string       `yaml:"unit_allowlist"`
	UnitDenylist      []string       `yaml:"unit_denylist"`
	MinimumDuplicates int            `yaml:"minimum_duplicates"`
	ObjectKinds       []string       `yaml:"object_kinds"`
	MaxConcurrency    int            `yaml:"max_concurrency"`
	Deep              bool           `yaml:"deep"`
	GuardDeletes      bool           `yaml:"guard_deletes"`
	AssumeYes         bool           `yaml:"assume_yes"`
	OutputDir         string         `yaml:"output_dir"`
	LogFile           string         `yaml:"log_file"`
	Listen            string         `yaml:"listen"`

	// XMLFile, when set, selects a configuration export as the object
	// source instead of a live Panorama.
	XMLFile string `yaml:"-"`
	Verbose bool   `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Panorama:          PanoramaConfig{Backend: models.BackendREST, Insecure: true},
		DeleteSharedAfter: true,
		DestinationUnits:  []string{"All-Devices"},
		UnitAllowlist:     []string{},
		UnitDenylist:      []string{},
		MinimumDuplicates: 5,
		ObjectKinds:       models.DefaultKinds(),
		MaxConcurrency:    200,
		OutputDir:         ".",
		LogFile:           "deduper.log",
		Listen:            ":8080",
	}
}

// DefaultYAML returns the commented settings template.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Bootstrap writes the settings template to path when nothing exists there
// yet and reports whether it did.
func Bootstrap(ctx context.Context, path string) (bool, error) {
	fs := afs.New()
	path = normalize(path)
	if ok, _ := fs.Exists(ctx, path); ok {
		return false, nil
	}
	if err := fs.Upload(ctx, path, 0o644, bytes.NewReader(defaultYAML)); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// Load reads a YAML settings file over the defaults. Keys absent from the
// file keep their default values.
func Load(ctx context.Context, path string) (*Config, error) {
	path = normalize(path)
	data, err := afs.New().DownloadWithURL(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes settings from YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &models.ConfigError{Field: "settings", Reason: err.Error()}
	}
	c.Normalize()
	return c, nil
}

// Normalize resolves settings that override each other: emitting commands
// turns pushing off.
func (c *Config) Normalize() {
	if c.EmitCommands {
		c.PushEnabled = false
	}
	if c.Panorama.Backend == "" {
		c.Panorama.Backend = models.BackendREST
	}
}

// Validate checks the settings before anything is fetched.
func (c *Config) Validate() error {
	if c.MinimumDuplicates < 1 {
		return &models.ConfigError{Field: "minimum_duplicates", Reason: fmt.Sprintf("must be at least 1, got %d", c.MinimumDuplicates)}
	}
	if c.MaxConcurrency < 1 {
		return &models.ConfigError{Field: "max_concurrency", Reason: fmt.Sprintf("must be at least 1, got %d", c.MaxConcurrency)}
	}
	if _, err := c.Kinds(); err != nil {
		return err
	}
	if len(c.ObjectKinds) == 0 {
		return &models.ConfigError{Field: "object_kinds", Reason: "no object kinds selected"}
	}
	if (c.PushEnabled || c.EmitCommands) && len(c.DestinationUnits) == 0 {
		return &models.ConfigError{Field: "destination_units", Reason: "a destination device group is required to consolidate"}
	}
	for _, d := range c.DestinationUnits {
		if d == models.SharedUnit {
			return &models.ConfigError{Field: "destination_units", Reason: "shared cannot be a destination"}
		}
	}
	if c.PushEnabled && c.XMLFile != "" {
		return &models.ConfigError{Field: "push_enabled", Reason: "cannot push when reading from a configuration file"}
	}
	if c.XMLFile == "" {
		switch c.Panorama.Backend {
		case models.BackendREST, models.BackendXMLAPI:
		default:
			return &models.ConfigError{Field: "panorama.backend", Reason: fmt.Sprintf("unknown backend %q", c.Panorama.Backend)}
		}
		if c.Panorama.Host == "" {
			return &models.ConfigError{Field: "panorama.host", Reason: "required"}
		}
	}
	return nil
}

// Kinds parses ObjectKinds.
func (c *Config) Kinds() ([]models.Kind, error) {
	kinds := make([]models.Kind, 0, len(c.ObjectKinds))
	for _, s := range c.ObjectKinds {
		k, err := models.ParseKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Connection returns the Panorama connection settings.
func (c *Config) Connection() *models.Connection {
	return &models.Connection{
		Host:        c.Panorama.Host,
		Port:        c.Panorama.Port,
		Username:    c.Panorama.Username,
		Password:    c.Panorama.Password,
		APIKey:      c.Panorama.APIKey,
		Backend:     c.Panorama.Backend,
		RESTVersion: c.Panorama.RESTVersion,
		Insecure:    c.Panorama.Insecure,
	}
}

// Summary renders the settings block shown before a run.
func (c *Config) Summary(units []string) string {
	var b strings.Builder
	b.WriteString("------------------------\n")
	b.WriteString("Settings for this run:\n\n")
	fmt.Fprintf(&b, "OBJECT TYPES:\t\t%s\n", strings.Join(c.ObjectKinds, ", "))
	fmt.Fprintf(&b, "DEVICE GROUPS:\t\t%s\n", strings.Join(units, ", "))
	fmt.Fprintf(&b, "MINIMUM DUPLICATES:\t%d\n", c.MinimumDuplicates)
	fmt.Fprintf(&b, "DEEP DEDUPE:\t\t%t\n", c.Deep)
	fmt.Fprintf(&b, "PUSH TO PANORAMA:\t%t\n", c.PushEnabled)
	fmt.Fprintf(&b, "SET OUTPUT:\t\t%t\n", c.EmitCommands)
	fmt.Fprintf(&b, "DELETE SHARED OBJECTS:\t%t\n", c.DeleteSharedAfter)
	fmt.Fprintf(&b, "NEW PARENT DEVICE GROUP:\t%s\n", strings.Join(c.DestinationUnits, ", "))
	b.WriteString("------------------------")
	return b.String()
}

func normalize(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
