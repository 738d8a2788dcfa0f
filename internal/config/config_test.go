package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/rflorenc/pan-deduper/internal/models"
)

func TestDefaultTemplateMatchesDefaults(t *testing.T) {
	c, err := Parse(DefaultYAML())
	require.NoError(t, err)

	want := Default()
	want.Panorama.Host = "panorama.example.com"
	want.Panorama.Username = "admin"
	assert.Equal(t, want, c)
}

func TestParse_KeepsDefaultsForMissingKeys(t *testing.T) {
	c, err := Parse([]byte("minimum_duplicates: 3\npanorama:\n  host: pano\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.MinimumDuplicates)
	assert.Equal(t, 200, c.MaxConcurrency)
	assert.True(t, c.DeleteSharedAfter)
	assert.Equal(t, []string{"All-Devices"}, c.DestinationUnits)
	assert.Equal(t, models.BackendREST, c.Panorama.Backend)
}

func TestParse_EmitWinsOverPush(t *testing.T) {
	c, err := Parse([]byte("push_enabled: true\nemit_commands: true\n"))
	require.NoError(t, err)
	assert.False(t, c.PushEnabled)
	assert.True(t, c.EmitCommands)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("minimum_duplicates: [oops"))
	var ce *models.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Panorama.Host = "pano"
		return c
	}
	tests := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"ok", func(c *Config) {}, ""},
		{"zero minimum", func(c *Config) { c.MinimumDuplicates = 0 }, "minimum_duplicates"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, "max_concurrency"},
		{"unknown kind", func(c *Config) { c.ObjectKinds = []string{"zones"} }, "object_kinds"},
		{"no kinds", func(c *Config) { c.ObjectKinds = nil }, "object_kinds"},
		{"push without destination", func(c *Config) { c.PushEnabled = true; c.DestinationUnits = nil }, "destination_units"},
		{"emit without destination", func(c *Config) { c.EmitCommands = true; c.DestinationUnits = nil }, "destination_units"},
		{"report without destination", func(c *Config) { c.DestinationUnits = nil }, ""},
		{"shared destination", func(c *Config) { c.DestinationUnits = []string{"shared"} }, "destination_units"},
		{"push from file", func(c *Config) { c.PushEnabled = true; c.XMLFile = "export.xml" }, "push_enabled"},
		{"emit from file", func(c *Config) { c.EmitCommands = true; c.XMLFile = "export.xml"; c.Panorama.Host = "" }, ""},
		{"bad backend", func(c *Config) { c.Panorama.Backend = "ssh" }, "panorama.backend"},
		{"no host", func(c *Config) { c.Panorama.Host = "" }, "panorama.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.edit(c)
			err := c.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *models.ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestBootstrapAndLoad(t *testing.T) {
	ctx := context.Background()
	path := "mem://localhost/config/settings.yaml"

	created, err := Bootstrap(ctx, path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = Bootstrap(ctx, path)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, afs.New().Upload(ctx, path, 0o644, strings.NewReader("minimum_duplicates: 2\n")))
	c, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.MinimumDuplicates)
}

func TestKindsAndSummary(t *testing.T) {
	c := Default()
	kinds, err := c.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []models.Kind{models.KindAddressGroup, models.KindAddress, models.KindServiceGroup, models.KindService}, kinds)

	s := c.Summary([]string{"dg1", "dg2"})
	assert.Contains(t, s, "DEVICE GROUPS:\t\tdg1, dg2")
	assert.Contains(t, s, "MINIMUM DUPLICATES:\t5")
}
