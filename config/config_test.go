package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pdok/equidist/crs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, "points", c.Layer)
	assert.Equal(t, 1000, c.PageSize)
	assert.False(t, c.Overwrite)
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, `
source: lines.gpkg
target: points.gpkg
interval: 25
crs: EPSG:28992
all: true
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "lines.gpkg", c.Source)
	assert.Equal(t, "points.gpkg", c.Target)
	assert.Equal(t, 25., c.Interval)
	assert.True(t, c.All)
	// defaults survive a file that doesn't mention them
	assert.Equal(t, "points", c.Layer)
	assert.Equal(t, 1000, c.PageSize)

	targetCRS, err := c.TargetCRS()
	require.NoError(t, err)
	assert.Equal(t, crs.EPSG(28992), targetCRS)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "interval: [1, 2]"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "intreval: 3"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := New()
		c.Source = "lines.geojson"
		c.Target = "points.geojson"
		c.Interval = 3
		c.CRS = "EPSG:4326"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no source", func(c *Config) { c.Source = "" }},
		{"no target", func(c *Config) { c.Target = "" }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"negative interval", func(c *Config) { c.Interval = -1 }},
		{"no crs", func(c *Config) { c.CRS = "" }},
		{"bad crs", func(c *Config) { c.CRS = "wgs84" }},
		{"zero pagesize", func(c *Config) { c.PageSize = 0 }},
		{"bad source crs", func(c *Config) { c.Reproject = true; c.SourceCRS = "?" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			assert.Error(t, c.Validate())
		})
	}
}
