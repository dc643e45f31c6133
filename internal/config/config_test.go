package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 800, cfg.Width)
	require.Equal(t, 600, cfg.Height)
	require.Empty(t, cfg.Mesh)
}

func TestValidateRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"zero width":          func(c *Config) { c.Width = 0 },
		"negative height":     func(c *Config) { c.Height = -1 },
		"no texture":          func(c *Config) { c.Texture = "" },
		"no fragment shader":  func(c *Config) { c.FragmentShader = "" },
		"material no mesh":    func(c *Config) { c.Material = "room.mtl" },
		"absolute asset":      func(c *Config) { c.Texture = "/tmp/texture.png" },
		"validation no layer": func(c *Config) { c.ValidationLayers = nil },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
