package config

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
)

// MaxFramesInFlight is the number of frame slots the renderer cycles through.
const MaxFramesInFlight = 2

// Config holds everything the application needs before it opens a window.
// Asset paths are relative to AssetRoot.
type Config struct {
	Title  string
	Width  int
	Height int

	EnableValidation bool
	ValidationLayers []string

	AssetRoot      string
	Texture        string
	VertexShader   string
	FragmentShader string

	// Mesh is an OBJ file; when empty the built-in quad is drawn.
	Mesh     string
	Material string
}

func Default() Config {
	return Config{
		Title:  "Vulkan",
		Width:  800,
		Height: 600,

		EnableValidation: true,
		ValidationLayers: []string{"VK_LAYER_KHRONOS_validation"},

		AssetRoot:      "assets",
		Texture:        "textures/texture.png",
		VertexShader:   "shaders/vert.spv",
		FragmentShader: "shaders/frag.spv",
	}
}

func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Newf("window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Texture == "" {
		return errors.New("no texture configured")
	}
	if c.VertexShader == "" || c.FragmentShader == "" {
		return errors.New("both a vertex and a fragment shader are required")
	}
	if c.Material != "" && c.Mesh == "" {
		return errors.Newf("material %s configured without a mesh", c.Material)
	}
	for _, p := range []string{c.Texture, c.VertexShader, c.FragmentShader, c.Mesh, c.Material} {
		if filepath.IsAbs(p) {
			return errors.Newf("asset path %s must be relative to the asset root", p)
		}
	}
	if c.EnableValidation && len(c.ValidationLayers) == 0 {
		return errors.New("validation enabled without any validation layers")
	}

	return nil
}
