// Package config handles renderer configuration loading and management.
package config

import (
	"errors"
	"fmt"
)

// Backend names accepted by GraphicsConfig.Backend.
const (
	BackendVulkan   = "vulkan"
	BackendOpenGL   = "opengl"
	BackendHeadless = "headless"
)

// MaxFramesInFlight bounds GraphicsConfig.FramesInFlight.
const MaxFramesInFlight = 2

// ErrUnknownBackend is returned by Validate for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown graphics backend")

// Config holds all renderer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Assets   AssetsConfig   `yaml:"assets"`
	Scene    SceneConfig    `yaml:"scene"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	Fullscreen        bool    `yaml:"fullscreen"`
	VSync             bool    `yaml:"vsync"`
	FPSLimit          int     `yaml:"fps_limit"`
	Backend           string  `yaml:"backend"`
	FramesInFlight    int     `yaml:"frames_in_flight"`
	DepthPrepass      bool    `yaml:"depth_prepass"`
	ShadowMapSize     int     `yaml:"shadow_map_size"`
	ShadowCubeSize    int     `yaml:"shadow_cube_size"`
	DepthBiasConstant float32 `yaml:"depth_bias_constant"`
	DepthBiasSlope    float32 `yaml:"depth_bias_slope"`
	Validation        bool    `yaml:"validation"`
}

// AssetsConfig holds asset search locations.
type AssetsConfig struct {
	ShaderDir   string   `yaml:"shader_dir"`
	TextureDirs []string `yaml:"texture_dirs"`
	ModelDirs   []string `yaml:"model_dirs"`
}

// SceneConfig holds demo scene and controller settings.
type SceneConfig struct {
	Demo             string  `yaml:"demo"`
	MoveSpeed        float32 `yaml:"move_speed"`
	MouseSensitivity float32 `yaml:"mouse_sensitivity"`
	FramesToRender   int     `yaml:"frames_to_render"` // headless only
	// Models are OBJ files placed in the demo scene.
	Models []ModelConfig `yaml:"models"`
}

// ModelConfig places one OBJ model, looked up in the model directories.
type ModelConfig struct {
	File     string     `yaml:"file"`
	Position [3]float32 `yaml:"position"`
	Scale    float32    `yaml:"scale"` // 0 means 1
	// NoShadow keeps the model out of the shadow maps.
	NoShadow bool `yaml:"no_shadow"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:             1200,
			Height:            800,
			Fullscreen:        false,
			VSync:             true,
			FPSLimit:          0,
			Backend:           BackendOpenGL,
			FramesInFlight:    2,
			DepthPrepass:      true,
			ShadowMapSize:     2048,
			ShadowCubeSize:    1024,
			DepthBiasConstant: 3.0,
			DepthBiasSlope:    0.0,
		},
		Assets: AssetsConfig{
			ShaderDir:   "shaders",
			TextureDirs: []string{"textures"},
			ModelDirs:   []string{"models"},
		},
		Scene: SceneConfig{
			Demo:             "lights",
			MoveSpeed:        0.5,
			MouseSensitivity: 0.2,
			FramesToRender:   3,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate clamps out-of-range values and rejects unknown backends.
func (c *Config) Validate() error {
	switch c.Graphics.Backend {
	case BackendVulkan, BackendOpenGL, BackendHeadless:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Graphics.Backend)
	}

	if c.Graphics.FramesInFlight < 1 {
		c.Graphics.FramesInFlight = 1
	}
	if c.Graphics.FramesInFlight > MaxFramesInFlight {
		c.Graphics.FramesInFlight = MaxFramesInFlight
	}
	if c.Graphics.Width < 1 {
		c.Graphics.Width = 1
	}
	if c.Graphics.Height < 1 {
		c.Graphics.Height = 1
	}
	if c.Graphics.ShadowMapSize <= 0 {
		c.Graphics.ShadowMapSize = 2048
	}
	if c.Graphics.ShadowCubeSize <= 0 {
		c.Graphics.ShadowCubeSize = 1024
	}
	return nil
}
