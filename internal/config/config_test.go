package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Graphics.Width != 1200 {
		t.Errorf("expected width 1200, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 800 {
		t.Errorf("expected height 800, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}
	if cfg.Graphics.Backend != BackendOpenGL {
		t.Errorf("expected opengl backend, got %s", cfg.Graphics.Backend)
	}
	if cfg.Graphics.FramesInFlight != 2 {
		t.Errorf("expected 2 frames in flight, got %d", cfg.Graphics.FramesInFlight)
	}
	if cfg.Graphics.ShadowMapSize != 2048 || cfg.Graphics.ShadowCubeSize != 1024 {
		t.Errorf("unexpected shadow sizes %d/%d", cfg.Graphics.ShadowMapSize, cfg.Graphics.ShadowCubeSize)
	}
	if cfg.Graphics.DepthBiasConstant != 3.0 {
		t.Errorf("expected depth bias 3.0, got %f", cfg.Graphics.DepthBiasConstant)
	}

	if cfg.Assets.ShaderDir != "shaders" {
		t.Errorf("expected shader dir 'shaders', got %s", cfg.Assets.ShaderDir)
	}
	if cfg.Scene.MoveSpeed != 0.5 {
		t.Errorf("expected move speed 0.5, got %f", cfg.Scene.MoveSpeed)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false
  fps_limit: 144
  backend: vulkan
  frames_in_flight: 1
  depth_prepass: false
  shadow_map_size: 4096

assets:
  shader_dir: "build/spv"
  texture_dirs: ["a", "b"]

  model_dirs: ["assets/models"]

scene:
  move_speed: 2.5
  models:
    - file: "crate.obj"
      position: [1, 2, 3]
      scale: 0.5
      no_shadow: true

logging:
  level: "debug"
  log_file: "render.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 1080 {
		t.Errorf("expected height 1080, got %d", cfg.Graphics.Height)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.Graphics.VSync {
		t.Error("expected vsync to be false")
	}
	if cfg.Graphics.FPSLimit != 144 {
		t.Errorf("expected fps limit 144, got %d", cfg.Graphics.FPSLimit)
	}
	if cfg.Graphics.Backend != BackendVulkan {
		t.Errorf("expected vulkan backend, got %s", cfg.Graphics.Backend)
	}
	if cfg.Graphics.FramesInFlight != 1 {
		t.Errorf("expected 1 frame in flight, got %d", cfg.Graphics.FramesInFlight)
	}
	if cfg.Graphics.DepthPrepass {
		t.Error("expected depth prepass to be disabled")
	}
	if cfg.Graphics.ShadowMapSize != 4096 {
		t.Errorf("expected shadow map 4096, got %d", cfg.Graphics.ShadowMapSize)
	}
	// Untouched keys keep their defaults
	if cfg.Graphics.ShadowCubeSize != 1024 {
		t.Errorf("expected default cube size 1024, got %d", cfg.Graphics.ShadowCubeSize)
	}

	if cfg.Assets.ShaderDir != "build/spv" {
		t.Errorf("expected shader dir build/spv, got %s", cfg.Assets.ShaderDir)
	}
	if len(cfg.Assets.TextureDirs) != 2 {
		t.Errorf("expected 2 texture dirs, got %v", cfg.Assets.TextureDirs)
	}
	if cfg.Scene.MoveSpeed != 2.5 {
		t.Errorf("expected move speed 2.5, got %f", cfg.Scene.MoveSpeed)
	}
	if len(cfg.Assets.ModelDirs) != 1 || cfg.Assets.ModelDirs[0] != "assets/models" {
		t.Errorf("expected model dir assets/models, got %v", cfg.Assets.ModelDirs)
	}
	want := ModelConfig{File: "crate.obj", Position: [3]float32{1, 2, 3}, Scale: 0.5, NoShadow: true}
	if len(cfg.Scene.Models) != 1 || cfg.Scene.Models[0] != want {
		t.Errorf("expected model %+v, got %+v", want, cfg.Scene.Models)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "render.log" {
		t.Errorf("expected log file 'render.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
graphics:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		check   func(*testing.T, *Config)
	}{
		{
			name:   "frames clamped high",
			mutate: func(c *Config) { c.Graphics.FramesInFlight = 5 },
			check: func(t *testing.T, c *Config) {
				if c.Graphics.FramesInFlight != MaxFramesInFlight {
					t.Errorf("expected %d frames, got %d", MaxFramesInFlight, c.Graphics.FramesInFlight)
				}
			},
		},
		{
			name:   "frames clamped low",
			mutate: func(c *Config) { c.Graphics.FramesInFlight = 0 },
			check: func(t *testing.T, c *Config) {
				if c.Graphics.FramesInFlight != 1 {
					t.Errorf("expected 1 frame, got %d", c.Graphics.FramesInFlight)
				}
			},
		},
		{
			name:   "shadow sizes restored",
			mutate: func(c *Config) { c.Graphics.ShadowMapSize = -1; c.Graphics.ShadowCubeSize = 0 },
			check: func(t *testing.T, c *Config) {
				if c.Graphics.ShadowMapSize != 2048 || c.Graphics.ShadowCubeSize != 1024 {
					t.Errorf("unexpected shadow sizes %d/%d", c.Graphics.ShadowMapSize, c.Graphics.ShadowCubeSize)
				}
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Graphics.Backend = "metal" },
			wantErr: ErrUnknownBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
				if !cfg.Graphics.Validation {
					t.Error("expected validation layers with debug flag")
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "backend flag",
			setup: func() { *flagBackend = BackendHeadless },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Backend != BackendHeadless {
					t.Errorf("expected headless backend, got %s", cfg.Graphics.Backend)
				}
			},
			teardown: func() { *flagBackend = "" },
		},
		{
			name:  "windowed flag",
			setup: func() { *flagWindowed = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be false with windowed flag")
				}
			},
			teardown: func() { *flagWindowed = false },
		},
		{
			name:  "fullscreen flag",
			setup: func() { *flagFullscreen = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() { *flagFullscreen = false },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 {
					t.Errorf("expected width 2560, got %d", cfg.Graphics.Width)
				}
				if cfg.Graphics.Height != 1440 {
					t.Errorf("expected height 1440, got %d", cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
		{
			name: "prepass and vsync switches",
			setup: func() {
				*flagPrepass = "off"
				*flagVSync = "off"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.DepthPrepass {
					t.Error("expected depth prepass off")
				}
				if cfg.Graphics.VSync {
					t.Error("expected vsync off")
				}
			},
			teardown: func() {
				*flagPrepass = ""
				*flagVSync = ""
			},
		},
		{
			name:  "invalid switch ignored",
			setup: func() { *flagPrepass = "maybe" },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.DepthPrepass {
					t.Error("expected default depth prepass to survive an invalid switch")
				}
			},
			teardown: func() { *flagPrepass = "" },
		},
		{
			name:  "frames flag",
			setup: func() { *flagFrames = 1 },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.FramesInFlight != 1 {
					t.Errorf("expected 1 frame in flight, got %d", cfg.Graphics.FramesInFlight)
				}
			},
			teardown: func() { *flagFrames = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Flag overrides the config file
	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Graphics.Backend = BackendHeadless
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Graphics.Backend != BackendHeadless {
		t.Errorf("expected headless backend after reload, got %s", loaded.Graphics.Backend)
	}
}

func TestSaveWritesUserConfigDir(t *testing.T) {
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		t.Skip("config dir is not under XDG_CONFIG_HOME")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.Scene.Models = []ModelConfig{{File: "teapot.obj", Scale: 2}}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, filepath.Join(ConfigDir(), "config.yaml")); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(loaded.Scene.Models) != 1 || loaded.Scene.Models[0].File != "teapot.obj" {
		t.Errorf("expected teapot model after reload, got %+v", loaded.Scene.Models)
	}
}
