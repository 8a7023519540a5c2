package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging and validation layers")
	flagBackend    = flag.String("backend", "", "Graphics backend: vulkan, opengl or headless")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
	flagFrames     = flag.Int("frames", 0, "Frames in flight (1 or 2)")
	flagPrepass    = flag.String("prepass", "", "Depth pre-pass: on or off")
	flagVSync      = flag.String("vsync", "", "Vertical sync: on or off")
	flagRender     = flag.Int("frames-to-render", 0, "Frames to render in headless mode")
	flagSave       = flag.Bool("save-config", false, "Write the effective config to the user config directory and exit")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// SaveRequested reports whether --save-config was given.
func SaveRequested() bool {
	return *flagSave
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
		cfg.Graphics.Validation = true
	}
	if *flagBackend != "" {
		cfg.Graphics.Backend = *flagBackend
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
	if *flagFrames > 0 {
		cfg.Graphics.FramesInFlight = *flagFrames
	}
	if v, ok := onOff(*flagPrepass); ok {
		cfg.Graphics.DepthPrepass = v
	}
	if v, ok := onOff(*flagVSync); ok {
		cfg.Graphics.VSync = v
	}
	if *flagRender > 0 {
		cfg.Scene.FramesToRender = *flagRender
	}
}

func onOff(s string) (value, ok bool) {
	switch s {
	case "on", "true", "1":
		return true, true
	case "off", "false", "0":
		return false, true
	}
	return false, false
}
