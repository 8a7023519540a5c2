// Package app wires configuration, window, graphics backend and demo scene
// together and runs the frame loop.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/assets"
	"github.com/Faultbox/renderlab/internal/config"
	"github.com/Faultbox/renderlab/internal/engine/input"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/render/headless"
	"github.com/Faultbox/renderlab/internal/engine/render/opengl"
	"github.com/Faultbox/renderlab/internal/engine/render/vulkan"
	"github.com/Faultbox/renderlab/internal/engine/scene"
	"github.com/Faultbox/renderlab/internal/engine/technique"
	"github.com/Faultbox/renderlab/internal/engine/texture"
	"github.com/Faultbox/renderlab/internal/engine/window"
	"github.com/Faultbox/renderlab/internal/logger"
)

// Title is the window title and Vulkan application name.
const Title = "RenderLab"

// headlessDelta is the simulated frame time of headless runs.
const headlessDelta = 16_667 * time.Microsecond

// App is one running renderer instance.
type App struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer

	window   *window.Window // nil when headless
	input    *input.Input   // nil when headless
	shaders  *assets.Manager
	textures *assets.Manager
	models   *assets.Manager

	graphics render.Graphics
	headless *headless.Backend
	world    *scene.World
	tech     *technique.Technique
	scene    *Scene
}

// New creates the window, the backend and the demo scene described by cfg,
// and builds every GPU resource.
func New(cfg *config.Config) (*App, error) {
	a := &App{
		cfg:      cfg,
		log:      logger.Named("app"),
		out:      os.Stdout,
		shaders:  assets.NewManager(),
		textures: assets.NewManager(),
		models:   assets.NewManager(),
	}
	a.log.Info("initializing",
		zap.String("backend", cfg.Graphics.Backend),
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.Int("framesInFlight", cfg.Graphics.FramesInFlight),
		zap.Bool("depthPrepass", cfg.Graphics.DepthPrepass))

	a.addAssetDirs()

	if err := a.createGraphics(); err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	if err := a.graphics.Initialize(cfg.Graphics.FramesInFlight); err != nil {
		err = fmt.Errorf("initializing %s backend: %w", cfg.Graphics.Backend, err)
		return nil, multierr.Append(err, a.Close())
	}

	opts := scene.DefaultOptions()
	opts.ShadowSizes = render.ShadowSizes{Map: cfg.Graphics.ShadowMapSize, Cube: cfg.Graphics.ShadowCubeSize}
	opts.DepthBiasConstant = cfg.Graphics.DepthBiasConstant
	opts.DepthBiasSlope = cfg.Graphics.DepthBiasSlope
	a.world = scene.NewWorld(a.graphics, opts)
	a.tech = technique.New(a.graphics, a.world, cfg.Graphics.FramesInFlight)

	var in scene.InputState = idleInput{}
	if a.input != nil {
		in = a.input
	}
	s, err := BuildScene(a.world, a.tech, SceneOptions{
		Demo:             cfg.Scene.Demo,
		Width:            cfg.Graphics.Width,
		Height:           cfg.Graphics.Height,
		MoveSpeed:        cfg.Scene.MoveSpeed,
		MouseSensitivity: cfg.Scene.MouseSensitivity,
		Input:            in,
		Textures:         texture.NewLoader(a.textures),
		Models:           cfg.Scene.Models,
		ModelSource:      a.models,
	})
	if err != nil {
		return nil, multierr.Append(err, a.Close())
	}
	a.scene = s

	if err := a.tech.Build(); err != nil {
		err = fmt.Errorf("building technique: %w", err)
		return nil, multierr.Append(err, a.Close())
	}
	a.log.Info("initialized", zap.String("demo", cfg.Scene.Demo), zap.Int("entities", a.world.Len()))
	return a, nil
}

// addAssetDirs registers the configured asset directories. Missing
// directories are logged and skipped.
func (a *App) addAssetDirs() {
	if dir := a.cfg.Assets.ShaderDir; dir != "" {
		if err := a.shaders.AddDir(dir); err != nil {
			a.log.Warn("shader directory skipped", zap.Error(err))
		}
	}
	for _, dir := range a.cfg.Assets.TextureDirs {
		if err := a.textures.AddDir(dir); err != nil {
			a.log.Warn("texture directory skipped", zap.Error(err))
		}
	}
	for _, dir := range a.cfg.Assets.ModelDirs {
		if err := a.models.AddDir(dir); err != nil {
			a.log.Warn("model directory skipped", zap.Error(err))
		}
	}
}

func (a *App) createGraphics() error {
	g := a.cfg.Graphics
	if g.Backend == config.BackendHeadless {
		a.headless = headless.New(headless.Options{DepthPrepass: g.DepthPrepass})
		a.graphics = a.headless
		return nil
	}

	api := window.APIOpenGL
	if g.Backend == config.BackendVulkan {
		api = window.APIVulkan
	}
	w, err := window.New(window.Config{
		Title:         Title,
		Width:         g.Width,
		Height:        g.Height,
		Fullscreen:    g.Fullscreen,
		VSync:         g.VSync,
		API:           api,
		RelativeMouse: true,
	})
	if err != nil {
		return fmt.Errorf("creating window: %w", err)
	}
	a.window = w
	a.input = input.New()

	switch g.Backend {
	case config.BackendVulkan:
		a.graphics = vulkan.New(vulkan.Options{
			AppName:      Title,
			Window:       w,
			Shaders:      a.shaders,
			VSync:        g.VSync,
			DepthPrepass: g.DepthPrepass,
			Validation:   g.Validation,
		})
	case config.BackendOpenGL:
		a.graphics = opengl.New(opengl.Options{
			Window:       w,
			DepthPrepass: g.DepthPrepass,
		})
	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownBackend, g.Backend)
	}
	return nil
}

// Run renders until the window closes, or renders the configured number of
// frames and prints a summary when headless.
func (a *App) Run() error {
	if a.headless != nil {
		return a.runHeadless()
	}

	a.log.Info("starting frame loop")
	start := time.Now()
	last := start
	titleTimer := start

	var budget time.Duration
	if limit := a.cfg.Graphics.FPSLimit; limit > 0 {
		budget = time.Second / time.Duration(limit)
	}

	for {
		frameStart := time.Now()

		if a.input.Update() || a.input.Pressed(scene.KeyEscape) {
			return nil
		}
		if err := a.handleInput(); err != nil {
			return err
		}

		now := time.Now()
		a.world.Update(now.Sub(start).Microseconds(), now.Sub(last).Microseconds())
		last = now

		if w, h := a.window.DrawableSize(); w == 0 || h == 0 {
			// Minimized.
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := a.world.Frame(); err != nil {
			if !errors.Is(err, render.ErrOutOfDate) {
				return fmt.Errorf("rendering frame: %w", err)
			}
			w, h := a.window.DrawableSize()
			if err := a.resize(w, h, true); err != nil {
				return err
			}
			continue
		}

		if now.Sub(titleTimer) >= time.Second {
			a.window.SetTitle(fmt.Sprintf("%s - %d fps", Title, a.world.FPS()))
			titleTimer = now
		}
		if elapsed := time.Since(frameStart); budget > 0 && elapsed < budget {
			time.Sleep(budget - elapsed)
		}
	}
}

func (a *App) handleInput() error {
	if a.input.Pressed(scene.KeyPlus) {
		a.world.AdjustDepthBias(1)
	}
	if a.input.Pressed(scene.KeyMinus) {
		a.world.AdjustDepthBias(-1)
	}
	if _, _, ok := a.input.Resized(); ok {
		w, h := a.window.DrawableSize()
		return a.resize(w, h, false)
	}
	return nil
}

// resize follows the drawable size. force recreates the back buffers even
// when the size is unchanged, as an out-of-date swapchain requires.
func (a *App) resize(width, height int, force bool) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if w, h := a.scene.View.Extent(); !force && w == width && h == height {
		return nil
	}
	if err := a.tech.UpdateWindow(0, 0, width, height); err != nil {
		return fmt.Errorf("resizing to %dx%d: %w", width, height, err)
	}
	return nil
}

// runHeadless renders FramesToRender frames at a fixed frame time.
func (a *App) runHeadless() error {
	frames := a.cfg.Scene.FramesToRender
	var abs time.Duration
	for i := 0; i < frames; i++ {
		abs += headlessDelta
		a.world.Update(abs.Microseconds(), headlessDelta.Microseconds())
		if err := a.world.Frame(); err != nil {
			return fmt.Errorf("rendering frame %d: %w", i, err)
		}
	}
	a.log.Info("headless run complete", zap.Int("frames", frames))
	_, err := fmt.Fprintln(a.out, a.headless.Summary())
	return err
}

// Close releases the backend and the window. It is safe to call twice.
func (a *App) Close() error {
	a.log.Info("closing")
	var err error
	if a.graphics != nil {
		if err = a.graphics.Destroy(); err != nil {
			err = fmt.Errorf("destroying graphics: %w", err)
		}
		a.graphics = nil
	}
	if a.window != nil {
		a.window.Close()
		a.window = nil
	}
	a.shaders.Close()
	a.textures.Close()
	a.models.Close()
	return err
}

// idleInput holds no keys and never moves; it drives the camera when there
// is no window.
type idleInput struct{}

func (idleInput) KeyDown(scene.Key) bool { return false }
func (idleInput) MouseDelta() (dx, dy float32) { return 0, 0 }
