// Package window handles SDL2 window creation for the OpenGL and Vulkan
// backends.
package window

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/logger"
)

func init() {
	// Graphics calls must be made from the main thread
	runtime.LockOSThread()
}

// API selects the graphics API the window is created for.
type API int

const (
	APIOpenGL API = iota
	APIVulkan
)

func (a API) String() string {
	if a == APIVulkan {
		return "vulkan"
	}
	return "opengl"
}

// Config holds window configuration.
type Config struct {
	Title      string
	Width      int
	Height     int
	Fullscreen bool
	VSync      bool
	API        API
	// RelativeMouse captures the pointer and reports relative motion.
	RelativeMouse bool
}

// Window wraps an SDL2 window and, for OpenGL, its context.
type Window struct {
	config    Config
	sdlWindow *sdl.Window
	glContext sdl.GLContext
	log       *zap.Logger
}

// New creates a new window for cfg.API.
func New(cfg Config) (*Window, error) {
	w := &Window{
		config: cfg,
		log:    logger.Named("window"),
	}

	w.log.Info("initializing SDL2", zap.Stringer("api", cfg.API))
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("SDL_Init failed: %w", err)
	}

	flags := uint32(sdl.WINDOW_RESIZABLE | sdl.WINDOW_SHOWN)
	switch cfg.API {
	case APIVulkan:
		flags |= sdl.WINDOW_VULKAN
	default:
		// We want OpenGL 4.1 Core Profile (max supported on macOS)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 1)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
		sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)
		sdl.GLSetAttribute(sdl.GL_DEPTH_SIZE, 24)
		flags |= sdl.WINDOW_OPENGL
	}
	if cfg.Fullscreen {
		flags |= sdl.WINDOW_FULLSCREEN
	}

	var err error
	w.sdlWindow, err = sdl.CreateWindow(
		cfg.Title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		int32(cfg.Width),
		int32(cfg.Height),
		flags,
	)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("SDL_CreateWindow failed: %w", err)
	}

	if cfg.API == APIOpenGL {
		w.glContext, err = w.sdlWindow.GLCreateContext()
		if err != nil {
			w.sdlWindow.Destroy()
			sdl.Quit()
			return nil, fmt.Errorf("SDL_GL_CreateContext failed: %w", err)
		}

		interval := 0
		if cfg.VSync {
			interval = 1
		}
		if err := sdl.GLSetSwapInterval(interval); err != nil {
			w.log.Warn("failed to set swap interval", zap.Error(err))
		}
	}

	if cfg.RelativeMouse {
		sdl.SetRelativeMouseMode(true)
	}

	w.log.Info("window created",
		zap.String("title", cfg.Title),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Bool("fullscreen", cfg.Fullscreen),
		zap.Bool("vsync", cfg.VSync),
	)

	return w, nil
}

// Close destroys the window and cleans up SDL2.
func (w *Window) Close() {
	w.log.Info("closing window")

	if w.glContext != nil {
		sdl.GLDeleteContext(w.glContext)
	}
	if w.sdlWindow != nil {
		w.sdlWindow.Destroy()
	}

	sdl.Quit()
}

// GLSwap presents the OpenGL back buffer.
func (w *Window) GLSwap() {
	w.sdlWindow.GLSwap()
}

// VulkanInstanceExtensions returns the instance extensions SDL needs to
// create a surface for this window.
func (w *Window) VulkanInstanceExtensions() []string {
	return w.sdlWindow.VulkanGetInstanceExtensions()
}

// VulkanCreateSurface creates a VkSurfaceKHR for instance, which must be a
// vk.Instance.
func (w *Window) VulkanCreateSurface(instance any) (unsafe.Pointer, error) {
	surface, err := w.sdlWindow.VulkanCreateSurface(instance)
	if err != nil {
		return nil, fmt.Errorf("SDL_Vulkan_CreateSurface failed: %w", err)
	}
	return surface, nil
}

// VulkanProcAddr returns vkGetInstanceProcAddr as loaded by SDL.
func (w *Window) VulkanProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// DrawableSize returns the size of the drawable area in pixels, which
// differs from GetSize on high density displays.
func (w *Window) DrawableSize() (int, int) {
	var width, height int32
	if w.config.API == APIVulkan {
		width, height = w.sdlWindow.VulkanGetDrawableSize()
	} else {
		width, height = w.sdlWindow.GLGetDrawableSize()
	}
	return int(width), int(height)
}

// GetSize returns the current window size.
func (w *Window) GetSize() (int, int) {
	width, height := w.sdlWindow.GetSize()
	return int(width), int(height)
}

// SetTitle sets the window title.
func (w *Window) SetTitle(title string) {
	w.sdlWindow.SetTitle(title)
}
