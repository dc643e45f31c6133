// Package window is the SDL2 host window the renderer draws into.
package window

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/quadview/internal/config"
)

type Window struct {
	window *sdl.Window

	closing   bool
	resized   bool
	minimized bool
}

// New initializes SDL video and opens a resizable Vulkan window. SDL must be
// driven from the thread that calls New.
func New(cfg config.Config) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Width), int32(cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{window: window}, nil
}

// SDL exposes the underlying window for surface creation.
func (w *Window) SDL() *sdl.Window {
	return w.window
}

// PollEvents handles every queued event without blocking.
func (w *Window) PollEvents() {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.handle(event)
	}
}

// WaitEvents blocks for one event, then handles whatever else is queued.
func (w *Window) WaitEvents() {
	if event := sdl.WaitEvent(); event != nil {
		w.handle(event)
	}
	w.PollEvents()
}

func (w *Window) handle(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		w.closing = true
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			w.closing = true
		}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			w.closing = true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			w.resized = true
		case sdl.WINDOWEVENT_MINIMIZED:
			w.minimized = true
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
			w.minimized = false
			w.resized = true
		}
	}
}

func (w *Window) ShouldClose() bool {
	return w.closing
}

// PollResize reports whether the window changed size since the last call.
func (w *Window) PollResize() bool {
	resized := w.resized
	w.resized = false
	return resized
}

// DrawableSize is the size of the window in pixels, or zero while minimized.
func (w *Window) DrawableSize() (int, int) {
	if w.minimized {
		return 0, 0
	}

	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

// RequiredExtensions lists the instance extensions surface creation needs.
func (w *Window) RequiredExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) Destroy() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
