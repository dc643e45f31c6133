package window

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veandco/go-sdl2/sdl"
)

func TestHandleClose(t *testing.T) {
	for name, event := range map[string]sdl.Event{
		"quit":   &sdl.QuitEvent{Type: sdl.QUIT},
		"escape": &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}},
		"close":  &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_CLOSE},
	} {
		t.Run(name, func(t *testing.T) {
			w := &Window{}
			require.False(t, w.ShouldClose())
			w.handle(event)
			require.True(t, w.ShouldClose())
		})
	}
}

func TestHandleIgnoresOtherKeys(t *testing.T) {
	w := &Window{}
	w.handle(&sdl.KeyboardEvent{Type: sdl.KEYUP, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}})
	w.handle(&sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_SPACE}})
	require.False(t, w.ShouldClose())
}

func TestPollResizeIsOneShot(t *testing.T) {
	w := &Window{}
	require.False(t, w.PollResize())

	w.handle(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESIZED})
	w.handle(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_SIZE_CHANGED})
	require.True(t, w.PollResize())
	require.False(t, w.PollResize())
}

func TestMinimizedHasNoDrawableArea(t *testing.T) {
	w := &Window{}
	w.handle(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MINIMIZED})

	width, height := w.DrawableSize()
	require.Zero(t, width)
	require.Zero(t, height)

	w.handle(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESTORED})
	require.False(t, w.minimized)
	require.True(t, w.PollResize())
}
