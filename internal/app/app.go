// Package app wires the window, the device and the renderer together and
// runs the main loop.
package app

import (
	"context"
	"io/fs"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/quadview/internal/assets"
	"github.com/vkngwrapper/quadview/internal/config"
	"github.com/vkngwrapper/quadview/internal/device"
	"github.com/vkngwrapper/quadview/internal/window"
)

type Application struct {
	cfg    config.Config
	assets fs.FS

	window   *window.Window
	device   *device.Context
	renderer *Renderer
}

// New returns an application reading its assets from fsys.
func New(cfg config.Config, fsys fs.FS) *Application {
	return &Application{cfg: cfg, assets: fsys}
}

// Run opens the window and draws until it is closed. The calling goroutine
// must be locked to its OS thread.
func (app *Application) Run() error {
	err := app.cfg.Validate()
	if err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	bundle, err := assets.Load(context.Background(), app.assets, app.cfg)
	if err != nil {
		return errors.Wrap(err, "load assets")
	}

	app.window, err = window.New(app.cfg)
	if err != nil {
		return err
	}
	defer app.window.Destroy()

	err = app.initVulkan(bundle)
	if err != nil {
		return err
	}

	err = app.mainLoop()
	if err != nil {
		return err
	}

	return app.cleanup()
}

func (app *Application) initVulkan(bundle assets.Bundle) error {
	var err error
	app.device, err = device.New(app.cfg, app.window)
	if err != nil {
		return err
	}

	app.renderer, err = NewRenderer(Target{
		Device:         app.device.Device,
		Surface:        app.device.Surface,
		Graphics:       app.device.Graphics,
		Present:        app.device.Present,
		GraphicsFamily: app.device.Families.Graphics,
		QueueFamilies:  app.device.Families.Unique(),
	}, app.window, bundle)
	return err
}

func (app *Application) mainLoop() error {
	for !app.window.ShouldClose() {
		app.window.PollEvents()

		err := app.renderer.DrawFrame()
		if err != nil {
			return err
		}
	}

	return nil
}

func (app *Application) cleanup() error {
	err := app.renderer.Destroy()
	if err != nil {
		return errors.Wrap(err, "wait for device idle")
	}

	app.device.Destroy()
	return nil
}
