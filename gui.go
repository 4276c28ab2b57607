package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"go.aimuz.me/thinkbox/backend"
	"go.aimuz.me/thinkbox/cache"
	"go.aimuz.me/thinkbox/config"
	"go.aimuz.me/thinkbox/hotkey"
	"go.aimuz.me/thinkbox/internal/app"
	"go.aimuz.me/thinkbox/overlay"
	"go.aimuz.me/thinkbox/screenshot"
	"go.aimuz.me/thinkbox/supervisor"
)

func runGUI(opts *rootOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	logger, err := opts.setupLogging(cfg, logFile("thinkbox.log"))
	if err != nil {
		return err
	}
	defer logger.Close()

	slog.Info("starting app", "version", version, "commit", commit, "date", date, "config", cfg.File())

	lock, err := acquireInstanceLock()
	if err != nil {
		return err
	}
	defer lock.Unlock()

	c, err := cache.New("")
	if err != nil {
		slog.Error("init cache", "error", err)
	} else {
		defer c.Close()
	}

	var backendOut io.Writer = io.Discard
	if f, err := openBackendLog(); err != nil {
		slog.Warn("open backend log", "error", err)
	} else {
		defer f.Close()
		backendOut = f
	}

	client := backend.New(cfg.Backend.APIBase(), cfg.SessionID, backend.Options{Cache: c})
	svc := app.New(version)

	wailsApp := application.New(application.Options{
		Name:        "Think Box",
		Description: "Hotkey overlay for the local agent",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Keep running in the tray when all windows are closed
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	emit := func(name string, data any) {
		wailsApp.Event.Emit(name, data)
	}

	startup := app.NewStartup(emit)
	sup := supervisor.New(supervisor.Options{
		Prober:     supervisor.NewProber(cfg.Backend.Health(), cfg.SessionID),
		BackendDir: cfg.Backend.DirOverride(),
		Python:     cfg.Backend.PythonOverride(),
		Host:       cfg.Backend.Host,
		Port:       cfg.Backend.Port,
		Output:     backendOut,
		OnPhase:    startup.OnPhase,
	})

	splash := wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Name:          "splash",
		Title:         "Think Box",
		Width:         420,
		Height:        220,
		URL:           "/#/splash",
		Frameless:     true,
		AlwaysOnTop:   true,
		DisableResize: true,
	})

	mainWindow := wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Name:   "main",
		Title:  "Think Box",
		Width:  1100,
		Height: 760,
		URL:    "/",
		Hidden: true,
		Mac: application.MacWindow{
			TitleBar:                application.MacTitleBarHiddenInsetUnified,
			InvisibleTitleBarHeight: 38,
		},
		DevToolsEnabled: true,
	})

	// Intercept window close: hide instead of destroy so tray can reopen
	mainWindow.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		mainWindow.Hide()
	})

	hook := hotkey.NewHook()

	svc.Init(app.Deps{
		Config:     cfg,
		Backend:    client,
		Capturer:   screenshot.New(),
		Registrar:  hook,
		Display:    app.NewScreenDisplay(wailsApp, hook),
		NewOverlay: func() overlay.Window { return app.NewWindowAdapter(newOverlayWindow(wailsApp)) },
		Activity:   hook,
		Startup:    startup,
		Emit:       emit,
		OnLogLevel: logger.SetLevel,
	})
	svc.WatchConfig(cfg.File())

	setupTray(wailsApp, svc, mainWindow)

	wailsApp.Event.OnApplicationEvent(events.Common.ApplicationStarted, func(*application.ApplicationEvent) {
		hook.Start()
		startup.Run(context.Background(), sup, cfg.Backend.StartTimeout(),
			func() {
				svc.ReloadSettings()
				splash.Close()
				mainWindow.Show()
			},
			func(err error) {
				slog.Error("backend not ready, overlay unavailable", "error", err)
			},
		)
	})

	// Run application
	runErr := wailsApp.Run()

	startup.Stop()
	svc.Shutdown()
	hook.Stop()
	sup.Shutdown()

	if runErr != nil {
		return fmt.Errorf("run app: %w", runErr)
	}
	return nil
}

// newOverlayWindow creates the Think Box window. It starts hidden; the
// overlay controller sizes and shows it.
func newOverlayWindow(wailsApp *application.App) *application.WebviewWindow {
	return wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Name:          "thinkbox",
		Title:         "Think Box",
		Width:         420,
		Height:        360,
		URL:           "/#/thinkbox",
		Frameless:     true,
		AlwaysOnTop:   true,
		Hidden:        true,
		DisableResize: true,
		Mac: application.MacWindow{
			TitleBar: application.MacTitleBarHiddenInsetUnified,
		},
	})
}

// acquireInstanceLock makes sure only one shell supervises the backend.
func acquireInstanceLock() (*flock.Flock, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "thinkbox.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another thinkbox instance is already running")
	}
	return lock, nil
}

func setupTray(wailsApp *application.App, svc *app.Service, mainWindow *application.WebviewWindow) {
	systemTray := wailsApp.SystemTray.New()
	systemTray.SetIcon(trayIconBytes)

	trayMenu := wailsApp.NewMenu()
	trayMenu.Add("Show Think Box").OnClick(func(ctx *application.Context) {
		svc.ShowOverlay()
	})
	trayMenu.Add("Open Main Window").OnClick(func(ctx *application.Context) {
		mainWindow.Show()
		mainWindow.Focus()
	})

	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			wailsApp.Quit()
		})

	systemTray.SetMenu(trayMenu)
}
