// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// daemon.go - the run command: controller, control API and lock screen.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lockoverlay/internal/audit"
	"github.com/jeranaias/lockoverlay/internal/config"
	"github.com/jeranaias/lockoverlay/internal/fsutil"
	"github.com/jeranaias/lockoverlay/internal/host"
	"github.com/jeranaias/lockoverlay/internal/logging"
	"github.com/jeranaias/lockoverlay/internal/metrics"
	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/server"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
	"github.com/jeranaias/lockoverlay/internal/ui/lockscreen"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// HandleRun starts the daemon and blocks until the idle lock screen quits or ctx
// is cancelled. With --headless, or when stdin is not a terminal, it runs
// without a screen and serves the control API only.
func HandleRun(ctx context.Context, args Args, s Streams) error {
	p := NewArgParser(args.Raw, "headless")

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	headless := cfg.UI.Headless || p.BoolFlag("headless") || !IsTTY()

	d, err := newDaemon(cfg, headless, s.Err)
	if err != nil {
		return err
	}
	defer d.close()

	return d.run(ctx)
}

// =============================================================================
// DAEMON
// =============================================================================

// daemon owns every long-lived component of the run command.
type daemon struct {
	cfg      *config.Config
	headless bool
	logger   *slog.Logger

	closers []func() error

	lock     *host.InstanceLock
	store    settings.Store
	bus      *status.Bus
	ctrl     *overlay.Controller
	srv      *server.Server
	recorder *metrics.Recorder

	// newScreen builds a lock screen bound to ctx; nil runs headless.
	newScreen func(ctx context.Context) screen

	screenMu sync.Mutex
	current  screen
}

// screen is one run of the lock screen.
type screen interface {
	overlay.Surface
	// Run blocks until the screen exits.
	Run() error
	// Notify delivers msg to the running screen.
	Notify(msg tea.Msg)
	// Close stops delivery. It does not wait for Run.
	Close()
}

// teaScreen is a Bubble Tea program plus the surface feeding it.
type teaScreen struct {
	*lockscreen.TeaSurface
	prog *tea.Program
}

func (s *teaScreen) Run() error {
	_, err := s.prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

const (
	screenRestartDelay  = 250 * time.Millisecond
	screenRestartWindow = 10 * time.Second
	maxScreenRestarts   = 5
)

// newDaemon builds the components in dependency order. On failure anything
// already built is closed.
func newDaemon(cfg *config.Config, headless bool, stderr io.Writer) (*daemon, error) {
	d := &daemon{cfg: cfg, headless: headless}
	built := false
	defer func() {
		if !built {
			d.close()
		}
	}()

	if err := fsutil.EnsurePrivateDir(cfg.StateDir); err != nil {
		return nil, fmt.Errorf("%w: state directory: %w", ErrConfig, err)
	}

	// The lock screen owns the terminal, so logs go to a file while it runs.
	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr}
	if !headless {
		logOpts.File = cfg.Log.File
	}
	logger, logCloser, err := logging.Setup(logOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	d.logger = logger
	d.closers = append(d.closers, logCloser.Close)

	lock, err := host.AcquireInstanceLock(cfg.LockPath())
	if err != nil {
		return nil, err
	}
	d.lock = lock
	d.closers = append(d.closers, lock.Release)

	presence := host.NewPresence(cfg.PresencePath(), host.WithPresenceLogger(logger))
	if cleared, err := presence.ClearStale(); err != nil {
		logger.Warn("could not clear stale presence record", "path", presence.Path(), "error", err)
	} else if cleared {
		logger.Info("cleared stale presence record", "path", presence.Path())
	}

	store, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path)
	if err != nil {
		return nil, NewCommandError("run", "open settings", "cannot open settings store", err)
	}
	d.store = store
	d.closers = append(d.closers, store.Close)

	var ctrlOpts []overlay.Option
	if cfg.Security.AuditEnabled {
		auditLog, err := audit.Open(cfg.Security.AuditPath,
			audit.WithMaxSize(int64(cfg.Security.AuditMaxSizeMB)<<20),
			audit.WithLogger(logger),
		)
		if err != nil {
			return nil, NewCommandError("run", "open audit log", "cannot open audit log", err)
		}
		d.closers = append(d.closers, auditLog.Close)
		ctrlOpts = append(ctrlOpts, overlay.WithAuditor(auditLog))
	}

	busOpts := []status.Option{status.WithBuffer(cfg.Events.Buffer)}
	if cfg.Metrics.Enabled {
		d.recorder = metrics.New(true)
		ctrlOpts = append(ctrlOpts, overlay.WithRecorder(d.recorder))
		busOpts = append(busOpts, status.WithSubscriberHook(d.recorder.Subscribers))
	}
	d.bus = status.NewBus(busOpts...)

	ctrlOpts = append(ctrlOpts,
		overlay.WithAnnouncer(presence),
		overlay.WithPublisher(d.bus),
		overlay.WithMaxAttempts(cfg.Security.MaxPINAttempts),
		overlay.WithLogger(logger),
	)
	d.ctrl = overlay.NewController(ctrlOpts...)

	srvOpts := []server.Option{
		server.WithToken(cfg.Control.Token),
		server.WithDismissLimit(cfg.Control.DismissRate, cfg.Control.DismissBurst),
		server.WithDefaultEncoding(status.Encoding(cfg.Events.Encoding)),
		server.WithLogger(logger),
		server.WithVersion(Version),
	}
	if d.recorder != nil {
		srvOpts = append(srvOpts, server.WithMetrics(d.recorder))
	}
	d.srv = server.New(d.ctrl, store, d.bus, srvOpts...)

	if !headless {
		d.newScreen = d.newTeaScreen
	}

	built = true
	return d, nil
}

// run serves the control API and the lock screen until one of them stops.
func (d *daemon) run(ctx context.Context) error {
	ln, err := server.Listen(d.cfg.Control.Socket, d.cfg.Control.Listen)
	if err != nil {
		return NewCommandError("run", "listen", "cannot open control endpoint", err)
	}
	d.logger.Info("lockoverlay daemon started",
		"version", Version,
		"endpoint", ln.Addr().String(),
		"settings", d.cfg.Settings.Backend,
		"headless", d.headless,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		err := d.srv.Serve(ln)
		if err != nil {
			d.logger.Error("control server failed", "error", err)
		}
		serveErr <- err
		cancel()
	}()

	if d.cfg.Settings.Watch && d.cfg.Settings.Backend != settings.BackendMemory {
		watcher, err := settings.Watch(d.cfg.Settings.Path, func() {
			if err := settings.Reload(d.store); err != nil {
				d.logger.Warn("settings reload failed", "error", err)
				return
			}
			d.logger.Debug("settings reloaded", "path", d.cfg.Settings.Path)
			if sc := d.screen(); sc != nil {
				sc.Notify(lockscreen.SettingsChangedMsg{})
			}
		}, settings.WithWatcherLogger(d.logger))
		if err != nil {
			d.logger.Warn("settings watch disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	var uiErr error
	if d.newScreen == nil {
		<-runCtx.Done()
	} else {
		uiErr = d.runScreens(runCtx)
		cancel()
	}

	d.shutdown()

	select {
	case err := <-serveErr:
		if err != nil {
			return errors.Join(uiErr, NewCommandError("run", "serve", "control server failed", err))
		}
	default:
	}
	return uiErr
}

// runScreens runs the lock screen until it quits with no session showing or
// ctx is done. A screen that exits while a session is showing is replaced and
// the session is shown again on the new one. After maxScreenRestarts quick
// exits in a row the daemon stops trying and serves the control API only.
func (d *daemon) runScreens(ctx context.Context) error {
	restarts := 0
	for {
		sc := d.newScreen(ctx)
		d.setScreen(sc)
		d.ctrl.AttachSurface(sc)

		started := time.Now()
		err := sc.Run()

		d.ctrl.DetachSurface(sc)
		d.setScreen(nil)
		sc.Close()

		if ctx.Err() != nil {
			return nil
		}
		if d.ctrl.State() != overlay.StateShowing {
			if err != nil {
				return fmt.Errorf("lock screen: %w", err)
			}
			return nil
		}

		if time.Since(started) > screenRestartWindow {
			restarts = 0
		}
		restarts++
		var sessionID string
		if v := d.ctrl.Status().View; v != nil {
			sessionID = v.SessionID
		}
		if restarts > maxScreenRestarts {
			d.logger.Error("lock screen keeps exiting, continuing without it",
				"session_id", sessionID, "restarts", restarts-1, "error", err)
			<-ctx.Done()
			return nil
		}
		d.logger.Warn("lock screen exited during a session, restarting",
			"session_id", sessionID, "attempt", restarts, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(screenRestartDelay):
		}
	}
}

func (d *daemon) newTeaScreen(ctx context.Context) screen {
	model := lockscreen.New(d.ctrl,
		func() overlay.Settings { return settings.Snapshot(d.store) },
		lockscreen.WithTheme(styles.NewTheme(d.cfg.UI.Theme)),
	)
	progOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithoutSignalHandler()}
	if d.cfg.UI.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	prog := tea.NewProgram(model, progOpts...)
	return &teaScreen{TeaSurface: lockscreen.NewTeaSurface(prog.Send), prog: prog}
}

func (d *daemon) screen() screen {
	d.screenMu.Lock()
	defer d.screenMu.Unlock()
	return d.current
}

func (d *daemon) setScreen(sc screen) {
	d.screenMu.Lock()
	d.current = sc
	d.screenMu.Unlock()
}

// shutdown ends any session, then drains the control API and event stream.
func (d *daemon) shutdown() {
	if d.ctrl.State() == overlay.StateShowing {
		d.logger.Info("ending active session for shutdown")
	}
	d.ctrl.ForceStop()

	timeout := time.Duration(d.cfg.Control.ShutdownTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil {
		d.logger.Warn("control server shutdown incomplete", "error", err)
	}
	d.bus.Close()
	d.logger.Info("lockoverlay daemon stopped")
}

// close releases resources in reverse order of acquisition.
func (d *daemon) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil && d.logger != nil {
			d.logger.Warn("close failed", "error", err)
		}
	}
	d.closers = nil
}
