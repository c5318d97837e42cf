// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lockoverlay/internal/client"
	"github.com/jeranaias/lockoverlay/internal/config"
	"github.com/jeranaias/lockoverlay/internal/host"
	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/server"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
	"github.com/jeranaias/lockoverlay/internal/ui/lockscreen"
)

// =============================================================================
// HELPERS
// =============================================================================

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfgPath, _ := writeConfig(t, "")
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfg
}

type runningDaemon struct {
	*daemon
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// startRun runs d in the background and waits for the control API.
func startRun(t *testing.T, d *daemon) *runningDaemon {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	rd := &runningDaemon{daemon: d, cancel: cancel, done: make(chan struct{})}
	go func() {
		rd.err = d.run(ctx)
		close(rd.done)
	}()
	t.Cleanup(func() {
		cancel()
		<-rd.done
		d.close()
	})

	require.Eventually(t, func() bool {
		_, err := client.New(d.cfg.Control.Socket, "").Health(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	return rd
}

func (rd *runningDaemon) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-rd.done:
		return rd.err
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func (rd *runningDaemon) stop(t *testing.T) error {
	t.Helper()
	rd.cancel()
	return rd.wait(t)
}

// fakeScreen stands in for the terminal lock screen.
type fakeScreen struct {
	ctx  context.Context
	exit chan error

	mu       sync.Mutex
	shows    int
	notified int
	closed   bool
}

func (f *fakeScreen) Show(overlay.View) {
	f.mu.Lock()
	f.shows++
	f.mu.Unlock()
}

func (f *fakeScreen) Update(overlay.View) {}
func (f *fakeScreen) Hide()               {}

func (f *fakeScreen) Notify(msg tea.Msg) {
	if _, ok := msg.(lockscreen.SettingsChangedMsg); ok {
		f.mu.Lock()
		f.notified++
		f.mu.Unlock()
	}
}

func (f *fakeScreen) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeScreen) Run() error {
	select {
	case err := <-f.exit:
		return err
	case <-f.ctx.Done():
		return nil
	}
}

func (f *fakeScreen) counts() (shows, notified int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shows, f.notified, f.closed
}

// useFakeScreens makes d build fake screens and reports each one built. With
// broken set every screen exits as soon as it runs.
func useFakeScreens(d *daemon, broken bool) <-chan *fakeScreen {
	built := make(chan *fakeScreen, 16)
	d.newScreen = func(ctx context.Context) screen {
		f := &fakeScreen{ctx: ctx, exit: make(chan error, 1)}
		if broken {
			f.exit <- errors.New("open /dev/tty: no such device")
		}
		built <- f
		return f
	}
	return built
}

func nextScreen(t *testing.T, built <-chan *fakeScreen) *fakeScreen {
	t.Helper()
	select {
	case f := <-built:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no lock screen was started")
		return nil
	}
}

func protectedSession() overlay.Settings {
	return overlay.Settings{PINProtectionEnabled: true, PINCode: "2468"}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestDaemon_HeadlessLifecycle(t *testing.T) {
	cfg := loadTestConfig(t)
	d, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err)
	rd := startRun(t, d)

	_, err = newDaemon(cfg, true, io.Discard)
	assert.ErrorIs(t, err, host.ErrAnotherInstance)

	ctx := context.Background()
	c := client.New(cfg.Control.Socket, "")
	on, pin := true, "2468"
	req := server.ActivateRequest{PINProtectionEnabled: &on, PINCode: &pin}

	_, err = c.Activate(ctx, req)
	require.NoError(t, err)
	assert.FileExists(t, cfg.PresencePath())

	_, err = c.Stop(ctx)
	require.NoError(t, err)
	assert.NoFileExists(t, cfg.PresencePath())

	sub := d.bus.Subscribe(false)
	_, err = c.Activate(ctx, req)
	require.NoError(t, err)
	require.NoError(t, rd.stop(t))

	var dismissed []status.Event
	for ev := range sub.Events() {
		if ev.Kind == status.KindDismissed {
			dismissed = append(dismissed, ev)
		}
	}
	require.Len(t, dismissed, 1)
	assert.Equal(t, status.ReasonForceStop, dismissed[0].Reason)
	assert.Equal(t, overlay.StateIdle, d.ctrl.State())
	assert.NoFileExists(t, cfg.PresencePath())

	d.close()
	again, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err, "instance lock should be released on close")
	again.close()
}

// =============================================================================
// LOCK SCREEN
// =============================================================================

func TestDaemon_ScreenExitDuringLockoutIsReplaced(t *testing.T) {
	cfg := loadTestConfig(t)
	d, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err)
	built := useFakeScreens(d, false)
	rd := startRun(t, d)

	first := nextScreen(t, built)
	require.NoError(t, d.ctrl.Activate(protectedSession()))
	wrong := "0000"
	for range cfg.Security.MaxPINAttempts {
		d.ctrl.RequestDismiss(&wrong)
	}
	require.True(t, d.ctrl.Status().View.LockedOut)
	require.Eventually(t, func() bool {
		shows, _, _ := first.counts()
		return shows == 1
	}, time.Second, 5*time.Millisecond)

	first.exit <- errors.New("read /dev/tty: input/output error")

	second := nextScreen(t, built)
	require.Eventually(t, func() bool {
		shows, _, _ := second.counts()
		return shows == 1
	}, 2*time.Second, 5*time.Millisecond, "session should be shown on the new screen")
	_, _, closed := first.counts()
	assert.True(t, closed)
	assert.Equal(t, overlay.StateShowing, d.ctrl.State())
	assert.True(t, d.ctrl.Status().View.LockedOut)

	// Quitting from an idle screen ends the daemon.
	d.ctrl.ForceStop()
	second.exit <- nil
	require.NoError(t, rd.wait(t))
	assert.Empty(t, built, "no screen should start after an idle quit")
}

func TestDaemon_CancelEndsSessionWithScreen(t *testing.T) {
	cfg := loadTestConfig(t)
	d, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err)
	built := useFakeScreens(d, false)
	rd := startRun(t, d)

	sc := nextScreen(t, built)
	sub := d.bus.Subscribe(false)
	require.NoError(t, d.ctrl.Activate(protectedSession()))

	require.NoError(t, rd.stop(t))

	dismissed := 0
	for ev := range sub.Events() {
		if ev.Kind == status.KindDismissed {
			dismissed++
		}
	}
	assert.Equal(t, 1, dismissed)
	_, _, closed := sc.counts()
	assert.True(t, closed)
	assert.Empty(t, built)
}

func TestDaemon_BrokenScreenGivesUpButKeepsSession(t *testing.T) {
	cfg := loadTestConfig(t)
	d, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err)
	require.NoError(t, d.ctrl.Activate(protectedSession()))
	built := useFakeScreens(d, true)
	rd := startRun(t, d)

	want := maxScreenRestarts + 1
	require.Eventually(t, func() bool {
		return len(built) == want
	}, 5*time.Second, 10*time.Millisecond)
	time.Sleep(2 * screenRestartDelay)
	assert.Len(t, built, want)

	assert.Equal(t, overlay.StateShowing, d.ctrl.State())
	select {
	case <-rd.done:
		t.Fatal("daemon stopped while a session was showing")
	default:
	}

	require.NoError(t, rd.stop(t))
	assert.Equal(t, overlay.StateIdle, d.ctrl.State())
}

func TestDaemon_SettingsReloadNotifiesScreen(t *testing.T) {
	cfg := loadTestConfig(t)
	require.True(t, cfg.Settings.Watch)
	d, err := newDaemon(cfg, true, io.Discard)
	require.NoError(t, err)
	built := useFakeScreens(d, false)
	startRun(t, d)
	sc := nextScreen(t, built)

	other, err := settings.Open(cfg.Settings.Backend, cfg.Settings.Path)
	require.NoError(t, err)
	require.NoError(t, settings.NewEditor(other).SetPIN("1357", "1357"))
	require.NoError(t, other.Close())

	require.Eventually(t, func() bool {
		_, notified, _ := sc.counts()
		return notified > 0 && settings.Snapshot(d.store).PINCode == "1357"
	}, 3*time.Second, 10*time.Millisecond)
}
