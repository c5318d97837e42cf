// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"errors"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/pin"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/ui/styles"
)

// Notices shown on the lock screen.
const (
	NoticeActivating    = "Activating overlay..."
	NoticeDeactivating  = "Deactivating overlay..."
	NoticeDismissed     = "Overlay dismissed"
	NoticeAlreadyActive = "Overlay is already active"
	NoticeLocked        = "Overlay is locked"
)

// Controller is the part of the overlay controller the lock screen drives.
// *overlay.Controller satisfies it.
type Controller interface {
	Activate(overlay.Settings) error
	RequestDismiss(pin *string) overlay.DismissOutcome
}

// =============================================================================
// NOTICES
// =============================================================================

type noticeKind int

const (
	noticeInfo noticeKind = iota
	noticeSuccess
	noticeWarning
	noticeError
)

type notice struct {
	text string
	kind noticeKind
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model for the full-screen lock surface. It shows an
// idle screen between sessions and the locked overlay while one is active.
// Controller calls are made from commands, never from Update itself.
type Model struct {
	ctrl     Controller
	settings func() overlay.Settings
	theme    *styles.Theme
	keys     KeyMap
	input    textinput.Model

	session  *overlay.View
	stored   overlay.Settings
	notice   notice
	pending  bool
	quitting bool
}

// Option configures a Model.
type Option func(*Model)

// WithTheme sets the theme.
func WithTheme(t *styles.Theme) Option {
	return func(m *Model) {
		if t != nil {
			m.theme = t
		}
	}
}

// WithKeyMap overrides the default key bindings.
func WithKeyMap(k KeyMap) Option {
	return func(m *Model) {
		m.keys = k
	}
}

// New creates the lock screen. settings returns the stored settings used for
// in-place activation from the idle screen.
func New(ctrl Controller, settings func() overlay.Settings, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "----"
	ti.CharLimit = pin.Length
	ti.Width = pin.Length + 1
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(styles.TextMuted)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(styles.Cyan)

	m := Model{
		ctrl:     ctrl,
		settings: settings,
		keys:     DefaultKeyMap(),
		input:    ti,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if m.theme == nil {
		m.theme = styles.NewTheme("")
	}
	m.stored = settings()
	return m
}

// Locked reports whether the overlay is on screen.
func (m Model) Locked() bool {
	return m.session != nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.theme.SetSize(msg.Width, msg.Height)
		return m, nil

	case ShowMsg:
		v := msg.View
		m.session = &v
		m.pending = false
		m.notice = notice{}
		m.input.Reset()
		if v.PINRequired && !v.LockedOut {
			return m, m.input.Focus()
		}
		m.input.Blur()
		return m, nil

	case UpdateMsg:
		if m.session == nil || m.session.SessionID != msg.View.SessionID {
			return m, nil
		}
		v := msg.View
		m.session = &v
		if v.LockedOut {
			m.input.Blur()
		}
		return m, nil

	case HideMsg:
		wasLocked := m.session != nil
		m.session = nil
		m.pending = false
		m.input.Reset()
		m.input.Blur()
		m.stored = m.settings()
		if wasLocked {
			m.notice = notice{text: NoticeDismissed, kind: noticeSuccess}
		}
		return m, nil

	case SettingsChangedMsg:
		m.stored = m.settings()
		return m, nil

	case activateResultMsg:
		m.pending = false
		switch {
		case msg.err == nil:
			// ShowMsg carries the session.
		case errors.Is(msg.err, overlay.ErrAlreadyActive):
			m.notice = notice{text: NoticeAlreadyActive, kind: noticeWarning}
		default:
			m.notice = notice{text: msg.err.Error(), kind: noticeError}
		}
		return m, nil

	case dismissResultMsg:
		return m.handleOutcome(msg.outcome)

	case tea.KeyMsg:
		if m.session != nil {
			return m.updateLocked(msg)
		}
		return m.updateIdle(msg)
	}

	if m.session != nil && m.input.Focused() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// =============================================================================
// IDLE
// =============================================================================

func (m Model) updateIdle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Activate):
		if m.pending {
			return m, nil
		}
		cfg := m.settings()
		m.stored = cfg
		if err := settings.CheckActivatable(cfg); err != nil {
			text := err.Error()
			if errors.Is(err, settings.ErrPINNotSet) {
				text = settings.NoticePINRequired
			}
			m.notice = notice{text: text, kind: noticeWarning}
			return m, nil
		}
		m.pending = true
		m.notice = notice{text: NoticeActivating, kind: noticeInfo}
		return m, activateCmd(m.ctrl, cfg)
	}
	return m, nil
}

// =============================================================================
// LOCKED
// =============================================================================

func (m Model) updateLocked(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Blocked) {
		m.notice = notice{text: NoticeLocked, kind: noticeWarning}
		return m, nil
	}
	if m.pending {
		return m, nil
	}

	s := m.session
	if !s.PINRequired {
		if key.Matches(msg, m.keys.Dismiss) {
			m.pending = true
			m.notice = notice{text: NoticeDeactivating, kind: noticeInfo}
			return m, dismissCmd(m.ctrl, nil)
		}
		return m, nil
	}

	if s.LockedOut {
		return m, nil
	}

	if key.Matches(msg, m.keys.Submit) {
		m.pending = true
		if m.input.Value() == "" {
			return m, dismissCmd(m.ctrl, nil)
		}
		entered := m.input.Value()
		return m, dismissCmd(m.ctrl, &entered)
	}

	if msg.Type == tea.KeyRunes && !allDigits(msg.Runes) {
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleOutcome(out overlay.DismissOutcome) (tea.Model, tea.Cmd) {
	m.pending = false

	switch out.Kind {
	case overlay.OutcomeDismissed:
		if m.session != nil {
			m.notice = notice{text: NoticeDeactivating, kind: noticeInfo}
		}
	case overlay.OutcomeRejected:
		m.input.Reset()
		m.notice = notice{text: out.Message(), kind: noticeError}
		if m.session != nil {
			m.session.RemainingAttempts = out.RemainingAttempts
		}
	case overlay.OutcomeLockedOut:
		m.input.Reset()
		m.input.Blur()
		m.notice = notice{text: out.Message(), kind: noticeError}
		if m.session != nil {
			m.session.LockedOut = true
			m.session.RemainingAttempts = 0
		}
	case overlay.OutcomePINRequired:
		m.notice = notice{text: out.Message(), kind: noticeWarning}
	case overlay.OutcomeNotActive:
		// The session already ended; HideMsg updates the screen.
	}
	return m, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func activateCmd(ctrl Controller, cfg overlay.Settings) tea.Cmd {
	return func() tea.Msg {
		return activateResultMsg{err: ctrl.Activate(cfg)}
	}
}

func dismissCmd(ctrl Controller, entered *string) tea.Cmd {
	return func() tea.Msg {
		return dismissResultMsg{outcome: ctrl.RequestDismiss(entered)}
	}
}

func allDigits(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(runes) > 0
}
