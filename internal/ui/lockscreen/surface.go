// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lockscreen

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lockoverlay/internal/overlay"
)

// TeaSurface adapts a Bubble Tea program to overlay.Surface.
//
// The controller calls Show, Update and Hide while holding its lock, so they
// only queue a message and return. A single forwarder goroutine delivers the
// queue to the program in call order; tea.Program.Send may block while the
// program is busy and must never run under the controller lock.
type TeaSurface struct {
	send func(tea.Msg)

	mu      sync.Mutex
	pending []tea.Msg
	closed  bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ overlay.Surface = (*TeaSurface)(nil)

// NewTeaSurface starts a surface that forwards to send, typically
// (*tea.Program).Send.
func NewTeaSurface(send func(tea.Msg)) *TeaSurface {
	s := &TeaSurface{
		send: send,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Show implements overlay.Surface.
func (s *TeaSurface) Show(v overlay.View) { s.enqueue(ShowMsg{View: v}) }

// Update implements overlay.Surface.
func (s *TeaSurface) Update(v overlay.View) { s.enqueue(UpdateMsg{View: v}) }

// Hide implements overlay.Surface.
func (s *TeaSurface) Hide() { s.enqueue(HideMsg{}) }

// Notify queues an arbitrary message behind any surface messages.
func (s *TeaSurface) Notify(msg tea.Msg) { s.enqueue(msg) }

// Close stops forwarding. Queued messages that were not yet delivered are
// dropped. Close waits for an in-flight Send to return.
func (s *TeaSurface) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

func (s *TeaSurface) enqueue(msg tea.Msg) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *TeaSurface) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, msg := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.send(msg)
		}
	}
}
