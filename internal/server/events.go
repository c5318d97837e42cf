// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/jeranaias/lockoverlay/internal/status"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Close reasons sent in the websocket close frame.
const (
	CloseReasonShutdown = "server shutting down"
	CloseReasonEvicted  = "subscriber fell behind"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Control clients are not browsers; refuse cross-site pages outright.
	CheckOrigin: func(r *http.Request) bool {
		return r.Header.Get("Origin") == ""
	},
}

// handleEvents handles GET /v1/events. Query parameters: encoding=json|cbor
// and replay=false to skip the most recent event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	enc := status.Encoding(r.URL.Query().Get("encoding"))
	if enc == "" {
		enc = s.encoding
	}
	codec, err := status.CodecFor(enc)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, err.Error())
		return
	}
	replay := r.URL.Query().Get("replay") != "false"

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	st := newStream(conn, codec, s.clock)
	if !s.track(st) {
		st.closeWith(CloseReasonShutdown)
		return
	}
	defer s.untrack(st)

	sub := s.events.Subscribe(replay)
	defer sub.Close()

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	s.logger.Debug("event stream opened", "encoding", codec.Encoding(), "replay", replay)
	reason := st.run(sub, func() { s.metrics.MessageSent(string(codec.Encoding())) })
	s.logger.Debug("event stream closed", "reason", reason)
}

func (s *Server) track(st *stream) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.streams[st] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(st *stream) {
	s.mu.Lock()
	delete(s.streams, st)
	s.mu.Unlock()
	s.wg.Done()
}

// ============================================================================
// STREAM
// ============================================================================

// stream pumps one subscription into one websocket connection. Only the run
// goroutine writes to the connection; a reader goroutine drains control
// frames so pongs and client closes are noticed.
type stream struct {
	conn  *websocket.Conn
	codec status.Codec
	clock clockwork.Clock

	done     chan struct{}
	stopOnce sync.Once
}

func newStream(conn *websocket.Conn, codec status.Codec, clock clockwork.Clock) *stream {
	return &stream{
		conn:  conn,
		codec: codec,
		clock: clock,
		done:  make(chan struct{}),
	}
}

// stop asks run to send a shutdown close frame and return.
func (st *stream) stop() {
	st.stopOnce.Do(func() { close(st.done) })
}

// run blocks until the client goes away, the subscription ends or stop is
// called. It returns a short description of why the stream ended.
func (st *stream) run(sub *status.Subscription, sent func()) string {
	gone := make(chan struct{})
	go st.readLoop(gone)

	ticker := st.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	msgType := websocket.TextMessage
	if st.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				if sub.Evicted() {
					st.closeWith(CloseReasonEvicted)
					return "evicted"
				}
				st.closeWith(CloseReasonShutdown)
				return "bus closed"
			}
			frame, err := st.codec.Encode(ev)
			if err != nil {
				st.closeWith("encode failed")
				return "encode failed: " + err.Error()
			}
			st.setWriteDeadline()
			if err := st.conn.WriteMessage(msgType, frame); err != nil {
				st.conn.Close()
				return "write failed"
			}
			sent()
		case <-ticker.Chan():
			st.setWriteDeadline()
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				st.conn.Close()
				return "ping failed"
			}
		case <-gone:
			st.conn.Close()
			return "client gone"
		case <-st.done:
			st.closeWith(CloseReasonShutdown)
			return "shutdown"
		}
	}
}

func (st *stream) readLoop(gone chan<- struct{}) {
	defer close(gone)
	st.setReadDeadline()
	st.conn.SetPongHandler(func(string) error {
		st.setReadDeadline()
		return nil
	})
	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// closeWith sends a normal close frame with reason and closes the connection.
func (st *stream) closeWith(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = st.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
	_ = st.conn.Close()
}

// Deadlines are wall-clock: the socket compares them against real time.
func (st *stream) setWriteDeadline() {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (st *stream) setReadDeadline() {
	_ = st.conn.SetReadDeadline(time.Now().Add(pongDeadline))
}
