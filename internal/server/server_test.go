// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lockoverlay/internal/logging"
	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type fakeMetrics struct {
	mu          sync.Mutex
	requests    map[string]int
	rateLimited int
	opened      int
	closed      int
	sent        map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{requests: map[string]int{}, sent: map[string]int{}}
}

func (m *fakeMetrics) Request(route, code string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[route+" "+code]++
}

func (m *fakeMetrics) RateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

func (m *fakeMetrics) StreamOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *fakeMetrics) StreamClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *fakeMetrics) MessageSent(enc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[enc]++
}

func (m *fakeMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "lockoverlay_overlay_active 0\n")
	})
}

func (m *fakeMetrics) snapshot() (opened, closed, limited int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened, m.closed, m.rateLimited
}

type harness struct {
	ctrl    *overlay.Controller
	store   *settings.MemoryStore
	bus     *status.Bus
	metrics *fakeMetrics
	srv     *Server
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   settings.NewMemoryStore(),
		bus:     status.NewBus(),
		metrics: newFakeMetrics(),
	}
	h.ctrl = overlay.NewController(
		overlay.WithPublisher(h.bus),
		overlay.WithLogger(logging.Discard()),
	)
	t.Cleanup(h.ctrl.ForceStop)

	all := append([]Option{
		WithMetrics(h.metrics),
		WithLogger(logging.Discard()),
		WithVersion("test"),
	}, opts...)
	h.srv = New(h.ctrl, h.store, h.bus, all...)
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

// =============================================================================
// ACTIVATE
// =============================================================================

func TestActivate_EmptyBodyUsesStore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetBool(settings.KeyAutoDismissEnabled, true))
	require.NoError(t, h.store.SetInt(settings.KeyAutoDismissDuration, 60))

	w := h.do(t, "POST", "/v1/overlay/activate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[ControlResponse](t, w)
	assert.Equal(t, NoticeActivating, resp.Notice)
	require.True(t, resp.Status.Active())
	assert.True(t, resp.Status.View.AutoDismissEnabled)
	assert.Equal(t, 60, resp.Status.View.AutoDismissSeconds)
	assert.Equal(t, overlay.StateShowing, h.ctrl.State())
}

func TestActivate_BodyOverridesStore(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "POST", "/v1/overlay/activate", `{"auto_dismiss_enabled":true,"auto_dismiss_duration":15}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := h.ctrl.Status()
	require.True(t, snap.Active())
	assert.Equal(t, 15, snap.View.AutoDismissSeconds)
	assert.False(t, h.store.GetBool(settings.KeyAutoDismissEnabled, false), "overrides must not be persisted")
}

func TestActivate_AlreadyActive(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, http.StatusOK, h.do(t, "POST", "/v1/overlay/activate", "").Code)
	w := h.do(t, "POST", "/v1/overlay/activate", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrTypeAlreadyActive, resp.Error.Type)
	assert.Equal(t, http.StatusConflict, resp.Error.Code)
}

func TestActivate_PINProtectionWithoutPIN(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetBool(settings.KeyPINProtectionEnabled, true))

	w := h.do(t, "POST", "/v1/overlay/activate", "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, ErrTypePINNotSet, resp.Error.Type)
	assert.Equal(t, settings.NoticePINRequired, resp.Error.Message)
	assert.Equal(t, overlay.StateIdle, h.ctrl.State())
}

func TestActivate_MalformedStoredPIN(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.SetBool(settings.KeyPINProtectionEnabled, true))
	require.NoError(t, h.store.SetString(settings.KeyPINCode, "12a4"))

	w := h.do(t, "POST", "/v1/overlay/activate", "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrTypeInvalidPIN, decode[ErrorResponse](t, w).Error.Type)
}

func TestActivate_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown field", `{"volume":11}`},
		{"unsupported duration", `{"auto_dismiss_duration":45}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			w := h.do(t, "POST", "/v1/overlay/activate", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrTypeInvalidRequest, decode[ErrorResponse](t, w).Error.Type)
			assert.Equal(t, overlay.StateIdle, h.ctrl.State())
		})
	}
}

func TestActivate_WrongMethod(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, "GET", "/v1/overlay/activate", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// =============================================================================
// DISMISS / STOP / STATUS
// =============================================================================

func TestDismiss_Outcomes(t *testing.T) {
	h := newHarness(t, WithDismissLimit(1000, 1000))
	require.NoError(t, settings.NewEditor(h.store).SetPIN("1234", "1234"))
	require.Equal(t, http.StatusOK, h.do(t, "POST", "/v1/overlay/activate", "").Code)

	w := h.do(t, "POST", "/v1/overlay/dismiss", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[DismissResponse](t, w)
	assert.Equal(t, overlay.OutcomePINRequired, resp.Kind)

	w = h.do(t, "POST", "/v1/overlay/dismiss", `{"pin":"0000"}`)
	resp = decode[DismissResponse](t, w)
	assert.Equal(t, overlay.OutcomeRejected, resp.Kind)
	assert.Equal(t, 2, resp.RemainingAttempts)
	assert.Equal(t, "Incorrect PIN. Attempts remaining: 2", resp.Message)

	w = h.do(t, "POST", "/v1/overlay/dismiss", `{"pin":"1234"}`)
	resp = decode[DismissResponse](t, w)
	assert.Equal(t, overlay.OutcomeDismissed, resp.Kind)
	assert.Equal(t, overlay.StateIdle, h.ctrl.State())

	w = h.do(t, "POST", "/v1/overlay/dismiss", ``)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, overlay.OutcomeNotActive, decode[DismissResponse](t, w).Kind)
}

func TestDismiss_LockoutOverHTTP(t *testing.T) {
	h := newHarness(t, WithDismissLimit(1000, 1000))
	require.NoError(t, settings.NewEditor(h.store).SetPIN("1234", "1234"))
	require.Equal(t, http.StatusOK, h.do(t, "POST", "/v1/overlay/activate", "").Code)

	var last DismissResponse
	for i := 0; i < 3; i++ {
		last = decode[DismissResponse](t, h.do(t, "POST", "/v1/overlay/dismiss", `{"pin":"9999"}`))
	}
	assert.Equal(t, overlay.OutcomeLockedOut, last.Kind)
	assert.Equal(t, "Too many failed attempts", last.Message)

	blocked := decode[DismissResponse](t, h.do(t, "POST", "/v1/overlay/dismiss", `{"pin":"1234"}`))
	assert.Equal(t, overlay.OutcomeLockedOut, blocked.Kind)
	assert.Equal(t, overlay.StateShowing, h.ctrl.State())

	stop := decode[ControlResponse](t, h.do(t, "POST", "/v1/overlay/stop", ""))
	assert.Equal(t, NoticeDeactivating, stop.Notice)
	assert.Equal(t, overlay.StateIdle, stop.Status.State)
}

func TestDismiss_RateLimited(t *testing.T) {
	h := newHarness(t, WithDismissLimit(0.001, 2))

	assert.Equal(t, http.StatusOK, h.do(t, "POST", "/v1/overlay/dismiss", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, "POST", "/v1/overlay/dismiss", "").Code)

	w := h.do(t, "POST", "/v1/overlay/dismiss", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, ErrTypeRateLimited, decode[ErrorResponse](t, w).Error.Type)

	_, _, limited := h.metrics.snapshot()
	assert.Equal(t, 1, limited)

	// Other routes are not limited.
	assert.Equal(t, http.StatusOK, h.do(t, "GET", "/v1/overlay/status", "").Code)
}

func TestStop_Idle(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, "POST", "/v1/overlay/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, overlay.StateIdle, decode[ControlResponse](t, w).Status.State)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)

	idle := decode[overlay.Snapshot](t, h.do(t, "GET", "/v1/overlay/status", ""))
	assert.Equal(t, overlay.StateIdle, idle.State)
	assert.Nil(t, idle.View)

	require.NoError(t, h.ctrl.Activate(overlay.Settings{AutoDismissEnabled: true, AutoDismissSeconds: 30}))
	w := h.do(t, "GET", "/v1/overlay/status", "")
	assert.NotContains(t, w.Body.String(), "pin_code")
	snap := decode[overlay.Snapshot](t, w)
	require.True(t, snap.Active())
	assert.True(t, snap.View.TimerArmed)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, overlay.StateIdle, health.State)

	w = h.do(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lockoverlay_overlay_active")

	h.metrics.mu.Lock()
	defer h.metrics.mu.Unlock()
	assert.Equal(t, 1, h.metrics.requests["GET /healthz 200"])
}

func TestMetricsRouteAbsentWhenDisabled(t *testing.T) {
	ctrl := overlay.NewController()
	srv := New(ctrl, settings.NewMemoryStore(), status.NewBus(), WithLogger(logging.Discard()))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestAuth(t *testing.T) {
	h := newHarness(t, WithToken("s3cret"))

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"missing header", nil, http.StatusUnauthorized},
		{"wrong scheme", []string{"Authorization", "Basic s3cret"}, http.StatusUnauthorized},
		{"wrong token", []string{"Authorization", "Bearer nope"}, http.StatusUnauthorized},
		{"valid token", []string{"Authorization", "Bearer s3cret"}, http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(t, "GET", "/v1/overlay/status", "", tc.header...)
			assert.Equal(t, tc.want, w.Code)
		})
	}

	t.Run("healthz is open", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, h.do(t, "GET", "/healthz", "").Code)
	})
}

func TestValidateBearerToken(t *testing.T) {
	assert.True(t, ValidateBearerToken("abc", "abc"))
	assert.False(t, ValidateBearerToken("abd", "abc"))
	assert.False(t, ValidateBearerToken("", "abc"))
	assert.False(t, ValidateBearerToken("abc", ""))
	assert.False(t, ValidateBearerToken("", ""))
}

func TestSecurityHeaders(t *testing.T) {
	h := newHarness(t)
	w := h.do(t, "GET", "/healthz", "")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrTypeInternal, decode[ErrorResponse](t, w).Error.Type)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mw("a"), mw("b"), mw("c"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
}

// =============================================================================
// EVENT STREAM
// =============================================================================

func wsURL(ts *httptest.Server, query string) string {
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events"
	if query != "" {
		u += "?" + query
	}
	return u
}

func TestEvents_JSONStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, h.ctrl.Activate(overlay.Settings{}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)

	var shown status.Event
	require.NoError(t, json.Unmarshal(data, &shown))
	assert.Equal(t, status.KindShown, shown.Kind)
	assert.NotContains(t, string(data), "pin_code")

	h.ctrl.ForceStop()

	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	var dismissed status.Event
	require.NoError(t, json.Unmarshal(data, &dismissed))
	assert.Equal(t, status.KindDismissed, dismissed.Kind)
	assert.Equal(t, status.ReasonForceStop, dismissed.Reason)
	assert.Equal(t, shown.SessionID, dismissed.SessionID)
	assert.Greater(t, dismissed.Seq, shown.Seq)
}

func TestEvents_CBORStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	require.NoError(t, h.ctrl.Activate(overlay.Settings{PINProtectionEnabled: true, PINCode: "1234"}))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "encoding=cbor"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)

	codec, err := status.CodecFor(status.EncodingCBOR)
	require.NoError(t, err)
	ev, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, status.KindShown, ev.Kind, "replayed current state")
	assert.True(t, ev.PINProtected)

	require.Eventually(t, func() bool {
		h.metrics.mu.Lock()
		defer h.metrics.mu.Unlock()
		return h.metrics.sent["cbor"] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestEvents_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "encoding=xml"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	hdr := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(ts, ""), hdr)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEvents_RequiresToken(t *testing.T) {
	h := newHarness(t, WithToken("s3cret"))
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), http.Header{"Authorization": []string{"Bearer s3cret"}})
	require.NoError(t, err)
	conn.Close()
}

func TestShutdown_ClosesStreams(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		opened, _, _ := h.metrics.snapshot()
		return opened == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Equal(t, CloseReasonShutdown, ce.Text)

	_, closed, _ := h.metrics.snapshot()
	assert.Equal(t, 1, closed)

	// New streams are refused once shutting down.
	conn2, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer conn2.Close()
	conn2.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn2.ReadMessage()
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, CloseReasonShutdown, ce.Text)
}

func TestEvents_BusClosed(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.bus.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	h.bus.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

// =============================================================================
// LISTEN / SERVE
// =============================================================================

func TestListen_UnixSocket(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "c.sock")

	ln, err := Listen(sock, "")
	require.NoError(t, err)

	fi, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	ln.Close()

	// A leftover socket from a previous run is replaced.
	stale, err := net.Listen("unix", sock)
	require.NoError(t, err)
	if ul, ok := stale.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(false)
	}
	stale.Close()

	ln, err = Listen(sock, "")
	require.NoError(t, err)
	ln.Close()
}

func TestListen_RefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.sock")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := Listen(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a socket")
}

func TestServe_OverUnixSocket(t *testing.T) {
	h := newHarness(t)
	sock := filepath.Join(t.TempDir(), "c.sock")

	ln, err := Listen(sock, "")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- h.srv.Serve(ln) }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", sock)
		},
	}}

	resp, err := client.Post("http://lockoverlay/v1/overlay/activate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, overlay.StateShowing, h.ctrl.State())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))
	require.NoError(t, <-errCh)
}
