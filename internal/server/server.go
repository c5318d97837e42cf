// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/jeranaias/lockoverlay/internal/fsutil"
	"github.com/jeranaias/lockoverlay/internal/overlay"
	"github.com/jeranaias/lockoverlay/internal/settings"
	"github.com/jeranaias/lockoverlay/internal/status"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize bounds request bodies. Control requests are tiny.
	MaxRequestBodySize = 16 * 1024

	// DefaultDismissRate is the sustained dismiss requests per second.
	DefaultDismissRate = 2

	// DefaultDismissBurst is the dismiss request burst size.
	DefaultDismissBurst = 5

	// Notices returned alongside activate and stop responses.
	NoticeActivating   = "Activating overlay..."
	NoticeDeactivating = "Deactivating overlay..."
)

// Error types carried in ErrorBody.Type.
const (
	ErrTypeInvalidRequest = "invalid_request"
	ErrTypeAlreadyActive  = "already_active"
	ErrTypePINNotSet      = "pin_not_set"
	ErrTypeInvalidPIN     = "invalid_pin"
	ErrTypeRateLimited    = "rate_limited"
	ErrTypeUnauthorized   = "unauthorized"
	ErrTypeInternal       = "internal_error"
)

// ============================================================================
// DEPENDENCIES
// ============================================================================

// Overlay is the controller surface the API drives. *overlay.Controller
// satisfies it.
type Overlay interface {
	Activate(overlay.Settings) error
	RequestDismiss(pin *string) overlay.DismissOutcome
	ForceStop()
	Status() overlay.Snapshot
}

// Subscriber hands out status subscriptions. *status.Bus satisfies it.
type Subscriber interface {
	Subscribe(replay bool) *status.Subscription
}

// Metrics records API traffic. *metrics.Recorder satisfies it.
type Metrics interface {
	Request(route, code string, seconds float64)
	RateLimited()
	StreamOpened()
	StreamClosed()
	MessageSent(encoding string)
	Handler() http.Handler
}

type nopMetrics struct{}

func (nopMetrics) Request(string, string, float64) {}
func (nopMetrics) RateLimited()                    {}
func (nopMetrics) StreamOpened()                   {}
func (nopMetrics) StreamClosed()                   {}
func (nopMetrics) MessageSent(string)              {}
func (nopMetrics) Handler() http.Handler           { return http.NotFoundHandler() }

// ============================================================================
// WIRE TYPES
// ============================================================================

// ActivateRequest overrides individual stored settings for one activation.
// Omitted fields come from the settings store; an empty body activates with
// the stored settings unchanged.
type ActivateRequest struct {
	AutoDismissEnabled   *bool   `json:"auto_dismiss_enabled,omitempty"`
	AutoDismissSeconds   *int    `json:"auto_dismiss_duration,omitempty"`
	PINProtectionEnabled *bool   `json:"pin_protection_enabled,omitempty"`
	PINCode              *string `json:"pin_code,omitempty"`
}

func (r ActivateRequest) apply(base overlay.Settings) overlay.Settings {
	if r.AutoDismissEnabled != nil {
		base.AutoDismissEnabled = *r.AutoDismissEnabled
	}
	if r.AutoDismissSeconds != nil {
		base.AutoDismissSeconds = *r.AutoDismissSeconds
	}
	if r.PINProtectionEnabled != nil {
		base.PINProtectionEnabled = *r.PINProtectionEnabled
	}
	if r.PINCode != nil {
		base.PINCode = *r.PINCode
	}
	return base
}

// DismissRequest carries the entered PIN. A missing pin means none was
// entered.
type DismissRequest struct {
	PIN *string `json:"pin,omitempty"`
}

// DismissResponse is the outcome of a dismissal request.
type DismissResponse struct {
	overlay.DismissOutcome
	Message string `json:"message"`
}

// ControlResponse is returned by activate and stop.
type ControlResponse struct {
	Notice string           `json:"notice"`
	Status overlay.Snapshot `json:"status"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	State   overlay.State `json:"state"`
	Uptime  string        `json:"uptime"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ============================================================================
// SERVER
// ============================================================================

// Server is the control API.
type Server struct {
	ctrl   Overlay
	store  settings.Store
	events Subscriber

	router  *http.ServeMux
	handler http.Handler
	server  *http.Server

	token          string
	limiter        *rate.Limiter
	metrics        Metrics
	metricsEnabled bool
	encoding       status.Encoding
	logger         *slog.Logger
	clock          clockwork.Clock
	version        string
	startedAt      time.Time

	mu      sync.Mutex
	streams map[*stream]struct{}
	closing bool
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires a bearer token on every route except /healthz.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithDismissLimit sets the dismiss rate limit. Non-positive values keep the
// defaults.
func WithDismissLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithMetrics records traffic and mounts /metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
			s.metricsEnabled = true
		}
	}
}

// WithDefaultEncoding sets the event encoding used when a client does not
// ask for one.
func WithDefaultEncoding(enc status.Encoding) Option {
	return func(s *Server) {
		s.encoding = enc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for uptime and stream keepalives.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a Server for ctrl. store supplies settings for activations
// without a body; events feeds /v1/events.
func New(ctrl Overlay, store settings.Store, events Subscriber, opts ...Option) *Server {
	s := &Server{
		ctrl:     ctrl,
		store:    store,
		events:   events,
		router:   http.NewServeMux(),
		limiter:  rate.NewLimiter(DefaultDismissRate, DefaultDismissBurst),
		metrics:  nopMetrics{},
		encoding: status.EncodingJSON,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		version:  "dev",
		streams:  make(map[*stream]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.clock.Now()

	s.setupRoutes()
	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		LoggingMiddleware(s.logger, s.metrics, s.clock),
		SecurityHeadersMiddleware(),
		AuthMiddleware(s.token, s.logger),
	)(s.router)
	return s
}

// Handler returns the fully wrapped API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /v1/overlay/activate", s.handleActivate)
	s.router.Handle("POST /v1/overlay/dismiss", RateLimitMiddleware(s.limiter, s.metrics, s.logger)(http.HandlerFunc(s.handleDismiss)))
	s.router.HandleFunc("POST /v1/overlay/stop", s.handleStop)
	s.router.HandleFunc("GET /v1/overlay/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/events", s.handleEvents)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsEnabled {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

// handleActivate handles POST /v1/overlay/activate.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ActivateRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, err.Error())
		return
	}
	if req.AutoDismissSeconds != nil && !overlay.ValidDuration(*req.AutoDismissSeconds) {
		s.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest,
			fmt.Sprintf("auto_dismiss_duration must be one of %v", overlay.AllowedDurations))
		return
	}

	cfg := req.apply(settings.Snapshot(s.store))

	if err := settings.CheckActivatable(cfg); err != nil {
		switch {
		case errors.Is(err, settings.ErrPINNotSet):
			s.writeError(w, http.StatusUnprocessableEntity, ErrTypePINNotSet, settings.NoticePINRequired)
		default:
			s.writeError(w, http.StatusUnprocessableEntity, ErrTypeInvalidPIN, err.Error())
		}
		return
	}

	if err := s.ctrl.Activate(cfg); err != nil {
		if errors.Is(err, overlay.ErrAlreadyActive) {
			s.writeError(w, http.StatusConflict, ErrTypeAlreadyActive, "Overlay is already active")
			return
		}
		s.writeError(w, http.StatusInternalServerError, ErrTypeInternal, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, ControlResponse{
		Notice: NoticeActivating,
		Status: s.ctrl.Status(),
	})
}

// handleDismiss handles POST /v1/overlay/dismiss.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req DismissRequest
	if err := decodeOptional(r.Body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrTypeInvalidRequest, err.Error())
		return
	}

	out := s.ctrl.RequestDismiss(req.PIN)
	s.writeJSON(w, http.StatusOK, DismissResponse{
		DismissOutcome: out,
		Message:        out.Message(),
	})
}

// handleStop handles POST /v1/overlay/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ForceStop()
	s.writeJSON(w, http.StatusOK, ControlResponse{
		Notice: NoticeDeactivating,
		Status: s.ctrl.Status(),
	})
}

// handleStatus handles GET /v1/overlay/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		State:   s.ctrl.Status().State,
		Uptime:  s.clock.Since(s.startedAt).Round(time.Second).String(),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Listen opens the control listener. A non-empty addr listens on TCP;
// otherwise a unix socket is created at socketPath with mode 0600, replacing
// a leftover socket file from an earlier run.
func Listen(socketPath, addr string) (net.Listener, error) {
	if addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		return ln, nil
	}

	if socketPath == "" {
		return nil, errors.New("no control socket path configured")
	}
	if err := fsutil.EnsurePrivateDir(filepath.Dir(socketPath)); err != nil {
		return nil, err
	}
	if fi, err := os.Lstat(socketPath); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("control socket path %s exists and is not a socket", socketPath)
		}
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("remove stale control socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, fsutil.PrivateFilePerm); err != nil {
		ln.Close()
		return nil, fmt.Errorf("secure control socket: %w", err)
	}
	return ln, nil
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("control server listening", "addr", ln.Addr().String(), "network", ln.Addr().Network())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes event streams and stops the server, waiting for in-flight
// requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.server
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	s.logger.Info("control server shutting down", "streams", len(streams))
	for _, st := range streams {
		st.stop()
	}

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

// decodeOptional decodes a JSON body into v. An empty body leaves v alone.
func decodeOptional(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, code int, errType, message string) {
	writeErrorBody(w, code, errType, message)
}

func writeErrorBody(w http.ResponseWriter, code int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: ErrorBody{
		Message: message,
		Type:    errType,
		Code:    code,
	}})
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
