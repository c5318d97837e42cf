// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes the overlay controller over HTTP.
//
// The daemon serves this API on a private unix socket (mode 0600) by default,
// or on a loopback TCP address when configured. Control surfaces such as the
// CLI use it to activate, dismiss and force-stop the overlay and to follow
// status events.
//
// # Endpoints
//
//   - POST /v1/overlay/activate - start a session (optional settings body)
//   - POST /v1/overlay/dismiss  - request dismissal, {"pin": "1234"} or {}
//   - POST /v1/overlay/stop     - force stop
//   - GET  /v1/overlay/status   - current snapshot
//   - GET  /v1/events           - websocket stream, ?encoding=json|cbor
//   - GET  /healthz             - liveness
//   - GET  /metrics             - Prometheus exposition (when enabled)
//
// # Security
//
//   - Optional bearer token compared in constant time
//   - Token bucket limit on dismiss requests
//   - Security headers and panic recovery on every route
//
// # Usage
//
//	srv := server.New(ctrl, store, bus,
//		server.WithToken(cfg.Control.Token),
//		server.WithMetrics(rec),
//	)
//	ln, err := server.Listen(cfg.Control.Socket, cfg.Control.Listen)
//	if err != nil {
//		return err
//	}
//	go srv.Serve(ln)
//	defer srv.Shutdown(ctx)
package server
