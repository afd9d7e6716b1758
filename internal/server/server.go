// Package server implements the listener/dispatcher from spec.md §4.1:
// accepts raw TCP connections, performs the two-phase read, consults the
// router, and forwards the connection by move to whichever actor owns
// the matched route. Grounded on
// _examples/original_source/server/src/server.rs, generalized from its
// fixed four-actor fan-out to the router.Action union this repository's
// router package exposes.
package server

import (
	"context"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/authactor"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/router"
	"github.com/apetbrz/budgetserver/internal/session"
	"github.com/apetbrz/budgetserver/internal/staticcache"
	"github.com/apetbrz/budgetserver/internal/wire"
)

// Dispatcher is the listener/dispatcher actor. It never retains a
// connection after dispatch, per spec.md §4.1's contract.
type Dispatcher struct {
	listener net.Listener
	router   *router.Router
	maxBytes int

	auth     *authactor.Actor
	sessions *session.Manager
	metrics  *metrics.Actor

	nextRequestID uint64
	logger        *zap.Logger
}

// Config bundles the dispatcher's fixed collaborators and knobs.
type Config struct {
	MaxRequestBytes int
}

// New wraps an already-bound listener with the dispatcher's routing and
// actor collaborators.
func New(ln net.Listener, r *router.Router, cfg Config, auth *authactor.Actor, sessions *session.Manager, metricsActor *metrics.Actor, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		listener: ln,
		router:   r,
		maxBytes: cfg.MaxRequestBytes,
		auth:     auth,
		sessions: sessions,
		metrics:  metricsActor,
		logger:   logger.Named("dispatcher"),
	}
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Each connection is handled on its own goroutine; the
// dispatcher itself never blocks past a single accept/dispatch.
func (d *Dispatcher) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = d.listener.Close()
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				d.logger.Error("accept failed", zap.Error(err))
				return err
			}
		}
		go d.handleConn(conn)
	}
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	requestID := atomic.AddUint64(&d.nextRequestID, 1)
	d.metrics.Record("dispatcher", requestID, metrics.CheckpointStart)

	req, err := wire.ReadRequest(conn, d.maxBytes)
	if err != nil {
		if err == wire.ErrTooLarge {
			_ = wire.WriteJSONError(conn, 413, "payload_too_large")
		} else {
			_ = wire.WriteJSONError(conn, 400, "malformed_request")
		}
		_ = conn.Close()
		return
	}

	env := &wire.Envelope{Conn: conn, RequestID: requestID, Request: req}
	segments := req.PathSegments()
	action, remaining := d.router.Route(req.Method, segments)

	d.metrics.Record("dispatcher", requestID, metrics.CheckpointArrive)
	d.dispatch(action, remaining, env)
	d.metrics.Record("dispatcher", requestID, metrics.CheckpointLeave)
	d.metrics.Record("dispatcher", requestID, metrics.CheckpointStreamClose)
}

func (d *Dispatcher) dispatch(action router.Action, remaining []string, env *wire.Envelope) {
	switch action.Kind {
	case router.ActionStatic:
		action.Handler(env, remaining)

	case router.ActionRegister:
		if len(env.Request.Body) == 0 {
			_ = wire.WriteJSONError(env.Conn, 400, "empty_body")
			env.Close()
			return
		}
		d.auth.Register(env)

	case router.ActionLogin:
		if len(env.Request.Body) == 0 {
			_ = wire.WriteJSONError(env.Conn, 400, "empty_body")
			env.Close()
			return
		}
		d.auth.Login(env)

	case router.ActionLogout:
		token, ok := bearerToken(env.Request.Authorization)
		if !ok {
			_ = wire.WriteJSONError(env.Conn, 401, "missing_authorization")
			env.Close()
			return
		}
		d.sessions.DispatchLogout(session.Logout{Token: token, Envelope: env})

	case router.ActionUserCommand:
		token, ok := bearerToken(env.Request.Authorization)
		if !ok {
			_ = wire.WriteJSONError(env.Conn, 401, "missing_authorization")
			env.Close()
			return
		}
		d.sessions.DispatchCommand(session.UserCommand{Token: token, Envelope: env})

	case router.ActionUserDataRequest:
		token, ok := bearerToken(env.Request.Authorization)
		if !ok {
			_ = wire.WriteJSONError(env.Conn, 401, "missing_authorization")
			env.Close()
			return
		}
		d.sessions.DispatchDataRequest(session.UserDataRequest{Token: token, Envelope: env})

	case router.ActionTelemetryQuery:
		d.metrics.QueryToConnection(env)

	case router.ActionNotFound:
		_ = wire.WriteJSONError(env.Conn, 404, "not_found")
		env.Close()

	case router.ActionBadRequest:
		_ = wire.WriteJSONError(env.Conn, 400, "bad_request")
		env.Close()

	case router.ActionMethodNotAllowed:
		_ = wire.WriteJSONError(env.Conn, 405, "method_not_allowed")
		env.Close()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header value, accepting a bare token too for leniency.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if header == "" {
		return "", false
	}
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], true
	}
	return header, true
}

// StaticFileHandler builds a router.StaticHandler serving a single fixed
// file (index, home, favicon) from cache, ignoring any remaining path
// segments.
func StaticFileHandler(cache *staticcache.Cache, name string) router.StaticHandler {
	return func(env *wire.Envelope, _ []string) {
		defer env.Close()
		data, err := cache.Get(name)
		if err != nil {
			_ = wire.WriteJSONError(env.Conn, 404, "not_found")
			return
		}
		_ = wire.WriteFile(env.Conn, 200, name, data)
	}
}

// DynamicFileHandler builds the /file/<name> router.StaticHandler: the
// filename is the first remaining path segment after the "file" leaf,
// per spec.md §6's GET /file/<name> route.
func DynamicFileHandler(cache *staticcache.Cache) router.StaticHandler {
	return func(env *wire.Envelope, remaining []string) {
		defer env.Close()
		if len(remaining) == 0 {
			_ = wire.WriteJSONError(env.Conn, 404, "not_found")
			return
		}
		name := remaining[0]
		if _, err := wire.ContentTypeFor(name); err != nil {
			_ = wire.WriteJSONError(env.Conn, 500, "unsupported_file_type")
			return
		}
		data, err := cache.Get(name)
		if err != nil {
			_ = wire.WriteJSONError(env.Conn, 404, "not_found")
			return
		}
		_ = wire.WriteFile(env.Conn, 200, name, data)
	}
}
