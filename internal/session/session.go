// Package session implements the user-session manager actor: the single
// goroutine that maps bearer tokens to a live per-user actor's command
// channel, spawning and reaping per-user actors as sessions start and go
// idle. Grounded on
// _examples/original_source/server/src/threads/user_threads.rs (which also
// houses the per-user actor this package spawns), generalized from its
// fixed two-message protocol to the full
// Creation/UserCommand/UserDataRequest/Shutdown/TimeoutCheck set in
// spec.md §4.4.
package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/authactor"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/useractor"
	"github.com/apetbrz/budgetserver/internal/wire"
)

// UserCommand forwards an authenticated user command to the actor owning
// Token, carrying the request envelope so the actor can reply directly.
type UserCommand struct {
	Token    string
	Envelope *wire.Envelope
}

// UserDataRequest forwards a read-only budget fetch the same way.
type UserDataRequest struct {
	Token    string
	Envelope *wire.Envelope
}

// Logout ends the session for Token immediately rather than waiting for
// the timeout sweep, per spec.md §4.4.
type Logout struct {
	Token    string
	Envelope *wire.Envelope
}

// inbound is the manager's single unexported message envelope, letting a
// single channel carry the whole union without reflection.
type inbound struct {
	create      *authactor.CreateSessionMsg
	command     *UserCommand
	data        *UserDataRequest
	logout      *Logout
	shutdownAll chan struct{}
}

// live tracks one spawned per-user actor's handle. Idle tracking itself
// lives in the per-user actor (spec.md §4.5); the manager only needs to
// know whether the actor is still reachable.
type live struct {
	actor *useractor.Actor
}

// Manager is the user-session manager actor.
type Manager struct {
	inbox   chan inbound
	timeout time.Duration
	sweep   time.Duration

	store   useractor.Store
	metrics *metrics.Actor
	logger  *zap.Logger
}

// Config bundles the manager's tunables, sourced from spec.md §6's
// SECONDS_TO_TIMEOUT_USER_THREAD and SESSION_SWEEP_INTERVAL_MS.
type Config struct {
	Timeout       time.Duration
	SweepInterval time.Duration
}

// New starts the session manager goroutine.
func New(cfg Config, store useractor.Store, metricsActor *metrics.Actor, logger *zap.Logger) *Manager {
	m := &Manager{
		inbox:   make(chan inbound, 256),
		timeout: cfg.Timeout,
		sweep:   cfg.SweepInterval,
		store:   store,
		metrics: metricsActor,
		logger:  logger.Named("session"),
	}
	go m.run()
	return m
}

// CreateSession registers a new session, blocking until the manager has
// accepted it onto its inbox (the manager itself never blocks on a
// per-user actor). Satisfies authactor.SessionNotifier.
func (m *Manager) CreateSession(c authactor.CreateSessionMsg) {
	m.inbox <- inbound{create: &c}
}

// Dispatch forwards a UserCommand, UserDataRequest, or Logout to the
// manager. The caller retains no further interest in env after this call;
// ownership of the connection has moved.
func (m *Manager) DispatchCommand(c UserCommand)         { m.inbox <- inbound{command: &c} }
func (m *Manager) DispatchDataRequest(d UserDataRequest) { m.inbox <- inbound{data: &d} }
func (m *Manager) DispatchLogout(l Logout)               { m.inbox <- inbound{logout: &l} }

// ShutdownAll signals every live per-user actor to shut down (each
// performs its own final persist) and blocks until the manager has
// processed the request, per the graceful-shutdown sequence the server
// entry point runs on SIGINT/SIGTERM.
func (m *Manager) ShutdownAll() {
	done := make(chan struct{})
	m.inbox <- inbound{shutdownAll: done}
	<-done
}

func (m *Manager) run() {
	m.logger.Info("session manager started")
	sessions := make(map[string]*live)

	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case msg := <-m.inbox:
			m.handle(sessions, msg)
		case <-ticker.C:
			m.sweepIdle(sessions)
		}
	}
}

func (m *Manager) handle(sessions map[string]*live, msg inbound) {
	switch {
	case msg.create != nil:
		m.handleCreate(sessions, *msg.create)
	case msg.command != nil:
		m.handleCommand(sessions, *msg.command)
	case msg.data != nil:
		m.handleData(sessions, *msg.data)
	case msg.logout != nil:
		m.handleLogout(sessions, *msg.logout)
	case msg.shutdownAll != nil:
		for token, s := range sessions {
			s.actor.Shutdown()
			delete(sessions, token)
		}
		close(msg.shutdownAll)
	}
}

func (m *Manager) handleCreate(sessions map[string]*live, c authactor.CreateSessionMsg) {
	if _, ok := sessions[c.Token]; ok {
		return
	}
	actor := useractor.SpawnWithTimeout(c.UserID, c.Username, m.store, m.metrics, m.logger, m.timeout)
	sessions[c.Token] = &live{actor: actor}
	m.logger.Info("session created", zap.String("username", c.Username))
}

func (m *Manager) handleCommand(sessions map[string]*live, c UserCommand) {
	s, ok := sessions[c.Token]
	if !ok {
		_ = wire.WriteEmpty(c.Envelope.Conn, 401)
		c.Envelope.Close()
		return
	}
	if !s.actor.SendCommand(c.Envelope) {
		m.logger.Fatal("failed to deliver command to per-user actor", zap.String("token", c.Token))
	}
}

func (m *Manager) handleData(sessions map[string]*live, d UserDataRequest) {
	s, ok := sessions[d.Token]
	if !ok {
		_ = wire.WriteEmpty(d.Envelope.Conn, 401)
		d.Envelope.Close()
		return
	}
	if !s.actor.SendDataRequest(d.Envelope) {
		m.logger.Fatal("failed to deliver data request to per-user actor", zap.String("token", d.Token))
	}
}

func (m *Manager) handleLogout(sessions map[string]*live, l Logout) {
	s, ok := sessions[l.Token]
	if !ok {
		_ = wire.WriteJSONError(l.Envelope.Conn, 404, "not_found")
		l.Envelope.Close()
		return
	}
	s.actor.Shutdown()
	delete(sessions, l.Token)
	_ = wire.WriteEmpty(l.Envelope.Conn, 200)
	l.Envelope.Close()
}

// sweepIdle implements spec.md §4.4's two-phase timeout sweep: every live
// actor is sent a TimeoutCheck (the actor itself decides whether its own
// last-activity timestamp warrants exiting, per spec.md §4.5), then after
// a short grace period a Check sentinel probes for survivors. An actor
// that exited on its own between the two steps has a closed inbox, so
// Check's send fails and the entry is dropped here.
func (m *Manager) sweepIdle(sessions map[string]*live) {
	for _, s := range sessions {
		s.actor.TimeoutCheck()
	}

	time.Sleep(50 * time.Millisecond)

	for token, s := range sessions {
		if !s.actor.Check() {
			delete(sessions, token)
			m.logger.Debug("reaped idle session", zap.String("token", token))
		}
	}
}
