// Package authactor implements the authentication actor from spec.md
// §4.3: a single worker that handles Register and Login over a bounded
// channel, hashing passwords, minting tokens, and notifying the
// user-session manager of new sessions. Grounded on
// _examples/original_source/server/src/threads/auth.rs and built on
// this repository's own internal/password and internal/token packages.
package authactor

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/budget"
	"github.com/apetbrz/budgetserver/internal/domain"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/password"
	"github.com/apetbrz/budgetserver/internal/store"
	"github.com/apetbrz/budgetserver/internal/token"
	"github.com/apetbrz/budgetserver/internal/wire"
)

// source is this actor's name in metrics checkpoints, per spec.md §4.6's
// "source-name" field.
const source = "auth"

// SessionNotifier is the seam into the user-session manager, narrowed to
// the single message the authentication actor needs to send.
type SessionNotifier interface {
	CreateSession(c CreateSessionMsg)
}

// CreateSessionMsg is the argument of session.Manager.CreateSession. It is
// defined here rather than in the session package because session imports
// authactor for this type; authactor importing session back would be an
// import cycle.
type CreateSessionMsg struct {
	Token    string
	UserID   string
	Username string
}

type registerMsg struct {
	envelope *wire.Envelope
}
type loginMsg struct {
	envelope *wire.Envelope
}

type message struct {
	register *registerMsg
	login    *loginMsg
}

// Actor is the authentication actor.
type Actor struct {
	inbox    chan message
	repo     store.Repository
	tokens   *token.Service
	sessions SessionNotifier
	metrics  *metrics.Actor
	logger   *zap.Logger
}

// New starts the authentication actor goroutine with a bounded inbox,
// per spec.md §4.3's "single long-running worker... on a bounded
// channel".
func New(capacity int, repo store.Repository, tokens *token.Service, sessions SessionNotifier, metricsActor *metrics.Actor, logger *zap.Logger) *Actor {
	a := &Actor{
		inbox:    make(chan message, capacity),
		repo:     repo,
		tokens:   tokens,
		sessions: sessions,
		metrics:  metricsActor,
		logger:   logger.Named("auth"),
	}
	go a.run()
	return a
}

// Register enqueues a Register request. A full inbox blocks the caller
// (the dispatcher), matching the bounded-channel back-pressure spec.md
// §4.3 describes.
func (a *Actor) Register(env *wire.Envelope) {
	a.inbox <- message{register: &registerMsg{envelope: env}}
}

// Login enqueues a Login request.
func (a *Actor) Login(env *wire.Envelope) {
	a.inbox <- message{login: &loginMsg{envelope: env}}
}

func (a *Actor) run() {
	a.logger.Info("authentication actor started")
	for msg := range a.inbox {
		switch {
		case msg.register != nil:
			a.handleRegister(msg.register.envelope)
		case msg.login != nil:
			a.handleLogin(msg.login.envelope)
		}
	}
}

func (a *Actor) handleRegister(env *wire.Envelope) {
	defer env.Close()
	a.metrics.Record(source, env.RequestID, metrics.CheckpointArrive)
	defer a.metrics.Record(source, env.RequestID, metrics.CheckpointLeave)
	ctx := context.Background()

	var creds domain.Credentials
	if err := json.Unmarshal(env.Request.Body, &creds); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "malformed_body")
		return
	}
	if err := domain.Validate(creds); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "missing_credentials")
		return
	}

	hash, err := password.Hash(creds.Password)
	if err != nil {
		a.logger.Error("failed to hash password", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 400, "hash_failed")
		return
	}

	userID := uuid.New().String()
	row := domain.AuthRow{UserID: userID, Username: creds.Username, PasswordHash: hash}

	initialBudget, err := budget.MarshalNew(creds.Username)
	if err != nil {
		a.logger.Error("failed to marshal initial budget", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 400, "internal_error")
		return
	}

	if err := a.repo.CreateUser(ctx, row, initialBudget); err != nil {
		if err == domain.ErrAlreadyExists {
			_ = wire.WriteResponse(env.Conn, 400, map[string]string{"Content-Type": "text/plain"}, []byte("Account already exists!"))
			return
		}
		a.logger.Error("failed to create user", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 400, "registration_failed")
		return
	}

	signed, err := a.tokens.Mint(userID, creds.Username)
	if err != nil {
		a.logger.Error("failed to mint token", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 400, "internal_error")
		return
	}

	a.sessions.CreateSession(CreateSessionMsg{Token: signed, UserID: userID, Username: creds.Username})

	body, _ := json.Marshal(map[string]string{"token": signed})
	_ = wire.WriteResponse(env.Conn, 201, map[string]string{
		"Content-Type": "application/json",
		"Location":     "/home",
	}, body)
}

func (a *Actor) handleLogin(env *wire.Envelope) {
	defer env.Close()
	a.metrics.Record(source, env.RequestID, metrics.CheckpointArrive)
	defer a.metrics.Record(source, env.RequestID, metrics.CheckpointLeave)
	ctx := context.Background()

	var creds domain.Credentials
	if err := json.Unmarshal(env.Request.Body, &creds); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "malformed_body")
		return
	}
	if err := domain.Validate(creds); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "missing_credentials")
		return
	}

	row, err := a.repo.FetchAuth(ctx, creds.Username)
	if err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "bad_credentials")
		return
	}

	if err := password.Verify(row.PasswordHash, creds.Password); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "bad_credentials")
		return
	}

	signed, err := a.tokens.Mint(row.UserID, row.Username)
	if err != nil {
		a.logger.Error("failed to mint token", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 400, "internal_error")
		return
	}

	a.sessions.CreateSession(CreateSessionMsg{Token: signed, UserID: row.UserID, Username: row.Username})

	body, _ := json.Marshal(map[string]string{"token": signed})
	_ = wire.WriteResponse(env.Conn, 201, map[string]string{
		"Content-Type": "application/json",
		"Location":     "/home",
	}, body)
}
