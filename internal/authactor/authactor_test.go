package authactor

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/domain"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/store"
	"github.com/apetbrz/budgetserver/internal/token"
	"github.com/apetbrz/budgetserver/internal/wire"
)

// fakeRepository is an in-memory stand-in for store.Repository, avoiding
// a live Postgres connection in these unit tests.
type fakeRepository struct {
	mu      sync.Mutex
	byName  map[string]domain.AuthRow
	budgets map[string]string
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{byName: map[string]domain.AuthRow{}, budgets: map[string]string{}}
}

func (f *fakeRepository) CreateSchema(ctx context.Context, authDDL, userDDL string) error {
	return nil
}

func (f *fakeRepository) CreateUser(ctx context.Context, row domain.AuthRow, initialBudgetJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byName[row.Username]; exists {
		return domain.ErrAlreadyExists
	}
	f.byName[row.Username] = row
	f.budgets[row.UserID] = initialBudgetJSON
	return nil
}

func (f *fakeRepository) FetchAuth(ctx context.Context, username string) (*domain.AuthRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.byName[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (f *fakeRepository) SaveBudget(ctx context.Context, userID, budgetJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.budgets[userID] = budgetJSON
	return nil
}

func (f *fakeRepository) LoadBudget(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.budgets[userID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return data, nil
}

var _ store.Repository = (*fakeRepository)(nil)

// fakeNotifier records every CreateSession call instead of spawning a real
// per-user actor, keeping these tests scoped to the authentication actor.
type fakeNotifier struct {
	mu       sync.Mutex
	sessions []CreateSessionMsg
}

func (f *fakeNotifier) CreateSession(c CreateSessionMsg) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, c)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func readStatusLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	return line
}

func newEnvelope(conn net.Conn, body []byte) *wire.Envelope {
	return &wire.Envelope{Conn: conn, Request: &wire.Request{Method: "POST", Body: body}}
}

func TestRegisterSuccess(t *testing.T) {
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	actor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"alice","password":"hunter2"}`))

	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client) }()

	actor.Register(env)
	select {
	case line := <-done:
		assert.Contains(t, line, "201")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, notifier.count())
	_, err := repo.FetchAuth(context.Background(), "alice")
	assert.NoError(t, err)
}

func TestRegisterMissingField(t *testing.T) {
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	actor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"alice"}`))

	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client) }()

	actor.Register(env)
	select {
	case line := <-done:
		assert.Contains(t, line, "400")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()
	assert.Equal(t, 0, notifier.count())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	repo := newFakeRepository()
	require.NoError(t, repo.CreateUser(context.Background(),
		domain.AuthRow{UserID: "u1", Username: "alice", PasswordHash: "x"}, "{}"))
	notifier := &fakeNotifier{}
	actor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"alice","password":"hunter2"}`))

	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client) }()

	actor.Register(env)
	select {
	case line := <-done:
		assert.Contains(t, line, "400")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()
}

func TestLoginSuccess(t *testing.T) {
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	registerActor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"bob","password":"correcthorse"}`))
	regDone := make(chan struct{})
	go func() { readStatusLine(t, client); close(regDone) }()
	registerActor.Register(env)
	<-regDone
	client.Close()

	server2, client2 := net.Pipe()
	loginEnv := newEnvelope(server2, []byte(`{"username":"bob","password":"correcthorse"}`))
	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client2) }()

	registerActor.Login(loginEnv)
	select {
	case line := <-done:
		assert.Contains(t, line, "201")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client2.Close()

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, notifier.count())
}

func TestLoginBadPassword(t *testing.T) {
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	actor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"carol","password":"right"}`))
	regDone := make(chan struct{})
	go func() { readStatusLine(t, client); close(regDone) }()
	actor.Register(env)
	<-regDone
	client.Close()

	server2, client2 := net.Pipe()
	loginEnv := newEnvelope(server2, []byte(`{"username":"carol","password":"wrong"}`))
	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client2) }()

	actor.Login(loginEnv)
	select {
	case line := <-done:
		assert.Contains(t, line, "400")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client2.Close()
}

func TestLoginUnknownUsername(t *testing.T) {
	repo := newFakeRepository()
	notifier := &fakeNotifier{}
	actor := New(4, repo, token.NewService("test-secret", 60), notifier, metrics.New(16, zap.NewNop()), zap.NewNop())

	server, client := net.Pipe()
	env := newEnvelope(server, []byte(`{"username":"ghost","password":"whatever"}`))
	done := make(chan string, 1)
	go func() { done <- readStatusLine(t, client) }()

	actor.Login(env)
	select {
	case line := <-done:
		assert.Contains(t, line, "400")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
	client.Close()
}
