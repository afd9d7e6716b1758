// Package useractor implements the per-user actor from spec.md §4.5: a
// single goroutine owning one Budget and one user id, processing commands
// serially off a buffered channel (capacity 1024; a send to a full inbox
// blocks until the actor drains it) and persisting after every successful
// mutation. Grounded on
// _examples/original_source/server/src/threads/user_threads.rs, generalized from
// its fixed command switch to the field-level validation spec.md §4.5
// requires (one error code per missing/invalid field).
package useractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/apetbrz/budgetserver/internal/budget"
	"github.com/apetbrz/budgetserver/internal/metrics"
	"github.com/apetbrz/budgetserver/internal/wire"
)

// source is this actor's name in metrics checkpoints, per spec.md §4.6's
// "source-name" field.
const source = "useractor"

// Store is the persistence seam the per-user actor needs: load the
// initial Budget row and save it back after every mutation. Satisfied by
// store.Repository, narrowed here so this package doesn't import the
// whole repository surface.
type Store interface {
	LoadBudget(ctx context.Context, userID string) (string, error)
	SaveBudget(ctx context.Context, userID, budgetJSON string) error
}

// commandPayload is the wire shape of a UserCommand body: a command name
// plus the optional label/amount fields the command table draws from.
type commandPayload struct {
	Command string  `json:"command"`
	Label   *string `json:"label"`
	Amount  *string `json:"amount"`
}

type dataRequest struct{ envelope *wire.Envelope }
type userCommand struct{ envelope *wire.Envelope }
type timeoutCheck struct{}
type check struct{}
type shutdown struct{}

type message struct {
	data     *dataRequest
	command  *userCommand
	timeout  *timeoutCheck
	check    *check
	shutdown *shutdown
}

// Actor is the per-user actor.
type Actor struct {
	inbox chan message

	userID   string
	username string
	store    Store
	metrics  *metrics.Actor
	logger   *zap.Logger

	timeout time.Duration
}

// DefaultTimeout is used when Spawn's caller leaves it unset; production
// wiring always supplies SECONDS_TO_TIMEOUT_USER_THREAD explicitly.
const DefaultTimeout = 30 * time.Minute

// Spawn starts a per-user actor goroutine, loading its initial Budget
// from store. A malformed stored row is fatal for this actor per spec.md
// §4.5 ("do not hold the session open with a corrupt state").
func Spawn(userID, username string, store Store, metricsActor *metrics.Actor, logger *zap.Logger) *Actor {
	return SpawnWithTimeout(userID, username, store, metricsActor, logger, DefaultTimeout)
}

// SpawnWithTimeout is Spawn with an explicit idle timeout, used by
// production wiring which reads SECONDS_TO_TIMEOUT_USER_THREAD from
// config.
func SpawnWithTimeout(userID, username string, store Store, metricsActor *metrics.Actor, logger *zap.Logger, timeout time.Duration) *Actor {
	a := &Actor{
		inbox:    make(chan message, 1024),
		userID:   userID,
		username: username,
		store:    store,
		metrics:  metricsActor,
		logger:   logger.Named("useractor").With(zap.String("user", username)),
		timeout:  timeout,
	}
	go a.run()
	return a
}

// SendDataRequest enqueues a UserDataRequest; returns false if the
// actor's inbox could not accept it (the actor has exited), which the
// caller (the session manager) must treat as FatalActorLoss per spec.md
// §7.
func (a *Actor) SendDataRequest(env *wire.Envelope) bool {
	return a.send(message{data: &dataRequest{envelope: env}})
}

// SendCommand enqueues a UserCommand.
func (a *Actor) SendCommand(env *wire.Envelope) bool {
	return a.send(message{command: &userCommand{envelope: env}})
}

// Shutdown enqueues a Shutdown; the actor exits its loop after draining
// whatever was already queued ahead of it.
func (a *Actor) Shutdown() {
	a.send(message{shutdown: &shutdown{}})
}

// TimeoutCheck enqueues the periodic idle check from the session
// manager's sweep.
func (a *Actor) TimeoutCheck() bool {
	return a.send(message{timeout: &timeoutCheck{}})
}

// Check enqueues the manager's liveness sentinel.
func (a *Actor) Check() bool {
	return a.send(message{check: &check{}})
}

// send delivers msg to the actor's inbox. The inbox is a buffered channel
// of capacity 1024, not an unbounded queue: a send to a full inbox blocks
// until the actor drains it. A closed inbox means the actor already exited, in which
// case the send panics and is reported to the caller as false so it can
// treat the loss as FatalActorLoss per spec.md §7.
func (a *Actor) send(msg message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	a.inbox <- msg
	return true
}

func (a *Actor) run() {
	ctx := context.Background()
	raw, err := a.store.LoadBudget(ctx, a.userID)
	if err != nil {
		a.logger.Error("failed to load initial budget, exiting actor", zap.Error(err))
		return
	}
	state, err := budget.FromJSON([]byte(raw))
	if err != nil {
		a.logger.Error("corrupt stored budget, exiting actor", zap.Error(err))
		return
	}

	lastActivity := time.Now()
	defer a.persist(ctx, state)

	for msg := range a.inbox {
		switch {
		case msg.data != nil:
			a.handleDataRequest(state, msg.data.envelope)
			lastActivity = time.Now()
		case msg.command != nil:
			a.handleCommand(ctx, state, msg.command.envelope)
			lastActivity = time.Now()
		case msg.timeout != nil:
			if time.Since(lastActivity) > a.timeout {
				a.logger.Info("idle timeout reached, exiting actor")
				close(a.inbox)
				return
			}
		case msg.check != nil:
			// no-op; existence on the receive loop is the signal.
		case msg.shutdown != nil:
			close(a.inbox)
			return
		}
	}
}

func (a *Actor) persist(ctx context.Context, state *budget.Budget) {
	data, err := state.JSON()
	if err != nil {
		a.logger.Error("failed to marshal budget on exit", zap.Error(err))
		return
	}
	if err := a.store.SaveBudget(ctx, a.userID, data); err != nil {
		a.logger.Error("failed final persist", zap.Error(err))
	}
}

func (a *Actor) handleDataRequest(state *budget.Budget, env *wire.Envelope) {
	defer env.Close()
	a.metrics.Record(source, env.RequestID, metrics.CheckpointArrive)
	defer a.metrics.Record(source, env.RequestID, metrics.CheckpointLeave)
	data, err := state.JSON()
	if err != nil {
		_ = wire.WriteJSONError(env.Conn, 500, "marshal_failed")
		return
	}
	_ = wire.WriteJSON(env.Conn, 200, data)
}

func (a *Actor) handleCommand(ctx context.Context, state *budget.Budget, env *wire.Envelope) {
	defer env.Close()
	a.metrics.Record(source, env.RequestID, metrics.CheckpointArrive)
	defer a.metrics.Record(source, env.RequestID, metrics.CheckpointLeave)

	var payload commandPayload
	if err := json.Unmarshal(env.Request.Body, &payload); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, "malformed_command_body")
		return
	}

	if err := applyCommand(state, payload); err != nil {
		_ = wire.WriteJSONError(env.Conn, 400, errorCode(err))
		return
	}

	data, err := state.JSON()
	if err != nil {
		_ = wire.WriteJSONError(env.Conn, 500, "marshal_failed")
		return
	}
	if err := a.store.SaveBudget(ctx, a.userID, data); err != nil {
		a.logger.Error("failed to persist after mutation", zap.Error(err))
		_ = wire.WriteJSONError(env.Conn, 500, "persist_failed")
		return
	}
	_ = wire.WriteJSON(env.Conn, 200, data)
}

// commandError carries a stable {"error":"<code>"} string out of
// applyCommand's field validation.
type commandError string

func (e commandError) Error() string { return string(e) }

func errorCode(err error) string {
	if ce, ok := err.(commandError); ok {
		return string(ce)
	}
	if err == budget.ErrExpenseNotFound {
		return "expense_not_found"
	}
	if err == budget.ErrInsufficientSaving {
		return "not_enough_to_save"
	}
	if err == budget.ErrAutoPaymentsFailed {
		return "couldnt_afford_automatic_payments"
	}
	return "internal_error"
}

func missing(cmd, field string) commandError {
	return commandError(fmt.Sprintf("missing_%s_%s_field", cmd, field))
}

func invalid(cmd, field string) commandError {
	return commandError(fmt.Sprintf("invalid_%s_%s_value", cmd, field))
}

// requireLabel validates and lower-cases the label field, per spec.md
// §4.5's "labels are always lower-cased before use as a map key".
func requireLabel(cmd string, payload commandPayload) (string, error) {
	if payload.Label == nil || strings.TrimSpace(*payload.Label) == "" {
		return "", missing(cmd, "label")
	}
	return strings.ToLower(strings.TrimSpace(*payload.Label)), nil
}

// requireAmount validates and parses the amount field as decimal cents.
func requireAmount(cmd string, payload commandPayload) (int64, error) {
	if payload.Amount == nil || strings.TrimSpace(*payload.Amount) == "" {
		return 0, missing(cmd, "amount")
	}
	cents, err := budget.ParseDollarString(*payload.Amount)
	if err != nil {
		return 0, invalid(cmd, "amount")
	}
	return cents, nil
}

// optionalAmount parses the amount field if present, returning present=false
// when it was omitted (distinct from an invalid value, which is still an
// error).
func optionalAmount(cmd string, payload commandPayload) (cents int64, present bool, err error) {
	if payload.Amount == nil || strings.TrimSpace(*payload.Amount) == "" {
		return 0, false, nil
	}
	cents, perr := budget.ParseDollarString(*payload.Amount)
	if perr != nil {
		return 0, true, invalid(cmd, "amount")
	}
	return cents, true, nil
}

// applyCommand dispatches on payload.Command and mutates state in place,
// matching the command table in spec.md §4.5.
func applyCommand(state *budget.Budget, payload commandPayload) error {
	switch payload.Command {
	case "new":
		label, err := requireLabel("new", payload)
		if err != nil {
			return err
		}
		amount, err := requireAmount("new", payload)
		if err != nil {
			return err
		}
		state.AddExpense(label, amount)
		return nil

	case "getpaid":
		amount, present, err := optionalAmount("getpaid", payload)
		if err != nil {
			return err
		}
		if present {
			state.GetPaidValue(amount)
			return nil
		}
		// Automatic payments are all-or-nothing and check affordability
		// before touching the balance, so a failure here means the income
		// credit already landed and nothing partial was applied; the
		// original discards this error the same way (user_budget.get_paid();)
		// and always replies with the refreshed budget.
		_ = state.GetPaid()
		return nil

	case "setincome":
		amount, err := requireAmount("setincome", payload)
		if err != nil {
			return err
		}
		state.SetIncome(amount)
		return nil

	case "raiseincome":
		amount, err := requireAmount("raiseincome", payload)
		if err != nil {
			return err
		}
		state.AddIncome(amount)
		return nil

	case "pay":
		label, err := requireLabel("pay", payload)
		if err != nil {
			return err
		}
		amount, present, err := optionalAmount("pay", payload)
		if err != nil {
			return err
		}
		if present {
			_, err := state.MakeDynamicPayment(label, amount)
			return err
		}
		_, err = state.MakeStaticPayment(label)
		return err

	case "save":
		if payload.Amount != nil && strings.EqualFold(strings.TrimSpace(*payload.Amount), "all") {
			_, err := state.SaveAll()
			return err
		}
		amount, err := requireAmount("save", payload)
		if err != nil {
			return err
		}
		_, err = state.Save(amount)
		return err

	default:
		return commandError("unknown_command")
	}
}
