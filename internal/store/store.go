// Package store implements the spec's single repository interface over a
// shared, immutable pgxpool.Pool handle (spec.md §9: "hold the pool as an
// immutable handle passed into each actor at construction, not as
// module-level state"). Grounded on
// aras-group-co-aras-auth/internal/repository/postgres, generalized from
// its per-entity repositories to the two-table auth/users schema in
// spec.md §6.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apetbrz/budgetserver/internal/domain"
)

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint failure.
const uniqueViolation = "23505"

// Repository is the named-operation store interface spec.md §9 asks for,
// wrapping the auth and users tables behind a single collaborator.
type Repository interface {
	CreateSchema(ctx context.Context, authDDL, userDDL string) error
	CreateUser(ctx context.Context, row domain.AuthRow, initialBudgetJSON string) error
	FetchAuth(ctx context.Context, username string) (*domain.AuthRow, error)
	SaveBudget(ctx context.Context, userID, budgetJSON string) error
	LoadBudget(ctx context.Context, userID string) (string, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool. The pool is treated as immutable
// shared state: callers check out a connection per operation and release
// it implicitly via pgxpool's Exec/Query/QueryRow.
func New(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// CreateSchema runs the two DDL snippets from spec.md §6
// (AUTH_DATABASE_INIT, USER_DATABASE_INIT) as CREATE TABLE IF NOT EXISTS.
func (r *pgRepository) CreateSchema(ctx context.Context, authDDL, userDDL string) error {
	if _, err := r.pool.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s", authDDL)); err != nil {
		return fmt.Errorf("creating auth table: %w", err)
	}
	if _, err := r.pool.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s", userDDL)); err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}
	return nil
}

// CreateUser performs the two-table registration insert. Per the spec's
// Open Questions default (§9: "use a transaction"), both inserts run
// inside one transaction so a users-table failure rolls back the auth
// insert instead of leaving the known consistency gap the original Rust
// implementation had.
func (r *pgRepository) CreateUser(ctx context.Context, row domain.AuthRow, initialBudgetJSON string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning registration transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO auth (uuid, username, password) VALUES ($1, $2, $3)`,
		row.UserID, row.Username, row.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("inserting auth row: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO users (uuid, jsondata, jsonhistory) VALUES ($1, $2, $3)`,
		row.UserID, initialBudgetJSON, "")
	if err != nil {
		return fmt.Errorf("inserting initial budget row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing registration transaction: %w", err)
	}
	return nil
}

// FetchAuth loads the auth row for username, or domain.ErrNotFound.
func (r *pgRepository) FetchAuth(ctx context.Context, username string) (*domain.AuthRow, error) {
	var row domain.AuthRow
	err := r.pool.QueryRow(ctx,
		`SELECT uuid, username, password FROM auth WHERE username = $1`, username,
	).Scan(&row.UserID, &row.Username, &row.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching auth row: %w", err)
	}
	return &row, nil
}

// SaveBudget persists the latest Budget JSON for userID, appending the
// previous value to jsonhistory as a newline-delimited audit trail (an
// enrichment over the original schema's unused jsonhistory column;
// jsonhistory stays a plain TEXT column per spec.md §6).
func (r *pgRepository) SaveBudget(ctx context.Context, userID, budgetJSON string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET jsonhistory = jsonhistory || jsondata || E'\n', jsondata = $2 WHERE uuid = $1`,
		userID, budgetJSON)
	if err != nil {
		return fmt.Errorf("saving budget: %w", err)
	}
	return nil
}

// LoadBudget loads the current Budget JSON for userID.
func (r *pgRepository) LoadBudget(ctx context.Context, userID string) (string, error) {
	var data string
	err := r.pool.QueryRow(ctx, `SELECT jsondata FROM users WHERE uuid = $1`, userID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("loading budget: %w", err)
	}
	return data, nil
}
