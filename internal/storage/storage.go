// Package storage defines the Storage interface — a contract that any
// database backend must satisfy to hold user records.
//
// Handlers depend only on this interface. The concrete backends live in
// sub-packages (sqlite, postgres) and are chosen once at startup in main.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirva-sf/example-php-js/internal/types"
)

// ErrUserNotFound is returned by GetUser when no row matches the id.
var ErrUserNotFound = errors.New("user not found")

// Storage is the record store contract.
//
// Every method maps to exactly one parameter-bound SQL statement; there are
// no multi-statement transactions. UpdateUser and DeleteUser on an id that
// does not exist are silent no-ops, so callers that care must check
// UserExists first.
type Storage interface {
	// CreateUser inserts a record stamped with the current time and
	// returns the generated id.
	CreateUser(ctx context.Context, in types.UserInput) (int64, error)

	// UpdateUser replaces email, names and age. When in.Created is non-nil
	// the creation timestamp is replaced too: parsed from the display
	// layout, or the current time when it is empty.
	UpdateUser(ctx context.Context, id int64, in types.UserInput) error

	// DeleteUser removes the record permanently.
	DeleteUser(ctx context.Context, id int64) error

	// ListUsers returns every record in id order. Returns an empty slice
	// (not nil) when there are none, and no partial result on failure.
	ListUsers(ctx context.Context) ([]types.User, error)

	// GetUser fetches one record, or ErrUserNotFound.
	GetUser(ctx context.Context, id int64) (types.User, error)

	// UserExists reports whether a record with id is present.
	UserExists(ctx context.Context, id int64) (bool, error)

	// Close releases the database handle.
	Close() error
}

// StoreError wraps any failure of the underlying database.
// Its message is shown to API clients as-is.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *StoreError for op, or nil when err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// CreatedOverride resolves the creation timestamp sent on update:
// an empty value means now, anything else must be in the display layout.
func CreatedOverride(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	return types.ParseDisplay(value, loc)
}
