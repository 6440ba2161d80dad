// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// The blank import below registers the sqlite3 driver with database/sql.
// The driver's init() function does this automatically when the package
// is loaded — we never call anything from it directly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chirva-sf/example-php-js/internal/config"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/types"
	"github.com/jonboulle/clockwork"

	_ "github.com/mattn/go-sqlite3"
)

var _ storage.Storage = (*SQLite)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		email        TEXT     NOT NULL,
		first_name   TEXT     NOT NULL,
		last_name    TEXT     NOT NULL,
		age          INTEGER  NOT NULL,
		date_created DATETIME NOT NULL
	)
`

// SQLite is the concrete implementation of storage.Storage.
type SQLite struct {
	Db *sql.DB

	clock clockwork.Clock
	loc   *time.Location
}

// New opens the SQLite database at cfg.Storage.Path, creates the users
// table if it does not already exist, and returns a ready-to-use *SQLite.
//
// The handle is limited to one open connection: the process keeps a single
// connection for its whole lifetime, and ":memory:" databases stay the same
// database across queries.
func New(cfg *config.Config, clock clockwork.Clock) (*SQLite, error) {
	loc, err := cfg.Storage.Location()
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db, clock: clock, loc: loc}, nil
}

// CreateUser inserts a new row and returns its auto-generated id.
// Values are always bound through ? placeholders, never concatenated.
func (s *SQLite) CreateUser(ctx context.Context, in types.UserInput) (int64, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO users (email, first_name, last_name, age, date_created) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return 0, storage.Wrap("create user", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, in.Email, in.FirstName, in.LastName, int(in.Age), s.now())
	if err != nil {
		return 0, storage.Wrap("create user", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, storage.Wrap("create user", err)
	}

	return lastID, nil
}

// UpdateUser replaces the editable fields of the row matching id, and the
// creation timestamp when in.Created is set. No row matching id is not an
// error.
func (s *SQLite) UpdateUser(ctx context.Context, id int64, in types.UserInput) error {
	query := "UPDATE users SET email = ?, first_name = ?, last_name = ?, age = ? WHERE id = ?"
	args := []any{in.Email, in.FirstName, in.LastName, int(in.Age), id}

	if in.Created != nil {
		created, err := storage.CreatedOverride(*in.Created, s.now(), s.loc)
		if err != nil {
			return storage.Wrap("update user", err)
		}

		query = "UPDATE users SET email = ?, first_name = ?, last_name = ?, age = ?, date_created = ? WHERE id = ?"
		args = []any{in.Email, in.FirstName, in.LastName, int(in.Age), created.UTC(), id}
	}

	stmt, err := s.Db.PrepareContext(ctx, query)
	if err != nil {
		return storage.Wrap("update user", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return storage.Wrap("update user", err)
	}

	return nil
}

// DeleteUser removes a row by primary key.
func (s *SQLite) DeleteUser(ctx context.Context, id int64) error {
	stmt, err := s.Db.PrepareContext(ctx, "DELETE FROM users WHERE id = ?")
	if err != nil {
		return storage.Wrap("delete user", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, id); err != nil {
		return storage.Wrap("delete user", err)
	}

	return nil
}

// ListUsers returns all rows in primary-key order.
func (s *SQLite) ListUsers(ctx context.Context) ([]types.User, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, email, first_name, last_name, age, date_created FROM users ORDER BY id",
	)
	if err != nil {
		return nil, storage.Wrap("list users", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, storage.Wrap("list users", err)
	}
	defer rows.Close()

	users := make([]types.User, 0)

	for rows.Next() {
		user, err := s.scan(rows)
		if err != nil {
			return nil, storage.Wrap("list users", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list users", err)
	}

	return users, nil
}

// GetUser fetches exactly one row matched by primary key.
func (s *SQLite) GetUser(ctx context.Context, id int64) (types.User, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, email, first_name, last_name, age, date_created FROM users WHERE id = ? LIMIT 1",
	)
	if err != nil {
		return types.User{}, storage.Wrap("get user", err)
	}
	defer stmt.Close()

	user, err := s.scan(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, storage.ErrUserNotFound
		}
		return types.User{}, storage.Wrap("get user", err)
	}

	return user, nil
}

// UserExists reports whether a row with id is present.
func (s *SQLite) UserExists(ctx context.Context, id int64) (bool, error) {
	stmt, err := s.Db.PrepareContext(ctx, "SELECT 1 FROM users WHERE id = ?")
	if err != nil {
		return false, storage.Wrap("check user", err)
	}
	defer stmt.Close()

	var one int
	err = stmt.QueryRowContext(ctx, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, storage.Wrap("check user", err)
	}

	return true, nil
}

func (s *SQLite) Close() error {
	return s.Db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

// scan reads one row in SELECT column order and fills in the display
// timestamp.
func (s *SQLite) scan(row scanner) (types.User, error) {
	var user types.User

	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.Age,
		&user.CreatedAt,
	); err != nil {
		return types.User{}, err
	}

	user.Created = types.FormatDisplay(user.CreatedAt, s.loc)
	return user, nil
}

// now is stored in UTC with second precision; the go-sqlite3 driver parses
// it back from the DATETIME column.
func (s *SQLite) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Second)
}
