// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Storage interface, using pgx through its database/sql adapter.
//
// It mirrors the sqlite package statement for statement. The differences
// are the dialect: $n placeholders, BIGSERIAL ids, TIMESTAMPTZ, and
// INSERT ... RETURNING instead of LastInsertId (which pgx does not support).
package postgres

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

	_ "github.com/jackc/pgx/v5/stdlib"
)

var _ storage.Storage = (*Postgres)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id           BIGSERIAL   PRIMARY KEY,
		email        TEXT        NOT NULL,
		first_name   TEXT        NOT NULL,
		last_name    TEXT        NOT NULL,
		age          INTEGER     NOT NULL,
		date_created TIMESTAMPTZ NOT NULL
	)
`

type Postgres struct {
	Db *sql.DB

	clock clockwork.Clock
	loc   *time.Location
}

// New connects to cfg.Storage.DSN, verifies the connection and creates the
// users table if needed.
func New(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*Postgres, error) {
	loc, err := cfg.Storage.Location()
	if err != nil {
		return nil, fmt.Errorf("postgres.New: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.New: create table: %w", err)
	}

	return &Postgres{Db: db, clock: clock, loc: loc}, nil
}

func (p *Postgres) CreateUser(ctx context.Context, in types.UserInput) (int64, error) {
	stmt, err := p.Db.PrepareContext(ctx,
		`INSERT INTO users (email, first_name, last_name, age, date_created)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
	)
	if err != nil {
		return 0, storage.Wrap("create user", err)
	}
	defer stmt.Close()

	var id int64
	if err := stmt.QueryRowContext(ctx, in.Email, in.FirstName, in.LastName, int(in.Age), p.now()).Scan(&id); err != nil {
		return 0, storage.Wrap("create user", err)
	}

	return id, nil
}

func (p *Postgres) UpdateUser(ctx context.Context, id int64, in types.UserInput) error {
	query := "UPDATE users SET email = $1, first_name = $2, last_name = $3, age = $4 WHERE id = $5"
	args := []any{in.Email, in.FirstName, in.LastName, int(in.Age), id}

	if in.Created != nil {
		created, err := storage.CreatedOverride(*in.Created, p.now(), p.loc)
		if err != nil {
			return storage.Wrap("update user", err)
		}

		query = "UPDATE users SET email = $1, first_name = $2, last_name = $3, age = $4, date_created = $5 WHERE id = $6"
		args = []any{in.Email, in.FirstName, in.LastName, int(in.Age), created, id}
	}

	stmt, err := p.Db.PrepareContext(ctx, query)
	if err != nil {
		return storage.Wrap("update user", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return storage.Wrap("update user", err)
	}

	return nil
}

func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	stmt, err := p.Db.PrepareContext(ctx, "DELETE FROM users WHERE id = $1")
	if err != nil {
		return storage.Wrap("delete user", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, id); err != nil {
		return storage.Wrap("delete user", err)
	}

	return nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]types.User, error) {
	stmt, err := p.Db.PrepareContext(ctx,
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
		user, err := p.scan(rows)
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

func (p *Postgres) GetUser(ctx context.Context, id int64) (types.User, error) {
	stmt, err := p.Db.PrepareContext(ctx,
		"SELECT id, email, first_name, last_name, age, date_created FROM users WHERE id = $1",
	)
	if err != nil {
		return types.User{}, storage.Wrap("get user", err)
	}
	defer stmt.Close()

	user, err := p.scan(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, storage.ErrUserNotFound
		}
		return types.User{}, storage.Wrap("get user", err)
	}

	return user, nil
}

func (p *Postgres) UserExists(ctx context.Context, id int64) (bool, error) {
	stmt, err := p.Db.PrepareContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)")
	if err != nil {
		return false, storage.Wrap("check user", err)
	}
	defer stmt.Close()

	var exists bool
	if err := stmt.QueryRowContext(ctx, id).Scan(&exists); err != nil {
		return false, storage.Wrap("check user", err)
	}

	return exists, nil
}

func (p *Postgres) Close() error {
	return p.Db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func (p *Postgres) scan(row scanner) (types.User, error) {
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

	user.Created = types.FormatDisplay(user.CreatedAt, p.loc)
	return user, nil
}

func (p *Postgres) now() time.Time {
	return p.clock.Now().Truncate(time.Second)
}
