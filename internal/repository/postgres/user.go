package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.CreatedAt = time.Now().UTC()

	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (last_name, birthdate, created_at)
		 VALUES ($1, $2::date, $3)
		 RETURNING id`,
		user.LastName, user.BirthdateString(), user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("postgres: inserting user %q: %w", user.LastName, err)
	}
	return nil
}

// FindUserByCredentials: same contract as the SQLite version. Postgres lower()
// is Unicode-aware, so non-ASCII names fold on both sides here.
func (db *DB) FindUserByCredentials(ctx context.Context, lastName string, birthdate time.Time) (*model.User, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, last_name, birthdate, created_at
		 FROM users
		 WHERE lower(last_name) = lower($1) AND birthdate = $2::date
		 ORDER BY id
		 LIMIT 1`,
		strings.TrimSpace(lastName),
		birthdate.Format(model.DayLayout),
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("postgres: finding user by credentials: %w", err)
	}
	return u, nil
}

func (db *DB) ListUsersByLastName(ctx context.Context, lastName string) ([]model.User, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, last_name, birthdate, created_at
		 FROM users
		 WHERE lower(last_name) = lower($1)
		 ORDER BY id`,
		strings.TrimSpace(lastName),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.LastName, &u.Birthdate, &u.CreatedAt); err != nil {
		return nil, err
	}
	b := u.Birthdate
	u.Birthdate = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}
