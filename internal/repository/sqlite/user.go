package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/mealtrack/internal/apperror"
	"github.com/sakif/mealtrack/internal/model"
	"github.com/sakif/mealtrack/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new user and fills in ID and CreatedAt.
//
// The birthdate is stored as YYYY-MM-DD text rather than a DATETIME so that
// login can compare it with plain equality. There is no time-of-day or zone to strip.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.CreatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (last_name, birthdate, created_at) VALUES (?, ?, ?)`,
		user.LastName,
		user.BirthdateString(),
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %q: %w", user.LastName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}
	user.ID = id

	return nil
}

// FindUserByCredentials looks a user up by login credentials.
//
// lower() in SQLite only folds ASCII, so the Go side folds with strings.ToLower
// and the column side with lower(); for the Latin names this app stores both
// agree. On duplicates the oldest account wins.
func (db *DB) FindUserByCredentials(ctx context.Context, lastName string, birthdate time.Time) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, last_name, birthdate, created_at
		 FROM users
		 WHERE lower(last_name) = ? AND birthdate = ?
		 ORDER BY id
		 LIMIT 1`,
		strings.ToLower(strings.TrimSpace(lastName)),
		birthdate.Format(model.DayLayout),
	)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("User")
		}
		return nil, fmt.Errorf("sqlite: finding user by credentials: %w", err)
	}
	return u, nil
}

// ListUsersByLastName returns every user whose last name matches case-insensitively.
func (db *DB) ListUsersByLastName(ctx context.Context, lastName string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, last_name, birthdate, created_at
		 FROM users
		 WHERE lower(last_name) = ?
		 ORDER BY id`,
		strings.ToLower(strings.TrimSpace(lastName)),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u         model.User
		birthdate string
	)
	if err := s.Scan(&u.ID, &u.LastName, &birthdate, &u.CreatedAt); err != nil {
		return nil, err
	}

	day, err := time.Parse(model.DayLayout, birthdate)
	if err != nil {
		return nil, fmt.Errorf("parsing stored birthdate %q: %w", birthdate, err)
	}
	u.Birthdate = day
	u.CreatedAt = u.CreatedAt.UTC()

	return &u, nil
}
