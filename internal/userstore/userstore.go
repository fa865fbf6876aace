// Package userstore persists the user directory. The delivery core only
// reads from it (ListActive, FindByID); mutation happens through the HTTP
// user API.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraldhq/herald/internal/models"
)

// ErrEmailTaken is returned when a create or update collides with another
// user's email.
var ErrEmailTaken = errors.New("email already in use")

// Store is the full user directory surface. Directory is the read-only subset
// the delivery core depends on.
type Store interface {
	Directory
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*models.User, error)
}

type Directory interface {
	ListActive(ctx context.Context) ([]*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type pgStore struct {
	db *pgxpool.Pool
}

var _ Store = (*pgStore)(nil)

func New(db *pgxpool.Pool) Store {
	return &pgStore{db: db}
}

const userColumns = `
	id,
	first_name,
	last_name,
	email,
	birthday,
	anniversary,
	timezone,
	is_active,
	created_at`

func (s *pgStore) Create(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (
			id, first_name, last_name, email, birthday,
			anniversary, timezone, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Birthday,
		user.Anniversary, user.Timezone, user.IsActive, user.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *pgStore) Update(ctx context.Context, user *models.User) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, birthday = $5,
			anniversary = $6, timezone = $7, is_active = $8
		WHERE id = $1`,
		user.ID, user.FirstName, user.LastName, user.Email, user.Birthday,
		user.Anniversary, user.Timezone, user.IsActive,
	)
	if isUniqueViolation(err) {
		return false, ErrEmailTaken
	}
	if err != nil {
		return false, fmt.Errorf("update user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the user; scheduled messages follow via the FK cascade.
func (s *pgStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (s *pgStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *pgStore) ListActive(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_active
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanUsers(rows pgx.Rows) ([]*models.User, error) {
	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Birthday,
		&user.Anniversary,
		&user.Timezone,
		&user.IsActive,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
