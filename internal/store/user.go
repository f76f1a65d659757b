package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ecocycle/apiserver/types"
	"github.com/lib/pq"
)

// uniqueViolation is the postgres error code for unique-constraint breaks.
const uniqueViolation = "23505"

// ErrDuplicatePhone is returned when creating a user with a phone number
// that is already registered.
var ErrDuplicatePhone = errors.New("phone already registered")

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, name, phone, password_hash, role, points, created_at
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (types.User, error) {
	const query = `
		SELECT id, name, phone, password_hash, role, points, created_at
		FROM users
		WHERE phone = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, phone))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	user.CreatedAt = time.Now()

	const query = `
		INSERT INTO users (name, phone, password_hash, role, points, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Phone,
		user.PasswordHash,
		user.Role,
		user.Points,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return types.User{}, ErrDuplicatePhone
		}
		return types.User{}, err
	}
	return user, nil
}

// List returns every user, newest first. Password hashes are loaded but
// callers rendering API responses rely on the json:"-" tag to drop them.
func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT id, name, phone, password_hash, role, points, created_at
		FROM users
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Phone,
			&user.PasswordHash,
			&user.Role,
			&user.Points,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *UserRepository) scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Phone,
		&user.PasswordHash,
		&user.Role,
		&user.Points,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
