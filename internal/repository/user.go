package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mmeshcher/craftstore-system/internal/model"
)

// CreateUser создаёт нового пользователя с паролем.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, first_name, last_name, phone, password_hash, role, created_at
		 FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// FindOrCreateUserByEmail возвращает идентификатор пользователя с указанным email,
// создавая запись без пароля, если её ещё нет. Используется при гостевом оформлении заказа.
func (r *PostgresRepository) FindOrCreateUserByEmail(ctx context.Context, email, firstName, lastName, phone string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, first_name, last_name, phone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE
		 SET first_name = COALESCE(NULLIF(users.first_name, ''), EXCLUDED.first_name),
		     last_name  = COALESCE(NULLIF(users.last_name, ''), EXCLUDED.last_name),
		     phone      = COALESCE(NULLIF(users.phone, ''), EXCLUDED.phone)
		 RETURNING id`,
		email, firstName, lastName, phone,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("find or create user: %w", err)
	}
	return id, nil
}

// GetUserRoleByID возвращает роль пользователя.
func (r *PostgresRepository) GetUserRoleByID(ctx context.Context, id int64) (model.UserRole, error) {
	var role model.UserRole
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, id).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("get user role: %w", err)
	}
	return role, nil
}

// ListUsers возвращает список пользователей для административного интерфейса.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit, offset int) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, first_name, last_name, phone, role, created_at
		 FROM users
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}
