package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

const userColumns = `id, name, email, password_hash, role, is_active, created_at`

func scanUser(row pgx.Row) (User, error) {
	var i User
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.PasswordHash, &i.Role, &i.IsActive, &i.CreatedAt)
	return i, err
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND is_active`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND is_active`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const upsertUser = `INSERT INTO users (name, email, password_hash, role)
VALUES ($1, $2, $3, $4)
ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, role = EXCLUDED.role
RETURNING ` + userColumns

type UpsertUserParams struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// UpsertUser creates the user or, when the email exists, updates its name
// and role. The stored password is kept.
func (q *Queries) UpsertUser(ctx context.Context, arg UpsertUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, upsertUser, arg.Name, arg.Email, arg.PasswordHash, arg.Role))
}
