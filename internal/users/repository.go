package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kasirku/kasir/internal/platform/db"
	"github.com/kasirku/kasir/internal/shared"
)

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all users.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByUsername fetches a user for login.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *Repository) one(ctx context.Context, sql string, arg any) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, sql, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return user, err
}

// Create inserts the user and returns it with generated fields.
func (r *Repository) Create(ctx context.Context, u User) (User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns, u.Username, u.Email, u.PasswordHash, string(u.Role)))
	if err != nil {
		return User{}, mapUnique(err)
	}
	return created, nil
}

// Update applies the non-nil fields of p.
func (r *Repository) Update(ctx context.Context, id int64, p Patch) (User, error) {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Role != nil {
		add("role", string(*p.Role))
	}
	if len(sets) == 0 {
		return User{}, ErrNoChanges
	}
	args = append(args, id)
	sql := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, mapUnique(err)
	}
	return user, nil
}

// Delete removes the user.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func mapUnique(err error) error {
	if !db.IsUniqueViolation(err) {
		return err
	}
	switch db.Constraint(err) {
	case "users_email_key":
		return ErrEmailTaken
	default:
		return ErrUsernameTaken
	}
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	u.Role = shared.RoleFromDB(role)
	return u, nil
}
