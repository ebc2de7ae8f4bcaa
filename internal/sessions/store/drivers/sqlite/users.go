package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
)

type usersRepo struct {
	db *sql.DB
}

func (r *usersRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_administrator, last_login_date, created_at, updated_at
		FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func (r *usersRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_administrator, last_login_date, created_at, updated_at
		FROM users WHERE username = ? COLLATE NOCASE`, username)
	return scanUser(row)
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, is_administrator, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID.String(),
		u.Username,
		u.PasswordHash,
		u.IsAdministrator,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	return err
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_date = ?, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), time.Now().UTC(), id.String())
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		id        string
		lastLogin sql.NullTime
	)
	err := row.Scan(&id, &u.Username, &u.PasswordHash, &u.IsAdministrator, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = parsed

	if lastLogin.Valid {
		u.LastLoginDate = lastLogin.Time
	}
	return u, nil
}
