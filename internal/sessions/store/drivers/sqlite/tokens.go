package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/harborview/mediahub/internal/sessions/domain"
)

type tokensRepo struct {
	db *sql.DB
}

func (r *tokensRepo) Create(ctx context.Context, t domain.TokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (access_token, user_id, user_name, device_id, device_name, app_name, app_version, date_created, date_last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccessToken,
		mapUserID(t.UserID),
		t.UserName,
		t.DeviceID,
		t.DeviceName,
		t.AppName,
		t.AppVersion,
		t.DateCreated.UTC(),
		t.DateLastActivity.UTC(),
	)
	return err
}

func (r *tokensRepo) GetByToken(ctx context.Context, token string) (domain.TokenRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT access_token, user_id, user_name, device_id, device_name, app_name, app_version, date_created, date_last_activity
		FROM tokens WHERE access_token = ?`, token)
	return scanToken(row)
}

func (r *tokensRepo) Update(ctx context.Context, t domain.TokenRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tokens
		SET user_name = ?, device_id = ?, device_name = ?, app_name = ?, app_version = ?, date_last_activity = ?
		WHERE access_token = ?`,
		t.UserName,
		t.DeviceID,
		t.DeviceName,
		t.AppName,
		t.AppVersion,
		t.DateLastActivity.UTC(),
		t.AccessToken,
	)
	return err
}

func (r *tokensRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE access_token = ?`, token)
	return err
}

func (r *tokensRepo) DeleteAllForUser(ctx context.Context, userID uuid.UUID, exceptToken string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM tokens WHERE user_id = ? AND access_token <> ?`,
		userID.String(), exceptToken)
	return err
}

func (r *tokensRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]domain.TokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT access_token, user_id, user_name, device_id, device_name, app_name, app_version, date_created, date_last_activity
		FROM tokens WHERE user_id = ? ORDER BY date_last_activity DESC`,
		userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TokenRecord
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *tokensRepo) DeleteInactive(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE date_last_activity < ?`, before.UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (domain.TokenRecord, error) {
	var (
		t      domain.TokenRecord
		userID sql.NullString
	)
	err := row.Scan(
		&t.AccessToken,
		&userID,
		&t.UserName,
		&t.DeviceID,
		&t.DeviceName,
		&t.AppName,
		&t.AppVersion,
		&t.DateCreated,
		&t.DateLastActivity,
	)
	if err != nil {
		return domain.TokenRecord{}, mapNotFound(err)
	}
	if userID.Valid && userID.String != "" {
		id, err := uuid.Parse(userID.String)
		if err != nil {
			return domain.TokenRecord{}, err
		}
		t.UserID = id
	}
	return t, nil
}

// mapUserID stores API keys (nil user) as NULL so the user FK stays clean.
func mapUserID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
