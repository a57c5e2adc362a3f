package repo

import (
	"context"
	"database/sql"
)

func (r Repo) GetAISetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM ai_settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) SetAISetting(ctx context.Context, key, value, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO ai_settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, updatedAt)
	return err
}

func (r Repo) DeleteAISetting(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM ai_settings WHERE key=?`, key)
	return err
}

func (r Repo) GetAppSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) SetAppSetting(ctx context.Context, key, value, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO app_settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, updatedAt)
	return err
}
