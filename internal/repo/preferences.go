package repo

import (
	"context"
	"database/sql"
)

// GetPreferenceSnapshot returns the raw serialized snapshot document.
func (r Repo) GetPreferenceSnapshot(ctx context.Context, preferenceID string) (string, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT snapshot_json FROM schedule_preferences WHERE preference_id=?`, preferenceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return payload, err
}

func (r Repo) UpsertPreferenceSnapshot(ctx context.Context, preferenceID, snapshotJSON, updatedAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO schedule_preferences(preference_id,snapshot_json,updated_at) VALUES (?,?,?)
ON CONFLICT(preference_id) DO UPDATE SET snapshot_json=excluded.snapshot_json, updated_at=excluded.updated_at`,
		preferenceID, snapshotJSON, updatedAt)
	return err
}

func (r Repo) UpsertPreferenceSnapshotTx(ctx context.Context, tx *sql.Tx, preferenceID, snapshotJSON, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO schedule_preferences(preference_id,snapshot_json,updated_at) VALUES (?,?,?)
ON CONFLICT(preference_id) DO UPDATE SET snapshot_json=excluded.snapshot_json, updated_at=excluded.updated_at`,
		preferenceID, snapshotJSON, updatedAt)
	return err
}
