package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"cognical/internal/domain"
)

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.PlanningSession) error {
	taskIDs, err := json.Marshal(s.TaskIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO planning_sessions(id,task_ids_json,constraints_json,generated_at,status,selected_option_id,personalization_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, string(taskIDs), s.ConstraintsJSON, s.GeneratedAt, s.Status, nullableStringPtr(s.SelectedOptionID), s.PersonalizationJSON, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSession(ctx context.Context, id string) (domain.PlanningSession, error) {
	var s domain.PlanningSession
	var taskIDs string
	var selected sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,task_ids_json,constraints_json,generated_at,status,selected_option_id,personalization_json,created_at,updated_at FROM planning_sessions WHERE id=?`, id).
		Scan(&s.ID, &taskIDs, &s.ConstraintsJSON, &s.GeneratedAt, &s.Status, &selected, &s.PersonalizationJSON, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(taskIDs), &s.TaskIDs); err != nil {
		return s, err
	}
	if selected.Valid {
		s.SelectedOptionID = &selected.String
	}
	return s, nil
}

func (r Repo) UpdateSessionStatus(ctx context.Context, tx *sql.Tx, id, status string, selectedOptionID *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE planning_sessions SET status=?, selected_option_id=?, updated_at=? WHERE id=?`,
		status, nullableStringPtr(selectedOptionID), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertOption(ctx context.Context, tx *sql.Tx, o domain.PlanningOption) error {
	cot, err := json.Marshal(o.CotSteps)
	if err != nil {
		return err
	}
	risks, err := json.Marshal(o.RiskNotes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO planning_options(id,session_id,rank,score,label,summary,cot_steps_json,risk_notes_json,is_fallback)
VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.SessionID, o.Rank, o.Score, nullable(o.Label), nullable(o.Summary), string(cot), string(risks), boolToInt(o.IsFallback))
	return err
}

func scanOption(row taskScanner) (domain.PlanningOption, error) {
	var o domain.PlanningOption
	var label, summary, cot, risks sql.NullString
	var fallback int
	err := row.Scan(&o.ID, &o.SessionID, &o.Rank, &o.Score, &label, &summary, &cot, &risks, &fallback)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if label.Valid {
		o.Label = label.String
	}
	if summary.Valid {
		o.Summary = summary.String
	}
	if cot.Valid && cot.String != "" {
		_ = json.Unmarshal([]byte(cot.String), &o.CotSteps)
	}
	if risks.Valid && risks.String != "" {
		_ = json.Unmarshal([]byte(risks.String), &o.RiskNotes)
	}
	o.IsFallback = fallback != 0
	return o, nil
}

func (r Repo) GetOption(ctx context.Context, id string) (domain.PlanningOption, error) {
	return scanOption(r.DB.QueryRowContext(ctx, `SELECT id,session_id,rank,score,label,summary,cot_steps_json,risk_notes_json,is_fallback FROM planning_options WHERE id=?`, id))
}

func (r Repo) ListOptions(ctx context.Context, sessionID string) ([]domain.PlanningOption, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,session_id,rank,score,label,summary,cot_steps_json,risk_notes_json,is_fallback FROM planning_options WHERE session_id=? ORDER BY rank ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PlanningOption
	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

func (r Repo) InsertBlock(ctx context.Context, tx *sql.Tx, b domain.TimeBlock) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO planning_time_blocks(id,option_id,task_id,start_at,end_at,flexibility,confidence,conflict_flags_json,status,applied_at,actual_start_at,actual_end_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.OptionID, b.TaskID, b.StartAt, b.EndAt, b.Flexibility, b.Confidence, marshalList(b.ConflictFlags), b.Status,
		nullableStringPtr(b.AppliedAt), nullableStringPtr(b.ActualStartAt), nullableStringPtr(b.ActualEndAt))
	return err
}

func scanBlock(row taskScanner) (domain.TimeBlock, error) {
	var b domain.TimeBlock
	var flags, appliedAt, actualStart, actualEnd sql.NullString
	err := row.Scan(&b.ID, &b.OptionID, &b.TaskID, &b.StartAt, &b.EndAt, &b.Flexibility, &b.Confidence, &flags, &b.Status, &appliedAt, &actualStart, &actualEnd)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.ConflictFlags = unmarshalList(flags)
	if appliedAt.Valid {
		b.AppliedAt = &appliedAt.String
	}
	if actualStart.Valid {
		b.ActualStartAt = &actualStart.String
	}
	if actualEnd.Valid {
		b.ActualEndAt = &actualEnd.String
	}
	return b, nil
}

const blockColumns = `id,option_id,task_id,start_at,end_at,flexibility,confidence,conflict_flags_json,status,applied_at,actual_start_at,actual_end_at`

func (r Repo) GetBlock(ctx context.Context, id string) (domain.TimeBlock, error) {
	return scanBlock(r.DB.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM planning_time_blocks WHERE id=?`, id))
}

// GetBlockTx reads a block through an open transaction so uncommitted
// writes from the same tx stay visible and no second connection is touched.
func (r Repo) GetBlockTx(ctx context.Context, tx *sql.Tx, id string) (domain.TimeBlock, error) {
	return scanBlock(tx.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM planning_time_blocks WHERE id=?`, id))
}

func (r Repo) ListBlocks(ctx context.Context, optionID string) ([]domain.TimeBlock, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+blockColumns+` FROM planning_time_blocks WHERE option_id=? ORDER BY start_at ASC, id ASC`, optionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlocks(rows)
}

// ListBlocksTx is ListBlocks inside an open transaction.
func (r Repo) ListBlocksTx(ctx context.Context, tx *sql.Tx, optionID string) ([]domain.TimeBlock, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+blockColumns+` FROM planning_time_blocks WHERE option_id=? ORDER BY start_at ASC, id ASC`, optionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBlocks(rows)
}

func collectBlocks(rows *sql.Rows) ([]domain.TimeBlock, error) {
	var res []domain.TimeBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

// UpdateBlockWindow patches start/end/flexibility on a block row.
func (r Repo) UpdateBlockWindow(ctx context.Context, tx *sql.Tx, id, startAt, endAt, flexibility string) error {
	res, err := tx.ExecContext(ctx, `UPDATE planning_time_blocks SET start_at=?, end_at=?, flexibility=? WHERE id=?`, startAt, endAt, flexibility, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkBlockApplied(ctx context.Context, tx *sql.Tx, id, appliedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE planning_time_blocks SET status=?, applied_at=? WHERE id=?`, domain.BlockApplied, appliedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
