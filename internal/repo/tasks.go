package repo

import (
	"context"
	"database/sql"
	"strings"

	"cognical/internal/domain"
)

const taskColumns = `id,title,description,status,priority,planned_start_at,start_at,due_at,completed_at,estimated_minutes,tags_json,links_json,is_recurring,recurrence_rule,recurrence_until,created_at,updated_at`

type taskScanner interface {
	Scan(dest ...any) error
}

func scanTask(row taskScanner) (domain.Task, error) {
	var t domain.Task
	var description, plannedStart, startAt, dueAt, completedAt, tags, links, recurrenceRule, recurrenceUntil sql.NullString
	var estimated sql.NullInt64
	var isRecurring int
	err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority, &plannedStart, &startAt, &dueAt, &completedAt,
		&estimated, &tags, &links, &isRecurring, &recurrenceRule, &recurrenceUntil, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if plannedStart.Valid {
		t.PlannedStartAt = &plannedStart.String
	}
	if startAt.Valid {
		t.StartAt = &startAt.String
	}
	if dueAt.Valid {
		t.DueAt = &dueAt.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	if estimated.Valid {
		v := int(estimated.Int64)
		t.EstimatedMinutes = &v
	}
	t.Tags = unmarshalList(tags)
	t.Links = unmarshalList(links)
	t.IsRecurring = isRecurring != 0
	if recurrenceRule.Valid {
		t.RecurrenceRule = &recurrenceRule.String
	}
	if recurrenceUntil.Valid {
		t.RecurrenceUntil = &recurrenceUntil.String
	}
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, t domain.Task) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.PlannedStartAt), nullableStringPtr(t.StartAt), nullableStringPtr(t.DueAt), nullableStringPtr(t.CompletedAt),
		nullableIntPtr(t.EstimatedMinutes), marshalList(t.Tags), marshalList(t.Links),
		boolToInt(t.IsRecurring), nullableStringPtr(t.RecurrenceRule), nullableStringPtr(t.RecurrenceUntil),
		t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, planned_start_at=?, start_at=?, due_at=?, completed_at=?, estimated_minutes=?, tags_json=?, links_json=?, is_recurring=?, recurrence_rule=?, recurrence_until=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.PlannedStartAt), nullableStringPtr(t.StartAt), nullableStringPtr(t.DueAt), nullableStringPtr(t.CompletedAt),
		nullableIntPtr(t.EstimatedMinutes), marshalList(t.Tags), marshalList(t.Links),
		boolToInt(t.IsRecurring), nullableStringPtr(t.RecurrenceRule), nullableStringPtr(t.RecurrenceUntil),
		t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTaskPlannedStart updates planned_start_at inside an apply transaction.
func (r Repo) SetTaskPlannedStart(ctx context.Context, tx *sql.Tx, taskID, plannedStartAt, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET planned_start_at=?, updated_at=? WHERE id=?`, plannedStartAt, updatedAt, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type TaskFilters struct {
	Status   string
	Priority string
	Tag      string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if f.Tag != "" && !containsFold(t.Tags, f.Tag) {
			continue
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GetTasks(ctx context.Context, ids []string) ([]domain.Task, error) {
	res := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func containsFold(items []string, v string) bool {
	for _, it := range items {
		if strings.EqualFold(it, v) {
			return true
		}
	}
	return false
}
