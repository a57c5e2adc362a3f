package repo

import (
	"context"
	"database/sql"

	"cognical/internal/domain"
)

func scanDependency(row taskScanner) (domain.Dependency, error) {
	var d domain.Dependency
	err := row.Scan(&d.ID, &d.PredecessorID, &d.SuccessorID, &d.Type, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDependency(ctx context.Context, d domain.Dependency) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO task_dependencies(id,predecessor_id,successor_id,dependency_type,created_at) VALUES (?,?,?,?,?)`,
		d.ID, d.PredecessorID, d.SuccessorID, d.Type, d.CreatedAt)
	return err
}

func (r Repo) GetDependency(ctx context.Context, id string) (domain.Dependency, error) {
	return scanDependency(r.DB.QueryRowContext(ctx, `SELECT id,predecessor_id,successor_id,dependency_type,created_at FROM task_dependencies WHERE id=?`, id))
}

func (r Repo) DeleteDependency(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DependencyExists(ctx context.Context, predecessorID, successorID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM task_dependencies WHERE predecessor_id=? AND successor_id=?`, predecessorID, successorID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListDependencies(ctx context.Context) ([]domain.Dependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,predecessor_id,successor_id,dependency_type,created_at FROM task_dependencies ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
