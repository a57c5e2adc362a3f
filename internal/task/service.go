// Package task validates, normalizes and persists tasks. It exclusively owns
// task rows; the planning service mutates them only through here.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"cognical/internal/apperr"
	"cognical/internal/domain"
	"cognical/internal/repo"
)

type Service struct {
	Repo  repo.Repo
	Now   func() time.Time
	NewID func() string
	// Invalidated is called after any write that can change the dependency
	// graph's view of tasks.
	Invalidated func()
}

func New(r repo.Repo) *Service {
	return &Service{Repo: r, Now: time.Now, NewID: uuid.NewString}
}

func (s *Service) notifyGraph() {
	if s.Invalidated != nil {
		s.Invalidated()
	}
}

type CreateInput struct {
	Title            string
	Description      string
	Status           string
	Priority         string
	PlannedStartAt   *string
	StartAt          *string
	DueAt            *string
	EstimatedMinutes *int
	Tags             []string
	Links            []string
	IsRecurring      bool
	RecurrenceRule   *string
	RecurrenceUntil  *string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Task, error) {
	now := s.Now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:               s.NewID(),
		Title:            in.Title,
		Description:      in.Description,
		Status:           in.Status,
		Priority:         in.Priority,
		PlannedStartAt:   in.PlannedStartAt,
		StartAt:          in.StartAt,
		DueAt:            in.DueAt,
		EstimatedMinutes: in.EstimatedMinutes,
		Tags:             in.Tags,
		Links:            in.Links,
		IsRecurring:      in.IsRecurring,
		RecurrenceRule:   in.RecurrenceRule,
		RecurrenceUntil:  in.RecurrenceUntil,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	Normalize(&t)
	if err := Validate(&t); err != nil {
		return domain.Task{}, err
	}
	if err := s.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, apperr.FromDB("insert task", err)
	}
	s.notifyGraph()
	return t, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (domain.Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	prevUpdated := t.UpdatedAt

	applyString(p.Title, &t.Title)
	if p.Description.Cleared() {
		t.Description = ""
	} else {
		applyString(p.Description, &t.Description)
	}
	applyString(p.Status, &t.Status)
	applyString(p.Priority, &t.Priority)
	applyOptString(p.PlannedStartAt, &t.PlannedStartAt)
	applyOptString(p.StartAt, &t.StartAt)
	applyOptString(p.DueAt, &t.DueAt)
	applyOptString(p.CompletedAt, &t.CompletedAt)
	if p.EstimatedMinutes.Cleared() {
		t.EstimatedMinutes = nil
	} else if v, ok := p.EstimatedMinutes.Get(); ok {
		t.EstimatedMinutes = &v
	}
	if p.Tags.Cleared() {
		t.Tags = nil
	} else if v, ok := p.Tags.Get(); ok {
		t.Tags = v
	}
	if p.Links.Cleared() {
		t.Links = nil
	} else if v, ok := p.Links.Get(); ok {
		t.Links = v
	}
	if p.IsRecurring.Cleared() {
		t.IsRecurring = false
	} else if v, ok := p.IsRecurring.Get(); ok {
		t.IsRecurring = v
	}
	applyOptString(p.RecurrenceRule, &t.RecurrenceRule)
	applyOptString(p.RecurrenceUntil, &t.RecurrenceUntil)

	Normalize(&t)
	if err := Validate(&t); err != nil {
		return domain.Task{}, err
	}

	// updated_at must strictly advance even under a coarse clock
	now := s.Now().UTC()
	updated := now.Format(time.RFC3339)
	if updated <= prevUpdated {
		if prev, err := time.Parse(time.RFC3339, prevUpdated); err == nil {
			updated = prev.Add(time.Second).Format(time.RFC3339)
		}
	}
	t.UpdatedAt = updated

	if err := s.Repo.UpdateTask(ctx, t); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Task{}, apperr.NotFound("task")
		}
		return domain.Task{}, apperr.FromDB("update task", err)
	}
	s.notifyGraph()
	return t, nil
}

// Delete removes the task; incident dependency edges and planning blocks go
// with it through the store's referential actions.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.Repo.DeleteTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("task")
	}
	if err != nil {
		return apperr.FromDB("delete task", err)
	}
	s.notifyGraph()
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Task, error) {
	t, err := s.Repo.GetTask(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, apperr.NotFound("task")
	}
	if err != nil {
		return domain.Task{}, apperr.FromDB("get task", err)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	tasks, err := s.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, apperr.FromDB("list tasks", err)
	}
	return tasks, nil
}

// GetMany loads each id, failing with Validation when any is missing so a
// planning request over stale ids aborts cleanly.
func (s *Service) GetMany(ctx context.Context, ids []string) ([]domain.Task, error) {
	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Repo.GetTask(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.ValidationDetails("unknown task id", map[string]any{"taskId": id})
		}
		if err != nil {
			return nil, apperr.FromDB("get task", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
