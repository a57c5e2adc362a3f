// Package ai abstracts the assistant backend. The heuristic provider runs
// fully offline; the HTTP provider talks to a configured endpoint with
// retries. Callers cache responses through internal/cache keyed by the
// semantic hash of the request.
package ai

import (
	"context"

	"cognical/internal/domain"
)

// ParsedTask is a draft extracted from free-form text. Fields mirror the
// task create payload so the caller can hand it straight to the service.
type ParsedTask struct {
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Priority         string   `json:"priority,omitempty"`
	DueAt            *string  `json:"dueAt,omitempty" format:"date-time"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

type Recommendation struct {
	TaskID string  `json:"taskId"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// ScheduleAdvice is an ordering hint, not a placement. The optimizer stays
// the source of truth for actual blocks.
type ScheduleAdvice struct {
	OrderedTaskIDs []string `json:"orderedTaskIds"`
	Summary        string   `json:"summary,omitempty"`
}

type Provider interface {
	ParseTask(ctx context.Context, input string) (ParsedTask, error)
	GenerateRecommendations(ctx context.Context, tasks []domain.Task) ([]Recommendation, error)
	PlanSchedule(ctx context.Context, tasks []domain.Task, constraints domain.Constraints) (ScheduleAdvice, error)
	Ping(ctx context.Context) error
}
