package server

import (
	"bytes"
	"encoding/json"

	"cognical/internal/apperr"
	"cognical/internal/domain"
	"cognical/internal/planning"
	"cognical/internal/task"
)

type CreateTaskRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description,omitempty"`
	Status           string   `json:"status,omitempty" enum:"backlog,todo,in_progress,blocked,done,archived"`
	Priority         string   `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	PlannedStartAt   *string  `json:"plannedStartAt,omitempty" format:"date-time"`
	StartAt          *string  `json:"startAt,omitempty" format:"date-time"`
	DueAt            *string  `json:"dueAt,omitempty" format:"date-time"`
	EstimatedMinutes *int     `json:"estimatedMinutes,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Links            []string `json:"links,omitempty"`
	IsRecurring      bool     `json:"isRecurring,omitempty"`
	RecurrenceRule   *string  `json:"recurrenceRule,omitempty"`
	RecurrenceUntil  *string  `json:"recurrenceUntil,omitempty" format:"date-time"`
}

func (r CreateTaskRequest) toInput() task.CreateInput {
	return task.CreateInput{
		Title:            r.Title,
		Description:      r.Description,
		Status:           r.Status,
		Priority:         r.Priority,
		PlannedStartAt:   r.PlannedStartAt,
		StartAt:          r.StartAt,
		DueAt:            r.DueAt,
		EstimatedMinutes: r.EstimatedMinutes,
		Tags:             r.Tags,
		Links:            r.Links,
		IsRecurring:      r.IsRecurring,
		RecurrenceRule:   r.RecurrenceRule,
		RecurrenceUntil:  r.RecurrenceUntil,
	}
}

// patchFromRaw builds the three-state patch from the raw body. Absent keys
// stay untouched, explicit nulls clear, values set.
func patchFromRaw(raw []byte) (task.Patch, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return task.Patch{}, apperr.Validation("request body must be a JSON object")
	}
	var p task.Patch
	var err error
	for key, val := range fields {
		switch key {
		case "title":
			p.Title, err = stringField(key, val)
		case "description":
			p.Description, err = stringField(key, val)
		case "status":
			p.Status, err = stringField(key, val)
		case "priority":
			p.Priority, err = stringField(key, val)
		case "plannedStartAt":
			p.PlannedStartAt, err = stringField(key, val)
		case "startAt":
			p.StartAt, err = stringField(key, val)
		case "dueAt":
			p.DueAt, err = stringField(key, val)
		case "completedAt":
			p.CompletedAt, err = stringField(key, val)
		case "estimatedMinutes":
			p.EstimatedMinutes, err = intField(key, val)
		case "tags":
			p.Tags, err = stringsField(key, val)
		case "links":
			p.Links, err = stringsField(key, val)
		case "isRecurring":
			p.IsRecurring, err = boolField(key, val)
		case "recurrenceRule":
			p.RecurrenceRule, err = stringField(key, val)
		case "recurrenceUntil":
			p.RecurrenceUntil, err = stringField(key, val)
		default:
			err = apperr.Validationf("unknown field %q", key)
		}
		if err != nil {
			return task.Patch{}, err
		}
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(key string, raw json.RawMessage) (task.Field[string], error) {
	if isNull(raw) {
		return task.Clear[string](), nil
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return task.Field[string]{}, apperr.Validationf("field %q must be a string", key)
	}
	return task.Set(v), nil
}

func intField(key string, raw json.RawMessage) (task.Field[int], error) {
	if isNull(raw) {
		return task.Clear[int](), nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return task.Field[int]{}, apperr.Validationf("field %q must be an integer", key)
	}
	return task.Set(v), nil
}

func boolField(key string, raw json.RawMessage) (task.Field[bool], error) {
	if isNull(raw) {
		return task.Clear[bool](), nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return task.Field[bool]{}, apperr.Validationf("field %q must be a boolean", key)
	}
	return task.Set(v), nil
}

func stringsField(key string, raw json.RawMessage) (task.Field[[]string], error) {
	if isNull(raw) {
		return task.Clear[[]string](), nil
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return task.Field[[]string]{}, apperr.Validationf("field %q must be a string array", key)
	}
	return task.Set(v), nil
}

type DependencyRequest struct {
	PredecessorID  string `json:"predecessorId"`
	SuccessorID    string `json:"successorId"`
	DependencyType string `json:"dependencyType,omitempty" enum:"finish_to_start,start_to_start,finish_to_finish,start_to_finish"`
}

type GenerateRequest struct {
	TaskIDs      []string            `json:"taskIds"`
	Constraints  *domain.Constraints `json:"constraints,omitempty"`
	PreferenceID string              `json:"preferenceId,omitempty"`
	Seed         *int64              `json:"seed,omitempty"`
}

type BlockOverrideRequest struct {
	BlockID     string  `json:"blockId"`
	StartAt     *string `json:"startAt,omitempty" format:"date-time"`
	EndAt       *string `json:"endAt,omitempty" format:"date-time"`
	Flexibility *string `json:"flexibility,omitempty" enum:"fixed,flexible"`
}

func toOverrides(reqs []BlockOverrideRequest) []planning.BlockOverride {
	out := make([]planning.BlockOverride, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, planning.BlockOverride{
			BlockID:     r.BlockID,
			StartAt:     r.StartAt,
			EndAt:       r.EndAt,
			Flexibility: r.Flexibility,
		})
	}
	return out
}

type ApplyRequest struct {
	OptionID  string                 `json:"optionId"`
	Overrides []BlockOverrideRequest `json:"overrides,omitempty"`
}

type ResolveRequest struct {
	OptionID    string                 `json:"optionId"`
	Adjustments []BlockOverrideRequest `json:"adjustments,omitempty"`
}

type FeedbackRequest struct {
	Events []domain.FeedbackEvent `json:"events"`
}

type ParseRequest struct {
	Input string `json:"input"`
}

type RecommendRequest struct {
	TaskIDs []string `json:"taskIds,omitempty"`
}
