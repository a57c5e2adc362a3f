package planning

import (
	"context"
	"encoding/json"
	"errors"

	"cognical/internal/apperr"
	"cognical/internal/domain"
	"cognical/internal/repo"
	"cognical/internal/schedule"
)

const (
	SourceOptimizer = "optimizer"
	SourceCache     = "cache"
)

type OptionView struct {
	domain.PlanningOption
	Blocks    []domain.TimeBlock `json:"blocks"`
	Conflicts []domain.Conflict  `json:"conflicts,omitempty"`
}

type SessionView struct {
	Session   domain.PlanningSession `json:"session"`
	Options   []OptionView           `json:"options"`
	Conflicts []domain.Conflict      `json:"conflicts,omitempty"`
	Source    string                 `json:"source,omitempty"`
}

// View loads a session with its options and blocks and derives conflicts
// from current state. Conflicts are never stored, so overrides made since
// generation are always reflected.
func (s *Service) View(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var constraints domain.Constraints
	if session.ConstraintsJSON != "" {
		if err := json.Unmarshal([]byte(session.ConstraintsJSON), &constraints); err != nil {
			return nil, apperr.Serialization("decode session constraints", err)
		}
	}
	edges, err := s.Deps.List(ctx)
	if err != nil {
		return nil, err
	}
	options, err := s.Repo.ListOptions(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			options = nil
		} else {
			return nil, apperr.FromDB("list options", err)
		}
	}

	view := &SessionView{Session: session, Options: make([]OptionView, 0, len(options))}
	for _, opt := range options {
		blocks, err := s.Repo.ListBlocks(ctx, opt.ID)
		if err != nil {
			return nil, apperr.FromDB("list blocks", err)
		}
		conflicts := schedule.DeriveConflictsFromConstraints(blocks, constraints)
		conflicts = schedule.MergeConflicts(conflicts, schedule.DependencyViolations(blocks, edges)...)
		view.Options = append(view.Options, OptionView{
			PlanningOption: opt,
			Blocks:         blocks,
			Conflicts:      conflicts,
		})
		view.Conflicts = schedule.MergeConflicts(view.Conflicts, conflicts...)
	}
	return view, nil
}
