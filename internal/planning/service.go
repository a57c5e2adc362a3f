// Package planning orchestrates the plan lifecycle: generate candidate
// options, commit one onto task records, repair conflicts after overrides.
package planning

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"cognical/internal/apperr"
	"cognical/internal/behavior"
	"cognical/internal/cache"
	"cognical/internal/dependency"
	"cognical/internal/domain"
	"cognical/internal/events"
	"cognical/internal/repo"
	"cognical/internal/schedule"
	"cognical/internal/task"
)

type Service struct {
	Repo    repo.Repo
	Tasks   *task.Service
	Deps    *dependency.Service
	Learner *behavior.Learner
	Cache   *cache.Service
	Events  events.Writer
	Log     *slog.Logger

	Now                func() time.Time
	NewID              func() string
	GranularityMinutes int
}

func New(r repo.Repo, tasks *task.Service, deps *dependency.Service, learner *behavior.Learner, c *cache.Service) *Service {
	return &Service{
		Repo:    r,
		Tasks:   tasks,
		Deps:    deps,
		Learner: learner,
		Cache:   c,
		Events:  events.Writer{DB: r.DB},
		Log:     slog.With("component", "planning"),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

type GenerateInput struct {
	TaskIDs      []string
	Constraints  *domain.Constraints
	PreferenceID string
	Seed         *int64
}

// Generate runs the full generate path: load tasks and preferences, consult
// the cache, invoke the optimizer, persist session/options/blocks in one
// transaction, warm the cache. Cache traffic is advisory and never fails
// the operation.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*SessionView, error) {
	if len(in.TaskIDs) == 0 {
		return nil, apperr.Validation("at least one task id is required")
	}
	in.TaskIDs = dedupeIDs(in.TaskIDs)
	tasks, err := s.Tasks.GetMany(ctx, in.TaskIDs)
	if err != nil {
		return nil, err
	}
	var constraints domain.Constraints
	if in.Constraints != nil {
		constraints = *in.Constraints
	}
	snap, snapJSON, err := s.Learner.SnapshotForPlanning(ctx, in.PreferenceID)
	if err != nil {
		return nil, err
	}
	var seed int64
	if in.Seed != nil {
		seed = *in.Seed
	}

	constraintsJSON, err := json.Marshal(constraints)
	if err != nil {
		return nil, apperr.Serialization("encode constraints", err)
	}
	semanticHash := fingerprint(in.TaskIDs, string(constraintsJSON), snapJSON, seed)

	if view := s.cachedSession(ctx, semanticHash); view != nil {
		return view, nil
	}

	edges, err := s.Deps.List(ctx)
	if err != nil {
		return nil, err
	}

	sessionID := s.NewID()
	result, err := schedule.Generate(schedule.Input{
		Tasks:              tasks,
		Edges:              edges,
		Constraints:        constraints,
		Preferences:        snap,
		Seed:               seed,
		SessionSeed:        sessionID,
		GranularityMinutes: s.GranularityMinutes,
	})
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC().Format(time.RFC3339)
	session := domain.PlanningSession{
		ID:                  sessionID,
		TaskIDs:             in.TaskIDs,
		ConstraintsJSON:     string(constraintsJSON),
		GeneratedAt:         now,
		Status:              domain.SessionDraft,
		PersonalizationJSON: snapJSON,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.persistGeneration(ctx, session, result); err != nil {
		return nil, err
	}

	s.warmCache(ctx, semanticHash, in, sessionID)
	s.emit(ctx, events.PlanningGenerated, sessionID, events.EventPayload{
		"sessionId": sessionID,
		"options":   len(result.Options),
	})

	view, err := s.View(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view.Source = SourceOptimizer
	return view, nil
}

// persistGeneration writes session, options and blocks atomically. A task
// deleted between the read snapshot and this transaction trips the block
// foreign key and rolls everything back.
func (s *Service) persistGeneration(ctx context.Context, session domain.PlanningSession, result schedule.Result) error {
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperr.FromDB("begin generate tx", err)
	}
	defer tx.Rollback()
	if err := s.Repo.InsertSession(ctx, tx, session); err != nil {
		return apperr.FromDB("insert session", err)
	}
	for _, opt := range result.Options {
		row := domain.PlanningOption{
			ID:         opt.ID,
			SessionID:  session.ID,
			Rank:       opt.Rank,
			Score:      opt.Score,
			Label:      opt.Label,
			Summary:    opt.Summary,
			CotSteps:   opt.CotSteps,
			RiskNotes:  opt.RiskNotes,
			IsFallback: opt.IsFallback,
		}
		if err := s.Repo.InsertOption(ctx, tx, row); err != nil {
			return apperr.FromDB("insert option", err)
		}
		for _, b := range opt.Blocks {
			if err := s.Repo.InsertBlock(ctx, tx, b); err != nil {
				return apperr.FromDB("insert block", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.FromDB("commit generate tx", err)
	}
	return nil
}

// cachedSession resolves a prior session for the fingerprint. A stale cache
// entry pointing at a deleted session is ignored.
func (s *Service) cachedSession(ctx context.Context, semanticHash string) *SessionView {
	entry, err := s.Cache.Get(ctx, cache.OpSchedule, semanticHash)
	if err != nil {
		s.Log.Warn("cache lookup failed", "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}
	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal([]byte(entry.ResponseJSON), &payload); err != nil || payload.SessionID == "" {
		return nil
	}
	view, err := s.View(ctx, payload.SessionID)
	if err != nil {
		return nil
	}
	view.Source = SourceCache
	return view
}

func (s *Service) warmCache(ctx context.Context, semanticHash string, in GenerateInput, sessionID string) {
	payload, _ := json.Marshal(map[string]string{"sessionId": sessionID})
	raw := strings.Join(in.TaskIDs, ",")
	if err := s.Cache.Put(ctx, cache.OpSchedule, semanticHash, raw, string(payload), cache.PutOptions{}); err != nil {
		s.Log.Warn("cache put failed", "error", err)
	}
}

// dedupeIDs drops repeated ids, keeping first occurrences in order.
func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// fingerprint is order-insensitive over task ids and covers constraints,
// preferences and seed.
func fingerprint(taskIDs []string, constraintsJSON, snapshotJSON string, seed int64) string {
	ids := append([]string(nil), taskIDs...)
	sort.Strings(ids)
	input := strings.Join(ids, ",") + "|" + constraintsJSON + "|" + snapshotJSON
	return cache.SemanticHash(input, map[string]any{"seed": seed})
}

type BlockOverride struct {
	BlockID     string
	StartAt     *string
	EndAt       *string
	Flexibility *string
}

type ApplyInput struct {
	SessionID string
	OptionID  string
	Overrides []BlockOverride
}

// Apply commits one option: patches any overrides, stamps the blocks
// applied, materializes planned starts onto the tasks, and advances the
// session. A second apply fails with Conflict and changes nothing.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*SessionView, error) {
	session, err := s.getSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionDraft {
		return nil, apperr.Conflict(fmt.Sprintf("session is %s and cannot be applied", session.Status))
	}
	option, err := s.getOption(ctx, session.ID, in.OptionID)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC().Format(time.RFC3339)
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.FromDB("begin apply tx", err)
	}
	defer tx.Rollback()

	if err := s.applyOverrides(ctx, tx, option.ID, in.Overrides); err != nil {
		return nil, err
	}
	blocks, err := s.Repo.ListBlocksTx(ctx, tx, option.ID)
	if err != nil {
		return nil, apperr.FromDB("list blocks", err)
	}

	plannedStart := map[string]time.Time{}
	for _, b := range blocks {
		st, err := time.Parse(time.RFC3339, b.StartAt)
		if err != nil {
			return nil, apperr.Validationf("invalid block start %q", b.StartAt)
		}
		if cur, ok := plannedStart[b.TaskID]; !ok || st.Before(cur) {
			plannedStart[b.TaskID] = st
		}
		if err := s.Repo.MarkBlockApplied(ctx, tx, b.ID, now); err != nil {
			return nil, apperr.FromDB("mark block applied", err)
		}
	}
	taskIDs := make([]string, 0, len(plannedStart))
	for id := range plannedStart {
		taskIDs = append(taskIDs, id)
	}
	sort.Strings(taskIDs)
	for _, id := range taskIDs {
		startAt := plannedStart[id].UTC().Format(time.RFC3339)
		if err := s.Repo.SetTaskPlannedStart(ctx, tx, id, startAt, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, apperr.NotFound("task")
			}
			return nil, apperr.FromDB("set planned start", err)
		}
	}
	if err := s.Repo.UpdateSessionStatus(ctx, tx, session.ID, domain.SessionApplied, &option.ID, now); err != nil {
		return nil, apperr.FromDB("update session", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.FromDB("commit apply tx", err)
	}

	s.emit(ctx, events.PlanningApplied, session.ID, events.EventPayload{
		"sessionId": session.ID,
		"optionId":  option.ID,
	})
	return s.View(ctx, session.ID)
}

type ResolveInput struct {
	SessionID   string
	OptionID    string
	Adjustments []BlockOverride
}

// Resolve patches the named option's blocks in place and re-derives its
// conflicts. Tasks are never touched here and session status is ignored.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (*SessionView, error) {
	session, err := s.getSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	option, err := s.getOption(ctx, session.ID, in.OptionID)
	if err != nil {
		return nil, err
	}
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.FromDB("begin resolve tx", err)
	}
	defer tx.Rollback()
	if err := s.applyOverrides(ctx, tx, option.ID, in.Adjustments); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.FromDB("commit resolve tx", err)
	}

	s.emit(ctx, events.PlanningConflictsResolved, session.ID, events.EventPayload{
		"sessionId":   session.ID,
		"optionId":    option.ID,
		"adjustments": len(in.Adjustments),
	})
	return s.View(ctx, session.ID)
}

// Discard retires a draft session. Terminal: discarded sessions never come
// back.
func (s *Service) Discard(ctx context.Context, sessionID string) (*SessionView, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.SessionDraft {
		return nil, apperr.Conflict(fmt.Sprintf("session is %s and cannot be discarded", session.Status))
	}
	now := s.Now().UTC().Format(time.RFC3339)
	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.FromDB("begin discard tx", err)
	}
	defer tx.Rollback()
	if err := s.Repo.UpdateSessionStatus(ctx, tx, session.ID, domain.SessionDiscarded, nil, now); err != nil {
		return nil, apperr.FromDB("update session", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.FromDB("commit discard tx", err)
	}
	return s.View(ctx, sessionID)
}

// applyOverrides patches block windows inside tx. Every override must name
// a block of the given option and keep end strictly after start; windows
// are stored normalized to UTC.
func (s *Service) applyOverrides(ctx context.Context, tx *sql.Tx, optionID string, overrides []BlockOverride) error {
	for _, ov := range overrides {
		block, err := s.Repo.GetBlockTx(ctx, tx, ov.BlockID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.NotFound("time block")
			}
			return apperr.FromDB("get block", err)
		}
		if block.OptionID != optionID {
			return apperr.ValidationDetails("block does not belong to the selected option",
				map[string]any{"blockId": ov.BlockID})
		}
		start, end, flex := block.StartAt, block.EndAt, block.Flexibility
		if ov.StartAt != nil {
			start = *ov.StartAt
		}
		if ov.EndAt != nil {
			end = *ov.EndAt
		}
		if ov.Flexibility != nil {
			flex = *ov.Flexibility
		}
		if flex != domain.FlexFixed && flex != domain.FlexFlexible {
			return apperr.Validationf("invalid flexibility %q", flex)
		}
		st, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return apperr.Validationf("invalid startAt %q", start)
		}
		en, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return apperr.Validationf("invalid endAt %q", end)
		}
		if !en.After(st) {
			return apperr.ValidationDetails("block end must be after start",
				map[string]any{"blockId": ov.BlockID})
		}
		start = st.UTC().Format(time.RFC3339)
		end = en.UTC().Format(time.RFC3339)
		if err := s.Repo.UpdateBlockWindow(ctx, tx, ov.BlockID, start, end, flex); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.NotFound("time block")
			}
			return apperr.FromDB("update block window", err)
		}
	}
	return nil
}

func (s *Service) getSession(ctx context.Context, id string) (domain.PlanningSession, error) {
	session, err := s.Repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.PlanningSession{}, apperr.NotFound("planning session")
		}
		return domain.PlanningSession{}, apperr.FromDB("get session", err)
	}
	return session, nil
}

func (s *Service) getOption(ctx context.Context, sessionID, optionID string) (domain.PlanningOption, error) {
	option, err := s.Repo.GetOption(ctx, optionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.PlanningOption{}, apperr.NotFound("planning option")
		}
		return domain.PlanningOption{}, apperr.FromDB("get option", err)
	}
	if option.SessionID != sessionID {
		return domain.PlanningOption{}, apperr.NotFound("planning option")
	}
	return option, nil
}

func (s *Service) emit(ctx context.Context, evtType, entityID string, payload events.EventPayload) {
	s.emitKind(ctx, evtType, "planning_session", entityID, payload)
}

func (s *Service) emitKind(ctx context.Context, evtType, entityKind, entityID string, payload events.EventPayload) {
	if err := s.Events.Append(ctx, evtType, entityKind, entityID, payload); err != nil {
		s.Log.Warn("event append failed", "type", evtType, "error", err)
	}
}
