// Package dependency owns the task-dependency DAG, its acyclicity guarantee
// and the derived snapshots (topological order, ready set, critical path).
package dependency

import (
	"context"
	"errors"
	"sort"
	"sync"
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

	mu   sync.RWMutex
	memo *Graph
}

func New(r repo.Repo) *Service {
	return &Service{Repo: r, Now: time.Now, NewID: uuid.NewString}
}

// Invalidate drops the memoized snapshot. Called on every edge write and by
// the task service on task writes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.memo = nil
	s.mu.Unlock()
}

// Snapshot returns the memoized graph, rebuilding it lazily after a write.
func (s *Service) Snapshot(ctx context.Context) (*Graph, error) {
	s.mu.RLock()
	g := s.memo
	s.mu.RUnlock()
	if g != nil {
		return g, nil
	}
	tasks, err := s.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, apperr.FromDB("list tasks", err)
	}
	edges, err := s.Repo.ListDependencies(ctx)
	if err != nil {
		return nil, apperr.FromDB("list dependencies", err)
	}
	g = buildGraph(tasks, edges)
	s.mu.Lock()
	s.memo = g
	s.mu.Unlock()
	return g, nil
}

func (s *Service) Add(ctx context.Context, predecessorID, successorID, depType string) (domain.Dependency, error) {
	if depType == "" {
		depType = domain.DepFinishToStart
	}
	if !domain.ValidDependencyType(depType) {
		return domain.Dependency{}, apperr.Validationf("unknown dependency type %q", depType)
	}
	if predecessorID == successorID {
		return domain.Dependency{}, apperr.Validation("a task cannot depend on itself")
	}
	for _, id := range []string{predecessorID, successorID} {
		if _, err := s.Repo.GetTask(ctx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Dependency{}, apperr.NotFound("task")
			}
			return domain.Dependency{}, apperr.FromDB("get task", err)
		}
	}
	exists, err := s.Repo.DependencyExists(ctx, predecessorID, successorID)
	if err != nil {
		return domain.Dependency{}, apperr.FromDB("check dependency", err)
	}
	if exists {
		return domain.Dependency{}, apperr.Conflict("dependency already exists")
	}
	check, err := s.Validate(ctx, predecessorID, successorID)
	if err != nil {
		return domain.Dependency{}, err
	}
	if check.WouldCreateCycle {
		return domain.Dependency{}, apperr.ValidationDetails("dependency would create a cycle",
			map[string]any{"cyclePath": check.CyclePath})
	}
	d := domain.Dependency{
		ID:            s.NewID(),
		PredecessorID: predecessorID,
		SuccessorID:   successorID,
		Type:          depType,
		CreatedAt:     s.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Repo.InsertDependency(ctx, d); err != nil {
		return domain.Dependency{}, apperr.FromDB("insert dependency", err)
	}
	s.Invalidate()
	return d, nil
}

func (s *Service) Remove(ctx context.Context, id string) error {
	err := s.Repo.DeleteDependency(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("dependency")
	}
	if err != nil {
		return apperr.FromDB("delete dependency", err)
	}
	s.Invalidate()
	return nil
}

// ValidationResult is the dry-run answer for a prospective edge.
type ValidationResult struct {
	Valid            bool     `json:"valid"`
	WouldCreateCycle bool     `json:"wouldCreateCycle"`
	CyclePath        []string `json:"cyclePath,omitempty"`
}

// Validate probes whether predecessor -> successor would close a cycle,
// without mutating anything. The reported cycle starts and ends at the
// prospective predecessor. A self-loop is rejected outright, matching Add.
func (s *Service) Validate(ctx context.Context, predecessorID, successorID string) (ValidationResult, error) {
	if predecessorID == successorID {
		return ValidationResult{}, apperr.Validation("a task cannot depend on itself")
	}
	g, err := s.Snapshot(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	// a directed path successor ~> predecessor means the new edge closes it
	if path := pathBetween(g, successorID, predecessorID); path != nil {
		cycle := append([]string{predecessorID}, path...)
		return ValidationResult{Valid: false, WouldCreateCycle: true, CyclePath: cycle}, nil
	}
	return ValidationResult{Valid: true}, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Dependency, error) {
	deps, err := s.Repo.ListDependencies(ctx)
	if err != nil {
		return nil, apperr.FromDB("list dependencies", err)
	}
	return deps, nil
}

// ReadyTasks returns non-terminal tasks whose every predecessor is done,
// ordered by priority desc, due date asc, id asc.
func (s *Service) ReadyTasks(ctx context.Context) ([]domain.Task, error) {
	g, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := s.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, apperr.FromDB("list tasks", err)
	}
	var ready []domain.Task
	for _, t := range tasks {
		if n, ok := g.Nodes[t.ID]; ok && n.IsReady {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if pa, pb := domain.PriorityWeight(a.Priority), domain.PriorityWeight(b.Priority); pa != pb {
			return pa > pb
		}
		da, db := dueKey(a.DueAt), dueKey(b.DueAt)
		if da != db {
			return da < db
		}
		return a.ID < b.ID
	})
	return ready, nil
}

// dueKey sorts missing due dates after every concrete one.
func dueKey(due *string) string {
	if due == nil {
		return "￿"
	}
	return *due
}

// CriticalPath returns the longest predecessor chain terminating at taskID.
func (s *Service) CriticalPath(ctx context.Context, taskID string) ([]string, error) {
	g, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Nodes[taskID]; !ok {
		return nil, apperr.NotFound("task")
	}
	depth := make(map[string]int, len(g.Nodes))
	prev := make(map[string]string, len(g.Nodes))
	for _, id := range g.TopoOrder {
		for _, predID := range g.Nodes[id].Dependencies {
			if d := depth[predID] + 1; d > depth[id] || (d == depth[id] && predID < prev[id]) {
				depth[id] = d
				prev[id] = predID
			}
		}
	}
	return chainTo(taskID, depth, prev), nil
}
