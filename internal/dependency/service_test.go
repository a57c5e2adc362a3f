package dependency

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"cognical/internal/apperr"
	"cognical/internal/db"
	"cognical/internal/domain"
	"cognical/internal/migrate"
	"cognical/internal/repo"
	"cognical/internal/task"
)

type testEnv struct {
	tasks *task.Service
	deps  *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	deps := New(r)
	deps.Now = func() time.Time { return time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC) }
	tasks := task.New(r)
	tasks.Now = deps.Now
	tasks.Invalidated = deps.Invalidate
	return &testEnv{tasks: tasks, deps: deps}
}

func (e *testEnv) mustCreate(t *testing.T, id, title string) {
	t.Helper()
	e.tasks.NewID = func() string { return id }
	if _, err := e.tasks.Create(context.Background(), task.CreateInput{Title: title}); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func seedChain(t *testing.T, e *testEnv) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("T%d", i)
		e.mustCreate(t, id, "task "+id)
	}
	if _, err := e.deps.Add(ctx, "T1", "T2", ""); err != nil {
		t.Fatalf("add T1->T2: %v", err)
	}
	if _, err := e.deps.Add(ctx, "T2", "T3", ""); err != nil {
		t.Fatalf("add T2->T3: %v", err)
	}
}

func TestCycleRefusal(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)

	_, err := e.deps.Add(ctx, "T3", "T1", "")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	res, err := e.deps.Validate(ctx, "T3", "T1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Valid || !res.WouldCreateCycle {
		t.Fatalf("cycle not detected: %+v", res)
	}
	want := []string{"T3", "T1", "T2", "T3"}
	if !reflect.DeepEqual(res.CyclePath, want) {
		t.Fatalf("cycle path = %v, want %v", res.CyclePath, want)
	}
}

func TestAddRejectsDuplicatesAndSelfLoops(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)

	_, err := e.deps.Add(ctx, "T1", "T2", "")
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("duplicate edge: expected conflict, got %v", err)
	}
	_, err = e.deps.Add(ctx, "T1", "T1", "")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("self loop: expected validation, got %v", err)
	}
	// the dry run refuses a self-loop the same way
	_, err = e.deps.Validate(ctx, "T1", "T1")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("self loop validate: expected validation, got %v", err)
	}
	_, err = e.deps.Add(ctx, "T1", "ghost", "")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("absent task: expected not found, got %v", err)
	}
	_, err = e.deps.Add(ctx, "T1", "T3", "sideways")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("bad type: expected validation, got %v", err)
	}
}

func TestReadySet(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)

	ready, err := e.deps.ReadyTasks(ctx)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ids(ready)[0] != "T1" || len(ready) != 1 {
		t.Fatalf("initial ready set = %v, want [T1]", ids(ready))
	}

	if _, err := e.tasks.Update(ctx, "T1", task.Patch{Status: task.Set(domain.StatusDone)}); err != nil {
		t.Fatalf("complete T1: %v", err)
	}
	ready, err = e.deps.ReadyTasks(ctx)
	if err != nil {
		t.Fatalf("ready after done: %v", err)
	}
	if !reflect.DeepEqual(ids(ready), []string{"T2"}) {
		t.Fatalf("ready set = %v, want [T2]", ids(ready))
	}
}

func TestReadyOrdering(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.mustCreate(t, "A", "a")
	e.mustCreate(t, "B", "b")
	e.mustCreate(t, "C", "c")
	due := "2025-05-02T00:00:00Z"
	if _, err := e.tasks.Update(ctx, "C", task.Patch{Priority: task.Set(domain.PriorityUrgent)}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.tasks.Update(ctx, "B", task.Patch{DueAt: task.Set(due)}); err != nil {
		t.Fatal(err)
	}
	ready, err := e.deps.ReadyTasks(ctx)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !reflect.DeepEqual(ids(ready), []string{"C", "B", "A"}) {
		t.Fatalf("ordering = %v, want [C B A]", ids(ready))
	}
}

func TestTopoOrderAndCriticalPath(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)
	e.mustCreate(t, "T4", "task T4")

	g, err := e.deps.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !reflect.DeepEqual(g.TopoOrder, []string{"T1", "T2", "T3", "T4"}) {
		t.Fatalf("topo order = %v", g.TopoOrder)
	}
	if !reflect.DeepEqual(g.CriticalPath, []string{"T1", "T2", "T3"}) {
		t.Fatalf("critical path = %v", g.CriticalPath)
	}

	path, err := e.deps.CriticalPath(ctx, "T2")
	if err != nil {
		t.Fatalf("critical path T2: %v", err)
	}
	if !reflect.DeepEqual(path, []string{"T1", "T2"}) {
		t.Fatalf("chain to T2 = %v", path)
	}
}

func TestSnapshotMemoInvalidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)

	g1, err := e.deps.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := e.deps.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g1 != g2 {
		t.Fatalf("snapshot not memoized")
	}
	// a status write through the task service must invalidate the memo
	if _, err := e.tasks.Update(ctx, "T1", task.Patch{Status: task.Set(domain.StatusDone)}); err != nil {
		t.Fatal(err)
	}
	g3, err := e.deps.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g3 == g1 {
		t.Fatalf("memo survived a task write")
	}
	if !g3.Nodes["T2"].IsReady {
		t.Fatalf("rebuilt snapshot is stale")
	}
}

func TestRemoveDependency(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	seedChain(t, e)
	deps, err := e.deps.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.deps.Remove(ctx, deps[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := e.deps.Remove(ctx, deps[0].ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("second remove: expected not found, got %v", err)
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
