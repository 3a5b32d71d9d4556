package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/task"
)

var base = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "tasks.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTask stores a minimal task with the given status and timestamps.
func insertTask(t *testing.T, s *store.Store, id string, status task.Status, at time.Time) *task.Task {
	t.Helper()
	tk := &task.Task{
		ID:        id,
		Title:     "Task " + id,
		Status:    status,
		Priority:  task.PriorityMedium,
		Channel:   "#eng",
		CreatedAt: at,
		UpdatedAt: at,
	}
	if err := s.Insert(context.Background(), tk); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	return tk
}

func strPtr(s string) *string { return &s }

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_CreatesDirAndMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tasks.db")
	s, err := store.New(store.Config{Path: path})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("schema version = %d, want 2", v)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}

func TestNew_IdempotentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")

	s1, err := store.New(store.Config{Path: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	insertTask(t, s1, "task-1", task.StatusDefined, base)
	s1.Close()

	s2, err := store.New(store.Config{Path: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Title != "Task task-1" {
		t.Errorf("title = %q, want %q", got.Title, "Task task-1")
	}
}

// ─── Insert / Get ───────────────────────────────────────────────────────────

func TestInsertGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tk := &task.Task{
		ID:          "task-rt",
		Title:       "Ship v1",
		Description: "first release",
		Status:      task.StatusDefined,
		Priority:    task.PriorityHigh,
		Assignee:    strPtr("dana"),
		DueDate:     strPtr("2026-03-12"),
		Tags:        []string{"release", "release", "q1"},
		Metadata:    map[string]any{"epic": "launch", "points": float64(5)},
		Channel:     "#eng",
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	if err := s.Insert(ctx, tk); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.Get(ctx, "task-rt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Priority != task.PriorityHigh || got.Status != task.StatusDefined {
		t.Errorf("priority/status = %s/%s", got.Priority, got.Status)
	}
	if got.Assignee == nil || *got.Assignee != "dana" {
		t.Errorf("assignee = %v, want dana", got.Assignee)
	}
	if got.DueDate == nil || *got.DueDate != "2026-03-12" {
		t.Errorf("due_date = %v", got.DueDate)
	}
	if len(got.Tags) != 3 || got.Tags[1] != "release" {
		t.Errorf("tags = %v, want duplicates preserved in order", got.Tags)
	}
	if got.Metadata["epic"] != "launch" || got.Metadata["points"] != float64(5) {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(base) || !got.UpdatedAt.Equal(base) {
		t.Errorf("timestamps = %v / %v, want %v", got.CreatedAt, got.UpdatedAt, base)
	}
	if got.ThreadTS != nil {
		t.Errorf("thread_ts = %v, want nil", *got.ThreadTS)
	}
	if len(got.ProgressUpdates) != 0 || got.Verification != nil {
		t.Errorf("new task should have no children")
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	insertTask(t, s, "task-dup", task.StatusDefined, base)

	err := s.Insert(context.Background(), &task.Task{
		ID: "task-dup", Title: "again", Status: task.StatusDefined,
		Priority: task.PriorityLow, Channel: "#x", CreatedAt: base, UpdatedAt: base,
	})
	if !errors.Is(err, task.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	got, _ := s.Get(context.Background(), "task-dup")
	if got.Title != "Task task-dup" {
		t.Errorf("duplicate insert must not overwrite, title = %q", got.Title)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "task-missing")
	if !task.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// ─── Apply ──────────────────────────────────────────────────────────────────

func TestApply_PartialPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	orig := insertTask(t, s, "task-p", task.StatusDefined, base)

	later := base.Add(time.Hour)
	st := task.StatusInProgress
	err := s.Apply(ctx, "task-p", store.Mutation{
		Status:   &st,
		Assignee: strPtr("sam"),
		Now:      later,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, _ := s.Get(ctx, "task-p")
	if got.Status != task.StatusInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}
	if got.Assignee == nil || *got.Assignee != "sam" {
		t.Errorf("assignee = %v, want sam", got.Assignee)
	}
	if got.Title != orig.Title || got.Priority != orig.Priority {
		t.Errorf("unsupplied fields changed: %q %s", got.Title, got.Priority)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, later)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("created_at changed to %v", got.CreatedAt)
	}
}

func TestApply_UpdatedAtNeverMovesBackwards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-m", task.StatusDefined, base)

	if err := s.Apply(ctx, "task-m", store.Mutation{Title: strPtr("renamed"), Now: base.Add(-time.Hour)}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := s.Get(ctx, "task-m")
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("updated_at %v before created_at %v", got.UpdatedAt, got.CreatedAt)
	}
	if got.Title != "renamed" {
		t.Errorf("title = %q, want renamed", got.Title)
	}
}

func TestApply_ClearOptionalFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tk := &task.Task{
		ID: "task-c", Title: "t", Status: task.StatusDefined, Priority: task.PriorityMedium,
		Assignee: strPtr("dana"), DueDate: strPtr("2026-04-01"), Channel: "#eng",
		CreatedAt: base, UpdatedAt: base,
	}
	if err := s.Insert(ctx, tk); err != nil {
		t.Fatal(err)
	}

	if err := s.Apply(ctx, "task-c", store.Mutation{Assignee: strPtr(""), DueDate: strPtr("")}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := s.Get(ctx, "task-c")
	if got.Assignee != nil || got.DueDate != nil {
		t.Errorf("expected cleared assignee/due_date, got %v / %v", got.Assignee, got.DueDate)
	}
}

func TestApply_ProgressRefreshesParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-pr", task.StatusInProgress, base)

	score := 0.6
	first := &task.ProgressUpdate{Source: task.SourceAgent, Content: "50% done", SentimentScore: &score}
	if err := s.Apply(ctx, "task-pr", store.Mutation{Progress: first, Now: base.Add(time.Minute)}); err != nil {
		t.Fatalf("Apply progress: %v", err)
	}
	if first.ID == 0 || first.TaskID != "task-pr" || !first.Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("progress record not filled in: %+v", first)
	}

	second := &task.ProgressUpdate{Source: task.SourceSlack, Content: "80% done", Analysis: strPtr("on track")}
	if err := s.Apply(ctx, "task-pr", store.Mutation{Progress: second, Now: base.Add(2 * time.Minute)}); err != nil {
		t.Fatalf("Apply progress: %v", err)
	}

	got, _ := s.Get(ctx, "task-pr")
	if len(got.ProgressUpdates) != 2 {
		t.Fatalf("progress count = %d, want 2", len(got.ProgressUpdates))
	}
	if got.ProgressUpdates[0].Content != "50% done" || got.ProgressUpdates[1].Content != "80% done" {
		t.Errorf("progress not in timestamp order: %+v", got.ProgressUpdates)
	}
	if got.ProgressUpdates[0].SentimentScore == nil || *got.ProgressUpdates[0].SentimentScore != 0.6 {
		t.Errorf("sentiment not persisted")
	}
	if got.ProgressUpdates[1].SentimentScore != nil {
		t.Errorf("absent sentiment should stay nil")
	}
	if got.ProgressUpdates[1].Analysis == nil || *got.ProgressUpdates[1].Analysis != "on track" {
		t.Errorf("analysis not persisted")
	}
	if !got.UpdatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("parent updated_at = %v, want refreshed", got.UpdatedAt)
	}
	if got.Status != task.StatusInProgress {
		t.Errorf("progress must not change status, got %s", got.Status)
	}
}

func TestApply_ProgressTimestampMatchesStoredRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-ns", task.StatusInProgress, base)

	at := base.Add(time.Minute + 1234567*time.Nanosecond)
	p := &task.ProgressUpdate{Source: task.SourceAgent, Content: "tick"}
	if err := s.Apply(ctx, "task-ns", store.Mutation{Progress: p, Now: at}); err != nil {
		t.Fatalf("Apply progress: %v", err)
	}
	if want := at.UTC().Truncate(time.Microsecond); !p.Timestamp.Equal(want) {
		t.Errorf("returned timestamp = %v, want %v", p.Timestamp, want)
	}

	got, _ := s.Get(ctx, "task-ns")
	if len(got.ProgressUpdates) != 1 || !got.ProgressUpdates[0].Timestamp.Equal(p.Timestamp) {
		t.Errorf("stored timestamp %v differs from returned %v", got.ProgressUpdates, p.Timestamp)
	}
}

func TestApply_NotFoundWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-real", task.StatusDefined, base)

	err := s.Apply(ctx, "task-ghost", store.Mutation{
		Progress: &task.ProgressUpdate{Source: task.SourceAgent, Content: "orphan?"},
	})
	if !task.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	// No orphan rows: the real task still has an empty log and the
	// dangling id still resolves to not-found.
	got, _ := s.Get(ctx, "task-real")
	if len(got.ProgressUpdates) != 0 {
		t.Errorf("unexpected progress rows: %+v", got.ProgressUpdates)
	}
	if _, err := s.Get(ctx, "task-ghost"); !task.IsNotFound(err) {
		t.Errorf("ghost task should not exist, got %v", err)
	}
}

func TestApply_VerificationForcesCompletedAndReplaces(t *testing.T) {
	statuses := []task.Status{task.StatusDefined, task.StatusInProgress, task.StatusReview, task.StatusBlocked, task.StatusCompleted}

	for _, st := range statuses {
		t.Run(string(st), func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			insertTask(t, s, "task-v", st, base)

			blocked := task.StatusBlocked
			err := s.Apply(ctx, "task-v", store.Mutation{
				Status: &blocked,
				Verification: &task.VerificationRecord{
					VerifiedBy: "agent", Method: task.MethodAutomated, Evidence: []string{"ci-pass", "lint-pass"},
				},
				Now: base.Add(time.Hour),
			})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}

			err = s.Apply(ctx, "task-v", store.Mutation{
				Verification: &task.VerificationRecord{
					VerifiedBy: "user", Method: task.MethodManual, Evidence: []string{"demo"},
				},
				Now: base.Add(2 * time.Hour),
			})
			if err != nil {
				t.Fatalf("Apply second verification: %v", err)
			}

			got, _ := s.Get(ctx, "task-v")
			if got.Status != task.StatusCompleted {
				t.Errorf("status = %s, want completed", got.Status)
			}
			v := got.Verification
			if v == nil {
				t.Fatal("verification missing")
			}
			if v.VerifiedBy != "user" || v.Method != task.MethodManual {
				t.Errorf("verification not replaced: %+v", v)
			}
			if len(v.Evidence) != 1 || v.Evidence[0] != "demo" {
				t.Errorf("old evidence merged: %v", v.Evidence)
			}
			if !v.VerifiedAt.Equal(base.Add(2 * time.Hour)) {
				t.Errorf("verified_at = %v", v.VerifiedAt)
			}
		})
	}
}

// ─── Delete ─────────────────────────────────────────────────────────────────

func TestDelete_CascadesChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-d", task.StatusInProgress, base)

	err := s.Apply(ctx, "task-d", store.Mutation{
		Progress:     &task.ProgressUpdate{Source: task.SourceManual, Content: "note"},
		Verification: &task.VerificationRecord{VerifiedBy: "user", Method: task.MethodManual},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := s.Delete(ctx, "task-d"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Re-inserting the same id must start with no children.
	insertTask(t, s, "task-d", task.StatusDefined, base)
	got, _ := s.Get(ctx, "task-d")
	if len(got.ProgressUpdates) != 0 || got.Verification != nil {
		t.Errorf("children survived delete: %+v %+v", got.ProgressUpdates, got.Verification)
	}

	if err := s.Delete(ctx, "task-none"); !task.IsNotFound(err) {
		t.Errorf("Delete missing: expected NotFoundError, got %v", err)
	}
}

// ─── List / DueSoon / reports ───────────────────────────────────────────────

func TestList_FilterOrderLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTask(t, s, "b1", task.StatusBlocked, base.Add(1*time.Hour))
	insertTask(t, s, "b2", task.StatusBlocked, base.Add(3*time.Hour))
	insertTask(t, s, "b3", task.StatusBlocked, base.Add(2*time.Hour))
	insertTask(t, s, "d1", task.StatusDefined, base.Add(4*time.Hour))
	other := &task.Task{
		ID: "b4", Title: "ops", Status: task.StatusBlocked, Priority: task.PriorityLow,
		Channel: "#ops", CreatedAt: base, UpdatedAt: base.Add(5 * time.Hour),
	}
	if err := s.Insert(ctx, other); err != nil {
		t.Fatal(err)
	}

	got, err := s.List(ctx, store.ListFilter{Statuses: []task.Status{task.StatusBlocked}, Channel: "#eng"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	ids := taskIDs(got)
	if fmt.Sprint(ids) != "[b2 b3 b1]" {
		t.Errorf("ids = %v, want [b2 b3 b1]", ids)
	}

	got, _ = s.List(ctx, store.ListFilter{Statuses: []task.Status{task.StatusBlocked}, Limit: 2})
	if fmt.Sprint(taskIDs(got)) != "[b4 b2]" {
		t.Errorf("limited ids = %v, want [b4 b2]", taskIDs(got))
	}

	got, _ = s.List(ctx, store.ListFilter{Statuses: []task.Status{task.StatusDefined, task.StatusBlocked}})
	if len(got) != 5 {
		t.Errorf("multi-status list = %d, want 5", len(got))
	}

	got, _ = s.List(ctx, store.ListFilter{})
	if len(got) != 5 {
		t.Errorf("unfiltered list = %d, want 5", len(got))
	}
}

func TestDueSoon(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	mk := func(id string, st task.Status, due string) {
		t.Helper()
		tk := &task.Task{
			ID: id, Title: id, Status: st, Priority: task.PriorityMedium, Channel: "#eng",
			CreatedAt: base, UpdatedAt: base,
		}
		if due != "" {
			tk.DueDate = strPtr(due)
		}
		if err := s.Insert(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}
	mk("overdue", task.StatusInProgress, "2026-03-08")
	mk("today", task.StatusDefined, "2026-03-10")
	mk("edge", task.StatusReview, "2026-03-13")
	mk("far", task.StatusDefined, "2026-03-14")
	mk("done", task.StatusCompleted, "2026-03-11")
	mk("stuck", task.StatusBlocked, "2026-03-11")
	mk("nodue", task.StatusDefined, "")

	got, err := s.DueSoon(ctx, store.DueFilter{Days: 3, Now: now})
	if err != nil {
		t.Fatalf("DueSoon: %v", err)
	}
	if fmt.Sprint(taskIDs(got)) != "[overdue today stuck edge]" {
		t.Errorf("due soon = %v", taskIDs(got))
	}

	got, _ = s.DueSoon(ctx, store.DueFilter{
		Days: 3, Now: now, Exclude: []task.Status{task.StatusCompleted, task.StatusBlocked},
	})
	if fmt.Sprint(taskIDs(got)) != "[overdue today edge]" {
		t.Errorf("due soon excluding blocked = %v", taskIDs(got))
	}
}

func TestCountByStatusAndCompletedBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	insertTask(t, s, "c-old", task.StatusCompleted, base.Add(-48*time.Hour))
	insertTask(t, s, "c-new", task.StatusCompleted, base.Add(-2*time.Hour))
	insertTask(t, s, "c-newer", task.StatusCompleted, base.Add(-1*time.Hour))
	insertTask(t, s, "ip", task.StatusInProgress, base)

	counts, err := s.CountByStatus(ctx, "")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[task.StatusCompleted] != 3 || counts[task.StatusInProgress] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if n, ok := counts[task.StatusBlocked]; !ok || n != 0 {
		t.Errorf("blocked should be present with zero, got %v", counts)
	}

	counts, _ = s.CountByStatus(ctx, "#nowhere")
	for st, n := range counts {
		if n != 0 {
			t.Errorf("empty channel count for %s = %d", st, n)
		}
	}

	got, err := s.CompletedBetween(ctx, base.Add(-24*time.Hour), base, "", 10)
	if err != nil {
		t.Fatalf("CompletedBetween: %v", err)
	}
	if fmt.Sprint(taskIDs(got)) != "[c-newer c-new]" {
		t.Errorf("completed in window = %v", taskIDs(got))
	}
}

func TestConcurrentApply(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTask(t, s, "task-cc", task.StatusInProgress, base)

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			errs <- s.Apply(ctx, "task-cc", store.Mutation{
				Progress: &task.ProgressUpdate{Source: task.SourceAgent, Content: fmt.Sprintf("note %d", i)},
			})
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Apply: %v", err)
		}
	}

	got, _ := s.Get(ctx, "task-cc")
	if len(got.ProgressUpdates) != n {
		t.Errorf("progress count = %d, want %d", len(got.ProgressUpdates), n)
	}
}

func taskIDs(ts []task.Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
