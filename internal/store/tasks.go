package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/HendryAvila/pmtools/internal/task"
)

// Mutation is a partial update to one task. Nil fields are left unchanged.
// Progress and Verification, when set, are written in the same transaction
// as the field patch; a Verification forces the status to completed.
type Mutation struct {
	Title       *string
	Description *string
	Priority    *task.Priority
	Assignee    *string
	DueDate     *string
	Tags        *[]string
	Metadata    map[string]any
	Channel     *string
	ThreadTS    *string
	Status      *task.Status

	// Progress is appended to the task's log. On success its ID, TaskID,
	// and Timestamp are filled in.
	Progress *task.ProgressUpdate
	// Verification replaces any existing record for the task.
	Verification *task.VerificationRecord

	// Now stamps updated_at and child records. Zero means time.Now().
	Now time.Time
}

// ListFilter selects tasks for List.
type ListFilter struct {
	Statuses []task.Status // empty means all statuses
	Channel  string        // empty means all channels
	Limit    int           // 0 means DefaultListLimit; capped at MaxListLimit
}

// DueFilter selects tasks for DueSoon.
type DueFilter struct {
	Days    int
	Channel string
	Now     time.Time
	// Exclude lists statuses to skip. Nil means completed only.
	Exclude []task.Status
	Limit   int
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Insert stores a new task. It returns task.ErrDuplicateID if the id exists.
func (s *Store) Insert(ctx context.Context, t *task.Task) error {
	tags, err := encodeJSON(nonNilTags(t.Tags))
	if err != nil {
		return storageErr("encode tags", err)
	}
	meta, err := encodeJSON(nonNilMeta(t.Metadata))
	if err != nil {
		return storageErr("encode metadata", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := taskExists(ctx, tx, t.ID)
	if err != nil {
		return storageErr("check task id", err)
	}
	if exists {
		return fmt.Errorf("store: insert %s: %w", t.ID, task.ErrDuplicateID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullIfEmpty(t.Assignee), nullIfEmpty(t.DueDate),
		tags, meta, t.Channel, nullIfEmpty(t.ThreadTS),
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("store: insert %s: %w", t.ID, task.ErrDuplicateID)
		}
		return storageErr("insert task", err)
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit insert", err)
	}
	return nil
}

// Apply updates one task atomically. A missing id yields *task.NotFoundError
// and nothing is written. updated_at never moves backwards.
func (s *Store) Apply(ctx context.Context, id string, m Mutation) error {
	now := m.Now
	if now.IsZero() {
		now = time.Now()
	}
	stamp := formatTime(now)

	sets := []string{}
	args := []any{}
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if m.Title != nil {
		set("title", *m.Title)
	}
	if m.Description != nil {
		set("description", *m.Description)
	}
	if m.Priority != nil {
		set("priority", string(*m.Priority))
	}
	if m.Assignee != nil {
		set("assignee", nullIfEmpty(m.Assignee))
	}
	if m.DueDate != nil {
		set("due_date", nullIfEmpty(m.DueDate))
	}
	if m.Tags != nil {
		tags, err := encodeJSON(nonNilTags(*m.Tags))
		if err != nil {
			return storageErr("encode tags", err)
		}
		set("tags", tags)
	}
	if m.Metadata != nil {
		meta, err := encodeJSON(m.Metadata)
		if err != nil {
			return storageErr("encode metadata", err)
		}
		set("metadata", meta)
	}
	if m.Channel != nil {
		set("channel", *m.Channel)
	}
	if m.ThreadTS != nil {
		set("thread_ts", nullIfEmpty(m.ThreadTS))
	}
	switch {
	case m.Verification != nil:
		set("status", string(task.StatusCompleted))
	case m.Status != nil:
		set("status", string(*m.Status))
	}
	sets = append(sets, "updated_at = MAX(updated_at, ?)")
	args = append(args, stamp, id)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return storageErr("update task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update task", err)
	}
	if n == 0 {
		return &task.NotFoundError{ID: id}
	}

	if p := m.Progress; p != nil {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO progress_updates (task_id, timestamp, source, content, sentiment_score, agent_analysis)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, stamp, string(p.Source), p.Content, p.SentimentScore, nullIfEmpty(p.Analysis),
		)
		if err != nil {
			return storageErr("insert progress", err)
		}
		pid, err := res.LastInsertId()
		if err != nil {
			return storageErr("insert progress", err)
		}
		p.ID = pid
		p.TaskID = id
		p.Timestamp = now.UTC().Truncate(time.Microsecond)
	}

	if v := m.Verification; v != nil {
		if v.VerifiedAt.IsZero() {
			v.VerifiedAt = now
		}
		evidence, err := encodeJSON(nonNilTags(v.Evidence))
		if err != nil {
			return storageErr("encode evidence", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO verifications (task_id, verified_by, verified_at, method, evidence)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(task_id) DO UPDATE SET
			   verified_by = excluded.verified_by,
			   verified_at = excluded.verified_at,
			   method      = excluded.method,
			   evidence    = excluded.evidence`,
			id, v.VerifiedBy, formatTime(v.VerifiedAt), string(v.Method), evidence,
		)
		if err != nil {
			return storageErr("upsert verification", err)
		}
		v.TaskID = id
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit update", err)
	}
	return nil
}

// Delete removes a task. Its progress updates and verification record
// cascade away in the same statement.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return storageErr("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete task", err)
	}
	if n == 0 {
		return &task.NotFoundError{ID: id}
	}
	return nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Get returns the task with its progress log (oldest first) and
// verification record, or *task.NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &task.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, storageErr("get task", err)
	}
	t, err := row.toTask()
	if err != nil {
		return nil, storageErr("decode task", err)
	}
	if err := s.hydrate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Exists reports whether a task with id is stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := taskExists(ctx, s.db, id)
	if err != nil {
		return false, storageErr("check task id", err)
	}
	return ok, nil
}

// List returns tasks matching f, most recently updated first. Children
// are not loaded.
func (s *Store) List(ctx context.Context, f ListFilter) ([]task.Task, error) {
	where := []string{}
	args := []any{}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN (?)")
		args = append(args, statusStrings(f.Statuses))
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, f.Channel)
	}
	q := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY updated_at DESC, id ASC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	return s.selectTasks(ctx, "list tasks", q, args...)
}

// DueSoon returns tasks whose due date is on or before today+Days
// (overdue included), earliest due date first.
func (s *Store) DueSoon(ctx context.Context, f DueFilter) ([]task.Task, error) {
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.UTC().AddDate(0, 0, f.Days).Format(task.DateLayout)

	exclude := f.Exclude
	if exclude == nil {
		exclude = []task.Status{task.StatusCompleted}
	}

	where := []string{"due_date IS NOT NULL", "due_date <= ?"}
	args := []any{cutoff}
	if len(exclude) > 0 {
		where = append(where, "status NOT IN (?)")
		args = append(args, statusStrings(exclude))
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, f.Channel)
	}
	q := "SELECT " + taskColumns + " FROM tasks WHERE " + strings.Join(where, " AND ") +
		" ORDER BY due_date ASC, updated_at DESC LIMIT ?"
	args = append(args, clampLimit(f.Limit))

	return s.selectTasks(ctx, "due soon", q, args...)
}

// CompletedBetween returns completed tasks whose updated_at falls in
// [start, end], most recent first.
func (s *Store) CompletedBetween(ctx context.Context, start, end time.Time, channel string, limit int) ([]task.Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks WHERE status = ? AND updated_at >= ? AND updated_at <= ?"
	args := []any{string(task.StatusCompleted), formatTime(start), formatTime(end)}
	if channel != "" {
		q += " AND channel = ?"
		args = append(args, channel)
	}
	q += " ORDER BY updated_at DESC, id ASC LIMIT ?"
	args = append(args, clampLimit(limit))

	return s.selectTasks(ctx, "completed between", q, args...)
}

// CountByStatus returns the current number of tasks per status. Every
// status is present in the result, zero when no task holds it.
func (s *Store) CountByStatus(ctx context.Context, channel string) (map[task.Status]int, error) {
	q := "SELECT status, COUNT(*) AS n FROM tasks"
	args := []any{}
	if channel != "" {
		q += " WHERE channel = ?"
		args = append(args, channel)
	}
	q += " GROUP BY status"

	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageErr("count by status", err)
	}

	counts := make(map[task.Status]int, len(task.Statuses))
	for _, st := range task.Statuses {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[task.Status(r.Status)] = r.N
	}
	return counts, nil
}

// ─── Internals ───────────────────────────────────────────────────────────────

func (s *Store) selectTasks(ctx context.Context, op, q string, args ...any) ([]task.Task, error) {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	q = s.db.Rebind(q)

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storageErr(op, err)
	}

	out := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTask()
		if err != nil {
			return nil, storageErr("decode task", err)
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) hydrate(ctx context.Context, t *task.Task) error {
	var prow []progressRow
	err := s.db.SelectContext(ctx, &prow,
		`SELECT id, task_id, timestamp, source, content, sentiment_score, agent_analysis
		 FROM progress_updates WHERE task_id = ? ORDER BY timestamp ASC, id ASC`, t.ID)
	if err != nil {
		return storageErr("load progress", err)
	}
	t.ProgressUpdates = make([]task.ProgressUpdate, 0, len(prow))
	for _, r := range prow {
		u, err := r.toUpdate()
		if err != nil {
			return storageErr("decode progress", err)
		}
		t.ProgressUpdates = append(t.ProgressUpdates, u)
	}

	var vrow verificationRow
	err = s.db.GetContext(ctx, &vrow,
		`SELECT task_id, verified_by, verified_at, method, evidence
		 FROM verifications WHERE task_id = ?`, t.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		t.Verification = nil
	case err != nil:
		return storageErr("load verification", err)
	default:
		v, err := vrow.toRecord()
		if err != nil {
			return storageErr("decode verification", err)
		}
		t.Verification = v
	}
	return nil
}

func taskExists(ctx context.Context, q sqlx.QueryerContext, id string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, "SELECT COUNT(*) FROM tasks WHERE id = ?", id); err != nil {
		return false, err
	}
	return n > 0, nil
}

func statusStrings(in []task.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func nonNilMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
