// Package lifecycle is the only writer of task state. It validates caller
// input, applies status transitions and child records through the store,
// and optionally notifies the task's channel.
//
// Transitions are permissive: any status may follow any other. The only
// forced transition is verification, which always lands on completed.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/task"
)

// Store is the persistence the engine writes through.
type Store interface {
	Insert(ctx context.Context, t *task.Task) error
	Get(ctx context.Context, id string) (*task.Task, error)
	Apply(ctx context.Context, id string, m store.Mutation) error
	List(ctx context.Context, f store.ListFilter) ([]task.Task, error)
}

// Notifier delivers a rendered message. *notify.Dispatcher satisfies it.
type Notifier interface {
	Send(ctx context.Context, m notify.Message, dest notify.Destination) notify.DeliveryResult
}

// Engine applies task mutations.
type Engine struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator replaces the task id generator.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine. notifier may be nil, in which case notify
// requests are ignored and results carry no notification.
func New(s Store, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return "task-" + uuid.NewString() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is a mutated task plus the outcome of its notification, if one
// was requested. A failed notification never fails the mutation.
type Result struct {
	Task         *task.Task             `json:"task"`
	Notification *notify.DeliveryResult `json:"notification,omitempty"`
}

// ─── Create ──────────────────────────────────────────────────────────────────

// CreateInput holds the fields for a new task.
type CreateInput struct {
	Title       string
	Description string
	Channel     string
	Priority    string
	DueDate     string
	Assignee    string
	Tags        []string
	Metadata    map[string]any
	ThreadTS    string
	Notify      bool
}

// Create stores a new task in the defined state and, when asked, posts a
// task alert to its channel.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Result, error) {
	if err := task.RequireText("title", in.Title); err != nil {
		return nil, err
	}
	if err := task.RequireText("channel", in.Channel); err != nil {
		return nil, err
	}
	priority, err := task.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	due, err := task.ParseDueDate(in.DueDate)
	if err != nil {
		return nil, err
	}

	now := e.stamp()
	t := &task.Task{
		ID:              e.newID(),
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Status:          task.StatusDefined,
		Priority:        priority,
		Assignee:        optional(in.Assignee),
		DueDate:         optional(due),
		Tags:            in.Tags,
		Metadata:        in.Metadata,
		Channel:         strings.TrimSpace(in.Channel),
		ThreadTS:        optional(in.ThreadTS),
		CreatedAt:       now,
		UpdatedAt:       now,
		ProgressUpdates: []task.ProgressUpdate{},
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}

	if err := e.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("lifecycle: create: %w", err)
	}
	e.logger.Debug("task created", "task_id", t.ID, "channel", t.Channel)

	res := &Result{Task: t}
	if in.Notify {
		res.Notification = e.send(ctx, notify.AlertFor(t), t)
	}
	return res, nil
}

// ─── Update ──────────────────────────────────────────────────────────────────

// VerificationInput describes a verification supplied with an update.
type VerificationInput struct {
	VerifiedBy string
	Method     string
	Evidence   []string
}

// UpdateInput is a status change and/or field edit. Nil pointers and empty
// strings leave the field unchanged; a non-nil pointer to "" clears an
// optional field.
type UpdateInput struct {
	TaskID string
	Status string

	ProgressNote   string
	SentimentScore *float64
	Analysis       string

	Verification *VerificationInput

	Title       *string
	Description *string
	Assignee    *string
	Priority    string
	DueDate     *string
	Tags        *[]string
	Metadata    map[string]any
	ThreadTS    *string

	Notify bool
}

// UpdateStatus applies a status transition with optional field edits,
// progress note, and verification in one atomic write. When both a status
// and a verification are given, the final status is completed.
func (e *Engine) UpdateStatus(ctx context.Context, in UpdateInput) (*Result, error) {
	if err := task.RequireText("task_id", in.TaskID); err != nil {
		return nil, err
	}

	var m store.Mutation
	changed := false

	if strings.TrimSpace(in.Status) != "" {
		st, err := task.ParseStatus(in.Status)
		if err != nil {
			return nil, err
		}
		m.Status = &st
		changed = true
	}
	if in.Priority != "" {
		p, err := task.ParsePriority(in.Priority)
		if err != nil {
			return nil, err
		}
		m.Priority = &p
		changed = true
	}
	if in.Title != nil {
		if err := task.RequireText("title", *in.Title); err != nil {
			return nil, err
		}
		title := strings.TrimSpace(*in.Title)
		m.Title = &title
		changed = true
	}
	if in.DueDate != nil {
		due, err := task.ParseDueDate(*in.DueDate)
		if err != nil {
			return nil, err
		}
		m.DueDate = &due
		changed = true
	}
	if in.Description != nil {
		m.Description = in.Description
		changed = true
	}
	if in.Assignee != nil {
		m.Assignee = in.Assignee
		changed = true
	}
	if in.Tags != nil {
		m.Tags = in.Tags
		changed = true
	}
	if in.Metadata != nil {
		m.Metadata = in.Metadata
		changed = true
	}
	if in.ThreadTS != nil {
		m.ThreadTS = in.ThreadTS
		changed = true
	}

	if strings.TrimSpace(in.ProgressNote) != "" {
		if err := task.ValidateSentiment(in.SentimentScore); err != nil {
			return nil, err
		}
		m.Progress = &task.ProgressUpdate{
			Source:         task.SourceAgent,
			Content:        in.ProgressNote,
			SentimentScore: in.SentimentScore,
			Analysis:       optional(in.Analysis),
		}
		changed = true
	} else if in.SentimentScore != nil || in.Analysis != "" {
		return nil, task.Invalid("progress_note", "sentiment_score and analysis need a progress_note")
	}

	if in.Verification != nil {
		v, err := buildVerification(*in.Verification)
		if err != nil {
			return nil, err
		}
		m.Verification = v
		changed = true
	}

	if !changed {
		return nil, task.Invalid("", "nothing to update: supply status, a field edit, progress_note, or verification")
	}

	m.Now = e.stamp()
	if err := e.store.Apply(ctx, in.TaskID, m); err != nil {
		return nil, fmt.Errorf("lifecycle: update %s: %w", in.TaskID, err)
	}

	t, err := e.store.Get(ctx, in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reload %s: %w", in.TaskID, err)
	}
	e.logger.Debug("task updated", "task_id", t.ID, "status", t.Status)

	res := &Result{Task: t}
	if in.Notify {
		var msg notify.Message = notify.UpdateFor(t, m.Progress)
		if m.Verification != nil {
			if vm, ok := notify.VerificationFor(t); ok {
				msg = vm
			}
		}
		res.Notification = e.send(ctx, msg, t)
	}
	return res, nil
}

// ─── Progress ────────────────────────────────────────────────────────────────

// ProgressInput is a note appended to a task's log.
type ProgressInput struct {
	TaskID         string
	Content        string
	Source         string
	SentimentScore *float64
	Analysis       string
	Notify         bool
}

// ProgressResult is the stored note and, when requested, its notification.
type ProgressResult struct {
	Update       *task.ProgressUpdate   `json:"update"`
	Notification *notify.DeliveryResult `json:"notification,omitempty"`
}

// AddProgress appends a progress note and refreshes the parent's updated_at.
func (e *Engine) AddProgress(ctx context.Context, in ProgressInput) (*ProgressResult, error) {
	if err := task.RequireText("task_id", in.TaskID); err != nil {
		return nil, err
	}
	if err := task.RequireText("content", in.Content); err != nil {
		return nil, err
	}
	src, err := task.ParseSource(in.Source)
	if err != nil {
		return nil, err
	}
	if err := task.ValidateSentiment(in.SentimentScore); err != nil {
		return nil, err
	}

	u := &task.ProgressUpdate{
		Source:         src,
		Content:        in.Content,
		SentimentScore: in.SentimentScore,
		Analysis:       optional(in.Analysis),
	}
	if err := e.store.Apply(ctx, in.TaskID, store.Mutation{Progress: u, Now: e.stamp()}); err != nil {
		return nil, fmt.Errorf("lifecycle: add progress to %s: %w", in.TaskID, err)
	}

	res := &ProgressResult{Update: u}
	if in.Notify {
		t, err := e.store.Get(ctx, in.TaskID)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: reload %s: %w", in.TaskID, err)
		}
		res.Notification = e.send(ctx, notify.UpdateFor(t, u), t)
	}
	return res, nil
}

// ─── Verification ────────────────────────────────────────────────────────────

// VerifyInput closes a task with a verification record.
type VerifyInput struct {
	TaskID     string
	VerifiedBy string
	Method     string
	Evidence   []string
	Notify     bool
}

// SetVerification replaces any existing verification record and forces
// the task to completed.
func (e *Engine) SetVerification(ctx context.Context, in VerifyInput) (*Result, error) {
	if err := task.RequireText("task_id", in.TaskID); err != nil {
		return nil, err
	}
	v, err := buildVerification(VerificationInput{
		VerifiedBy: in.VerifiedBy,
		Method:     in.Method,
		Evidence:   in.Evidence,
	})
	if err != nil {
		return nil, err
	}

	if err := e.store.Apply(ctx, in.TaskID, store.Mutation{Verification: v, Now: e.stamp()}); err != nil {
		return nil, fmt.Errorf("lifecycle: verify %s: %w", in.TaskID, err)
	}
	t, err := e.store.Get(ctx, in.TaskID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: reload %s: %w", in.TaskID, err)
	}
	e.logger.Debug("task verified", "task_id", t.ID, "by", v.VerifiedBy, "method", v.Method)

	res := &Result{Task: t}
	if in.Notify {
		if msg, ok := notify.VerificationFor(t); ok {
			res.Notification = e.send(ctx, msg, t)
		}
	}
	return res, nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Get returns the hydrated task or *task.NotFoundError.
func (e *Engine) Get(ctx context.Context, id string) (*task.Task, error) {
	if err := task.RequireText("task_id", id); err != nil {
		return nil, err
	}
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: get %s: %w", id, err)
	}
	return t, nil
}

// ListInput filters List. Statuses must be valid status names.
type ListInput struct {
	Statuses []string
	Channel  string
	Limit    int
}

// List returns tasks in the given statuses, most recently updated first.
func (e *Engine) List(ctx context.Context, in ListInput) ([]task.Task, error) {
	f := store.ListFilter{Channel: strings.TrimSpace(in.Channel), Limit: in.Limit}
	for _, s := range in.Statuses {
		if strings.TrimSpace(s) == "" {
			continue
		}
		st, err := task.ParseStatus(s)
		if err != nil {
			return nil, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	if in.Limit < 0 {
		return nil, task.Invalid("limit", "%d must not be negative", in.Limit)
	}
	if in.Limit > store.MaxListLimit {
		return nil, task.Invalid("limit", "%d exceeds the maximum of %d", in.Limit, store.MaxListLimit)
	}

	ts, err := e.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: list: %w", err)
	}
	return ts, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// stamp is the clock reading at the precision the store keeps.
func (e *Engine) stamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *Engine) send(ctx context.Context, m notify.Message, t *task.Task) *notify.DeliveryResult {
	if e.notifier == nil {
		return nil
	}
	dest := notify.Destination{Channel: t.Channel}
	if t.ThreadTS != nil {
		dest.ThreadTS = *t.ThreadTS
	}
	r := e.notifier.Send(ctx, m, dest)
	if !r.Success {
		e.logger.Warn("notification not delivered",
			"task_id", t.ID, "kind", m.Kind(), "attempts", r.Attempts, "error", r.Error)
	}
	return &r
}

func buildVerification(in VerificationInput) (*task.VerificationRecord, error) {
	method, err := task.ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	by := strings.TrimSpace(in.VerifiedBy)
	if by == "" {
		by = "agent"
	}
	evidence := in.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	return &task.VerificationRecord{VerifiedBy: by, Method: method, Evidence: evidence}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
