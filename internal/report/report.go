// Package report builds the boss report: a snapshot of task counts, the
// tasks completed inside a window, and the current risks (blocked work
// and work due soon), each list bounded and never left blank.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/task"
)

// Placeholders shown when a requested section has nothing to list.
const (
	NoHighlights = "No major highlights this period"
	NoRisks      = "No critical risks identified"
)

// Defaults for Options left at zero.
const (
	DefaultLookaheadDays = 3
	DefaultMaxItems      = 5
)

// Reader is the read side of the task store the aggregator needs.
type Reader interface {
	CountByStatus(ctx context.Context, channel string) (map[task.Status]int, error)
	CompletedBetween(ctx context.Context, start, end time.Time, channel string, limit int) ([]task.Task, error)
	List(ctx context.Context, f store.ListFilter) ([]task.Task, error)
	DueSoon(ctx context.Context, f store.DueFilter) ([]task.Task, error)
}

// Notifier delivers a rendered message. *notify.Dispatcher satisfies it.
type Notifier interface {
	Send(ctx context.Context, m notify.Message, dest notify.Destination) notify.DeliveryResult
}

// Options select what a report covers.
type Options struct {
	Window  string
	Start   string
	End     string
	Channel string

	// IncludeHighlights and IncludeRisks default to true through
	// DefaultOptions; false drops the section from the report.
	IncludeHighlights bool
	IncludeRisks      bool

	LookaheadDays int
	MaxItems      int
}

// Report is the aggregated summary.
type Report struct {
	Title       string              `json:"title"`
	Date        string              `json:"date"`
	Window      Window              `json:"window"`
	Channel     string              `json:"channel,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Counts      map[task.Status]int `json:"counts"`
	Total       int                 `json:"total"`

	CompletedCount  int `json:"completed_count"`
	InProgressCount int `json:"in_progress_count"`
	BlockedCount    int `json:"blocked_count"`

	// Highlights and Risks are nil when their section was not requested.
	Highlights []string `json:"highlights,omitempty"`
	Risks      []string `json:"risks,omitempty"`
}

// Aggregator builds reports from the store.
type Aggregator struct {
	reader        Reader
	notifier      Notifier
	now           func() time.Time
	lookaheadDays int
	maxItems      int
	logger        *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLimits sets the default look-ahead and list bound used when Options
// leave them at zero.
func WithLimits(lookaheadDays, maxItems int) Option {
	return func(a *Aggregator) {
		if lookaheadDays >= 0 {
			a.lookaheadDays = lookaheadDays
		}
		if maxItems > 0 {
			a.maxItems = maxItems
		}
	}
}

// WithLogger sets the aggregator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New creates an Aggregator. notifier may be nil when reports are never published.
func New(r Reader, notifier Notifier, opts ...Option) *Aggregator {
	a := &Aggregator{
		reader:        r,
		notifier:      notifier,
		now:           time.Now,
		lookaheadDays: DefaultLookaheadDays,
		maxItems:      DefaultMaxItems,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// DefaultOptions returns a daily report with both sections included.
func DefaultOptions() Options {
	return Options{Window: WindowDaily, IncludeHighlights: true, IncludeRisks: true}
}

// Generate builds a report. Counts are the current snapshot; highlights
// are completions inside the window, most recent first; risks list blocked
// tasks (most recently updated first) followed by overdue or due-soon
// tasks (earliest due first), truncated together to MaxItems.
func (a *Aggregator) Generate(ctx context.Context, opts Options) (*Report, error) {
	now := a.now().UTC()
	w, err := ResolveWindow(opts.Window, opts.Start, opts.End, now)
	if err != nil {
		return nil, err
	}
	if opts.LookaheadDays < 0 {
		return nil, task.Invalid("lookahead_days", "%d must not be negative", opts.LookaheadDays)
	}
	lookahead := opts.LookaheadDays
	if lookahead == 0 {
		lookahead = a.lookaheadDays
	}
	if opts.MaxItems < 0 {
		return nil, task.Invalid("max_items", "%d must not be negative", opts.MaxItems)
	}
	maxItems := opts.MaxItems
	if maxItems == 0 {
		maxItems = a.maxItems
	}

	counts, err := a.reader.CountByStatus(ctx, opts.Channel)
	if err != nil {
		return nil, fmt.Errorf("report: counts: %w", err)
	}

	r := &Report{
		Title:           w.Title(),
		Date:            w.Label(),
		Window:          w,
		Channel:         opts.Channel,
		GeneratedAt:     now,
		Counts:          counts,
		CompletedCount:  counts[task.StatusCompleted],
		InProgressCount: counts[task.StatusInProgress] + counts[task.StatusReview],
		BlockedCount:    counts[task.StatusBlocked],
	}
	for _, n := range counts {
		r.Total += n
	}

	if opts.IncludeHighlights {
		done, err := a.reader.CompletedBetween(ctx, w.Start, w.End, opts.Channel, maxItems)
		if err != nil {
			return nil, fmt.Errorf("report: highlights: %w", err)
		}
		r.Highlights = make([]string, 0, len(done))
		for _, t := range done {
			r.Highlights = append(r.Highlights, "Completed: "+t.Title)
		}
		r.Highlights = bound(r.Highlights, maxItems, NoHighlights)
	}

	if opts.IncludeRisks {
		risks, err := a.risks(ctx, opts.Channel, now, lookahead, maxItems)
		if err != nil {
			return nil, err
		}
		r.Risks = bound(risks, maxItems, NoRisks)
	}

	a.logger.Debug("report generated",
		"window", w.Name, "channel", opts.Channel, "total", r.Total,
		"highlights", len(r.Highlights), "risks", len(r.Risks))
	return r, nil
}

func (a *Aggregator) risks(ctx context.Context, channel string, now time.Time, lookahead, maxItems int) ([]string, error) {
	blocked, err := a.reader.List(ctx, store.ListFilter{
		Statuses: []task.Status{task.StatusBlocked},
		Channel:  channel,
		Limit:    maxItems,
	})
	if err != nil {
		return nil, fmt.Errorf("report: blocked: %w", err)
	}

	out := make([]string, 0, maxItems)
	for _, t := range blocked {
		out = append(out, fmt.Sprintf("BLOCKED: %s (assigned: %s)", t.Title, t.AssigneeOr("unassigned")))
	}
	if len(out) >= maxItems {
		return out, nil
	}

	due, err := a.reader.DueSoon(ctx, store.DueFilter{
		Days:    lookahead,
		Channel: channel,
		Now:     now,
		Exclude: []task.Status{task.StatusCompleted, task.StatusBlocked},
		Limit:   maxItems - len(out),
	})
	if err != nil {
		return nil, fmt.Errorf("report: due soon: %w", err)
	}

	today := now.Format(task.DateLayout)
	for _, t := range due {
		d := ""
		if t.DueDate != nil {
			d = *t.DueDate
		}
		if d < today {
			out = append(out, fmt.Sprintf("OVERDUE: %s (due: %s)", t.Title, d))
		} else {
			out = append(out, fmt.Sprintf("Due soon: %s (due: %s)", t.Title, d))
		}
	}
	return out, nil
}

// bound truncates items to limit and substitutes placeholder for an empty list.
func bound(items []string, limit int, placeholder string) []string {
	if len(items) == 0 {
		return []string{placeholder}
	}
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

// Message converts the report into its notification variant.
func (r *Report) Message() notify.BossReport {
	return notify.BossReport{
		Date:            r.Date,
		Title:           r.Title,
		CompletedCount:  r.CompletedCount,
		InProgressCount: r.InProgressCount,
		BlockedCount:    r.BlockedCount,
		Highlights:      r.Highlights,
		Risks:           r.Risks,
	}
}

// Payload renders the report as a webhook payload.
func (r *Report) Payload() notify.Payload {
	return notify.Render(r.Message())
}

// Publish renders and delivers r. Delivery failure is reported in the
// result, never as an error.
func (a *Aggregator) Publish(ctx context.Context, r *Report, dest notify.Destination) notify.DeliveryResult {
	if a.notifier == nil {
		return notify.DeliveryResult{Channel: dest.Channel, Error: "no notifier configured"}
	}
	res := a.notifier.Send(ctx, r.Message(), dest)
	if !res.Success {
		a.logger.Warn("report not delivered", "channel", res.Channel, "attempts", res.Attempts, "error", res.Error)
	}
	return res
}
