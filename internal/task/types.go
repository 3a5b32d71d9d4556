// Package task defines the PM task model shared by the store, the
// lifecycle engine, and the report aggregator.
//
// It follows the same layout as the other domain packages:
// - typed string enums with a valid-set map and a Parse function
// - plain structs with JSON tags matching the tool-call output
// - a small error taxonomy (errors.go) callers branch on with errors.As
package task

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// --- Status enum ---

// Status is the lifecycle state of a task. Any state may follow any other.
type Status string

const (
	StatusDefined    Status = "defined"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusDefined, StatusInProgress, StatusReview, StatusCompleted, StatusBlocked}

var validStatuses = map[Status]bool{
	StatusDefined:    true,
	StatusInProgress: true,
	StatusReview:     true,
	StatusCompleted:  true,
	StatusBlocked:    true,
}

// ParseStatus normalizes s and validates it. Empty input yields StatusDefined.
func ParseStatus(s string) (Status, error) {
	v := Status(normalize(s))
	if v == "" {
		return StatusDefined, nil
	}
	if !validStatuses[v] {
		return "", Invalid("status", "%q is not one of: defined, in_progress, review, completed, blocked", s)
	}
	return v, nil
}

// --- Priority enum ---

// Priority ranks a task's urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var validPriorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// ParsePriority normalizes s and validates it. Empty input yields PriorityMedium.
func ParsePriority(s string) (Priority, error) {
	v := Priority(normalize(s))
	if v == "" {
		return PriorityMedium, nil
	}
	if !validPriorities[v] {
		return "", Invalid("priority", "%q is not one of: low, medium, high, critical", s)
	}
	return v, nil
}

// --- Update source enum ---

// Source identifies where a progress update came from.
type Source string

const (
	SourceSlack  Source = "slack"
	SourceAgent  Source = "agent"
	SourceManual Source = "manual"
)

var validSources = map[Source]bool{
	SourceSlack:  true,
	SourceAgent:  true,
	SourceManual: true,
}

// ParseSource normalizes s and validates it. Empty input yields SourceAgent.
func ParseSource(s string) (Source, error) {
	v := Source(normalize(s))
	if v == "" {
		return SourceAgent, nil
	}
	if !validSources[v] {
		return "", Invalid("source", "%q is not one of: slack, agent, manual", s)
	}
	return v, nil
}

// --- Verification method enum ---

// Method describes how a task was verified.
type Method string

const (
	MethodManual    Method = "manual"
	MethodAutomated Method = "automated"
	MethodHybrid    Method = "hybrid"
)

var validMethods = map[Method]bool{
	MethodManual:    true,
	MethodAutomated: true,
	MethodHybrid:    true,
}

// ParseMethod normalizes s and validates it. Empty input yields MethodAutomated.
func ParseMethod(s string) (Method, error) {
	v := Method(normalize(s))
	if v == "" {
		return MethodAutomated, nil
	}
	if !validMethods[v] {
		return "", Invalid("method", "%q is not one of: manual, automated, hybrid", s)
	}
	return v, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// --- Core data structures ---

// ProgressUpdate is an append-only note attached to one task.
type ProgressUpdate struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	Timestamp      time.Time `json:"timestamp"`
	Source         Source    `json:"source"`
	Content        string    `json:"content"`
	SentimentScore *float64  `json:"sentiment_score,omitempty"`
	Analysis       *string   `json:"agent_analysis,omitempty"`
}

// VerificationRecord is the single closure event of a task. Setting one
// replaces any previous record and forces the task to completed.
type VerificationRecord struct {
	TaskID     string    `json:"task_id"`
	VerifiedBy string    `json:"verified_by"`
	VerifiedAt time.Time `json:"verified_at"`
	Method     Method    `json:"method"`
	Evidence   []string  `json:"evidence"`
}

// Task is the unit of work.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      Status         `json:"status"`
	Priority    Priority       `json:"priority"`
	Assignee    *string        `json:"assignee,omitempty"`
	DueDate     *string        `json:"due_date,omitempty"` // YYYY-MM-DD
	Tags        []string       `json:"tags"`
	Metadata    map[string]any `json:"metadata"`
	Channel     string         `json:"channel"`
	ThreadTS    *string        `json:"thread_ts,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	ProgressUpdates []ProgressUpdate    `json:"progress_updates"`
	Verification    *VerificationRecord `json:"verification,omitempty"`
}

// AssigneeOr returns the assignee or fallback when unassigned.
func (t *Task) AssigneeOr(fallback string) string {
	if t.Assignee == nil || *t.Assignee == "" {
		return fallback
	}
	return *t.Assignee
}

// --- Field validation ---

// DateLayout is the calendar-date format used for due dates.
const DateLayout = "2006-01-02"

// ParseDueDate accepts YYYY-MM-DD or an RFC3339 timestamp and returns the
// calendar date. Empty input returns "" with no error.
func ParseDueDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d.Format(DateLayout), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC().Format(DateLayout), nil
	}
	return "", Invalid("due_date", "%q is not a YYYY-MM-DD date", s)
}

// ValidateSentiment checks that a caller-supplied sentiment score is a
// finite number in [-1, 1].
func ValidateSentiment(score *float64) error {
	if score == nil {
		return nil
	}
	if math.IsNaN(*score) || math.IsInf(*score, 0) {
		return Invalid("sentiment_score", "%v is not a finite number", *score)
	}
	if *score < -1 || *score > 1 {
		return Invalid("sentiment_score", "%v is outside [-1.0, 1.0]", *score)
	}
	return nil
}

// RequireText returns a ValidationError when v is blank.
func RequireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("'%s' is required", field)}
	}
	return nil
}
