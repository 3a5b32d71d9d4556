// Package notify renders PM events into Slack Block Kit payloads and
// delivers them to an incoming webhook with bounded retry.
//
// Messages are a closed set of variants (TaskAlert, ProgressUpdate,
// BossReport, VerificationResult). Each carries exactly the fields its
// rendering needs; Render maps a variant to a Payload deterministically.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/pmtools/internal/task"
)

// Kind names a message variant on the tool surface.
type Kind string

const (
	KindTaskAlert          Kind = "task_alert"
	KindProgressUpdate     Kind = "progress_update"
	KindBossReport         Kind = "boss_report"
	KindVerificationResult Kind = "verification_result"
)

// Kinds lists every message kind.
var Kinds = []Kind{KindTaskAlert, KindProgressUpdate, KindBossReport, KindVerificationResult}

// Message is one renderable notification. The set of implementations is
// closed to this package.
type Message interface {
	Kind() Kind
	render() Payload
}

// TaskAlert announces a newly defined task.
type TaskAlert struct {
	Title       string `mapstructure:"task_title"`
	Priority    string `mapstructure:"priority"`
	Assignee    string `mapstructure:"assignee"`
	DueDate     string `mapstructure:"due_date"`
	Description string `mapstructure:"description"`
}

// ProgressUpdate reports a status change or progress note.
type ProgressUpdate struct {
	Title          string   `mapstructure:"task_title"`
	Status         string   `mapstructure:"status"`
	SentimentScore *float64 `mapstructure:"sentiment_score"`
	Content        string   `mapstructure:"content"`
	DashboardLink  string   `mapstructure:"dashboard_link"`
}

// BossReport is the rendered daily/weekly summary.
type BossReport struct {
	Date            string   `mapstructure:"date"`
	Title           string   `mapstructure:"title"`
	CompletedCount  int      `mapstructure:"completed_count"`
	InProgressCount int      `mapstructure:"in_progress_count"`
	BlockedCount    int      `mapstructure:"blocked_count"`
	Highlights      []string `mapstructure:"highlights"`
	Risks           []string `mapstructure:"risks"`
}

// Verification outcomes understood by the renderer.
const (
	OutcomeVerified     = "VERIFIED"
	OutcomeNeedsWork    = "NEEDS_WORK"
	OutcomeManualReview = "MANUAL_REVIEW"
)

// VerificationResult reports the closure of a task.
type VerificationResult struct {
	Title      string   `mapstructure:"task_title"`
	Outcome    string   `mapstructure:"verification_status"`
	Confidence *float64 `mapstructure:"confidence_score"`
	Summary    string   `mapstructure:"summary"`
	VerifiedBy string   `mapstructure:"verified_by"`
	Method     string   `mapstructure:"method"`
	Timestamp  string   `mapstructure:"timestamp"`
}

func (TaskAlert) Kind() Kind          { return KindTaskAlert }
func (ProgressUpdate) Kind() Kind     { return KindProgressUpdate }
func (BossReport) Kind() Kind         { return KindBossReport }
func (VerificationResult) Kind() Kind { return KindVerificationResult }

// ─── Constructors from domain records ────────────────────────────────────────

// AlertFor builds the creation alert for t.
func AlertFor(t *task.Task) TaskAlert {
	return TaskAlert{
		Title:       t.Title,
		Priority:    string(t.Priority),
		Assignee:    deref(t.Assignee),
		DueDate:     deref(t.DueDate),
		Description: t.Description,
	}
}

// UpdateFor builds a progress message for t. When u is nil the message
// reports the status change alone.
func UpdateFor(t *task.Task, u *task.ProgressUpdate) ProgressUpdate {
	m := ProgressUpdate{Title: t.Title, Status: string(t.Status)}
	if u != nil {
		m.Content = u.Content
		m.SentimentScore = u.SentimentScore
	} else {
		m.Content = "Status changed to " + statusLabel(string(t.Status))
	}
	return m
}

// VerificationFor builds the verification message for t. It returns false
// when t carries no verification record.
func VerificationFor(t *task.Task) (VerificationResult, bool) {
	v := t.Verification
	if v == nil {
		return VerificationResult{}, false
	}
	summary := fmt.Sprintf("Task verified by %s using %s method.", v.VerifiedBy, v.Method)
	if len(v.Evidence) > 0 {
		summary += "\nEvidence: " + strings.Join(v.Evidence, ", ")
	}
	full := 1.0
	return VerificationResult{
		Title:      t.Title,
		Outcome:    OutcomeVerified,
		Confidence: &full,
		Summary:    summary,
		VerifiedBy: v.VerifiedBy,
		Method:     string(v.Method),
		Timestamp:  v.VerifiedAt.UTC().Format(time.RFC3339),
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
