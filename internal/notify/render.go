package notify

import (
	"fmt"
	"strings"
)

// Block is one Slack Block Kit block. Rendered blocks and caller-supplied
// raw blocks share this shape so both serialize the same way.
type Block map[string]any

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Text     string  `json:"text,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	ThreadTS string  `json:"thread_ts,omitempty"`
}

// Render maps a message to its webhook payload. The result has no channel;
// delivery fills that in from the destination.
func Render(m Message) Payload {
	return m.render()
}

// ─── Block helpers ───────────────────────────────────────────────────────────

func mrkdwn(text string) map[string]any {
	return map[string]any{"type": "mrkdwn", "text": text}
}

func header(text string) Block {
	return Block{"type": "header", "text": map[string]any{"type": "plain_text", "text": text}}
}

func section(text string) Block {
	return Block{"type": "section", "text": mrkdwn(text)}
}

func fields(texts ...string) Block {
	fs := make([]map[string]any, len(texts))
	for i, t := range texts {
		fs[i] = mrkdwn(t)
	}
	return Block{"type": "section", "fields": fs}
}

func contextLine(text string) Block {
	return Block{"type": "context", "elements": []map[string]any{mrkdwn(text)}}
}

// ─── Emoji tables ────────────────────────────────────────────────────────────

var priorityEmoji = map[string]string{
	"critical": ":rotating_light:",
	"high":     ":red_circle:",
	"medium":   ":large_yellow_circle:",
	"low":      ":white_circle:",
}

var statusEmoji = map[string]string{
	"defined":     ":clipboard:",
	"in_progress": ":construction:",
	"review":      ":mag:",
	"completed":   ":white_check_mark:",
	"blocked":     ":no_entry:",
}

var outcomeEmoji = map[string]string{
	OutcomeVerified:     ":white_check_mark:",
	OutcomeNeedsWork:    ":warning:",
	OutcomeManualReview: ":question:",
}

func lookup(table map[string]string, key, fallback string) string {
	if e, ok := table[key]; ok {
		return e
	}
	return fallback
}

func sentimentEmoji(score float64) string {
	switch {
	case score > 0.5:
		return ":grinning:"
	case score < -0.5:
		return ":worried:"
	case score > 0:
		return ":slightly_smiling_face:"
	case score < 0:
		return ":confused:"
	default:
		return ":neutral_face:"
	}
}

// statusLabel turns "in_progress" into "In Progress".
func statusLabel(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// ─── Renderers ───────────────────────────────────────────────────────────────

func (m TaskAlert) render() Payload {
	priority := m.Priority
	if priority == "" {
		priority = "medium"
	}
	fs := []string{fmt.Sprintf("*Priority:* %s %s", lookup(priorityEmoji, priority, ":white_circle:"), capitalize(priority))}
	if m.Assignee != "" {
		fs = append(fs, "*Assigned:* "+m.Assignee)
	}
	if m.DueDate != "" {
		fs = append(fs, "*Due:* "+m.DueDate)
	}

	desc := "_No description_"
	if m.Description != "" {
		desc = "> " + m.Description
	}

	return Payload{
		Text: "New task defined: " + m.Title,
		Blocks: []Block{
			header(":clipboard: New Task Defined"),
			section("*" + m.Title + "*"),
			fields(fs...),
			section(desc),
			contextLine("_React with :white_check_mark: to acknowledge_"),
		},
	}
}

func (m ProgressUpdate) render() Payload {
	var b strings.Builder
	fmt.Fprintf(&b, ":arrows_counterclockwise: *Task Update: %s*\n", m.Title)
	fmt.Fprintf(&b, "*Status:* %s %s\n", lookup(statusEmoji, m.Status, ":clipboard:"), statusLabel(m.Status))
	if m.SentimentScore != nil {
		fmt.Fprintf(&b, "*Sentiment:* %s (%.2f)\n", sentimentEmoji(*m.SentimentScore), *m.SentimentScore)
	}
	b.WriteString("\n" + m.Content)
	if m.DashboardLink != "" {
		fmt.Fprintf(&b, "\n\n:bar_chart: <%s|View Dashboard>", m.DashboardLink)
	}

	return Payload{
		Text:   fmt.Sprintf("Task update: %s (%s)", m.Title, statusLabel(m.Status)),
		Blocks: []Block{section(b.String())},
	}
}

func (m BossReport) render() Payload {
	title := m.Title
	if title == "" {
		title = "Daily PM Report"
	}
	blocks := []Block{
		header(fmt.Sprintf(":bar_chart: %s - %s", title, m.Date)),
		fields(
			fmt.Sprintf("*Completed:* :white_check_mark: %d", m.CompletedCount),
			fmt.Sprintf("*In Progress:* :construction: %d", m.InProgressCount),
			fmt.Sprintf("*Blocked:* :no_entry: %d", m.BlockedCount),
		),
	}
	if len(m.Highlights) > 0 {
		blocks = append(blocks, section("*Highlights:*\n"+bulleted(":sparkles:", m.Highlights)))
	}
	if len(m.Risks) > 0 {
		blocks = append(blocks, section("*Risks:*\n"+bulleted(":warning:", m.Risks)))
	}

	return Payload{
		Text: fmt.Sprintf("%s - %s: %d completed, %d in progress, %d blocked",
			title, m.Date, m.CompletedCount, m.InProgressCount, m.BlockedCount),
		Blocks: blocks,
	}
}

func (m VerificationResult) render() Payload {
	outcome := m.Outcome
	if outcome == "" {
		outcome = OutcomeVerified
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Task Verification: %s*\n\n", lookup(outcomeEmoji, outcome, ":question:"), m.Title)
	fmt.Fprintf(&b, "*Status:* %s\n", outcome)
	if m.Confidence != nil {
		fmt.Fprintf(&b, "*Confidence:* %.0f%%\n", *m.Confidence*100)
	}
	if m.Method != "" {
		fmt.Fprintf(&b, "*Method:* %s\n", capitalize(m.Method))
	}
	if m.Summary != "" {
		b.WriteString("\n" + m.Summary)
	}

	by := m.VerifiedBy
	if by == "" {
		by = "agent"
	}
	foot := "Verified by " + by
	if m.Timestamp != "" {
		foot += " | " + m.Timestamp
	}

	return Payload{
		Text:   fmt.Sprintf("Task verification: %s (%s)", m.Title, outcome),
		Blocks: []Block{section(strings.TrimRight(b.String(), "\n")), contextLine(foot)},
	}
}

func bulleted(emoji string, items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = emoji + " " + it
	}
	return strings.Join(lines, "\n")
}
