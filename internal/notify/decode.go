package notify

import (
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/HendryAvila/pmtools/internal/task"
)

// timeNow is a package-level var so tests can pin the default report date.
var timeNow = time.Now

// DecodeMessage builds a typed message of the given kind from loosely
// typed tool input. Unknown keys and missing required fields are
// validation errors.
func DecodeMessage(kind string, data map[string]any) (Message, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	if k == "verification" {
		k = KindVerificationResult
	}
	switch k {
	case KindTaskAlert:
		var m TaskAlert
		if err := decodeStrict(data, &m); err != nil {
			return nil, err
		}
		if err := task.RequireText("task_title", m.Title); err != nil {
			return nil, err
		}
		if m.Priority != "" {
			p, err := task.ParsePriority(m.Priority)
			if err != nil {
				return nil, err
			}
			m.Priority = string(p)
		}
		return m, nil

	case KindProgressUpdate:
		var m ProgressUpdate
		if err := decodeStrict(data, &m); err != nil {
			return nil, err
		}
		if err := task.RequireText("task_title", m.Title); err != nil {
			return nil, err
		}
		if err := task.RequireText("content", m.Content); err != nil {
			return nil, err
		}
		st, err := task.ParseStatus(m.Status)
		if err != nil {
			return nil, err
		}
		m.Status = string(st)
		if err := task.ValidateSentiment(m.SentimentScore); err != nil {
			return nil, err
		}
		return m, nil

	case KindBossReport:
		var m BossReport
		if err := decodeStrict(data, &m); err != nil {
			return nil, err
		}
		if strings.TrimSpace(m.Date) == "" {
			m.Date = timeNow().UTC().Format(task.DateLayout)
		}
		return m, nil

	case KindVerificationResult:
		var m VerificationResult
		if err := decodeStrict(data, &m); err != nil {
			return nil, err
		}
		if err := task.RequireText("task_title", m.Title); err != nil {
			return nil, err
		}
		m.Outcome = strings.ToUpper(strings.TrimSpace(m.Outcome))
		switch m.Outcome {
		case "":
			m.Outcome = OutcomeVerified
		case OutcomeVerified, OutcomeNeedsWork, OutcomeManualReview:
		default:
			return nil, task.Invalid("verification_status", "%q is not one of: VERIFIED, NEEDS_WORK, MANUAL_REVIEW", m.Outcome)
		}
		if m.Confidence != nil && (*m.Confidence < 0 || *m.Confidence > 1) {
			return nil, task.Invalid("confidence_score", "%v is outside [0, 1]", *m.Confidence)
		}
		return m, nil
	}

	return nil, task.Invalid("message_type", "%q is not one of: task_alert, progress_update, boss_report, verification_result", kind)
}

// DecodePayload accepts a caller-built payload. Only "text" and "blocks"
// are allowed and at least one must be non-empty.
func DecodePayload(data map[string]any) (Payload, error) {
	var p Payload
	for k := range data {
		if k != "text" && k != "blocks" {
			return Payload{}, task.Invalid("payload", "unexpected key %q (allowed: text, blocks)", k)
		}
	}

	if v, ok := data["text"]; ok && v != nil {
		s, err := cast.ToStringE(v)
		if err != nil {
			return Payload{}, task.Invalid("payload.text", "%v", err)
		}
		p.Text = s
	}
	if v, ok := data["blocks"]; ok && v != nil {
		raw, ok := v.([]any)
		if !ok {
			return Payload{}, task.Invalid("payload.blocks", "must be an array of objects")
		}
		for i, b := range raw {
			m, err := cast.ToStringMapE(b)
			if err != nil || m["type"] == nil {
				return Payload{}, task.Invalid("payload.blocks", "block %d must be an object with a type", i)
			}
			p.Blocks = append(p.Blocks, Block(m))
		}
	}

	if strings.TrimSpace(p.Text) == "" && len(p.Blocks) == 0 {
		return Payload{}, task.Invalid("payload", "needs text or blocks")
	}
	return p, nil
}

func decodeStrict(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return task.Invalid("data", "%v", err)
	}
	if err := dec.Decode(data); err != nil {
		return task.Invalid("data", "%v", err)
	}
	return nil
}
