package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds webhook delivery settings.
type Config struct {
	WebhookURL     string
	DefaultChannel string
	// MaxAttempts is the total number of POSTs per delivery, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt; it doubles after each retry.
	BaseDelay time.Duration
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

// DefaultConfig returns the default delivery configuration.
func DefaultConfig() Config {
	return Config{
		DefaultChannel: "#pm-updates",
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		Timeout:        10 * time.Second,
	}
}

// ─── Results ─────────────────────────────────────────────────────────────────

// Destination says where a payload goes. An empty Channel means the
// dispatcher's default channel; ThreadTS replies into an existing thread.
type Destination struct {
	Channel  string `json:"channel,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// DeliveryResult is the outcome of one Deliver call. It is reported to
// callers as data and never fails the operation that triggered it.
type DeliveryResult struct {
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
	Channel  string `json:"channel,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

// Err returns a *DeliveryError for a failed result and nil otherwise.
func (r DeliveryResult) Err() error {
	if r.Success {
		return nil
	}
	return &DeliveryError{Attempts: r.Attempts, Err: errors.New(r.Error)}
}

// DeliveryError reports a webhook that stayed unreachable or kept
// rejecting the payload after every attempt.
type DeliveryError struct {
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify: delivery failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrNotConfigured is the failure reported when no webhook URL is set.
var ErrNotConfigured = errors.New("SLACK_WEBHOOK_URL not configured")

// ─── Dispatcher ──────────────────────────────────────────────────────────────

// Dispatcher posts payloads to a Slack incoming webhook.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient replaces the HTTP client used for webhook calls.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithSleep replaces the backoff wait. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithLogger sets the logger for attempt failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a Dispatcher. Zero config fields take their defaults.
func NewDispatcher(cfg Config, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = def.DefaultChannel
	}

	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{},
		sleep:  sleepCtx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether a webhook URL is set.
func (d *Dispatcher) Configured() bool { return d.cfg.WebhookURL != "" }

// DefaultChannel returns the channel used when a destination names none.
func (d *Dispatcher) DefaultChannel() string { return d.cfg.DefaultChannel }

// Send renders m and delivers it to dest.
func (d *Dispatcher) Send(ctx context.Context, m Message, dest Destination) DeliveryResult {
	return d.Deliver(ctx, Render(m), dest)
}

// Deliver posts p to the webhook, retrying non-2xx responses and transport
// errors. After failed attempt a (0-based) it waits BaseDelay*2^a before
// the next one. It blocks until the loop ends or ctx is done.
func (d *Dispatcher) Deliver(ctx context.Context, p Payload, dest Destination) DeliveryResult {
	channel := dest.Channel
	if channel == "" {
		channel = p.Channel
	}
	if channel == "" {
		channel = d.cfg.DefaultChannel
	}
	p.Channel = channel
	if dest.ThreadTS != "" {
		p.ThreadTS = dest.ThreadTS
	}

	res := DeliveryResult{Channel: channel, ThreadTS: p.ThreadTS}
	if !d.Configured() {
		res.Error = ErrNotConfigured.Error()
		return res
	}

	body, err := json.Marshal(p)
	if err != nil {
		res.Error = fmt.Sprintf("encode payload: %v", err)
		return res
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt + 1
		lastErr = d.post(ctx, body)
		if lastErr == nil {
			res.Success = true
			return res
		}
		d.logger.Warn("slack delivery attempt failed",
			"attempt", attempt+1, "channel", channel, "error", lastErr)

		if attempt == d.cfg.MaxAttempts-1 {
			break
		}
		if err := d.sleep(ctx, d.cfg.BaseDelay<<attempt); err != nil {
			lastErr = err
			break
		}
	}

	res.Error = lastErr.Error()
	d.logger.Error("slack delivery gave up",
		"attempts", res.Attempts, "channel", channel, "error", lastErr)
	return res
}

func (d *Dispatcher) post(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
