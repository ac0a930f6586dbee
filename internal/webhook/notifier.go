package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Downsize-Signature"
	HeaderTimestamp = "X-Downsize-Timestamp"
	HeaderEvent     = "X-Downsize-Event"
)

const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

type Config struct {
	URL            string
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// RunReport is the body posted when a run finishes.
type RunReport struct {
	RunID        string    `json:"run_id"`
	Path         string    `json:"path"`
	Resized      int       `json:"resized"`
	WithinBounds int       `json:"within_bounds"`
	Failed       int       `json:"failed"`
	Unsupported  int       `json:"unsupported"`
	Errors       []string  `json:"errors,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Notifier posts signed run reports to a single endpoint. A Notifier with an
// empty URL does nothing.
type Notifier struct {
	httpClient     *http.Client
	url            string
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
}

func NewNotifier(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Notifier{
		httpClient:     &http.Client{Timeout: timeout},
		url:            strings.TrimSpace(cfg.URL),
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

func (n *Notifier) Notify(ctx context.Context, report RunReport) error {
	if !n.Enabled() {
		return nil
	}
	event := EventRunCompleted
	if report.Failed > 0 {
		event = EventRunFailed
	}

	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	signature := Sign(n.signingSecret, timestamp, body)

	backoff := n.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderEvent, event)

		resp, err := n.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("webhook returned status=%d", resp.StatusCode)
		}
		lastErr = err
		if attempt == n.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", n.maxAttempts, lastErr)
}

// Sign returns the signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
