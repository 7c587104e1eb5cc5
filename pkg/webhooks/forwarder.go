package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/async"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const (
	HeaderEvent     = "X-Gatekeeper-Event"
	HeaderEventID   = "X-Gatekeeper-Event-ID"
	HeaderSignature = "X-Gatekeeper-Signature"
	HeaderDelivery  = "X-Gatekeeper-Delivery"
)

// Config configures audit event delivery to a single endpoint
type Config struct {
	URL    string
	Secret string
	// Events limits delivery to the listed types; empty forwards everything
	Events  []audit.EventType
	Workers int
	// Timeout bounds one delivery including retries
	Timeout time.Duration
	Retry   RetryConfig
}

// Validate checks the forwarder configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("webhook workers must not be negative")
	}
	return nil
}

// DeliveryStats counts delivery outcomes
type DeliveryStats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Filtered  int64 `json:"filtered"`
	Retries   int64 `json:"retries"`
}

// Forwarder is an audit.Logger that POSTs each event as signed JSON to a webhook endpoint.
// Deliveries run on a worker pool so Log never blocks on the network.
type Forwarder struct {
	config Config
	events map[audit.EventType]struct{}
	client *http.Client
	retry  *RetryPolicy
	pool   *async.WorkerPool
	logger *observability.Logger

	delivered atomic.Int64
	failed    atomic.Int64
	filtered  atomic.Int64
	retries   atomic.Int64
}

var _ audit.Logger = (*Forwarder)(nil)

// NewForwarder starts a forwarder whose workers live until Close or ctx is cancelled
func NewForwarder(ctx context.Context, config Config, logger *observability.Logger) (*Forwarder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Workers == 0 {
		config.Workers = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	f := &Forwarder{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  NewRetryPolicy(config.Retry),
		logger: logger.WithField("component", "audit_webhook"),
	}
	if len(config.Events) > 0 {
		f.events = make(map[audit.EventType]struct{}, len(config.Events))
		for _, t := range config.Events {
			f.events[t] = struct{}{}
		}
	}

	ctx = observability.WithLogger(ctx, f.logger)
	f.pool = async.NewWorkerPool(ctx, config.Workers, "audit webhook", config.Timeout)
	return f, nil
}

// Log queues event for delivery
func (f *Forwarder) Log(ctx context.Context, event *audit.AuditEvent) error {
	if !f.wants(event.EventType) {
		f.filtered.Add(1)
		return nil
	}

	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	eventType, eventID := string(event.EventType), event.ID
	return f.pool.Submit(func(ctx context.Context) error {
		f.deliver(ctx, eventType, eventID, payload)
		return nil
	})
}

// Close drains queued deliveries
func (f *Forwarder) Close() error {
	return f.pool.Shutdown(f.config.Timeout)
}

// Stats returns delivery counters
func (f *Forwarder) Stats() DeliveryStats {
	return DeliveryStats{
		Delivered: f.delivered.Load(),
		Failed:    f.failed.Load(),
		Filtered:  f.filtered.Load(),
		Retries:   f.retries.Load(),
	}
}

func (f *Forwarder) wants(t audit.EventType) bool {
	if f.events == nil {
		return true
	}
	_, ok := f.events[t]
	return ok
}

func (f *Forwarder) deliver(ctx context.Context, eventType, eventID string, payload []byte) {
	logger := f.logger.WithFields(map[string]interface{}{
		"event_type": eventType,
		"event_id":   eventID,
	})

	for attempt := 1; ; attempt++ {
		err := f.send(ctx, eventType, eventID, payload)
		if err == nil {
			f.delivered.Add(1)
			return
		}
		if !f.retry.ShouldRetry(attempt, err) {
			f.failed.Add(1)
			logger.WithError(err).WithField("attempts", attempt).Error("audit webhook delivery failed")
			return
		}

		logger.WithError(err).WithField("attempt", attempt).Warn("audit webhook delivery failed, retrying")
		f.retries.Add(1)
		if werr := f.retry.Wait(ctx, attempt); werr != nil {
			f.failed.Add(1)
			logger.WithError(werr).Error("audit webhook delivery abandoned")
			return
		}
	}
}

func (f *Forwarder) send(ctx context.Context, eventType, eventID string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.URL, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderEventID, eventID)
	req.Header.Set(HeaderDelivery, time.Now().UTC().Format(time.RFC3339))
	if f.config.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, f.config.Secret))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return &permanentError{err: err}
		}
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return &permanentError{err: fmt.Errorf("webhook rejected event with status %d", resp.StatusCode)}
	}
}

// Sign returns the HMAC-SHA256 signature header value for payload
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header produced by Sign
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
