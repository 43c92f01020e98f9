// Package webhook fans exchange events out to registered HTTP endpoints.
// Deliveries are signed with HMAC-SHA256, retried on failure, and recorded
// so operators can inspect and replay them.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types published by the exchange service.
const (
	EventMessageReceived = "message.received"
	EventMessageAcked    = "message.acked"
	EventTest            = "webhook.test"
)

// Endpoint lifecycle states.
const (
	endpointActive = "active"
	endpointPaused = "paused"
)

// Delivery attempt outcomes.
const (
	deliveryPending = "pending"
	deliverySuccess = "success"
	deliveryFailed  = "failed"
)

// responseBodyCap bounds how much of a receiver's response is kept in the
// delivery log.
const responseBodyCap = 1024

// WebhookEndpoint represents a registered webhook destination.
type WebhookEndpoint struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Secret      string            `json:"secret,omitempty"`
	Events      []string          `json:"events"`
	Description string            `json:"description,omitempty"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// subscribes reports whether the endpoint's event patterns cover eventType.
// Patterns are exact ("message.received") or single-segment wildcards
// ("message.*", "*.acked").
func (ep *WebhookEndpoint) subscribes(eventType string) bool {
	for _, pat := range ep.Events {
		switch {
		case pat == eventType:
			return true
		case strings.HasPrefix(pat, "*."):
			if strings.HasSuffix(eventType, pat[1:]) {
				return true
			}
		case strings.HasSuffix(pat, ".*"):
			if strings.HasPrefix(eventType, pat[:len(pat)-1]) {
				return true
			}
		}
	}
	return false
}

// DeliveryAttempt records a single delivery attempt for a webhook event.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	WebhookID    string        `json:"webhook_id"`
	EventType    string        `json:"event_type"`
	EventID      string        `json:"event_id"`
	Payload      []byte        `json:"payload"`
	Signature    string        `json:"signature"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body"`
	Duration     time.Duration `json:"duration_ns"`
	Attempt      int           `json:"attempt"`
	Status       string        `json:"status"` // "success", "failed", "pending"
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// WebhookEvent is an exchange event fanned out to subscribed endpoints.
// For message events the HL7 fields identify the stored message; the
// payload carries whatever the publisher attached (typically the raw
// message or the generated acknowledgment).
type WebhookEvent struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	MessageID    string          `json:"message_id,omitempty"`
	ControlID    string          `json:"control_id,omitempty"`
	MessageType  string          `json:"message_type,omitempty"`
	TriggerEvent string          `json:"trigger_event,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// DeliveryResult summarises the outcome of delivering an event to one endpoint.
type DeliveryResult struct {
	EndpointID string `json:"endpoint_id"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// SignPayload computes the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the HMAC-SHA256 of payload
// under secret. Comparison is constant-time.
func VerifySignature(payload []byte, secret, signature string) bool {
	want := SignPayload(payload, secret)
	return hmac.Equal([]byte(want), []byte(signature))
}

// ManagerOption configures a WebhookManager.
type ManagerOption func(*WebhookManager)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) ManagerOption {
	return func(m *WebhookManager) { m.httpClient = c }
}

// WithMaxAttempts sets the total number of delivery attempts per event,
// including the first one.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *WebhookManager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithRetryDelays overrides the backoff schedule between attempts. When the
// schedule is shorter than the attempt count the last delay repeats.
func WithRetryDelays(delays []time.Duration) ManagerOption {
	return func(m *WebhookManager) { m.retryDelays = delays }
}

// WebhookManager orchestrates endpoint registration, event delivery, and retries.
type WebhookManager struct {
	store       WebhookStore
	httpClient  *http.Client
	maxAttempts int
	retryDelays []time.Duration
}

// NewWebhookManager creates a WebhookManager with sensible defaults: three
// attempts per event with growing backoff, over a 10-second HTTP client.
func NewWebhookManager(store WebhookStore, opts ...ManagerOption) *WebhookManager {
	m := &WebhookManager{
		store:       store,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		maxAttempts: 3,
		retryDelays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Store exposes the underlying store, mainly for the HTTP handler.
func (m *WebhookManager) Store() WebhookStore { return m.store }

func checkWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	}
	return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
}

// RegisterEndpoint validates and persists a new webhook endpoint. If secret
// is empty a cryptographically random one is generated; if no event patterns
// are given the endpoint subscribes to all message events.
func (m *WebhookManager) RegisterEndpoint(ctx context.Context, rawURL, secret, description string, events []string) (*WebhookEndpoint, error) {
	if err := checkWebhookURL(rawURL); err != nil {
		return nil, err
	}
	if secret == "" {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, fmt.Errorf("failed to generate secret: %w", err)
		}
		secret = hex.EncodeToString(buf[:])
	}
	if len(events) == 0 {
		events = []string{"message.*"}
	}

	ep := &WebhookEndpoint{
		ID:          uuid.New().String(),
		URL:         rawURL,
		Secret:      secret,
		Events:      events,
		Description: description,
		Status:      endpointActive,
		CreatedAt:   time.Now(),
		Metadata:    map[string]string{},
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (m *WebhookManager) setStatus(ctx context.Context, id, status string) error {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	ep.Status = status
	return m.store.UpdateEndpoint(ctx, ep)
}

// PauseEndpoint stops deliveries to the endpoint until it is resumed.
func (m *WebhookManager) PauseEndpoint(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, endpointPaused)
}

// ResumeEndpoint re-enables deliveries to a paused endpoint.
func (m *WebhookManager) ResumeEndpoint(ctx context.Context, id string) error {
	return m.setStatus(ctx, id, endpointActive)
}

// Deliver sends the event to every active endpoint whose subscription
// matches, one result per endpoint attempted.
func (m *WebhookManager) Deliver(ctx context.Context, event WebhookEvent) []DeliveryResult {
	endpoints, _, err := m.store.ListEndpoints(ctx, 1000, 0)
	if err != nil {
		return nil
	}

	var results []DeliveryResult
	for _, ep := range endpoints {
		if ep.Status != endpointActive || !ep.subscribes(event.Type) {
			continue
		}
		attempt := m.DeliverToEndpoint(ctx, ep, event)
		results = append(results, DeliveryResult{
			EndpointID: ep.ID,
			Success:    attempt.Status == deliverySuccess,
			StatusCode: attempt.StatusCode,
			Error:      attempt.Error,
		})
	}
	return results
}

// DeliverToEndpoint signs the payload and POSTs it to the endpoint, retrying
// failed attempts up to the configured maximum. Every attempt is recorded in
// the delivery log; the last attempt is returned.
func (m *WebhookManager) DeliverToEndpoint(ctx context.Context, ep *WebhookEndpoint, event WebhookEvent) *DeliveryAttempt {
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, ep.Secret)

	var attempt *DeliveryAttempt
	for try := 1; ; try++ {
		attempt = m.post(ctx, ep, event, payload, sig, try)
		m.store.RecordDelivery(ctx, attempt)
		if attempt.Status == deliverySuccess || try == m.maxAttempts {
			return attempt
		}
		select {
		case <-ctx.Done():
			return attempt
		case <-time.After(m.backoff(try)):
		}
	}
}

// backoff returns the delay before the attempt following attempt n.
func (m *WebhookManager) backoff(n int) time.Duration {
	switch {
	case len(m.retryDelays) == 0:
		return 0
	case n <= len(m.retryDelays):
		return m.retryDelays[n-1]
	}
	return m.retryDelays[len(m.retryDelays)-1]
}

// post performs one signed POST and returns the attempt record. The caller
// is responsible for persisting it.
func (m *WebhookManager) post(ctx context.Context, ep *WebhookEndpoint, event WebhookEvent, payload []byte, sig string, try int) *DeliveryAttempt {
	now := time.Now()
	attempt := &DeliveryAttempt{
		ID:        uuid.New().String(),
		WebhookID: ep.ID,
		EventType: event.Type,
		EventID:   event.ID,
		Payload:   payload,
		Signature: sig,
		Attempt:   try,
		Status:    deliveryPending,
		CreatedAt: now,
	}
	fail := func(err string) *DeliveryAttempt {
		attempt.Status = deliveryFailed
		attempt.Error = err
		return attempt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		return fail(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+sig)
	req.Header.Set("X-Webhook-ID", ep.ID)
	req.Header.Set("X-Webhook-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	attempt.Duration = time.Since(start)
	if err != nil {
		return fail(err.Error())
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyCap))
	attempt.ResponseBody = string(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(fmt.Sprintf("non-2xx response: %d", resp.StatusCode))
	}
	attempt.Status = deliverySuccess
	return attempt
}

// RetryDelivery re-sends a previously recorded delivery once, continuing its
// attempt counter. The payload and signature are taken from the original so
// receivers see the exact bytes that failed.
func (m *WebhookManager) RetryDelivery(ctx context.Context, deliveryID string) (*DeliveryAttempt, error) {
	original, err := m.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, fmt.Errorf("delivery not found: %w", err)
	}
	ep, err := m.store.GetEndpoint(ctx, original.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("endpoint not found: %w", err)
	}
	var event WebhookEvent
	if err := json.Unmarshal(original.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original payload: %w", err)
	}

	attempt := m.post(ctx, ep, event, original.Payload, original.Signature, original.Attempt+1)
	m.store.RecordDelivery(ctx, attempt)
	return attempt, nil
}

// TestEndpoint sends a single synthetic event to verify endpoint
// connectivity. No retries; the operator wants an immediate answer.
func (m *WebhookManager) TestEndpoint(ctx context.Context, endpointID string) (*DeliveryAttempt, error) {
	ep, err := m.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, fmt.Errorf("endpoint not found: %w", err)
	}

	event := WebhookEvent{
		ID:        uuid.New().String(),
		Type:      EventTest,
		Payload:   json.RawMessage(`{"test":true}`),
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, ep.Secret)

	attempt := m.post(ctx, ep, event, payload, sig, 1)
	m.store.RecordDelivery(ctx, attempt)
	return attempt, nil
}

// GetDeliveryLogs returns paginated delivery attempts for a webhook endpoint.
func (m *WebhookManager) GetDeliveryLogs(ctx context.Context, webhookID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	return m.store.ListDeliveries(ctx, webhookID, limit, offset)
}
