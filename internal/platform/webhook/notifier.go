// Package webhook delivers change events to external HTTP endpoints. Each
// payload is signed with HMAC-SHA256 so receivers can verify its origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/openapi"
	"github.com/labtrend/labtrend/internal/platform/websocket"
)

// Delivery statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// logSize is how many delivery attempts are kept for inspection.
const logSize = 50

// Endpoint is a configured webhook destination. Events holds patterns such
// as "*", "corpus.*" or "*.deleted".
type Endpoint struct {
	URL    string
	Secret string
	Events []string
}

// Attempt records one delivery attempt.
type Attempt struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	EventType  string    `json:"event_type"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Duration   string    `json:"duration"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignPayload returns the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook url %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook url %q must be an absolute http or https url", rawURL)
	}
	return nil
}

// eventMatches reports whether eventType matches pattern. Patterns are
// exact, "*", "prefix.*" or "*.suffix".
func eventMatches(pattern, eventType string) bool {
	switch {
	case pattern == "*" || pattern == eventType:
		return true
	case strings.HasPrefix(pattern, "*."):
		return strings.HasSuffix(eventType, pattern[1:])
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(eventType, pattern[:len(pattern)-1])
	}
	return false
}

func (ep Endpoint) wants(eventType string) bool {
	if len(ep.Events) == 0 {
		return true
	}
	for _, p := range ep.Events {
		if eventMatches(p, eventType) {
			return true
		}
	}
	return false
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient overrides the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithRetryDelays sets the waits between attempts. Its length is the number
// of retries after the first attempt.
func WithRetryDelays(delays ...time.Duration) Option {
	return func(n *Notifier) { n.retryDelays = delays }
}

// Notifier posts events to every endpoint subscribed to them. Deliveries run
// in the background so publishers never wait on remote endpoints.
type Notifier struct {
	endpoints   []Endpoint
	client      *http.Client
	retryDelays []time.Duration
	logger      zerolog.Logger

	wg  sync.WaitGroup
	mu  sync.Mutex
	log []Attempt
}

func NewNotifier(endpoints []Endpoint, logger zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		endpoints:   endpoints,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 30 * time.Second},
		logger:      logger.With().Str("component", "webhook").Logger(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Publish schedules delivery of event to each matching endpoint.
func (n *Notifier) Publish(_ context.Context, event websocket.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	for _, ep := range n.endpoints {
		if !ep.wants(event.Type) {
			continue
		}
		n.wg.Add(1)
		go func(ep Endpoint) {
			defer n.wg.Done()
			n.deliver(ep, event.Type, payload)
		}(ep)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) deliver(ep Endpoint, eventType string, payload []byte) {
	for attempt := 1; ; attempt++ {
		a := n.post(ep, eventType, payload, attempt)
		n.record(a)
		if a.Status == StatusSuccess {
			return
		}
		if attempt > len(n.retryDelays) {
			n.logger.Error().Str("url", ep.URL).Str("event", eventType).Str("error", a.Error).
				Int("attempts", attempt).Msg("webhook delivery failed")
			return
		}
		time.Sleep(n.retryDelays[attempt-1])
	}
}

func (n *Notifier) post(ep Endpoint, eventType string, payload []byte, attempt int) Attempt {
	now := time.Now()
	a := Attempt{
		ID:        uuid.NewString(),
		URL:       ep.URL,
		EventType: eventType,
		Attempt:   attempt,
		Status:    StatusFailed,
		CreatedAt: now.UTC(),
	}

	req, err := http.NewRequest(http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		a.Error = err.Error()
		return a
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Labtrend-Event", eventType)
	req.Header.Set("X-Labtrend-Delivery", a.ID)
	req.Header.Set("X-Labtrend-Timestamp", now.UTC().Format(time.RFC3339))
	if ep.Secret != "" {
		req.Header.Set("X-Labtrend-Signature", "sha256="+SignPayload(payload, ep.Secret))
	}

	resp, err := n.client.Do(req)
	a.Duration = time.Since(now).String()
	if err != nil {
		a.Error = err.Error()
		return a
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	a.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		a.Status = StatusSuccess
	} else {
		a.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return a
}

func (n *Notifier) record(a Attempt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.log = append(n.log, a)
	if len(n.log) > logSize {
		n.log = n.log[len(n.log)-logSize:]
	}
}

// Deliveries returns recent attempts, newest first.
func (n *Notifier) Deliveries() []Attempt {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Attempt, len(n.log))
	for i, a := range n.log {
		out[len(n.log)-1-i] = a
	}
	return out
}

// -- HTTP --

type Handler struct {
	notifier *Notifier
}

func NewHandler(n *Notifier) *Handler {
	return &Handler{notifier: n}
}

func (h *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/webhooks/deliveries", h.ListDeliveries, m...)
}

func (h *Handler) Operations() []openapi.Operation {
	return []openapi.Operation{{
		Method: http.MethodGet, Path: "/webhooks/deliveries", Tag: "corpus", Role: auth.RoleAdmin,
		Summary: "Recent webhook delivery attempts, newest first", Response: "[]WebhookDelivery",
	}}
}

// Schemas returns the component schemas referenced by Operations.
func Schemas() map[string]interface{} {
	return map[string]interface{}{
		"WebhookDelivery": openapi.Object(map[string]interface{}{
			"id":          openapi.Format("uuid"),
			"url":         openapi.String(),
			"event_type":  openapi.String(),
			"attempt":     openapi.Integer(),
			"status_code": openapi.Integer(),
			"status":      openapi.Enum(StatusSuccess, StatusFailed),
			"error":       openapi.String(),
			"duration":    openapi.String(),
			"created_at":  openapi.Format("date-time"),
		}, "id", "url", "event_type", "attempt", "status", "created_at"),
	}
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	return c.JSON(http.StatusOK, h.notifier.Deliveries())
}
