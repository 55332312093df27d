package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labtrend/labtrend/internal/platform/websocket"
)

func TestSignAndVerify(t *testing.T) {
	payload := []byte(`{"type":"corpus.reloaded"}`)
	sig := SignPayload(payload, "s3cret")
	if len(sig) != 64 {
		t.Fatalf("expected hex sha256, got %q", sig)
	}
	if !VerifySignature(payload, "s3cret", sig) {
		t.Error("signature did not verify")
	}
	if VerifySignature(payload, "other", sig) {
		t.Error("signature verified under the wrong secret")
	}
}

func TestValidateURL(t *testing.T) {
	for _, u := range []string{"http://localhost:9000/hook", "https://example.com/labtrend"} {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q): %v", u, err)
		}
	}
	for _, u := range []string{"", "ftp://example.com", "/relative", "https://"} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) accepted", u)
		}
	}
}

func TestEventMatches(t *testing.T) {
	tests := []struct {
		pattern, event string
		want           bool
	}{
		{"*", "snapshot.saved", true},
		{"corpus.reloaded", "corpus.reloaded", true},
		{"corpus.*", "corpus.restored", true},
		{"corpus.*", "snapshot.saved", false},
		{"*.deleted", "snapshot.deleted", true},
		{"*.deleted", "snapshot.saved", false},
	}
	for _, tt := range tests {
		if got := eventMatches(tt.pattern, tt.event); got != tt.want {
			t.Errorf("eventMatches(%q, %q) = %v, want %v", tt.pattern, tt.event, got, tt.want)
		}
	}
}

type receiver struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	failures int
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	r.bodies = append(r.bodies, body)
	r.headers = append(r.headers, req.Header.Clone())
	w.WriteHeader(http.StatusNoContent)
}

func publishAndWait(t *testing.T, n *Notifier, eventType string) {
	t.Helper()
	ev, err := websocket.NewEvent(websocket.TopicCorpus, eventType, map[string]int{"names": 3})
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestNotifier_DeliversSignedEvents(t *testing.T) {
	recv := &receiver{}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	n := NewNotifier([]Endpoint{{URL: srv.URL, Secret: "s3cret", Events: []string{"corpus.*"}}}, zerolog.Nop())
	publishAndWait(t, n, websocket.EventCorpusReloaded)
	publishAndWait(t, n, websocket.EventSnapshotSaved)

	if len(recv.bodies) != 1 {
		t.Fatalf("expected one delivery, got %d", len(recv.bodies))
	}
	h := recv.headers[0]
	if h.Get("X-Labtrend-Event") != websocket.EventCorpusReloaded {
		t.Errorf("event header = %q", h.Get("X-Labtrend-Event"))
	}
	sig := strings.TrimPrefix(h.Get("X-Labtrend-Signature"), "sha256=")
	if !VerifySignature(recv.bodies[0], "s3cret", sig) {
		t.Error("delivered payload does not match its signature")
	}
	var ev websocket.Event
	if err := json.Unmarshal(recv.bodies[0], &ev); err != nil || ev.Type != websocket.EventCorpusReloaded {
		t.Errorf("unexpected payload %s (%v)", recv.bodies[0], err)
	}
}

func TestNotifier_RetriesThenSucceeds(t *testing.T) {
	recv := &receiver{failures: 2}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	n := NewNotifier([]Endpoint{{URL: srv.URL}}, zerolog.Nop(), WithRetryDelays(time.Millisecond, time.Millisecond))
	publishAndWait(t, n, websocket.EventSnapshotDeleted)

	log := n.Deliveries()
	if len(log) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(log))
	}
	if log[0].Status != StatusSuccess || log[0].Attempt != 3 {
		t.Errorf("newest attempt = %+v", log[0])
	}
	if log[2].Status != StatusFailed || log[2].StatusCode != http.StatusBadGateway {
		t.Errorf("first attempt = %+v", log[2])
	}
	if recv.headers[0].Get("X-Labtrend-Signature") != "" {
		t.Error("unsigned endpoint received a signature")
	}
}

func TestNotifier_GivesUp(t *testing.T) {
	recv := &receiver{failures: 10}
	srv := httptest.NewServer(recv)
	defer srv.Close()

	n := NewNotifier([]Endpoint{{URL: srv.URL}}, zerolog.Nop(), WithRetryDelays(time.Millisecond))
	publishAndWait(t, n, websocket.EventCorpusRestored)

	if got := len(n.Deliveries()); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestHandler_ListDeliveries(t *testing.T) {
	n := NewNotifier(nil, zerolog.Nop())
	n.record(Attempt{ID: "a", Status: StatusFailed})
	n.record(Attempt{ID: "b", Status: StatusSuccess})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/webhooks/deliveries", nil), rec)
	if err := NewHandler(n).ListDeliveries(c); err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	var got []Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("unexpected deliveries: %+v", got)
	}
}
