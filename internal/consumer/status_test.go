package consumer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var errTest = errors.New("out of stock")

func TestStatusHealth(t *testing.T) {
	cfg := testConfig()
	srv := NewStatusServer(NewConsumer(nil, HandlerFunc(nil), cfg, nil), cfg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestStatusStats(t *testing.T) {
	cfg := testConfig()
	cfg.AutoAck = false
	c := NewConsumer(nil, HandlerFunc(nil), cfg, nil)
	c.record(Outcome{Payload: "a", Disposition: Acked})
	c.record(Outcome{Payload: "b", Err: errTest, Disposition: Dropped})

	rec := httptest.NewRecorder()
	NewStatusServer(c, cfg).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Queue != testQueue || body.AckMode != "manual" {
		t.Fatalf("unexpected queue info %+v", body)
	}
	if body.Succeeded != 1 || body.Failed != 1 || body.Dropped != 1 || body.Cancelled {
		t.Fatalf("unexpected stats %+v", body.Stats)
	}
}

func TestStatusUnknownRoute(t *testing.T) {
	cfg := testConfig()
	rec := httptest.NewRecorder()
	NewStatusServer(NewConsumer(nil, HandlerFunc(nil), cfg, nil), cfg).Handler().
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
