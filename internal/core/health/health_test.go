package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content-type=%q want application/json", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status=%q want ok", body["status"])
	}
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func TestReadiness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	rr := httptest.NewRecorder()
	Readiness(readiness(true))(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("ready status=%d want 200", rr.Code)
	}

	rr = httptest.NewRecorder()
	Readiness(readiness(false))(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("not-ready status=%d want 503", rr.Code)
	}

	rr = httptest.NewRecorder()
	Readiness(nil)(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("nil reporter status=%d want 200", rr.Code)
	}
}

func TestChecker_NoProbesIsReady(t *testing.T) {
	c := &Checker{}
	if !c.Ready() {
		t.Fatal("empty checker must be ready")
	}
}

func TestChecker_FailingProbeNamedInBody(t *testing.T) {
	c := &Checker{Probes: []Probe{
		{Name: "redis", Check: func(context.Context) error { return nil }},
		{Name: "geoip", Check: func(context.Context) error { return errors.New("db gone") }},
	}}
	if c.Ready() {
		t.Fatal("checker with a failing probe reported ready")
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	Readiness(c)(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Failed map[string]string `json:"failed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "not_ready" {
		t.Fatalf("status=%q want not_ready", body.Status)
	}
	if body.Failed["geoip"] != "db gone" {
		t.Fatalf("failed=%v, want the geoip probe named", body.Failed)
	}
	if _, ok := body.Failed["redis"]; ok {
		t.Fatal("passing probe reported as failed")
	}
}

func TestChecker_AllProbesPass(t *testing.T) {
	c := &Checker{Probes: []Probe{
		{Name: "redis", Check: func(context.Context) error { return nil }},
	}}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	Readiness(c)(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
}
