package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/locate"
	"github.com/mkalvans/facilitymap/internal/session"
	"github.com/mkalvans/facilitymap/internal/vsync"
)

func TestParseBBoxViewport_Valid(t *testing.T) {
	v, err := parseBBoxViewport("56.93,24.06,56.97,24.15", "15")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v.South != 56.93 || v.West != 24.06 || v.North != 56.97 || v.East != 24.15 {
		t.Fatalf("bounds wrong: %+v", v)
	}
	if v.Zoom != 15 {
		t.Fatalf("zoom = %d, want 15", v.Zoom)
	}
	// the center is derived from already-parsed float64 bounds, so
	// compare within a ulp-sized tolerance rather than exactly
	if math.Abs(v.CenterLat-56.95) > 1e-9 || math.Abs(v.CenterLon-24.105) > 1e-9 {
		t.Fatalf("center wrong: %+v", v)
	}
}

func TestParseBBoxViewport_DefaultZoom(t *testing.T) {
	v, err := parseBBoxViewport("56.93,24.06,56.97,24.15", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if v.Zoom != locate.DefaultZoom {
		t.Fatalf("zoom = %d, want default %d", v.Zoom, locate.DefaultZoom)
	}
}

func TestParseBBoxViewport_Invalid(t *testing.T) {
	cases := []struct{ bbox, zoom string }{
		{"56.93,24.06,56.97", ""},          // three parts
		{"56.93,24.06,56.97,not-a-num", ""}, // bad float
		{"56.97,24.06,56.93,24.15", ""},     // north below south
		{"56.93,24.15,56.97,24.06", ""},     // east below west
		{"56.93,24.06,99.97,24.15", ""},     // latitude out of range
		{"56.93,24.06,56.97,24.15", "deep"}, // bad zoom
	}
	for _, c := range cases {
		if _, err := parseBBoxViewport(c.bbox, c.zoom); err == nil {
			t.Errorf("bbox=%q zoom=%q: expected error", c.bbox, c.zoom)
		}
	}
}

func TestParseLatLon(t *testing.T) {
	ref, err := parseLatLon("56.9496, 24.1052")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ref.Lat != 56.9496 || ref.Lon != 24.1052 {
		t.Fatalf("got %+v", ref)
	}
	for _, raw := range []string{"", "56.9", "91,24", "56,181", "x,y"} {
		if _, err := parseLatLon(raw); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:4711"
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("peer ip = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	if got := clientIP(r); got != "198.51.100.4" {
		t.Fatalf("forwarded ip = %q", got)
	}
}

type staticFetcher struct {
	facilities []model.Facility
	err        error
}

func (f staticFetcher) Fetch(context.Context, model.LayerKind, model.Viewport) ([]model.Facility, error) {
	return f.facilities, f.err
}

func testServer(t *testing.T, f vsync.Fetcher) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver, err := locate.NewResolver(log, "")
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	h := &Handlers{
		Logger:   log,
		Sessions: session.NewManager(log, f, nil, vsync.Config{Debounce: 10 * time.Millisecond}, time.Minute),
		Fetcher:  f,
		Resolver: resolver,
	}
	r := chi.NewRouter()
	h.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestNavigateEndpoint(t *testing.T) {
	srv := testServer(t, staticFetcher{})

	resp, err := http.Get(srv.URL + "/api/navigate?lat=56.9496&lon=24.1052&platform=geo")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if !strings.HasPrefix(body["uri"], "geo:") {
		t.Fatalf("uri = %q", body["uri"])
	}

	resp, err = http.Get(srv.URL + "/api/navigate?lat=abc&lon=24")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad lat status = %d", resp.StatusCode)
	}
}

func TestQueryFacilities_Stateless(t *testing.T) {
	f := staticFetcher{facilities: []model.Facility{
		{ID: 1, Kind: model.KindWater, Lat: 56.95, Lon: 24.10,
			Water: &model.WaterInfo{Drinkable: true, Subtype: model.WaterDrinking}},
		{ID: 2, Kind: model.KindWater, Lat: 56.96, Lon: 24.14,
			Water: &model.WaterInfo{Drinkable: true, Subtype: model.WaterSpring}},
	}}
	srv := testServer(t, f)

	resp, err := http.Get(srv.URL + "/api/facilities?layer=water&bbox=56.93,24.06,56.97,24.15&ref=56.95,24.10")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Layer   string `json:"layer"`
		Markers []struct {
			Facility model.Facility `json:"facility"`
		} `json:"markers"`
	}
	decodeBody(t, resp, &body)
	if body.Layer != "water" {
		t.Fatalf("layer = %q", body.Layer)
	}
	if len(body.Markers) != 2 {
		t.Fatalf("markers = %d, want 2", len(body.Markers))
	}
	var nearest int
	for _, m := range body.Markers {
		if m.Facility.IsNearest {
			nearest++
			if m.Facility.ID != 1 {
				t.Errorf("nearest id = %d, want 1", m.Facility.ID)
			}
		}
	}
	if nearest != 1 {
		t.Fatalf("nearest count = %d", nearest)
	}
}

func TestQueryFacilities_BadRequests(t *testing.T) {
	srv := testServer(t, staticFetcher{})
	for _, q := range []string{
		"layer=lava&bbox=56.93,24.06,56.97,24.15",
		"layer=water&bbox=56.93,24.06",
		"layer=water&bbox=56.93,24.06,56.97,24.15&ref=oops",
	} {
		resp, err := http.Get(srv.URL + "/api/facilities?" + q)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%q: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := testServer(t, staticFetcher{})

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"ref":{"lat":56.9496,"lon":24.1052}}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created struct {
		ID       string         `json:"id"`
		Viewport model.Viewport `json:"viewport"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" {
		t.Fatal("empty session id")
	}
	if created.Viewport.North <= created.Viewport.South {
		t.Fatalf("degenerate viewport: %+v", created.Viewport)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/" + created.ID + "/layers/water")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}
	var snap struct {
		Layer   string `json:"layer"`
		Visible bool   `json:"visible"`
	}
	decodeBody(t, resp, &snap)
	if !snap.Visible {
		t.Fatal("water layer should start visible")
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/sessions/" + created.ID + "/layers/water")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("stale session status = %d", resp.StatusCode)
	}
}

func TestReportViewport_Validation(t *testing.T) {
	srv := testServer(t, staticFetcher{})

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)

	post := func(body string) int {
		resp, err := http.Post(srv.URL+"/api/sessions/"+created.ID+"/viewport",
			"application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	good := `{"north":56.97,"south":56.93,"east":24.15,"west":24.06,"centerLat":56.95,"centerLon":24.10,"zoom":13}`
	if code := post(good); code != http.StatusAccepted {
		t.Fatalf("valid viewport status = %d", code)
	}
	inverted := `{"north":56.93,"south":56.97,"east":24.15,"west":24.06,"centerLat":56.95,"centerLon":24.10,"zoom":13}`
	if code := post(inverted); code != http.StatusBadRequest {
		t.Fatalf("inverted viewport status = %d", code)
	}

	resp, err = http.Post(srv.URL+"/api/sessions/nope/viewport", "application/json", strings.NewReader(good))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", resp.StatusCode)
	}
}

func TestLocate_NoDatabaseFallsBackToDefaultArea(t *testing.T) {
	srv := testServer(t, staticFetcher{})

	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &created)

	resp, err = http.Post(srv.URL+"/api/sessions/"+created.ID+"/locate", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("locate status = %d", resp.StatusCode)
	}
	var body struct {
		Source   string          `json:"source"`
		Viewport *model.Viewport `json:"viewport"`
	}
	decodeBody(t, resp, &body)
	if body.Source != "none" {
		t.Fatalf("source = %q, want none", body.Source)
	}
	if body.Viewport == nil || body.Viewport.CenterLat != locate.DefaultLat {
		t.Fatalf("viewport = %+v", body.Viewport)
	}
}
