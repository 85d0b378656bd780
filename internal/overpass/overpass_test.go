package overpass

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

func testViewport() model.Viewport {
	return model.Viewport{
		North: 56.97, South: 56.93, East: 24.15, West: 24.06,
		CenterLat: 56.9496, CenterLon: 24.1052, Zoom: 13,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildBoundedQuery_BBoxOrder(t *testing.T) {
	got := BuildBoundedQuery("node[x]([bbox]);out;", testViewport())
	// Overpass wants south,west,north,east.
	want := "node[x](56.930000,24.060000,56.970000,24.150000);out;"
	if got != want {
		t.Fatalf("query = %q, want %q", got, want)
	}
}

func TestBuildBoundedQuery_ReplacesEveryPlaceholder(t *testing.T) {
	got := BuildBoundedQuery("a([bbox]);b([bbox]);", testViewport())
	if strings.Contains(got, "[bbox]") {
		t.Fatalf("placeholder left in %q", got)
	}
}

func TestQueryTemplate_CoversAllLayers(t *testing.T) {
	for _, layer := range model.Layers() {
		tmpl := QueryTemplate(layer)
		if tmpl == "" {
			t.Errorf("no template for layer %s", layer)
		}
		if !strings.Contains(tmpl, "[bbox]") {
			t.Errorf("template for %s has no [bbox] placeholder", layer)
		}
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(discardLogger(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c, srv
}

func TestFetchFacilities_ClassifiesElements(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("data") == "" {
			t.Error("expected url-encoded data field")
		}
		_, _ = w.Write([]byte(`{"elements":[
			{"id":101,"type":"node","lat":56.95,"lon":24.10,"tags":{"amenity":"drinking_water"}},
			{"id":102,"type":"node","lat":56.96,"lon":24.11,"tags":{"natural":"spring"}}
		]}`))
	})

	fs, err := c.Fetch(context.Background(), model.LayerWater, testViewport())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(fs) != 2 {
		t.Fatalf("got %d facilities, want 2", len(fs))
	}
	if fs[0].ID != 101 || fs[0].Water == nil || !fs[0].Water.Drinkable {
		t.Errorf("first element misclassified: %+v", fs[0])
	}
	if fs[1].Water.Subtype != model.WaterSpring {
		t.Errorf("second element subtype = %s", fs[1].Water.Subtype)
	}
}

func TestFetchFacilities_EmptyResultIsNotAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"elements":[]}`))
	})
	fs, err := c.Fetch(context.Background(), model.LayerToilets, testViewport())
	if err != nil {
		t.Fatalf("empty result returned error: %v", err)
	}
	if len(fs) != 0 {
		t.Fatalf("got %d facilities, want 0", len(fs))
	}
}

func TestFetchFacilities_NonOKStatusIsNetworkError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	})
	_, err := c.Fetch(context.Background(), model.LayerWater, testViewport())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a *FetchError", err)
	}
	if fe.Kind != ErrNetwork {
		t.Errorf("kind = %s, want network", fe.Kind)
	}
	if !strings.Contains(fe.Error(), "429") {
		t.Errorf("status code missing from message: %v", fe)
	}
}

func TestFetchFacilities_BadJSONIsParseError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})
	_, err := c.Fetch(context.Background(), model.LayerWater, testViewport())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a *FetchError", err)
	}
	if fe.Kind != ErrParse {
		t.Errorf("kind = %s, want parse", fe.Kind)
	}
}

func TestFetchFacilities_DeadlineIsTimeoutError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx, model.LayerWater, testViewport())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a *FetchError", err)
	}
	if fe.Kind != ErrTimeout {
		t.Errorf("kind = %s, want timeout", fe.Kind)
	}
}
