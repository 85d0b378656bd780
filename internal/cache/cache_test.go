package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func vp(lat, lon float64) model.Viewport {
	return model.Viewport{
		North: lat + 0.02, South: lat - 0.02,
		East: lon + 0.04, West: lon - 0.04,
		CenterLat: lat, CenterLon: lon, Zoom: 13,
	}
}

type countingFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, _ model.LayerKind, _ model.Viewport) ([]model.Facility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []model.Facility{{ID: 1, Kind: model.KindWater, Lat: 56.95, Lon: 24.1}}, nil
}

func (f *countingFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func tmpl(model.LayerKind) string { return "node[x]([bbox]);" }

func TestCachingFetcher_SecondCallHits(t *testing.T) {
	inner := &countingFetcher{}
	cf := NewCachingFetcher(inner, NewMemoryStore(16, time.Minute), discardLogger(), time.Minute, 7, tmpl)

	ctx := context.Background()
	first, err := cf.Fetch(ctx, model.LayerWater, vp(56.9496, 24.1052))
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := cf.Fetch(ctx, model.LayerWater, vp(56.9496, 24.1052))
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if inner.count() != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.count())
	}
	if len(first) != len(second) || first[0].ID != second[0].ID {
		t.Fatal("cached result differs from original")
	}
}

func TestCachingFetcher_LayersAreSeparate(t *testing.T) {
	inner := &countingFetcher{}
	cf := NewCachingFetcher(inner, NewMemoryStore(16, time.Minute), discardLogger(), time.Minute, 7, tmpl)

	ctx := context.Background()
	if _, err := cf.Fetch(ctx, model.LayerWater, vp(56.9496, 24.1052)); err != nil {
		t.Fatal(err)
	}
	if _, err := cf.Fetch(ctx, model.LayerToilets, vp(56.9496, 24.1052)); err != nil {
		t.Fatal(err)
	}
	if inner.count() != 2 {
		t.Fatalf("inner calls = %d, want 2 (no cross-layer hits)", inner.count())
	}
}

func TestCachingFetcher_ErrorsAreNotCached(t *testing.T) {
	inner := &countingFetcher{err: errors.New("boom")}
	cf := NewCachingFetcher(inner, NewMemoryStore(16, time.Minute), discardLogger(), time.Minute, 7, tmpl)

	ctx := context.Background()
	if _, err := cf.Fetch(ctx, model.LayerWater, vp(56.9496, 24.1052)); err == nil {
		t.Fatal("expected error")
	}

	inner.mu.Lock()
	inner.err = nil
	inner.mu.Unlock()

	fs, err := cf.Fetch(ctx, model.LayerWater, vp(56.9496, 24.1052))
	if err != nil || len(fs) != 1 {
		t.Fatalf("retry after error: fs=%v err=%v", fs, err)
	}
	if inner.count() != 2 {
		t.Fatalf("inner calls = %d, want 2", inner.count())
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func TestCachingFetcher_BrokenStoreDegradesToDirectFetch(t *testing.T) {
	inner := &countingFetcher{}
	cf := NewCachingFetcher(inner, brokenStore{}, discardLogger(), time.Minute, 7, tmpl)

	fs, err := cf.Fetch(context.Background(), model.LayerWater, vp(56.9496, 24.1052))
	if err != nil || len(fs) != 1 {
		t.Fatalf("broken cache must not fail the fetch: fs=%v err=%v", fs, err)
	}
}

func TestMemoryStore_Expires(t *testing.T) {
	m := NewMemoryStore(16, 20*time.Millisecond)
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry missing")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("entry survived its TTL")
	}
}
