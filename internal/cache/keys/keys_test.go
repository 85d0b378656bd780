package keys

import (
	"strings"
	"testing"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

func vp(lat, lon float64, zoom int) model.Viewport {
	return model.Viewport{
		North: lat + 0.02, South: lat - 0.02,
		East: lon + 0.04, West: lon - 0.04,
		CenterLat: lat, CenterLon: lon, Zoom: zoom,
	}
}

func TestKey_NearbyViewportsShareACell(t *testing.T) {
	a := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "tmpl")
	b := Key(model.LayerWater, vp(56.9498, 24.1055, 13), DefaultResolution, "tmpl")
	if a != b {
		t.Fatalf("tiny pan changed the key:\n%s\n%s", a, b)
	}
}

func TestKey_DistantViewportsDiffer(t *testing.T) {
	riga := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "tmpl")
	tallinn := Key(model.LayerWater, vp(59.4370, 24.7536, 13), DefaultResolution, "tmpl")
	if riga == tallinn {
		t.Fatal("different cities produced the same key")
	}
}

func TestKey_LayersDoNotShareEntries(t *testing.T) {
	w := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "tmpl")
	wc := Key(model.LayerToilets, vp(56.9496, 24.1052, 13), DefaultResolution, "tmpl")
	if w == wc {
		t.Fatal("layers share a cache key")
	}
}

func TestKey_TemplateChangeInvalidates(t *testing.T) {
	a := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "v1")
	b := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "v2")
	if a == b {
		t.Fatal("template change did not change the key")
	}
}

func TestKey_ZoomBuckets(t *testing.T) {
	v13 := Key(model.LayerWater, vp(56.9496, 24.1052, 13), DefaultResolution, "t")
	v14 := Key(model.LayerWater, vp(56.9496, 24.1052, 14), DefaultResolution, "t")
	if v13 == v14 {
		t.Fatal("mid zooms should not share a bucket")
	}

	// Extremes clamp.
	v3 := Key(model.LayerWater, vp(56.9496, 24.1052, 3), DefaultResolution, "t")
	v11 := Key(model.LayerWater, vp(56.9496, 24.1052, 11), DefaultResolution, "t")
	if v3 != v11 {
		t.Fatal("far-out zooms should clamp into one bucket")
	}
}

func TestKey_OutOfRangeResolutionFallsBack(t *testing.T) {
	got := Key(model.LayerWater, vp(56.9496, 24.1052, 13), 99, "t")
	if !strings.HasPrefix(got, "facility:water:") {
		t.Fatalf("key = %q", got)
	}
}
