// Package keys derives cache keys for bounded facility queries. Nearby
// viewports at the same zoom collapse onto the same H3 cell, so a pan
// that the sync engine would not consider significant also hits the
// same cached result.
package keys

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	h3 "github.com/uber/h3-go/v4"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// DefaultResolution is the H3 resolution viewport centers snap to.
// Res 7 cells are ~5 km across, roughly a city-district viewport.
const DefaultResolution = 7

// Key builds the cache key for one layer query. The query template is
// hashed in so template changes invalidate naturally.
func Key(layer model.LayerKind, v model.Viewport, res int, template string) string {
	if res < 0 || res > 15 {
		res = DefaultResolution
	}
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: v.CenterLat, Lng: v.CenterLon}, res)
	cellStr := "invalid"
	if err == nil {
		cellStr = cell.String()
	}
	sum := xxhash.Sum64String(template)
	return fmt.Sprintf("facility:%s:z%d:%s:q=%016x", layer, zoomBucket(v.Zoom), cellStr, sum)
}

// zoomBucket coarsens zoom so minor zoom jitter shares cache entries
// while city-level and street-level views stay apart.
func zoomBucket(zoom int) int {
	switch {
	case zoom <= 11:
		return 11
	case zoom >= 16:
		return 16
	default:
		return zoom
	}
}
