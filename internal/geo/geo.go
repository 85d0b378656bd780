// Package geo provides the pure distance and movement math the sync
// engine is built on. Every function here is total for finite inputs:
// callers validate ranges, geo never returns an error.
package geo

import (
	"math"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// EarthRadiusMeters is the mean Earth radius used by the Haversine formula.
const EarthRadiusMeters = 6371000.0

// DefaultMoveThreshold is the fraction of the old viewport diagonal the
// center must shift before a refetch is warranted.
const DefaultMoveThreshold = 0.25

// DistanceMeters returns the great-circle distance between two points.
// Symmetric, zero for identical points. Inputs outside lat [-90,90] /
// lon [-180,180] produce well-defined but meaningless output.
func DistanceMeters(latA, lonA, latB, lonB float64) float64 {
	if latA == latB && lonA == lonB {
		return 0
	}
	phiA := latA * math.Pi / 180
	phiB := latB * math.Pi / 180
	dPhi := (latB - latA) * math.Pi / 180
	dLambda := (lonB - lonA) * math.Pi / 180

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phiA)*math.Cos(phiB)*sinLambda*sinLambda
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// NearestFacility scans facilities for the one closest to the reference
// point. Ties break toward the first facility encountered in slice order.
// Returns -1 when the slice is empty.
func NearestFacility(refLat, refLon float64, facilities []model.Facility) int {
	best := -1
	bestDist := math.Inf(1)
	for i := range facilities {
		d := DistanceMeters(refLat, refLon, facilities[i].Lat, facilities[i].Lon)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// ViewportDiagonalMeters returns the great-circle length of the
// viewport's corner-to-corner diagonal.
func ViewportDiagonalMeters(v model.Viewport) float64 {
	return DistanceMeters(v.South, v.West, v.North, v.East)
}

// HasMovedSignificantly reports whether the center shift between the old
// and new viewport exceeds threshold times the OLD viewport's diagonal.
// Measuring against the old window is deliberate: zooming out and back
// to the same center never trips the threshold on its own, while zooming
// in while panning can.
func HasMovedSignificantly(old, now model.Viewport, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultMoveThreshold
	}
	shift := DistanceMeters(old.CenterLat, old.CenterLon, now.CenterLat, now.CenterLon)
	return shift > threshold*ViewportDiagonalMeters(old)
}
