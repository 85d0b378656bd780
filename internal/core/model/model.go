// Package model defines core domain types shared across the service.
package model

import "fmt"

// Viewport is an immutable snapshot of the visible map area: bounds in
// EPSG:4326 degrees plus center and zoom as reported by the map surface.
type Viewport struct {
	North     float64 `json:"north"`
	South     float64 `json:"south"`
	East      float64 `json:"east"`
	West      float64 `json:"west"`
	CenterLat float64 `json:"centerLat"`
	CenterLon float64 `json:"centerLon"`
	Zoom      int     `json:"zoom"`
}

// BBox string in Overpass order: south,west,north,east
func (v Viewport) BBox() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", v.South, v.West, v.North, v.East)
}

// LayerKind names an independently toggleable facility layer.
type LayerKind string

const (
	LayerWater   LayerKind = "water"
	LayerToilets LayerKind = "toilets"
)

// Layers lists every known layer in a fixed order.
func Layers() []LayerKind {
	return []LayerKind{LayerWater, LayerToilets}
}

func ParseLayerKind(s string) (LayerKind, error) {
	switch LayerKind(s) {
	case LayerWater:
		return LayerWater, nil
	case LayerToilets:
		return LayerToilets, nil
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

// FacilityKind discriminates the Facility union.
type FacilityKind string

const (
	KindWater  FacilityKind = "water"
	KindToilet FacilityKind = "toilet"
)

// WaterSubtype selects display color for water facilities.
type WaterSubtype string

const (
	WaterSpring   WaterSubtype = "spring"
	WaterWell     WaterSubtype = "well"
	WaterTap      WaterSubtype = "tap"
	WaterPoint    WaterSubtype = "point"
	WaterDrinking WaterSubtype = "drinking_water"
	WaterUnknown  WaterSubtype = "unknown"
)

// TriState is a yes/no/limited/unknown value read from community-maintained
// tags. A missing tag is always TriUnknown, never TriNo.
type TriState string

const (
	TriYes     TriState = "yes"
	TriNo      TriState = "no"
	TriLimited TriState = "limited"
	TriUnknown TriState = "unknown"
)

// WaterInfo is the water-specific half of the Facility union.
type WaterInfo struct {
	Drinkable bool         `json:"drinkable"`
	Subtype   WaterSubtype `json:"subtype"`
}

// ToiletAccessibility groups accessibility-relevant toilet tags.
type ToiletAccessibility struct {
	Wheelchair    TriState `json:"wheelchair"`
	ChangingTable TriState `json:"changingTable"`
}

// ToiletDetails groups the remaining toilet tags.
type ToiletDetails struct {
	Fee          TriState `json:"fee"`
	OpeningHours string   `json:"openingHours,omitempty"` // empty: unknown, assume always open
	Unisex       TriState `json:"unisex"`
}

// ToiletInfo is the toilet-specific half of the Facility union.
type ToiletInfo struct {
	Accessibility ToiletAccessibility `json:"accessibility"`
	Details       ToiletDetails       `json:"details"`
}

// Facility is one classified point of interest. ID is stable across
// refetches of overlapping areas, so a layer refresh is a full replace.
// Exactly the variant matching Kind is non-nil.
type Facility struct {
	ID   int64             `json:"id"`
	Kind FacilityKind      `json:"kind"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags,omitempty"`

	Water  *WaterInfo  `json:"water,omitempty"`
	Toilet *ToiletInfo `json:"toilet,omitempty"`

	// Derived against the session reference point, zero until the
	// layer controller computes them.
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
	IsNearest      bool    `json:"isNearest,omitempty"`
}

// UserReference is the point "nearest facility" is measured from,
// usually the detected device location.
type UserReference struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
