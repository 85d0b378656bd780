// Package present maps classified facilities to marker styles and popup
// content. Everything here is a pure function of its inputs.
package present

import (
	"fmt"
	"strings"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// ShapeVariant selects the marker silhouette. Color alone is not enough
// for warning states, so non-drinkable water gets its own shape.
type ShapeVariant string

const (
	ShapeCircle        ShapeVariant = "circle"
	ShapeCrossedCircle ShapeVariant = "crossed-circle"
)

// MarkerStyle is everything the map surface needs to draw one marker.
type MarkerStyle struct {
	StrokeColor  string       `json:"strokeColor"`
	FillColor    string       `json:"fillColor"`
	Radius       int          `json:"radius"`
	StrokeWeight int          `json:"strokeWeight"`
	FillOpacity  float64      `json:"fillOpacity"`
	Shape        ShapeVariant `json:"shape"`
}

// StyleOptions carries the per-render flags that override kind styling.
type StyleOptions struct {
	IsNearest  bool
	IsSeasonal bool
}

var nearestStyle = MarkerStyle{
	StrokeColor:  "#d32f2f",
	FillColor:    "#ff5252",
	Radius:       11,
	StrokeWeight: 3,
	FillOpacity:  0.9,
	Shape:        ShapeCircle,
}

var waterColors = map[model.WaterSubtype]string{
	model.WaterSpring:   "#00897b",
	model.WaterWell:     "#6d4c41",
	model.WaterTap:      "#1e88e5",
	model.WaterPoint:    "#3949ab",
	model.WaterDrinking: "#039be5",
	model.WaterUnknown:  "#546e7a",
}

// StyleFor returns the marker style for a facility. The nearest
// highlight wins over kind-based coloring; a seasonal facility is drawn
// half-transparent.
func StyleFor(f model.Facility, opts StyleOptions) MarkerStyle {
	if opts.IsNearest {
		return nearestStyle
	}

	style := MarkerStyle{
		Radius:       7,
		StrokeWeight: 2,
		FillOpacity:  0.75,
		Shape:        ShapeCircle,
	}

	switch f.Kind {
	case model.KindWater:
		color := waterColors[model.WaterUnknown]
		drinkable := false
		if f.Water != nil {
			color = waterColors[f.Water.Subtype]
			drinkable = f.Water.Drinkable
		}
		style.StrokeColor = color
		style.FillColor = color
		if !drinkable {
			style.Shape = ShapeCrossedCircle
			style.StrokeColor = "#b71c1c"
		}
	case model.KindToilet:
		style.StrokeColor = "#5e35b1"
		style.FillColor = "#7e57c2"
		if f.Toilet != nil && f.Toilet.Accessibility.Wheelchair == model.TriYes {
			style.StrokeColor = "#2e7d32"
		}
	default:
		// unclassified kinds stay visible in a neutral grey
		style.StrokeColor = "#757575"
		style.FillColor = "#9e9e9e"
	}

	if opts.IsSeasonal {
		style.FillOpacity = 0.4
	}
	return style
}

const unavailable = "information unavailable"

// PopupContent renders the facility detail text shown when a marker is
// clicked. Every optional field gets an explicit placeholder so the
// popup layout stays predictable.
func PopupContent(f model.Facility) string {
	var b strings.Builder

	switch f.Kind {
	case model.KindWater:
		b.WriteString("Drinking water\n")
		if f.Water != nil {
			b.WriteString("Source: " + waterSubtypeLabel(f.Water.Subtype) + "\n")
			if f.Water.Drinkable {
				b.WriteString("Potable: yes\n")
			} else {
				b.WriteString("Potable: NO - not drinking water\n")
			}
		} else {
			b.WriteString("Source: " + unavailable + "\n")
			b.WriteString("Potable: " + unavailable + "\n")
		}
	case model.KindToilet:
		b.WriteString("Public toilet\n")
		if f.Toilet != nil {
			b.WriteString("Wheelchair: " + triLabel(f.Toilet.Accessibility.Wheelchair) + "\n")
			b.WriteString("Changing table: " + triLabel(f.Toilet.Accessibility.ChangingTable) + "\n")
			b.WriteString("Fee: " + triLabel(f.Toilet.Details.Fee) + "\n")
			b.WriteString("Hours: " + hoursLabel(f.Toilet.Details.OpeningHours) + "\n")
			b.WriteString("Unisex: " + triLabel(f.Toilet.Details.Unisex) + "\n")
		} else {
			b.WriteString("Wheelchair: " + unavailable + "\n")
			b.WriteString("Changing table: " + unavailable + "\n")
			b.WriteString("Fee: " + unavailable + "\n")
			b.WriteString("Hours: " + unavailable + "\n")
			b.WriteString("Unisex: " + unavailable + "\n")
		}
	default:
		b.WriteString("Facility\n")
	}

	if name := f.Tags["name"]; name != "" {
		b.WriteString("Name: " + name + "\n")
	}
	b.WriteString("Distance: " + distanceLabel(f) + "\n")
	if f.IsNearest {
		b.WriteString("Nearest to you\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func distanceLabel(f model.Facility) string {
	if f.DistanceMeters <= 0 && !f.IsNearest {
		return unavailable
	}
	if f.DistanceMeters >= 1000 {
		return fmt.Sprintf("%.1f km", f.DistanceMeters/1000)
	}
	return fmt.Sprintf("%.0f m", f.DistanceMeters)
}

func waterSubtypeLabel(s model.WaterSubtype) string {
	switch s {
	case model.WaterSpring:
		return "spring"
	case model.WaterWell:
		return "well"
	case model.WaterTap:
		return "tap"
	case model.WaterPoint:
		return "water point"
	case model.WaterDrinking:
		return "drinking fountain"
	default:
		return unavailable
	}
}

func triLabel(t model.TriState) string {
	switch t {
	case model.TriYes:
		return "yes"
	case model.TriNo:
		return "no"
	case model.TriLimited:
		return "limited"
	default:
		return unavailable
	}
}

func hoursLabel(h string) string {
	if h == "" {
		return unavailable
	}
	return h
}
