// Package analytics emits named usage events through a fire-and-forget
// sink. The sink never blocks the request path, never returns an error
// to callers, and is never required: with the nop sink every core
// behavior proceeds identically.
package analytics

import (
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// Event is one usage observation.
type Event struct {
	Name  string          `json:"name"`
	Layer model.LayerKind `json:"layer,omitempty"`
	Lat   float64         `json:"lat,omitempty"`
	Lon   float64         `json:"lon,omitempty"`
	TS    time.Time       `json:"ts"`
}

// Well-known event names.
const (
	EventAreaExplored = "area_explored"
	EventEmptyResult  = "empty_result"
	EventLayerShown   = "layer_shown"
	EventLayerHidden  = "layer_hidden"
	EventLocated      = "located"
	EventFetchFailed  = "fetch_failed"
)

// Sink accepts events. Implementations must not block.
type Sink interface {
	Publish(ev Event)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(Event) {}
