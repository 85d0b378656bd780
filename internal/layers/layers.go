// Package layers owns the per-facility-type marker collections that the
// map surface renders. A layer update is always a full clear-then-redraw
// of the collection, never an incremental patch: with tens to low
// hundreds of facilities per viewport the redraw cost is noise next to
// the network round-trip it follows.
package layers

import (
	"sync"
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/geo"
	"github.com/mkalvans/facilitymap/internal/present"
)

// Marker is one renderable facility with its computed style and popup.
type Marker struct {
	Facility model.Facility      `json:"facility"`
	Style    present.MarkerStyle `json:"style"`
	Popup    string              `json:"popup"`
}

// Snapshot is the serializable view of one layer handed to the surface.
type Snapshot struct {
	Layer     model.LayerKind `json:"layer"`
	Visible   bool            `json:"visible"`
	Markers   []Marker        `json:"markers"`
	FetchedAt time.Time       `json:"fetchedAt,omitzero"`
	// Stale is set when the last fetch failed and the markers shown
	// predate it. Stale-but-visible beats empty.
	Stale     bool   `json:"stale,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

type layerState struct {
	visible    bool
	facilities []model.Facility
	markers    []Marker
	fetchedAt  time.Time
	stale      bool
	lastErr    string
}

// Controller mediates show/hide and marker replacement for every layer
// of one session.
type Controller struct {
	mu  sync.Mutex
	ref *model.UserReference
	lyr map[model.LayerKind]*layerState
}

func NewController(ref *model.UserReference) *Controller {
	c := &Controller{
		ref: ref,
		lyr: make(map[model.LayerKind]*layerState, len(model.Layers())),
	}
	for _, k := range model.Layers() {
		c.lyr[k] = &layerState{visible: k == model.LayerWater}
	}
	return c
}

// SetReference replaces the nearest-facility reference point and
// re-renders every layer's markers against it. Passing nil disables
// nearest computation.
func (c *Controller) SetReference(ref *model.UserReference) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref = ref
	for _, st := range c.lyr {
		if st.facilities != nil {
			st.markers = Render(st.facilities, c.ref)
		}
	}
}

// Apply replaces a layer's markers with the styled fetch result.
// Nearest and distances are computed against the current reference
// point; exactly zero or one marker per layer ends up nearest.
func (c *Controller) Apply(layer model.LayerKind, facilities []model.Facility) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.lyr[layer]
	if !ok {
		return
	}

	st.facilities = facilities
	st.markers = Render(facilities, c.ref)
	st.fetchedAt = time.Now()
	st.stale = false
	st.lastErr = ""
}

// Fail records a fetch failure. Existing markers stay untouched.
func (c *Controller) Fail(layer model.LayerKind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.lyr[layer]
	if !ok {
		return
	}
	st.stale = len(st.markers) > 0
	st.lastErr = err.Error()
}

// SetVisible toggles a layer. Hiding keeps the markers and the fetch
// window so re-showing an unmoved map costs nothing.
func (c *Controller) SetVisible(layer model.LayerKind, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.lyr[layer]; ok {
		st.visible = visible
	}
}

func (c *Controller) Visible(layer model.LayerKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.lyr[layer]
	return ok && st.visible
}

// Snapshot copies a layer's current render state. A hidden layer
// reports no markers.
func (c *Controller) Snapshot(layer model.LayerKind) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Layer: layer}
	st, ok := c.lyr[layer]
	if !ok {
		return snap
	}
	snap.Visible = st.visible
	snap.FetchedAt = st.fetchedAt
	snap.Stale = st.stale
	snap.LastError = st.lastErr
	if st.visible {
		snap.Markers = make([]Marker, len(st.markers))
		copy(snap.Markers, st.markers)
	}
	return snap
}

// Render styles a facility set against a reference point. Exposed for
// the stateless query path, which skips the per-session controller.
func Render(facilities []model.Facility, ref *model.UserReference) []Marker {
	nearest := -1
	if ref != nil {
		nearest = geo.NearestFacility(ref.Lat, ref.Lon, facilities)
	}

	markers := make([]Marker, 0, len(facilities))
	for i := range facilities {
		f := facilities[i]
		if ref != nil {
			f.DistanceMeters = geo.DistanceMeters(ref.Lat, ref.Lon, f.Lat, f.Lon)
		}
		f.IsNearest = i == nearest
		m := Marker{
			Facility: f,
			Style:    present.StyleFor(f, present.StyleOptions{IsNearest: f.IsNearest, IsSeasonal: f.Tags["seasonal"] == "yes"}),
		}
		m.Popup = present.PopupContent(f)
		markers = append(markers, m)
	}
	return markers
}
