// Package router validates API requests and dispatches them to the
// session manager and the stateless query pipeline.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/core/observability"
	"github.com/mkalvans/facilitymap/internal/deeplink"
	"github.com/mkalvans/facilitymap/internal/layers"
	"github.com/mkalvans/facilitymap/internal/locate"
	"github.com/mkalvans/facilitymap/internal/session"
	"github.com/mkalvans/facilitymap/internal/vsync"
)

// Handlers carries the collaborators every route needs.
type Handlers struct {
	Logger   *slog.Logger
	Sessions *session.Manager
	Fetcher  vsync.Fetcher
	Resolver *locate.Resolver
}

// Mount registers every API route on r.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.instrument("/api/sessions", h.createSession))
		r.Delete("/sessions/{id}", h.instrument("/api/sessions/{id}", h.deleteSession))
		r.Post("/sessions/{id}/viewport", h.instrument("/api/sessions/{id}/viewport", h.reportViewport))
		r.Post("/sessions/{id}/locate", h.instrument("/api/sessions/{id}/locate", h.locateSession))
		r.Get("/sessions/{id}/layers/{layer}", h.instrument("/api/sessions/{id}/layers/{layer}", h.layerSnapshot))
		r.Post("/sessions/{id}/layers/{layer}/visibility", h.instrument("/api/sessions/{id}/layers/{layer}/visibility", h.layerVisibility))
		r.Get("/facilities", h.instrument("/api/facilities", h.queryFacilities))
		r.Get("/navigate", h.instrument("/api/navigate", h.navigate))
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *Handlers) instrument(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		fn(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

type createSessionRequest struct {
	Ref      *model.UserReference `json:"ref"`
	Viewport *model.Viewport      `json:"viewport"`
}

func (h *Handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
	}
	if req.Ref != nil {
		if err := validateCoords(req.Ref.Lat, req.Ref.Lon); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Viewport != nil {
		if err := validateViewport(*req.Viewport); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s := h.Sessions.Create(req.Ref, req.Viewport)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       s.ID,
		"viewport": s.Viewport(),
		"layers":   model.Layers(),
	})
}

func (h *Handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.Sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.Sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
	}
	return s, ok
}

func (h *Handlers) reportViewport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var v model.Viewport
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid viewport: "+err.Error())
		return
	}
	if err := validateViewport(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.MoveTo(v)
	w.WriteHeader(http.StatusAccepted)
}

// locateSession sets the reference point. An empty body asks for the
// GeoIP fallback against the client address; when that fails too the
// session keeps going without a reference, location errors are never
// fatal.
func (h *Handlers) locateSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var ref model.UserReference
	decoded := false
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		decoded = true
	}

	if decoded {
		if err := validateCoords(ref.Lat, ref.Lon); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.SetReference(ref)
		writeJSON(w, http.StatusOK, map[string]any{"ref": ref, "source": "device"})
		return
	}

	ipRef, err := h.Resolver.FromIP(clientIP(r))
	if err != nil {
		if !errors.Is(err, locate.ErrNoDatabase) {
			h.Logger.Debug("geoip fallback failed", "err", err)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ref":      nil,
			"source":   "none",
			"viewport": locate.DefaultViewport(),
		})
		return
	}
	s.SetReference(ipRef)
	writeJSON(w, http.StatusOK, map[string]any{"ref": ipRef, "source": "geoip"})
}

func (h *Handlers) layerSnapshot(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := model.ParseLayerKind(chi.URLParam(r, "layer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot(kind))
}

type visibilityRequest struct {
	Visible bool `json:"visible"`
}

func (h *Handlers) layerVisibility(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	kind, err := model.ParseLayerKind(chi.URLParam(r, "layer"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	s.SetVisible(kind, req.Visible)
	w.WriteHeader(http.StatusAccepted)
}

// queryFacilities is the stateless path: bounded fetch, classify,
// nearest, style, all in one request.
func (h *Handlers) queryFacilities(w http.ResponseWriter, r *http.Request) {
	kind, err := model.ParseLayerKind(strings.TrimSpace(r.URL.Query().Get("layer")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := parseBBoxViewport(r.URL.Query().Get("bbox"), r.URL.Query().Get("zoom"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ref *model.UserReference
	if raw := strings.TrimSpace(r.URL.Query().Get("ref")); raw != "" {
		rr, err := parseLatLon(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ref: %v", err))
			return
		}
		ref = &rr
	}

	facilities, err := h.Fetcher.Fetch(r.Context(), kind, v)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"layer":   kind,
		"markers": layers.Render(facilities, ref),
	})
}

func (h *Handlers) navigate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(q.Get("lon")), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	if err := validateCoords(lat, lon); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	platform := deeplink.ParsePlatform(strings.TrimSpace(q.Get("platform")))
	writeJSON(w, http.StatusOK, map[string]string{
		"uri": deeplink.NavigateURI(platform, lat, lon, strings.TrimSpace(q.Get("label"))),
	})
}

func validateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("invalid latitude %f (must be in [-90,90])", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("invalid longitude %f (must be in [-180,180])", lon)
	}
	return nil
}

func validateViewport(v model.Viewport) error {
	if err := validateCoords(v.North, v.East); err != nil {
		return err
	}
	if err := validateCoords(v.South, v.West); err != nil {
		return err
	}
	if v.North <= v.South {
		return errors.New("viewport north must exceed south")
	}
	if v.East <= v.West {
		return errors.New("viewport east must exceed west")
	}
	return validateCoords(v.CenterLat, v.CenterLon)
}

// parseBBoxViewport reads "south,west,north,east" plus an optional zoom
// into a synthetic viewport for the stateless path.
func parseBBoxViewport(raw, zoomRaw string) (model.Viewport, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return model.Viewport{}, errors.New("bbox: expected south,west,north,east")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Viewport{}, fmt.Errorf("bbox[%d]: %w", i, err)
		}
		vals[i] = f
	}
	v := model.Viewport{
		South: vals[0], West: vals[1], North: vals[2], East: vals[3],
		Zoom: locate.DefaultZoom,
	}
	v.CenterLat = (v.North + v.South) / 2
	v.CenterLon = (v.East + v.West) / 2
	if z := strings.TrimSpace(zoomRaw); z != "" {
		n, err := strconv.Atoi(z)
		if err != nil {
			return model.Viewport{}, fmt.Errorf("zoom: %w", err)
		}
		v.Zoom = n
	}
	if err := validateViewport(v); err != nil {
		return model.Viewport{}, err
	}
	return v, nil
}

func parseLatLon(raw string) (model.UserReference, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return model.UserReference{}, errors.New("expected lat,lon")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.UserReference{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.UserReference{}, fmt.Errorf("lon: %w", err)
	}
	if err := validateCoords(lat, lon); err != nil {
		return model.UserReference{}, err
	}
	return model.UserReference{Lat: lat, Lon: lon}, nil
}

// clientIP prefers the first forwarded hop, falling back to the socket
// peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
