// Package locate resolves the session's initial position. The browser
// supplies device coordinates when it can; when geolocation fails
// (permission denied, unavailable, timeout, insecure context) the
// service falls back to a GeoIP approximation of the client address,
// and failing that to the default viewport. Location failure is never
// fatal to startup.
package locate

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/mkalvans/facilitymap/internal/core/model"
)

// Default viewport: central Riga at a walkable zoom.
const (
	DefaultLat  = 56.9496
	DefaultLon  = 24.1052
	DefaultZoom = 13
)

// ErrNoDatabase means GeoIP fallback is not configured.
var ErrNoDatabase = errors.New("locate: no geoip database configured")

// DefaultViewport is the rectangle shown when no location is known.
// Roughly a res-13 map view around the default center.
func DefaultViewport() model.Viewport {
	const half = 0.02
	return model.Viewport{
		North:     DefaultLat + half,
		South:     DefaultLat - half,
		East:      DefaultLon + 2*half,
		West:      DefaultLon - 2*half,
		CenterLat: DefaultLat,
		CenterLon: DefaultLon,
		Zoom:      DefaultZoom,
	}
}

// Resolver answers IP-based location fallback queries from a MaxMind
// city database.
type Resolver struct {
	logger *slog.Logger
	db     *geoip2.Reader
}

// NewResolver opens the mmdb at path. An empty path yields a resolver
// that always reports ErrNoDatabase, which callers treat as "use the
// default viewport".
func NewResolver(logger *slog.Logger, path string) (*Resolver, error) {
	r := &Resolver{logger: logger}
	if path == "" {
		return r, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	r.db = db
	return r, nil
}

// FromIP approximates a reference point from a client address.
func (r *Resolver) FromIP(addr string) (model.UserReference, error) {
	if r.db == nil {
		return model.UserReference{}, ErrNoDatabase
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return model.UserReference{}, fmt.Errorf("locate: bad client address %q", addr)
	}
	city, err := r.db.City(ip)
	if err != nil {
		return model.UserReference{}, fmt.Errorf("geoip lookup: %w", err)
	}
	if city.Location.Latitude == 0 && city.Location.Longitude == 0 {
		return model.UserReference{}, fmt.Errorf("locate: no position for %s", addr)
	}
	r.logger.Debug("geoip fallback resolved", "addr", addr,
		"lat", city.Location.Latitude, "lon", city.Location.Longitude)
	return model.UserReference{Lat: city.Location.Latitude, Lon: city.Location.Longitude}, nil
}

func (r *Resolver) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// ViewportAround centers the default-sized rectangle on a reference
// point, preserving the default zoom.
func ViewportAround(ref model.UserReference) model.Viewport {
	v := DefaultViewport()
	dLat := v.North - v.CenterLat
	dLon := v.East - v.CenterLon
	return model.Viewport{
		North:     ref.Lat + dLat,
		South:     ref.Lat - dLat,
		East:      ref.Lon + dLon,
		West:      ref.Lon - dLon,
		CenterLat: ref.Lat,
		CenterLon: ref.Lon,
		Zoom:      v.Zoom,
	}
}
