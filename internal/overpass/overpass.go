// Package overpass queries the Overpass API for facilities inside a
// bounded area and classifies the raw elements into typed records.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/core/observability"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// FetchTimeout is the hard per-request budget. Exceeding it aborts the
// request, it is not a soft warning.
const FetchTimeout = 30 * time.Second

const userAgent = "facilitymap/1.0"

// Element is one raw record from the Overpass response.
type Element struct {
	ID     int64   `json:"id"`
	Type   string  `json:"type"`
	Lat    float64 `json:"lat,omitempty"`
	Lon    float64 `json:"lon,omitempty"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center,omitempty"`
	Tags map[string]string `json:"tags,omitempty"`
}

type response struct {
	Elements []Element `json:"elements"`
}

// ErrKind classifies a failed fetch.
type ErrKind string

const (
	ErrNetwork ErrKind = "network" // transport failure or non-2xx status
	ErrTimeout ErrKind = "timeout" // the 30 s budget was exceeded
	ErrParse   ErrKind = "parse"   // response body was not valid Overpass JSON
)

// FetchError is the typed failure returned by FetchFacilities. The zero
// markers a layer already shows survive any FetchError.
type FetchError struct {
	Kind ErrKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("overpass fetch (%s): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// BuildBoundedQuery substitutes every [bbox] placeholder in the template
// with the viewport bounds in Overpass order: south,west,north,east.
func BuildBoundedQuery(template string, v model.Viewport) string {
	return strings.ReplaceAll(template, "[bbox]", v.BBox())
}

// QueryTemplate returns the Overpass QL template for a layer. Templates
// carry [bbox] placeholders for BuildBoundedQuery to fill.
func QueryTemplate(layer model.LayerKind) string {
	switch layer {
	case model.LayerWater:
		return `[out:json][timeout:25];(` +
			`node["amenity"="drinking_water"]([bbox]);` +
			`node["natural"="spring"]([bbox]);` +
			`node["man_made"="water_well"]([bbox]);` +
			`node["man_made"="water_tap"]([bbox]);` +
			`node["waterway"="water_point"]([bbox]);` +
			`);out body;`
	case model.LayerToilets:
		return `[out:json][timeout:25];(` +
			`node["amenity"="toilets"]([bbox]);` +
			`way["amenity"="toilets"]([bbox]);` +
			`);out center;`
	}
	return ""
}

// Client issues bounded facility queries against one Overpass endpoint.
type Client struct {
	logger   *slog.Logger
	http     *http.Client
	endpoint *url.URL
}

func New(logger *slog.Logger, hc *http.Client, endpoint string) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse overpass url: %w", err)
	}
	return &Client{logger: logger, http: hc, endpoint: u}, nil
}

// Fetch builds the bounded query for a layer's template and issues it.
// This is the entry point the sync engine and the cache wrap.
func (c *Client) Fetch(ctx context.Context, layer model.LayerKind, v model.Viewport) ([]model.Facility, error) {
	return c.FetchFacilities(ctx, layer, BuildBoundedQuery(QueryTemplate(layer), v))
}

// FetchFacilities POSTs the query and classifies every element of the
// response. An empty elements array is a valid empty result, not an
// error. All failures come back as *FetchError.
func (c *Client) FetchFacilities(ctx context.Context, layer model.LayerKind, query string) ([]model.Facility, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(),
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency("overpass", dur.Seconds())
	if err != nil {
		kind := ErrNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		observability.IncFetch(string(layer), string(kind))
		return nil, &FetchError{Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		observability.IncFetch(string(layer), string(ErrNetwork))
		return nil, &FetchError{
			Kind: ErrNetwork,
			Err:  fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))),
		}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.IncFetch(string(layer), string(ErrParse))
		return nil, &FetchError{Kind: ErrParse, Err: fmt.Errorf("decode elements: %w", err)}
	}

	facilities := make([]model.Facility, 0, len(out.Elements))
	for _, el := range out.Elements {
		facilities = append(facilities, ClassifyElement(layer, el))
	}

	c.logger.Debug("overpass fetch done",
		"layer", string(layer),
		"elements", len(facilities),
		"duration", dur.String())
	observability.IncFetch(string(layer), "ok")
	return facilities, nil
}
