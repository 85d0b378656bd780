// Package vsync drives viewport-driven refetching for one facility
// layer: it debounces movement events, gates refetches on a significance
// threshold against the layer's fetch window, and guarantees at most one
// in-flight fetch plus at most one queued follow-up per layer.
package vsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/core/observability"
	"github.com/mkalvans/facilitymap/internal/geo"
)

// DefaultDebounce is how long the engine waits for movement quiescence
// before acting on the last event (trailing edge, not a throttle).
const DefaultDebounce = 300 * time.Millisecond

// State of a layer's fetch lifecycle.
type State int

const (
	StateIdle     State = iota // no fetch window recorded yet
	StateFetching              // a request is in flight
	StateSettled               // fetch window recorded, markers current
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateSettled:
		return "settled"
	default:
		return "idle"
	}
}

// Fetcher loads and classifies the facilities inside a viewport.
type Fetcher interface {
	Fetch(ctx context.Context, layer model.LayerKind, v model.Viewport) ([]model.Facility, error)
}

// Applier receives settled fetch outcomes. Apply replaces the layer's
// markers; Fail leaves them untouched and surfaces the error.
type Applier interface {
	Apply(layer model.LayerKind, facilities []model.Facility)
	Fail(layer model.LayerKind, err error)
}

// Config tunes one engine. Zero values fall back to the defaults, which
// tests shrink to keep themselves fast.
type Config struct {
	Debounce  time.Duration
	Threshold float64
}

type fetchResult struct {
	seq        uint64
	viewport   model.Viewport
	facilities []model.Facility
	err        error
}

// Engine is the per-layer sync state machine. All state is owned by the
// Run goroutine; the exported methods only post messages to it.
type Engine struct {
	layer     model.LayerKind
	fetcher   Fetcher
	applier   Applier
	logger    *slog.Logger
	debounce  time.Duration
	threshold float64

	moves   chan model.Viewport
	shows   chan model.Viewport
	results chan fetchResult

	// Run-goroutine-owned.
	state   State
	window  *model.Viewport
	seq     uint64
	pending *model.Viewport
}

func New(layer model.LayerKind, fetcher Fetcher, applier Applier, logger *slog.Logger, cfg Config) *Engine {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = geo.DefaultMoveThreshold
	}
	return &Engine{
		layer:     layer,
		fetcher:   fetcher,
		applier:   applier,
		logger:    logger,
		debounce:  cfg.Debounce,
		threshold: cfg.Threshold,
		moves:     make(chan model.Viewport, 16),
		shows:     make(chan model.Viewport, 4),
		results:   make(chan fetchResult, 1),
	}
}

// MoveTo reports a settled movement gesture. Never blocks: if the
// mailbox is full the oldest queued viewport is dropped, only the most
// recent one matters anyway.
func (e *Engine) MoveTo(v model.Viewport) {
	for {
		select {
		case e.moves <- v:
			return
		default:
		}
		select {
		case <-e.moves:
		default:
		}
	}
}

// Show requests an immediate significance-checked fetch for the current
// viewport, bypassing the debounce. Used when a hidden layer is
// re-enabled: a layer with no window always fetches, a layer whose
// window still covers the viewport reuses it without a network call.
func (e *Engine) Show(v model.Viewport) {
	select {
	case e.shows <- v:
	default:
	}
}

// Run owns the engine state until ctx is cancelled. Exactly one Run per
// engine.
func (e *Engine) Run(ctx context.Context) {
	timer := time.NewTimer(e.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	timerLive := false
	var latest model.Viewport

	for {
		select {
		case <-ctx.Done():
			if timerLive && !timer.Stop() {
				<-timer.C
			}
			return

		case v := <-e.moves:
			latest = v
			// trailing-edge debounce: every event restarts the clock
			if timerLive && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(e.debounce)
			timerLive = true

		case <-timer.C:
			timerLive = false
			e.consider(ctx, latest)

		case v := <-e.shows:
			e.consider(ctx, v)

		case r := <-e.results:
			e.settle(ctx, r)
		}
	}
}

// consider applies the significance gate and either starts a fetch,
// queues a follow-up, or skips.
func (e *Engine) consider(ctx context.Context, v model.Viewport) {
	if e.state == StateFetching {
		// At most one queued follow-up: later movement replaces it.
		e.pending = &v
		return
	}
	if e.window != nil && !geo.HasMovedSignificantly(*e.window, v, e.threshold) {
		e.logger.Debug("movement below threshold, skipping fetch", "layer", string(e.layer))
		observability.IncSyncDecision(string(e.layer), "skipped")
		return
	}
	e.start(ctx, v)
}

func (e *Engine) start(ctx context.Context, v model.Viewport) {
	e.state = StateFetching
	e.seq++
	seq := e.seq
	observability.IncSyncDecision(string(e.layer), "fetch")
	e.logger.Debug("fetch start", "layer", string(e.layer), "seq", seq, "bbox", v.BBox())

	go func() {
		facilities, err := e.fetcher.Fetch(ctx, e.layer, v)
		select {
		case e.results <- fetchResult{seq: seq, viewport: v, facilities: facilities, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) settle(ctx context.Context, r fetchResult) {
	// Results are applied in issue order; anything but the latest
	// issued sequence is a stale completion and is discarded.
	if r.seq != e.seq {
		observability.IncSyncDecision(string(e.layer), "stale_discarded")
		e.logger.Debug("discarding stale fetch result",
			"layer", string(e.layer), "seq", r.seq, "latest", e.seq)
		return
	}

	e.state = StateSettled
	if r.err != nil {
		e.logger.Warn("fetch failed, keeping previous markers",
			"layer", string(e.layer), "err", r.err)
		e.applier.Fail(e.layer, r.err)
	} else {
		w := r.viewport
		e.window = &w
		e.applier.Apply(e.layer, r.facilities)
	}

	if e.pending != nil {
		v := *e.pending
		e.pending = nil
		e.consider(ctx, v)
	}
}
