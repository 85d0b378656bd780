// Package session owns one browser tab's sync state: a viewport sync
// engine and marker collection per layer, plus the user reference point.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkalvans/facilitymap/internal/analytics"
	"github.com/mkalvans/facilitymap/internal/core/model"
	"github.com/mkalvans/facilitymap/internal/core/observability"
	"github.com/mkalvans/facilitymap/internal/layers"
	"github.com/mkalvans/facilitymap/internal/locate"
	"github.com/mkalvans/facilitymap/internal/logger"
	"github.com/mkalvans/facilitymap/internal/vsync"
)

// Session is one live map tab.
type Session struct {
	ID string

	logger  *slog.Logger
	sink    analytics.Sink
	ctrl    *layers.Controller
	engines map[model.LayerKind]*vsync.Engine
	cancel  context.CancelFunc

	mu       sync.Mutex
	viewport model.Viewport
	lastSeen time.Time
}

// applier glues one layer's engine to the controller and the
// analytics sink.
type applier struct {
	s *Session
}

func (a applier) Apply(layer model.LayerKind, facilities []model.Facility) {
	a.s.ctrl.Apply(layer, facilities)
	v := a.s.Viewport()
	ev := analytics.Event{Name: analytics.EventAreaExplored, Layer: layer, Lat: v.CenterLat, Lon: v.CenterLon}
	if len(facilities) == 0 {
		ev.Name = analytics.EventEmptyResult
	}
	a.s.sink.Publish(ev)
}

func (a applier) Fail(layer model.LayerKind, err error) {
	a.s.ctrl.Fail(layer, err)
	a.s.sink.Publish(analytics.Event{Name: analytics.EventFetchFailed, Layer: layer})
}

// MoveTo reports a settled movement gesture. Hidden layers do not see
// movement; their engines catch up when the layer is shown again.
func (s *Session) MoveTo(v model.Viewport) {
	s.mu.Lock()
	s.viewport = v
	s.lastSeen = time.Now()
	s.mu.Unlock()

	for kind, eng := range s.engines {
		if s.ctrl.Visible(kind) {
			eng.MoveTo(v)
		}
	}
}

// Viewport returns the last reported viewport.
func (s *Session) Viewport() model.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SetVisible shows or hides a layer. Showing kicks the layer's engine
// for the current viewport immediately: a layer with no fetch window
// fetches, one whose window still covers the view reuses it.
func (s *Session) SetVisible(kind model.LayerKind, visible bool) {
	s.touch()
	s.ctrl.SetVisible(kind, visible)
	if visible {
		if eng, ok := s.engines[kind]; ok {
			eng.Show(s.Viewport())
		}
		s.sink.Publish(analytics.Event{Name: analytics.EventLayerShown, Layer: kind})
		return
	}
	s.sink.Publish(analytics.Event{Name: analytics.EventLayerHidden, Layer: kind})
}

// SetReference replaces the nearest-facility reference point and
// re-centers the viewport on it, which flows through the normal
// movement path and may trigger refetches.
func (s *Session) SetReference(ref model.UserReference) {
	s.touch()
	s.ctrl.SetReference(&ref)
	s.sink.Publish(analytics.Event{Name: analytics.EventLocated, Lat: ref.Lat, Lon: ref.Lon})
	s.MoveTo(locate.ViewportAround(ref))
}

// Snapshot reads one layer's current render state.
func (s *Session) Snapshot(kind model.LayerKind) layers.Snapshot {
	s.touch()
	return s.ctrl.Snapshot(kind)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) stop() {
	s.cancel()
}

// Manager creates, looks up and expires sessions.
type Manager struct {
	logger  *slog.Logger
	fetcher vsync.Fetcher
	sink    analytics.Sink
	syncCfg vsync.Config
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(log *slog.Logger, fetcher vsync.Fetcher, sink analytics.Sink, syncCfg vsync.Config, ttl time.Duration) *Manager {
	if sink == nil {
		sink = analytics.Nop{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Manager{
		logger:   log,
		fetcher:  fetcher,
		sink:     sink,
		syncCfg:  syncCfg,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create starts a session. A nil initial viewport falls back to the
// default area; a non-nil reference enables nearest computation and
// centers the view on it.
func (m *Manager) Create(ref *model.UserReference, initial *model.Viewport) *Session {
	id := logger.NewID()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:       id,
		logger:   m.logger,
		sink:     m.sink,
		ctrl:     layers.NewController(ref),
		engines:  make(map[model.LayerKind]*vsync.Engine, len(model.Layers())),
		cancel:   cancel,
		lastSeen: time.Now(),
	}

	vp := locate.DefaultViewport()
	switch {
	case initial != nil:
		vp = *initial
	case ref != nil:
		vp = locate.ViewportAround(*ref)
	}
	s.viewport = vp

	for _, kind := range model.Layers() {
		eng := vsync.New(kind, m.fetcher, applier{s: s}, m.logger, m.syncCfg)
		s.engines[kind] = eng
		go eng.Run(ctx)
		// visible layers fetch the initial viewport right away
		if s.ctrl.Visible(kind) {
			eng.Show(vp)
		}
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	observability.SessionOpened()
	m.logger.Info("session created", "session_id", id)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.stop()
		observability.SessionClosed()
		m.logger.Info("session closed", "session_id", id)
	}
	return ok
}

// Run sweeps idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	tick := time.NewTicker(m.ttl / 4)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			cutoff := time.Now().Add(-m.ttl)
			m.mu.Lock()
			var expired []string
			for id, s := range m.sessions {
				if s.idleSince().Before(cutoff) {
					expired = append(expired, id)
				}
			}
			m.mu.Unlock()
			for _, id := range expired {
				m.Delete(id)
			}
		}
	}
}
