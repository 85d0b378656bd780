// Package health exposes the liveness and readiness endpoints.
// Liveness is dependency-free: a wedged upstream must never look like a
// dead process. Readiness runs short named probes against the handles
// the service was actually built with.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Liveness reports that the process is up.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ReadinessReporter reports whether dependencies are usable.
type ReadinessReporter interface {
	Ready() bool
}

// Probe is one named dependency check. Check must respect its context
// deadline.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Checker aggregates probes into a ReadinessReporter. A checker with no
// probes is always ready; that is the in-memory-only deployment, which
// has no external handle to go stale.
type Checker struct {
	Timeout time.Duration
	Probes  []Probe
}

func (c *Checker) Ready() bool {
	return len(c.failures()) == 0
}

// failures runs every probe and collects the ones that errored.
func (c *Checker) failures() map[string]string {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	failed := map[string]string{}
	for _, p := range c.Probes {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := p.Check(ctx)
		cancel()
		if err != nil {
			failed[p.Name] = err.Error()
		}
	}
	return failed
}

// Readiness serves 200/ready or 503/not_ready. When the reporter is a
// *Checker the failing probes are named in the body, which is what you
// want on the first page of an incident.
func Readiness(rr ReadinessReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if c, ok := rr.(*Checker); ok {
			if failed := c.failures(); len(failed) > 0 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": "not_ready",
					"failed": failed,
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			return
		}

		if rr != nil && !rr.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_ready"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
