// Package prometheus exports cache events as Prometheus metrics.
package prometheus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/simplecache"
)

// Event label values of simplecache_events_total.
const (
	EventDecodeFailed      = "decode_failed"
	EventSelfHealed        = "self_healed"
	EventReadDegraded      = "read_degraded"
	EventWriteBackFailed   = "write_back_failed"
	EventNegativeCached    = "negative_cached"
	EventExpirePassFailed  = "expire_pass_failed"
	EventLockContended     = "lock_contended"
	EventLockLost          = "lock_lost"
	EventLockReleaseFailed = "lock_release_failed"
)

// Hooks implements simplecache.Hooks with a labelled counter and a
// histogram of time spent waiting on contended locks.
type Hooks struct {
	events   *prometheus.CounterVec
	unexpiry prometheus.Counter
	waited   prometheus.Histogram
}

var _ simplecache.Hooks = (*Hooks)(nil)

// New registers the metrics on registry.
// If registry is nil, prometheus.DefaultRegisterer is used. Metrics already
// registered by another Hooks on the same registry are shared.
func New(registry prometheus.Registerer) (*Hooks, error) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "simplecache",
		Name:      "events_total",
		Help:      "Cache events by kind.",
	}, []string{"event"})
	unexpiry := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "simplecache",
		Name:      "entries_without_ttl_total",
		Help:      "Entries left without expiry by a failed PutAll ttl pass.",
	})
	waited := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "simplecache",
		Name:      "lock_contention_seconds",
		Help:      "Time spent retrying before giving up on a held lock.",
		Buckets:   []float64{.05, .1, .2, .4, .8, 1.6, 3.2},
	})

	h := &Hooks{}
	var err error
	if h.events, err = register(registry, events); err != nil {
		return nil, err
	}
	if h.unexpiry, err = register(registry, unexpiry); err != nil {
		return nil, err
	}
	if h.waited, err = register(registry, waited); err != nil {
		return nil, err
	}
	return h, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (h *Hooks) inc(event string) { h.events.WithLabelValues(event).Inc() }

func (h *Hooks) DecodeFailed(_ string, healed bool, _ error) {
	h.inc(EventDecodeFailed)
	if healed {
		h.inc(EventSelfHealed)
	}
}

func (h *Hooks) ReadDegraded(string, error)           { h.inc(EventReadDegraded) }
func (h *Hooks) WriteBackFailed(string, error)        { h.inc(EventWriteBackFailed) }
func (h *Hooks) NegativeCached(string, time.Duration) { h.inc(EventNegativeCached) }
func (h *Hooks) LockLost(string)                      { h.inc(EventLockLost) }
func (h *Hooks) LockReleaseFailed(string, error)      { h.inc(EventLockReleaseFailed) }

func (h *Hooks) ExpirePassFailed(_ string, failed int) {
	h.inc(EventExpirePassFailed)
	h.unexpiry.Add(float64(failed))
}

func (h *Hooks) LockContended(_ string, _ int, waited time.Duration) {
	h.inc(EventLockContended)
	h.waited.Observe(waited.Seconds())
}
