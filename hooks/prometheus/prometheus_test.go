package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventsCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h.NegativeCached("k", time.Second)
	h.NegativeCached("k", time.Second)
	h.DecodeFailed("k", true, errors.New("bad"))
	h.ExpirePassFailed("User", 4)
	h.LockContended("lock:job-42", 3, 400*time.Millisecond)

	if got := testutil.ToFloat64(h.events.WithLabelValues(EventNegativeCached)); got != 2 {
		t.Errorf("negative_cached = %v, want 2", got)
	}
	if got := testutil.ToFloat64(h.events.WithLabelValues(EventSelfHealed)); got != 1 {
		t.Errorf("self_healed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(h.unexpiry); got != 4 {
		t.Errorf("entries_without_ttl_total = %v, want 4", got)
	}

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, m := range metrics {
		if m.GetName() == "simplecache_lock_contention_seconds" {
			found = true
			if c := m.GetMetric()[0].GetHistogram().GetSampleCount(); c != 1 {
				t.Errorf("histogram samples = %d, want 1", c)
			}
		}
	}
	if !found {
		t.Error("histogram simplecache_lock_contention_seconds not found in registry")
	}
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	if err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	b, err := New(reg)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	a.LockLost("x")
	b.LockLost("x")
	if got := testutil.ToFloat64(a.events.WithLabelValues(EventLockLost)); got != 2 {
		t.Errorf("lock_lost = %v, want 2 (shared counter)", got)
	}
}
