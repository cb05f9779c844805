// Package sloghooks reports cache events through log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/simplecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	DegradedEvery   uint64
	NegativeEvery   uint64
	ContentionEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	degradedCtr   atomic.Uint64
	negativeCtr   atomic.Uint64
	contentionCtr atomic.Uint64
}

var _ simplecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) DecodeFailed(storeKey string, healed bool, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("simplecache.decode_failed",
		"key", h.redact(storeKey),
		"healed", healed,
		"err", err)
}

func (h *Hooks) ReadDegraded(storeKey string, err error) {
	if h.l == nil || !sample(h.opts.DegradedEvery, &h.degradedCtr) {
		return
	}
	h.l.Warn("simplecache.read_degraded",
		"key", h.redact(storeKey),
		"err", err)
}

func (h *Hooks) WriteBackFailed(storeKey string, err error) {
	if h.l == nil || !sample(h.opts.DegradedEvery, &h.degradedCtr) {
		return
	}
	h.l.Warn("simplecache.write_back_failed",
		"key", h.redact(storeKey),
		"err", err)
}

func (h *Hooks) NegativeCached(storeKey string, ttl time.Duration) {
	if h.l == nil || !sample(h.opts.NegativeEvery, &h.negativeCtr) {
		return
	}
	h.l.Debug("simplecache.negative_cached",
		"key", h.redact(storeKey),
		"ttl", ttl)
}

func (h *Hooks) ExpirePassFailed(ns string, failed int) {
	if h.l == nil {
		return
	}
	h.l.Error("simplecache.expire_pass_failed",
		"ns", ns,
		"failed", failed,
		"msg", "entries persist without expiry")
}

func (h *Hooks) LockContended(lockKey string, attempts int, waited time.Duration) {
	if h.l == nil || !sample(h.opts.ContentionEvery, &h.contentionCtr) {
		return
	}
	h.l.Info("simplecache.lock_contended",
		"key", lockKey,
		"attempts", attempts,
		"waited", waited)
}

func (h *Hooks) LockLost(lockKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("simplecache.lock_lost",
		"key", lockKey)
}

func (h *Hooks) LockReleaseFailed(lockKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("simplecache.lock_release_failed",
		"key", lockKey,
		"err", err)
}
