package engine

import (
	"fmt"
	"hash/fnv"
	"time"

	"downbeat/internal/domain"
)

// StallSignature hashes the volatile fields that indicate forward motion.
// While a real-time task is healthy at least one of them changes between
// polls; a frozen signature across enough consecutive polls means the
// server-side job is wedged.
func StallSignature(u *domain.StatusUpdate) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%.4f|%.2f|%d|%s", u.ItemProgress, u.TimeElapsed, u.CurrentIndex, u.Name)
	return h.Sum64()
}

// observeStall advances the fingerprint counter for one real-time update and
// reports whether the stall threshold has been crossed. Count is the length
// of the current run of identical signatures, so threshold N fires once N
// consecutive polls report the same signature. Any signature change starts a
// new run.
func observeStall(prev domain.StallFingerprint, u *domain.StatusUpdate, threshold int) (domain.StallFingerprint, bool) {
	if u.Status != domain.StatusRealTime {
		return domain.StallFingerprint{}, false
	}
	sig := StallSignature(u)
	next := domain.StallFingerprint{LastSignature: sig, Count: 1}
	if sig == prev.LastSignature {
		next.Count = prev.Count + 1
	}
	return next, threshold > 0 && next.Count >= threshold
}

// stalledUpdate rewrites a wedged real-time update into a synthetic,
// always-retryable error.
func stalledUpdate(u *domain.StatusUpdate, window time.Duration) *domain.StatusUpdate {
	out := *u
	out.Status = domain.StatusError
	out.CanRetry = true
	minutes := int(window.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	out.ErrorMessage = fmt.Sprintf("stalled, no progress for %d minutes", minutes)
	return &out
}
