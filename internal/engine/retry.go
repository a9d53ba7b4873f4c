package engine

import (
	"context"
	"fmt"
	"time"

	"downbeat/internal/domain"
	"downbeat/internal/remote"
)

// Backoff computes a deterministic capped exponential backoff duration.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Retry re-dispatches a failed job. It is only valid for entries in terminal
// error state with a recoverable source reference. The dispatch runs after a
// capped backoff; on success a brand-new entry replaces the old one, which
// is torn down completely including its durable cache slot. A dispatch
// failure restores the error state and re-enables the retry affordance.
func (e *Engine) Retry(ctx context.Context, internalID string) error {
	entry, ok := e.store.Get(internalID)
	if !ok {
		return ErrTaskNotFound
	}
	if entry.IsRetrying {
		return nil
	}
	if !entry.CanRetry() {
		return fmt.Errorf("%w: status %s", ErrNotRetryable, entry.Status)
	}

	retryURL := entry.RetryURL()
	delay := Backoff(entry.RetryCount, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay)

	// the read-the-error window is over; the entry now shows retry state
	e.cancelCleanup(internalID)
	e.store.Update(ctx, internalID, func(t *domain.TaskEntry) {
		t.IsRetrying = true
		t.Status = domain.StatusRetrying
		t.Message = fmt.Sprintf("Retrying in %s (attempt %d)", delay.Round(time.Second), t.RetryCount+2)
	})

	e.wg.Add(1)
	go e.dispatchRetry(internalID, entry, retryURL, delay)
	return nil
}

func (e *Engine) dispatchRetry(internalID string, old domain.TaskEntry, retryURL string, delay time.Duration) {
	defer e.wg.Done()
	logger := e.logger.WithField("internal_id", internalID)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-e.ctx.Done():
		return
	case <-timer.C:
	}

	result, err := e.remote.StartJob(e.ctx, remote.StartRequest{
		Kind:   string(old.Kind),
		URL:    retryURL,
		Name:   old.Display.Name,
		Artist: old.Display.Artist,
	})
	if err != nil {
		if e.ctx.Err() != nil {
			return
		}
		logger.Warnf("retry dispatch failed: %v", err)
		e.store.Update(e.ctx, internalID, func(t *domain.TaskEntry) {
			t.IsRetrying = false
			t.Status = domain.StatusError
			t.Message = fmt.Sprintf("Retry failed: %v", err)
		})
		e.scheduleCleanup(internalID, domain.StatusError)
		return
	}

	for _, taskID := range result.TaskIDs {
		fresh := e.store.Add(e.ctx, domain.TaskEntry{
			ExternalTaskID: taskID,
			Kind:           old.Kind,
			Display:        old.Display,
			SourceURL:      retryURL,
			RetryCount:     old.RetryCount + 1,
		})
		logger.Infof("retried as task %s (internal %s)", taskID, fresh.InternalID)
		e.startPolling(fresh.InternalID)
	}

	// no overwrite in place: the old entry goes away entirely
	e.removeEntry(e.ctx, internalID)
}
