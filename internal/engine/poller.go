package engine

import "time"

// startPolling begins the poll loop for one entry. Starting twice is a
// no-op: the registry allows at most one active poller per entry, and a
// single goroutine per task means its polls are never issued concurrently
// with each other.
func (e *Engine) startPolling(internalID string) {
	entry, ok := e.store.Get(internalID)
	if !ok || entry.HasEnded || entry.ExternalTaskID == "" {
		return
	}

	e.mu.Lock()
	if _, exists := e.pollers[internalID]; exists {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.pollers[internalID] = stop
	e.mu.Unlock()

	e.wg.Add(1)
	go e.pollLoop(internalID, entry.ExternalTaskID, stop)
}

// stopPolling tears down an entry's poller. Idempotent: stopping a task
// with no active poller is a no-op.
func (e *Engine) stopPolling(internalID string) {
	e.mu.Lock()
	stop, ok := e.pollers[internalID]
	if ok {
		delete(e.pollers, internalID)
	}
	e.mu.Unlock()
	if ok {
		close(stop)
	}
}

func (e *Engine) pollLoop(internalID, taskID string, stop chan struct{}) {
	defer e.wg.Done()
	defer e.clearPoller(internalID, stop)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if e.limiter != nil {
				if err := e.limiter.Wait(e.ctx); err != nil {
					return
				}
			}

			env, err := e.remote.TaskStatus(e.ctx, taskID)
			if err != nil {
				if e.ctx.Err() != nil {
					return
				}
				e.failConnection(internalID, err)
				return
			}

			update := NormalizeEnvelope(env)
			if update == nil {
				// malformed payload; the next poll may succeed
				continue
			}
			if e.applyUpdate(internalID, update) {
				return
			}
		}
	}
}

func (e *Engine) clearPoller(internalID string, own chan struct{}) {
	e.mu.Lock()
	if current, ok := e.pollers[internalID]; ok && current == own {
		delete(e.pollers, internalID)
	}
	e.mu.Unlock()
}
