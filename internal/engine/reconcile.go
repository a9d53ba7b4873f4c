package engine

import (
	"time"

	"downbeat/internal/domain"
	"downbeat/internal/remote"
)

func (e *Engine) reconcileLoop() {
	defer e.wg.Done()

	// cold-start resume before the first tick
	e.reconcile()

	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.reconcile()
		}
	}
}

// reconcile diffs the local view against the server's authoritative task
// list: unknown live server tasks are adopted, drifted statuses are merged
// through the normal update path, and local live tasks absent from the list
// are assumed finished server-side and removed.
func (e *Engine) reconcile() {
	infos, err := e.remote.ListTasks(e.ctx)
	if err != nil {
		if e.ctx.Err() == nil {
			e.logger.Warnf("list server tasks: %v", err)
		}
		return
	}

	seen := make(map[string]struct{}, len(infos))
	for i := range infos {
		info := &infos[i]
		if info.TaskID == "" {
			continue
		}
		seen[info.TaskID] = struct{}{}

		update := NormalizeRaw(info.LastStatus)

		local, ok := e.store.FindByExternal(info.TaskID)
		if !ok {
			e.adoptServerTask(info, update)
			continue
		}
		if local.HasEnded {
			continue
		}
		if update != nil && !sameObservation(local.LastUpdate, update) {
			// terminal server states tear the entry down through the same
			// path a poll would, promotion rule included
			e.applyUpdate(local.InternalID, update)
		}
	}

	for _, entry := range e.store.List() {
		if entry.HasEnded || entry.IsRetrying || entry.ExternalTaskID == "" {
			continue
		}
		if _, ok := seen[entry.ExternalTaskID]; !ok {
			e.logger.WithField("internal_id", entry.InternalID).
				Infof("task %s gone from server list, dropping", entry.ExternalTaskID)
			e.removeEntry(e.ctx, entry.InternalID)
		}
	}

	// Adoption had its chance to claim cached slots during this pass; the
	// rest would be held for the life of the process otherwise.
	e.mu.Lock()
	if len(e.preseed) > 0 {
		e.preseed = make(map[string]domain.StatusUpdate)
	}
	e.mu.Unlock()
}

// adoptServerTask starts tracking a job discovered on the server. Cached
// last-known state is applied first so the entry renders correctly before
// its first poll completes.
func (e *Engine) adoptServerTask(info *remote.TaskInfo, update *domain.StatusUpdate) {
	if update != nil && update.Status.Terminal() {
		// finished before we ever saw it; nothing to track
		return
	}

	entry := domain.TaskEntry{
		ExternalTaskID: info.TaskID,
		Kind:           kindFromInfo(info, update),
		Display:        displayFromInfo(info),
		SourceURL:      originURL(info),
	}
	added := e.store.Add(e.ctx, entry)
	e.logger.WithField("internal_id", added.InternalID).
		Infof("adopted server task %s (%s)", info.TaskID, added.Kind)

	if cached, ok := e.takePreseed(info.TaskID); ok {
		if e.applyUpdate(added.InternalID, &cached) {
			return
		}
	}
	if update != nil {
		if e.applyUpdate(added.InternalID, update) {
			return
		}
	}
	e.startPolling(added.InternalID)
}

func kindFromInfo(info *remote.TaskInfo, update *domain.StatusUpdate) domain.Kind {
	if kind, ok := domain.ParseKind(info.Type); ok {
		return kind
	}
	if update != nil && update.Kind != "" {
		return update.Kind
	}
	if info.OriginalRequest != nil {
		if kind, ok := domain.ParseKind(info.OriginalRequest.Type); ok {
			return kind
		}
	}
	return domain.KindTrack
}

func displayFromInfo(info *remote.TaskInfo) domain.DisplayItem {
	display := domain.DisplayItem{Name: info.Name}
	if info.OriginalRequest != nil {
		if display.Name == "" {
			display.Name = info.OriginalRequest.Name
		}
		display.Artist = info.OriginalRequest.Artist
	}
	return display
}

func originURL(info *remote.TaskInfo) string {
	if info.OriginalRequest != nil {
		return info.OriginalRequest.URL
	}
	return ""
}

// sameObservation reports whether the server list echoes what the poller
// already applied, so reconciliation does not replay identical updates (and
// in particular does not advance the stall counter off-cadence).
func sameObservation(prev, next *domain.StatusUpdate) bool {
	if prev == nil {
		return false
	}
	return prev.Status == next.Status &&
		prev.CurrentIndex == next.CurrentIndex &&
		prev.ItemProgress == next.ItemProgress &&
		prev.TimeElapsed == next.TimeElapsed
}
