package engine

import (
	"fmt"

	"downbeat/internal/domain"
	"downbeat/internal/remote"
)

// NormalizeEnvelope converts a poll response into a canonical update. The
// nested last_line payload is authoritative when present; otherwise the
// envelope's own status is all we have. Returns nil for payloads that carry
// no usable status, which callers treat as a skipped poll cycle.
func NormalizeEnvelope(env *remote.StatusEnvelope) *domain.StatusUpdate {
	if env == nil {
		return nil
	}
	if env.LastLine != nil {
		u := NormalizeRaw(env.LastLine)
		if u != nil && u.Summary == nil && env.Summary != nil {
			u.Summary = normalizeSummary(env.Summary)
		}
		return u
	}
	status, ok := domain.ParseStatus(env.Status)
	if !ok {
		return nil
	}
	return &domain.StatusUpdate{
		Status:  status,
		Summary: normalizeSummary(env.Summary),
	}
}

// NormalizeRaw converts one shape-varying raw payload into canonical form,
// coercing numeric-looking strings and resolving the name/artist aliases the
// server uses per kind.
func NormalizeRaw(raw *remote.RawStatus) *domain.StatusUpdate {
	if raw == nil {
		return nil
	}
	status, ok := domain.ParseStatus(raw.Status)
	if !ok {
		return nil
	}

	kind, _ := domain.ParseKind(raw.Type)

	name := raw.Song
	if name == "" {
		name = raw.Name
	}
	if name == "" {
		name = raw.Album
	}
	artist := raw.Artist
	if artist == "" {
		artist = raw.Owner
	}

	total := raw.CurrentTrack.Total
	if total == 0 {
		total = int(raw.TotalTracks)
	}

	u := &domain.StatusUpdate{
		Status:       status,
		Kind:         kind,
		Name:         name,
		Artist:       artist,
		CurrentIndex: raw.CurrentTrack.Index,
		TotalItems:   total,
		ItemProgress: clampPercent(float64(raw.Progress)),
		TimeElapsed:  float64(raw.TimeElapsed),
		ErrorMessage: raw.Error,
		RetryCount:   int(raw.RetryCount),
		SourceURL:    raw.URL,
		Parent:       normalizeParent(raw.Parent),
		Summary:      normalizeSummary(raw.Summary),
	}

	if raw.CanRetry != nil {
		u.CanRetry = *raw.CanRetry
	} else {
		u.CanRetry = status == domain.StatusError
	}

	// An item update often only knows its collection size through the
	// parent block.
	if u.TotalItems == 0 && u.Parent != nil {
		u.TotalItems = u.Parent.TotalItems
	}
	return u
}

func normalizeParent(p *remote.RawParent) *domain.ParentRef {
	if p == nil {
		return nil
	}
	kind, ok := domain.ParseKind(p.Type)
	if !ok {
		return nil
	}
	return &domain.ParentRef{
		Kind:       kind,
		Title:      p.DisplayTitle(),
		Owner:      p.Owner,
		TotalItems: int(p.TotalTracks),
		SourceURL:  p.URL,
	}
}

func normalizeSummary(s *remote.RawSummary) *domain.Summary {
	if s == nil {
		return nil
	}
	return &domain.Summary{
		Successful: int(s.Successful),
		Skipped:    int(s.Skipped),
		Failed:     int(s.Failed),
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// RenderMessage produces the human-readable status line for one update.
// The retry countdown variant is rendered by the retry controller, which
// owns the timing.
func RenderMessage(u *domain.StatusUpdate, display domain.DisplayItem, kind domain.Kind) string {
	switch u.Status {
	case domain.StatusQueued:
		if display.Name != "" && display.Artist != "" {
			return fmt.Sprintf("Queued %s %q by %s", kind, display.Name, display.Artist)
		}
		if display.Name != "" {
			return fmt.Sprintf("Queued %s %q", kind, display.Name)
		}
		return fmt.Sprintf("Queued %s", kind)

	case domain.StatusInitializing:
		return "Preparing download..."

	case domain.StatusProcessing, domain.StatusDownloading, domain.StatusProgress:
		if u.CurrentIndex > 0 && u.TotalItems > 0 {
			return fmt.Sprintf("Processing track %d of %d...", u.CurrentIndex, u.TotalItems)
		}
		return "Processing..."

	case domain.StatusRealTime:
		if u.Name != "" {
			return fmt.Sprintf("Downloading %q (%.0f%%)", u.Name, u.ItemProgress)
		}
		return fmt.Sprintf("Downloading (%.0f%%)", u.ItemProgress)

	case domain.StatusRetrying:
		if u.RetryCount > 0 {
			return fmt.Sprintf("Retrying (attempt %d)...", u.RetryCount+1)
		}
		return "Retrying..."

	case domain.StatusDone:
		if kind.MultiItem() && u.Summary != nil {
			return fmt.Sprintf("Done: %d succeeded, %d skipped, %d failed",
				u.Summary.Successful, u.Summary.Skipped, u.Summary.Failed)
		}
		if display.Name != "" {
			return fmt.Sprintf("Downloaded %q", display.Name)
		}
		return "Download complete"

	case domain.StatusSkipped:
		if u.ErrorMessage != "" {
			return fmt.Sprintf("Skipped: %s", u.ErrorMessage)
		}
		return "Skipped (already downloaded)"

	case domain.StatusCancelled:
		return "Cancelled"

	case domain.StatusError:
		msg := u.ErrorMessage
		if msg == "" {
			msg = "download failed"
		}
		if u.RetryCount > 0 {
			return fmt.Sprintf("Failed: %s (attempt %d)", msg, u.RetryCount+1)
		}
		return fmt.Sprintf("Failed: %s", msg)
	}
	return string(u.Status)
}
