package engine

import "downbeat/internal/domain"

// OverallProgress derives the entry-level percentage from one update.
//
// Multi-item kinds weight each item equally: finished items contribute their
// full share and the current item contributes proportionally to its own
// percentage. A terminal done payload belonging to the collection itself
// forces 100 so rounding never leaves a finished job short of complete.
// prev is returned when the update carries too little positional data to
// recompute.
func OverallProgress(display domain.Kind, u *domain.StatusUpdate, prev float64) float64 {
	if u == nil {
		return prev
	}

	if domain.Terminates(display, u) {
		if u.Status == domain.StatusDone || u.Status == domain.StatusSkipped {
			return 100
		}
		return prev
	}

	if !display.MultiItem() {
		if u.ItemProgress > 0 {
			return clampPercent(u.ItemProgress)
		}
		return prev
	}

	total := u.TotalItems
	idx := u.CurrentIndex
	if total <= 0 || idx <= 0 {
		return prev
	}
	if idx > total {
		idx = total
	}

	itemShare := u.ItemProgress / 100
	// A child item finishing, by download or by skip, counts as a whole item.
	if u.Status == domain.StatusDone || u.Status == domain.StatusSkipped {
		itemShare = 1
	}

	overall := (float64(idx-1) + itemShare) / float64(total) * 100
	return clampPercent(overall)
}
