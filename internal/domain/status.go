package domain

type Status string

const (
	StatusQueued       Status = "queued"
	StatusInitializing Status = "initializing"
	StatusProcessing   Status = "processing"
	StatusDownloading  Status = "downloading"
	StatusProgress     Status = "progress"
	StatusRealTime     Status = "real-time"
	StatusRetrying     Status = "retrying"
	StatusDone         Status = "done"
	StatusError        Status = "error"
	StatusCancelled    Status = "cancelled"
	StatusSkipped      Status = "skipped"
)

// Terminal reports whether a status ends the task's lifecycle. done/skipped
// and error/cancelled are terminal; everything else may repeat.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

// Failed reports whether a terminal status should get the longer cleanup
// window so the user can read the message or retry.
func (s Status) Failed() bool {
	switch s {
	case StatusError, StatusCancelled, StatusSkipped:
		return true
	default:
		return false
	}
}

// ParseStatus maps raw server status strings, including the spelling
// variants the server emits, onto the canonical enum.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "queued", "pending":
		return StatusQueued, true
	case "initializing", "initialising":
		return StatusInitializing, true
	case "processing":
		return StatusProcessing, true
	case "downloading":
		return StatusDownloading, true
	case "progress":
		return StatusProgress, true
	case "real-time", "real_time", "realtime":
		return StatusRealTime, true
	case "retrying":
		return StatusRetrying, true
	case "done", "complete", "completed":
		return StatusDone, true
	case "error", "failed":
		return StatusError, true
	case "cancelled", "canceled", "cancel":
		return StatusCancelled, true
	case "skipped":
		return StatusSkipped, true
	default:
		return "", false
	}
}

// StatusUpdate is one raw payload normalized into canonical form. The raw
// shapes vary by kind and by collection-vs-item level; everything downstream
// of the normalizer works on this struct only.
type StatusUpdate struct {
	Status Status
	Kind   Kind

	Name   string
	Artist string

	// CurrentIndex and TotalItems position an item update inside its
	// collection (1-based index; zero when unknown).
	CurrentIndex int
	TotalItems   int

	// ItemProgress is the current item's own percentage in [0,100].
	ItemProgress float64

	// TimeElapsed is seconds reported by the server, part of the stall
	// signature.
	TimeElapsed float64

	ErrorMessage string
	RetryCount   int
	CanRetry     bool

	SourceURL string
	Parent    *ParentRef
	Summary   *Summary
}
