package domain

import "time"

type Kind string

const (
	KindTrack    Kind = "track"
	KindAlbum    Kind = "album"
	KindPlaylist Kind = "playlist"
	KindArtist   Kind = "artist"
)

// MultiItem reports whether a kind aggregates progress across several items.
func (k Kind) MultiItem() bool {
	switch k {
	case KindAlbum, KindPlaylist, KindArtist:
		return true
	default:
		return false
	}
}

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindTrack, KindAlbum, KindPlaylist, KindArtist:
		return Kind(s), true
	default:
		return "", false
	}
}

// DisplayItem carries the fields a view layer needs to label an entry.
// Mutable: richer data replaces it as payloads arrive.
type DisplayItem struct {
	Name       string
	Artist     string
	TotalItems int
}

// ParentRef describes the collection a track-level payload belongs to.
type ParentRef struct {
	Kind       Kind
	Title      string
	Owner      string
	TotalItems int
	SourceURL  string
}

// Summary holds per-item outcome counts reported on collection terminals.
type Summary struct {
	Successful int
	Skipped    int
	Failed     int
}

// StallFingerprint tracks how long the volatile progress signature of a
// real-time task has been unchanged.
type StallFingerprint struct {
	Count         int
	LastSignature uint64
}

// TaskEntry is the canonical in-memory record of one observed download job.
type TaskEntry struct {
	// InternalID is locally generated, stable for the life of the process
	// and never reused.
	InternalID string

	// ExternalTaskID is the server-assigned job identifier, write-once.
	ExternalTaskID string

	// Kind is the display kind, which may differ from the raw payload's
	// kind after parent promotion.
	Kind Kind

	Display DisplayItem

	Status   Status
	Message  string
	Progress float64

	// LastUpdate is the most recent accepted canonical payload, kept for
	// message rendering and retry context.
	LastUpdate *StatusUpdate

	Parent *ParentRef

	// SourceURL is the original request target, used to re-dispatch the
	// job on retry.
	SourceURL string

	RetryCount int
	IsRetrying bool

	// HasEnded is set once a terminal status is reached and gates all
	// further payload processing.
	HasEnded bool

	Stall StallFingerprint

	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// CanRetry reports whether the retry affordance applies: a terminal error
// with a recoverable source reference.
func (e *TaskEntry) CanRetry() bool {
	if e.Status != StatusError || !e.HasEnded {
		return false
	}
	return e.RetryURL() != ""
}

// RetryURL resolves the request target a retry should re-dispatch,
// preferring the entry's own origin and falling back to the parent's.
func (e *TaskEntry) RetryURL() string {
	if e.SourceURL != "" {
		return e.SourceURL
	}
	if e.LastUpdate != nil && e.LastUpdate.SourceURL != "" {
		return e.LastUpdate.SourceURL
	}
	if e.Parent != nil && e.Parent.SourceURL != "" {
		return e.Parent.SourceURL
	}
	return ""
}
