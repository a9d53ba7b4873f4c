package domain

// Resolve applies the parent-promotion rule to decide whether a normalized
// update belongs to an entry of the given kind, and what display kind the
// entry should carry afterwards.
//
// A track payload carrying a parent of kind album/playlist is a child update
// of that collection: it is relevant to an entry already promoted to (or
// declared as) the parent's kind, and it promotes a bare track entry.
// A track payload whose parent kind does not match the entry belongs to a
// different logical task and is discarded. Artist entries accept album-level
// child updates, since artist jobs run album by album.
func Resolve(entryKind Kind, u *StatusUpdate) (display Kind, relevant bool) {
	if u == nil {
		return entryKind, false
	}

	if u.Kind == entryKind {
		return entryKind, true
	}

	if u.Kind == KindTrack && u.Parent != nil {
		switch u.Parent.Kind {
		case KindAlbum, KindPlaylist:
			if entryKind == u.Parent.Kind {
				return entryKind, true
			}
			if entryKind == KindTrack {
				return u.Parent.Kind, true
			}
		}
		return entryKind, false
	}

	// Artist discographies report one album at a time.
	if entryKind == KindArtist && u.Kind == KindAlbum {
		return entryKind, true
	}

	return entryKind, false
}

// Terminates reports whether an update may end an entry's lifecycle: the
// status must be terminal and the payload's own kind must equal the entry's
// promoted kind. A child track reaching done never terminates its parent.
func Terminates(entryKind Kind, u *StatusUpdate) bool {
	if u == nil || !u.Status.Terminal() {
		return false
	}
	return u.Kind == entryKind
}
