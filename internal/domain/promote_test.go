package domain

import "testing"

func TestResolve(t *testing.T) {
	albumParent := &ParentRef{Kind: KindAlbum, Title: "OK Computer", TotalItems: 12}
	playlistParent := &ParentRef{Kind: KindPlaylist, Title: "Road Trip", TotalItems: 40}

	tests := []struct {
		name         string
		entryKind    Kind
		update       *StatusUpdate
		wantKind     Kind
		wantRelevant bool
	}{
		{
			name:         "same kind track",
			entryKind:    KindTrack,
			update:       &StatusUpdate{Kind: KindTrack},
			wantKind:     KindTrack,
			wantRelevant: true,
		},
		{
			name:         "same kind album",
			entryKind:    KindAlbum,
			update:       &StatusUpdate{Kind: KindAlbum},
			wantKind:     KindAlbum,
			wantRelevant: true,
		},
		{
			name:         "track child of declared album",
			entryKind:    KindAlbum,
			update:       &StatusUpdate{Kind: KindTrack, Parent: albumParent},
			wantKind:     KindAlbum,
			wantRelevant: true,
		},
		{
			name:         "track child of declared playlist",
			entryKind:    KindPlaylist,
			update:       &StatusUpdate{Kind: KindTrack, Parent: playlistParent},
			wantKind:     KindPlaylist,
			wantRelevant: true,
		},
		{
			name:         "bare track entry promoted to album",
			entryKind:    KindTrack,
			update:       &StatusUpdate{Kind: KindTrack, Parent: albumParent},
			wantKind:     KindAlbum,
			wantRelevant: true,
		},
		{
			name:         "bare track entry promoted to playlist",
			entryKind:    KindTrack,
			update:       &StatusUpdate{Kind: KindTrack, Parent: playlistParent},
			wantKind:     KindPlaylist,
			wantRelevant: true,
		},
		{
			name:         "album parented track against playlist entry is foreign",
			entryKind:    KindPlaylist,
			update:       &StatusUpdate{Kind: KindTrack, Parent: albumParent},
			wantKind:     KindPlaylist,
			wantRelevant: false,
		},
		{
			name:         "playlist parented track against album entry is foreign",
			entryKind:    KindAlbum,
			update:       &StatusUpdate{Kind: KindTrack, Parent: playlistParent},
			wantKind:     KindAlbum,
			wantRelevant: false,
		},
		{
			name:         "parented track against artist entry is foreign",
			entryKind:    KindArtist,
			update:       &StatusUpdate{Kind: KindTrack, Parent: albumParent},
			wantKind:     KindArtist,
			wantRelevant: false,
		},
		{
			name:         "album child of artist entry",
			entryKind:    KindArtist,
			update:       &StatusUpdate{Kind: KindAlbum},
			wantKind:     KindArtist,
			wantRelevant: true,
		},
		{
			name:         "orphan track against album entry is foreign",
			entryKind:    KindAlbum,
			update:       &StatusUpdate{Kind: KindTrack},
			wantKind:     KindAlbum,
			wantRelevant: false,
		},
		{
			name:         "album update against track entry is foreign",
			entryKind:    KindTrack,
			update:       &StatusUpdate{Kind: KindAlbum},
			wantKind:     KindTrack,
			wantRelevant: false,
		},
		{
			name:         "nil update",
			entryKind:    KindAlbum,
			update:       nil,
			wantKind:     KindAlbum,
			wantRelevant: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotKind, gotRelevant := Resolve(tt.entryKind, tt.update)
			if gotKind != tt.wantKind || gotRelevant != tt.wantRelevant {
				t.Errorf("Resolve(%s) = (%s, %v), want (%s, %v)",
					tt.entryKind, gotKind, gotRelevant, tt.wantKind, tt.wantRelevant)
			}
		})
	}
}

func TestTerminates(t *testing.T) {
	albumParent := &ParentRef{Kind: KindAlbum}

	tests := []struct {
		name      string
		entryKind Kind
		update    *StatusUpdate
		want      bool
	}{
		{
			name:      "album done terminates album entry",
			entryKind: KindAlbum,
			update:    &StatusUpdate{Kind: KindAlbum, Status: StatusDone},
			want:      true,
		},
		{
			name:      "child track done never terminates promoted album",
			entryKind: KindAlbum,
			update:    &StatusUpdate{Kind: KindTrack, Status: StatusDone, Parent: albumParent},
			want:      false,
		},
		{
			name:      "child track error never terminates promoted album",
			entryKind: KindAlbum,
			update:    &StatusUpdate{Kind: KindTrack, Status: StatusError, Parent: albumParent},
			want:      false,
		},
		{
			name:      "album done does not terminate artist entry",
			entryKind: KindArtist,
			update:    &StatusUpdate{Kind: KindAlbum, Status: StatusDone},
			want:      false,
		},
		{
			name:      "track done terminates track entry",
			entryKind: KindTrack,
			update:    &StatusUpdate{Kind: KindTrack, Status: StatusDone},
			want:      true,
		},
		{
			name:      "non-terminal status never terminates",
			entryKind: KindAlbum,
			update:    &StatusUpdate{Kind: KindAlbum, Status: StatusRealTime},
			want:      false,
		},
		{
			name:      "nil update",
			entryKind: KindAlbum,
			update:    nil,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Terminates(tt.entryKind, tt.update); got != tt.want {
				t.Errorf("Terminates(%s) = %v, want %v", tt.entryKind, got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"queued", StatusQueued, true},
		{"pending", StatusQueued, true},
		{"real-time", StatusRealTime, true},
		{"real_time", StatusRealTime, true},
		{"realtime", StatusRealTime, true},
		{"complete", StatusDone, true},
		{"failed", StatusError, true},
		{"canceled", StatusCancelled, true},
		{"skipped", StatusSkipped, true},
		{"bogus", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseStatus(%q) = (%s, %v), want (%s, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusDone, StatusError, StatusCancelled, StatusSkipped}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []Status{StatusQueued, StatusInitializing, StatusProcessing, StatusDownloading, StatusProgress, StatusRealTime, StatusRetrying}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if StatusDone.Failed() {
		t.Error("done should use the short cleanup window")
	}
	for _, s := range []Status{StatusError, StatusCancelled, StatusSkipped} {
		if !s.Failed() {
			t.Errorf("%s should use the long cleanup window", s)
		}
	}
}
