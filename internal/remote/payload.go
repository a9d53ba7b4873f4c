package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The download server reports status in loosely typed JSON: numeric fields
// arrive as numbers or as strings depending on which code path produced the
// payload, and the item position is sometimes a bare index and sometimes a
// "3/12" fraction. The Flex types absorb that at the decoding boundary so
// the rest of the system never sees it.

// FlexInt decodes from a JSON number, a numeric string, or null.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("parse int %q: %w", s, err)
		}
		*f = FlexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexInt(int(n))
	return nil
}

// FlexFloat decodes from a JSON number, a numeric string (with or without a
// trailing percent sign), or null.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse float %q: %w", s, err)
		}
		*f = FlexFloat(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexFloat(n)
	return nil
}

// TrackPosition decodes an item position reported either as a bare index
// (number or numeric string) or as an "index/total" fraction string.
type TrackPosition struct {
	Index int
	Total int
}

func (p *TrackPosition) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		*p = TrackPosition{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if idx, total, ok := strings.Cut(s, "/"); ok {
			i, err := strconv.Atoi(strings.TrimSpace(idx))
			if err != nil {
				return fmt.Errorf("parse position %q: %w", s, err)
			}
			t, err := strconv.Atoi(strings.TrimSpace(total))
			if err != nil {
				return fmt.Errorf("parse position %q: %w", s, err)
			}
			*p = TrackPosition{Index: i, Total: t}
			return nil
		}
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("parse position %q: %w", s, err)
		}
		*p = TrackPosition{Index: i}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = TrackPosition{Index: int(n)}
	return nil
}

// RawParent is the collection block attached to nested track updates.
type RawParent struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Name        string  `json:"name"`
	Owner       string  `json:"owner"`
	TotalTracks FlexInt `json:"total_tracks"`
	URL         string  `json:"url"`
}

// DisplayTitle returns whichever of title/name the server populated.
func (p *RawParent) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

// RawSummary carries per-item outcome counts on collection terminals.
type RawSummary struct {
	Successful FlexInt `json:"successful"`
	Skipped    FlexInt `json:"skipped"`
	Failed     FlexInt `json:"failed"`
}

// RawStatus is the shape-varying nested status payload (`last_line`). Which
// fields are present depends on the job kind and on whether the update is a
// collection-level summary or a nested item update.
type RawStatus struct {
	Status       string        `json:"status"`
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	Song         string        `json:"song"`
	Album        string        `json:"album"`
	Artist       string        `json:"artist"`
	Owner        string        `json:"owner"`
	CurrentTrack TrackPosition `json:"current_track"`
	TotalTracks  FlexInt       `json:"total_tracks"`
	Progress     FlexFloat     `json:"progress"`
	TimeElapsed  FlexFloat     `json:"time_elapsed"`
	Parent       *RawParent    `json:"parent"`
	Error        string        `json:"error"`
	RetryCount   FlexInt       `json:"retry_count"`
	CanRetry     *bool         `json:"can_retry"`
	URL          string        `json:"url"`
	Summary      *RawSummary   `json:"summary"`
}

// StatusEnvelope is the poll response for one task.
type StatusEnvelope struct {
	TaskID   string      `json:"task_id"`
	Status   string      `json:"status"`
	LastLine *RawStatus  `json:"last_line"`
	Summary  *RawSummary `json:"summary"`
}

// OriginalRequest echoes the request that started a job, used by
// reconciliation to rebuild display data and by retry to re-dispatch.
type OriginalRequest struct {
	URL    string `json:"url"`
	Type   string `json:"type"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// TaskInfo is one element of the server's authoritative task list.
type TaskInfo struct {
	TaskID          string           `json:"task_id"`
	Type            string           `json:"type"`
	Name            string           `json:"name"`
	LastStatus      *RawStatus       `json:"last_status_obj"`
	OriginalRequest *OriginalRequest `json:"original_request"`
}

// StartRequest describes a job to start by kind and resource URL.
type StartRequest struct {
	Kind       string `json:"type"`
	URL        string `json:"url"`
	Name       string `json:"name,omitempty"`
	Artist     string `json:"artist,omitempty"`
	AlbumGroup string `json:"album_group,omitempty"`
}

// StartResult holds the server-assigned ids: one for single jobs, several
// for bulk artist jobs.
type StartResult struct {
	TaskIDs []string
}

func (r *StartResult) UnmarshalJSON(data []byte) error {
	var body struct {
		TaskID  string   `json:"task_id"`
		TaskIDs []string `json:"task_ids"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	if len(body.TaskIDs) > 0 {
		r.TaskIDs = body.TaskIDs
		return nil
	}
	if body.TaskID != "" {
		r.TaskIDs = []string{body.TaskID}
	}
	return nil
}
