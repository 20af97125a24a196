package models

import "time"

// VideoStatus is the pipeline state stored on a Video.
type VideoStatus string

const (
	VideoStatusPending      VideoStatus = "pending"
	VideoStatusDownloading  VideoStatus = "downloading"
	VideoStatusTranscribing VideoStatus = "transcribing"
	VideoStatusProcessing   VideoStatus = "processing"
	VideoStatusSegmented    VideoStatus = "segmented"
	VideoStatusCompleted    VideoStatus = "completed"
	VideoStatusError        VideoStatus = "error"
)

var videoStatusOrder = map[VideoStatus]int{
	VideoStatusPending:      0,
	VideoStatusDownloading:  1,
	VideoStatusTranscribing: 2,
	VideoStatusProcessing:   3,
	VideoStatusSegmented:    4,
	VideoStatusCompleted:    5,
}

// Terminal reports whether no further transition is allowed.
func (s VideoStatus) Terminal() bool {
	return s == VideoStatusCompleted || s == VideoStatusError
}

// CanTransition reports whether moving from s to next keeps the status
// monotonic along the pipeline. Error is reachable from any non-terminal state.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == VideoStatusError {
		return true
	}
	from, ok := videoStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := videoStatusOrder[next]
	return ok && to > from
}

// Video represents a row of the videos table.
type Video struct {
	VideoID         string      `json:"video_id"`
	URL             string      `json:"url"`
	Title           string      `json:"title"`
	Transcript      *string     `json:"transcript,omitempty"`
	CreatorID       string      `json:"creator_id"`
	Status          VideoStatus `json:"status"`
	ErrorMessage    *string     `json:"error_message,omitempty"`
	DurationSeconds *int        `json:"duration_seconds,omitempty"`
	WordCount       *int        `json:"word_count,omitempty"`
	MaxSegments     *int        `json:"max_segments,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// NewVideo is the insert shape used by the ingress API.
type NewVideo struct {
	URL         string      `json:"url"`
	Title       string      `json:"title"`
	CreatorID   string      `json:"creator_id"`
	Status      VideoStatus `json:"status"`
	MaxSegments *int        `json:"max_segments,omitempty"`
}

// VideoPatch lists the columns a pipeline step changes. Nil fields are left
// untouched.
type VideoPatch struct {
	Status          *VideoStatus
	ErrorMessage    *string
	Title           *string
	Transcript      *string
	WordCount       *int
	DurationSeconds *int
	MaxSegments     *int
}

// StatusPatch is the common case of a bare status change.
func StatusPatch(status VideoStatus) VideoPatch {
	return VideoPatch{Status: &status}
}

// ErrorPatch moves a video to the error state with a message.
func ErrorPatch(message string) VideoPatch {
	status := VideoStatusError
	return VideoPatch{Status: &status, ErrorMessage: &message}
}

// Columns flattens the patch into a column → value map, always stamping
// updated_at.
func (p VideoPatch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Transcript != nil {
		cols["transcript"] = *p.Transcript
	}
	if p.WordCount != nil {
		cols["word_count"] = *p.WordCount
	}
	if p.DurationSeconds != nil {
		cols["duration_seconds"] = *p.DurationSeconds
	}
	if p.MaxSegments != nil {
		cols["max_segments"] = *p.MaxSegments
	}
	return cols
}

// Apply copies the patch onto v. Used by stores that hold rows in memory.
func (p VideoPatch) Apply(v *Video, now time.Time) {
	if p.Status != nil {
		v.Status = *p.Status
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		v.ErrorMessage = &msg
	}
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Transcript != nil {
		tr := *p.Transcript
		v.Transcript = &tr
	}
	if p.WordCount != nil {
		n := *p.WordCount
		v.WordCount = &n
	}
	if p.DurationSeconds != nil {
		n := *p.DurationSeconds
		v.DurationSeconds = &n
	}
	if p.MaxSegments != nil {
		n := *p.MaxSegments
		v.MaxSegments = &n
	}
	v.UpdatedAt = now
}
