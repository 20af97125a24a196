package models

import "time"

// SegmentStatus tracks question generation for one segment.
type SegmentStatus string

const (
	SegmentStatusPending   SegmentStatus = "pending"
	SegmentStatusCompleted SegmentStatus = "completed"
	SegmentStatusError     SegmentStatus = "error"
)

// Segment represents a row of the segments table. Position is the 0-based
// order of the chunk within its video's transcript.
type Segment struct {
	SegmentID    string        `json:"segment_id"`
	VideoID      string        `json:"video_id"`
	Position     int           `json:"position"`
	Content      string        `json:"content"`
	WordCount    int           `json:"word_count"`
	CreatorID    string        `json:"creator_id"`
	Status       SegmentStatus `json:"status"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewSegment is the insert shape for the batch insert after transcription.
type NewSegment struct {
	VideoID   string        `json:"video_id"`
	Position  int           `json:"position"`
	Content   string        `json:"content"`
	WordCount int           `json:"word_count"`
	CreatorID string        `json:"creator_id"`
	Status    SegmentStatus `json:"status"`
}
