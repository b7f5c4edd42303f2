// Package models defines the events published for aggregated speech segments.
package models

// Event types.
const (
	EventSegmentAggregated = "segment.aggregated"
	EventSegmentFlushed    = "segment.flushed"
	EventUtteranceMerged   = "utterance.merged"
)

// SegmentEvent is published for every segment sent downstream.
type SegmentEvent struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	SessionID      string `json:"sessionId"`
	SegmentID      string `json:"segmentId"`
	UtteranceIndex int64  `json:"utteranceIndex"`
	Timestamp      int64  `json:"timestamp"`
	// Text is the full segment for semantic repair and translation.
	Text string `json:"text"`
	// SegmentText is the current job's contribution only.
	SegmentText string `json:"segmentText"`
	ContextText string `json:"contextText,omitempty"`
	Trigger     string `json:"trigger,omitempty"`

	MergedFromPendingUtteranceIndex *int64 `json:"mergedFromPendingUtteranceIndex,omitempty"`
}

// MergeNotice tells downstream stages that work started for an earlier
// utterance is superseded by a merged segment.
type MergeNotice struct {
	EventID                  string `json:"eventId"`
	EventType                string `json:"eventType"`
	SessionID                string `json:"sessionId"`
	UtteranceIndex           int64  `json:"utteranceIndex"`
	MergedFromUtteranceIndex int64  `json:"mergedFromUtteranceIndex"`
	Timestamp                int64  `json:"timestamp"`
}
