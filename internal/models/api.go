package models

import "github.com/TinoTau/lingua-1-sub000/internal/service/asr"

// ProcessJobRequest carries one recognizer result for aggregation.
type ProcessJobRequest struct {
	Job    asr.Job    `json:"job"`
	Result asr.Result `json:"result"`
}

// JobResponse is the gate outcome returned to the orchestrator.
type JobResponse struct {
	AggregatedText             string `json:"aggregatedText"`
	SegmentForJobResult        string `json:"segmentForJobResult"`
	ContextText                string `json:"contextText,omitempty"`
	ShouldDiscard              bool   `json:"shouldDiscard"`
	ShouldWaitForMerge         bool   `json:"shouldWaitForMerge"`
	ShouldSendToSemanticRepair bool   `json:"shouldSendToSemanticRepair"`
	IsLastInMergedGroup        bool   `json:"isLastInMergedGroup"`

	MergedFromUtteranceIndex        *int64 `json:"mergedFromUtteranceIndex,omitempty"`
	MergedFromPendingUtteranceIndex *int64 `json:"mergedFromPendingUtteranceIndex,omitempty"`

	Action      string `json:"action"`
	Disposition string `json:"disposition"`
	Reason      string `json:"reason,omitempty"`
	SegmentID   string `json:"segmentId,omitempty"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}

// EndSessionRequest ends a session.
type EndSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// EndSessionResponse carries the text released when the session ended.
type EndSessionResponse struct {
	FlushedText string `json:"flushedText"`
}

// LastCommittedRequest asks for the committed text preceding an utterance.
type LastCommittedRequest struct {
	SessionID    string `json:"sessionId"`
	CurrentIndex int64  `json:"currentIndex"`
}

// LastCommittedResponse is empty with Found false when nothing precedes the index.
type LastCommittedResponse struct {
	Text  string `json:"text"`
	Found bool   `json:"found"`
}
