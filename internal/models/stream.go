package models

import "github.com/TinoTau/lingua-1-sub000/internal/service/asr"

// Websocket message types.
const (
	StreamTypeJob    = "job"
	StreamTypeEnd    = "end"
	StreamTypeResult = "result"
	StreamTypeEnded  = "ended"
	StreamTypeError  = "error"
)

// StreamMessage is sent by the client on a session stream.
type StreamMessage struct {
	Type   string      `json:"type"`
	Job    *asr.Job    `json:"job,omitempty"`
	Result *asr.Result `json:"result,omitempty"`
}

// StreamReply is sent by the service for every client message.
type StreamReply struct {
	Type        string       `json:"type"`
	Response    *JobResponse `json:"response,omitempty"`
	FlushedText string       `json:"flushedText,omitempty"`
	Error       string       `json:"error,omitempty"`
}
