package model

import "github.com/nebulosa/api/pkg/apperr"

// Stream event types. A job's event sequence is zero or more progress
// events followed by exactly one result or error event.
const (
	EventTypeProgress = "progress"
	EventTypeResult   = "result"
	EventTypeError    = "error"
)

// ProgressEvent reports a stage transition of the running job
type ProgressEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResultEvent carries the terminal result payload
type ResultEvent struct {
	Type    string          `json:"type"`
	Payload *AnalysisResult `json:"payload"`
}

// ErrorEvent carries the terminal error payload
type ErrorEvent struct {
	Type    string           `json:"type"`
	Payload *apperr.AppError `json:"payload"`
}
