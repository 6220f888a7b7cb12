package model

import "time"

// Job represents a background analysis job in the system
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	Payload     []byte     `json:"-"` // Stored as JSON
	Result      []byte     `json:"-"` // Stored as JSON
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeAnalyze = "analyze"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// AnalyzeJobPayload contains the data for an analysis job. FileData is the
// raw document; it rides the task payload base64-encoded.
type AnalyzeJobPayload struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileData []byte `json:"fileData"`
}

// AnalyzeStartResponse is returned by POST /api/process
type AnalyzeStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AnalyzeStatusResponse is returned by GET /api/status/:jobId
type AnalyzeStatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
