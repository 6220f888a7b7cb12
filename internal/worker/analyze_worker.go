package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nebulosa/api/internal/client"
	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/pkg/apperr"
)

const defaultPollInterval = 2 * time.Second

// JobTracker persists job state transitions for the status endpoint.
type JobTracker interface {
	UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error
	CompleteJob(ctx context.Context, jobID string, result interface{}) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

// EventBroadcaster pushes job events to connected stream subscribers.
type EventBroadcaster interface {
	BroadcastProgress(message string)
	BroadcastResult(result *model.AnalysisResult)
	BroadcastError(appErr *apperr.AppError)
}

// AnalyzeWorker runs the analysis pipeline for one job: upload the
// document to the provider, wait for indexing, extract the structured
// analysis, then generate the narrative report. Stages run strictly in
// order and are never retried; every run ends in exactly one terminal
// event, a result or an error.
type AnalyzeWorker struct {
	jobs     JobTracker
	analyzer client.DocumentAnalyzer
	storage  client.StorageClient
	events   EventBroadcaster

	pollInterval time.Duration
}

func NewAnalyzeWorker(jobs JobTracker, analyzer client.DocumentAnalyzer, storage client.StorageClient, events EventBroadcaster) *AnalyzeWorker {
	return &AnalyzeWorker{
		jobs:         jobs,
		analyzer:     analyzer,
		storage:      storage,
		events:       events,
		pollInterval: defaultPollInterval,
	}
}

// ProcessTask handles an analysis task. It never reports stage failures
// back to asynq: failures are classified once and emitted as the
// terminal error event, so the queue must not re-run the pipeline.
func (w *AnalyzeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting analysis job: %s", jobID)

	var payload model.AnalyzeJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, apperr.New(apperr.CodeProcessingFailed, "Processing failed on the server", "Invalid job payload."))
		return nil
	}

	w.run(ctx, jobID, &payload)
	return nil
}

func (w *AnalyzeWorker) run(ctx context.Context, jobID string, payload *model.AnalyzeJobPayload) {
	if w.analyzer == nil {
		w.failJob(ctx, jobID, apperr.New(apperr.CodeInvalidAPIKey, "Server configuration error", "GEMINI_API_KEY is not set on the server."))
		return
	}

	fingerprint := Fingerprint(payload.FileData)

	// Stage 1: register the document with the provider.
	w.updateProgress(ctx, jobID, 5, "Uploading document to Gemini...")
	file, err := w.analyzer.UploadFile(ctx, payload.FileData, payload.MimeType)
	if err != nil {
		w.failJob(ctx, jobID, apperr.From(err))
		return
	}

	// Stage 2: poll until the artifact is indexed. No attempt cap; the
	// provider either resolves the state or the job is abandoned with
	// the context.
	w.updateProgress(ctx, jobID, 25, "Indexing document...")
	for file.State != client.FileStateActive {
		if file.State == client.FileStateFailed {
			w.failJob(ctx, jobID, apperr.New(apperr.CodeFileError, "File processing error", fmt.Sprintf("State: %s", file.State)))
			return
		}
		select {
		case <-ctx.Done():
			w.failJob(ctx, jobID, apperr.From(ctx.Err()))
			return
		case <-time.After(w.pollInterval):
		}
		file, err = w.analyzer.GetFile(ctx, file.Name)
		if err != nil {
			w.failJob(ctx, jobID, apperr.From(err))
			return
		}
		w.updateProgress(ctx, jobID, 30, fmt.Sprintf("Indexing document... (current state: %s)", file.State))
	}
	w.updateProgress(ctx, jobID, 40, "Document is active and ready for analysis.")

	archiveURL := w.archiveDocument(ctx, payload, fingerprint)

	// Stage 3: structured extraction.
	w.updateProgress(ctx, jobID, 60, "Performing grounded analysis...")
	jsonData, meta, err := w.analyzer.ExtractAnalysis(ctx, file)
	if err != nil {
		w.failJob(ctx, jobID, apperr.From(err))
		return
	}
	w.updateProgress(ctx, jobID, 75, "Structured analysis generated.")

	// Stage 4: narrative report.
	w.updateProgress(ctx, jobID, 85, "Generating Markdown report...")
	markdown, err := w.analyzer.GenerateReport(ctx, file, jsonData)
	if err != nil {
		w.failJob(ctx, jobID, apperr.From(err))
		return
	}
	markdown = StripCodeFence(markdown)
	w.updateProgress(ctx, jobID, 95, "Markdown report generated.")

	result := &model.AnalysisResult{
		JSONData:     jsonData,
		MarkdownData: markdown,
		Metadata: model.DocumentMetadata{
			Title:        meta.Title,
			DocumentType: meta.DocumentType,
			PageCount:    meta.PageCount,
			SHA256Hash:   fingerprint,
		},
		GeminiFileName: file.Name,
		ArchiveURL:     archiveURL,
	}

	if err := w.jobs.CompleteJob(ctx, jobID, result); err != nil {
		log.Printf("Failed to save result for job %s: %v", jobID, err)
	}
	w.events.BroadcastResult(result)
	log.Printf("Analysis job %s completed", jobID)
}

// archiveDocument stores the accepted upload in object storage keyed by
// its fingerprint. Archival is best-effort and never fails the job.
func (w *AnalyzeWorker) archiveDocument(ctx context.Context, payload *model.AnalyzeJobPayload, fingerprint string) string {
	if w.storage == nil {
		return ""
	}

	ext := ".bin"
	if exts, err := mime.ExtensionsByType(payload.MimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	key := fmt.Sprintf("documents/%s%s", fingerprint, ext)

	url, err := w.storage.Upload(ctx, key, bytes.NewReader(payload.FileData), payload.MimeType)
	if err != nil {
		log.Printf("Failed to archive document %s: %v", key, err)
		return ""
	}
	return url
}

func (w *AnalyzeWorker) updateProgress(ctx context.Context, jobID string, progress int, step string) {
	if err := w.jobs.UpdateJobProgress(ctx, jobID, progress, step); err != nil {
		log.Printf("Failed to update progress: %v", err)
	}
	w.events.BroadcastProgress(step)
	log.Printf("[PROGRESS] %s", step)
}

func (w *AnalyzeWorker) failJob(ctx context.Context, jobID string, appErr *apperr.AppError) {
	if err := w.jobs.FailJob(ctx, jobID, appErr.Error()); err != nil {
		log.Printf("Failed to mark job as failed: %v", err)
	}
	w.events.BroadcastError(appErr)
	log.Printf("Analysis job %s failed: %v", jobID, appErr)
}
