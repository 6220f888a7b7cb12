package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/nebulosa/api/internal/model"
)

const (
	TaskTypeAnalyze = "analyze:process"

	// QueueAnalyze processes one job at a time; the stream carries a
	// single logical job, so pipelines must not overlap.
	QueueAnalyze = "analyze"
)

// AnalyzeService handles analysis job management
type AnalyzeService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
}

func NewAnalyzeService(redisClient *redis.Client, asynqClient *asynq.Client) *AnalyzeService {
	return &AnalyzeService{
		redis:       redisClient,
		asynqClient: asynqClient,
	}
}

// StartAnalysis queues a new analysis job for an accepted upload.
// Stage failures are never retried by the queue: the pipeline emits a
// single terminal event instead, so the task runs at most once.
func (s *AnalyzeService) StartAnalysis(ctx context.Context, fileName, mimeType string, data []byte) (*model.AnalyzeStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeAnalyze,
		Status:    model.JobStatusQueued,
		Progress:  0,
		CreatedAt: now,
	}

	payload := &model.AnalyzeJobPayload{
		FileName: fileName,
		MimeType: mimeType,
		FileData: data,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newAnalyzeTask(jobID, payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue(QueueAnalyze),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.AnalyzeStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of an analysis job
func (s *AnalyzeService) GetStatus(ctx context.Context, jobID string) (*model.AnalyzeStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.AnalyzeStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// UpdateJobProgress updates job progress (called by worker)
func (s *AnalyzeService) UpdateJobProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.CurrentStep = step

	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// CompleteJob marks job as completed (called by worker)
func (s *AnalyzeService) CompleteJob(ctx context.Context, jobID string, result interface{}) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusSucceeded
	job.Progress = 100
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// FailJob marks job as failed (called by worker)
func (s *AnalyzeService) FailJob(ctx context.Context, jobID string, errMsg string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Helper methods

func (s *AnalyzeService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.ID), data, 24*time.Hour).Err()
}

func (s *AnalyzeService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func newAnalyzeTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAnalyze, data), nil
}
