package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nebulosa/api/pkg/apperr"
)

const maxSubmitAttempts = 3

// SubmitOutcome is the result of a submission. Exactly one of Accepted,
// Cancelled or Err describes what happened; a successful submission only
// means the server accepted the job, the terminal outcome arrives on the
// progress stream.
type SubmitOutcome struct {
	Accepted  bool
	Cancelled bool
	Err       *apperr.AppError
}

// Submitter drives one submission with bounded exponential-backoff
// retry. A Submitter is single-use: create a fresh one per submission so
// a stale cancellation never bleeds into the next attempt.
type Submitter struct {
	client     *Client
	cancel     chan struct{}
	cancelOnce sync.Once
	retrying   atomic.Bool

	// OnRetryWait, when set, is invoked before each backoff sleep so a
	// UI can show the "retrying in Ns" indicator.
	OnRetryWait func(delay time.Duration)

	// OnOffline, when set, is invoked when a transport failure marks
	// the whole service offline.
	OnOffline func()
}

func NewSubmitter(c *Client) *Submitter {
	return &Submitter{
		client: c,
		cancel: make(chan struct{}),
	}
}

// Cancel aborts the retry loop. It is observed before every attempt and
// during backoff sleeps; an attempt already in flight is not preempted.
func (s *Submitter) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancel) })
}

// IsRetrying reports whether the submitter is between failed attempts.
func (s *Submitter) IsRetrying() bool {
	return s.retrying.Load()
}

func (s *Submitter) cancelled() bool {
	select {
	case <-s.cancel:
		return true
	default:
		return false
	}
}

// Submit posts the document, retrying with 1s then 2s backoff.
// Classification of a failed attempt:
//   - 2xx: accepted, done.
//   - 4xx: non-retryable, the error body is surfaced as-is.
//   - 5xx: retryable, recorded as the last error.
//   - context cancellation: the submission is cancelled, nothing more.
//   - transport failure: non-retryable, flips the service offline.
//   - anything else: retryable, recorded.
func (s *Submitter) Submit(ctx context.Context, fileName, mimeType string, data []byte) SubmitOutcome {
	defer s.retrying.Store(false)

	var lastErr *apperr.AppError

	for attempt := 0; attempt < maxSubmitAttempts; attempt++ {
		if s.cancelled() {
			return cancelledOutcome()
		}

		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			s.retrying.Store(true)
			if s.OnRetryWait != nil {
				s.OnRetryWait(delay)
			}
			select {
			case <-s.cancel:
				return cancelledOutcome()
			case <-ctx.Done():
				return cancelledOutcome()
			case <-time.After(delay):
			}
			if s.cancelled() {
				return cancelledOutcome()
			}
		}

		status, body, err := s.client.submitOnce(ctx, fileName, mimeType, data)
		if err != nil {
			if isCancellation(err) {
				return cancelledOutcome()
			}
			if isTransportError(err) {
				lastErr = apperr.New(apperr.CodeNetworkError, "Failed to fetch", "Server is unreachable.")
				if s.OnOffline != nil {
					s.OnOffline()
				}
				return SubmitOutcome{Err: lastErr}
			}
			lastErr = apperr.New("", "Submission failed", err.Error())
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return SubmitOutcome{Accepted: true}
		case status >= 400 && status < 500:
			return SubmitOutcome{Err: errorFromBody(status, body)}
		default:
			lastErr = apperr.HTTPStatus(status)
		}
	}

	return SubmitOutcome{Err: lastErr}
}

func cancelledOutcome() SubmitOutcome {
	return SubmitOutcome{
		Cancelled: true,
		Err:       apperr.New("", "Upload cancelled", "The retry was cancelled."),
	}
}
