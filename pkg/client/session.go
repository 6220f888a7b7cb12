package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/nebulosa/api/pkg/apperr"
)

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}

// Step is the session's position in the analysis flow.
type Step string

const (
	StepChecking   Step = "checking"
	StepOffline    Step = "offline"
	StepIdle       Step = "idle"
	StepSubmitting Step = "submitting"
	StepProcessing Step = "processing"
	StepResults    Step = "results"
	StepError      Step = "error"
)

// ServerStatus is the last known reachability of the backend.
type ServerStatus string

const (
	ServerChecking ServerStatus = "checking"
	ServerOnline   ServerStatus = "online"
	ServerOffline  ServerStatus = "offline"
)

const assistantGreeting = "Analysis complete. You can now ask questions about the document."

// ChatMessage is one entry in the Q&A conversation.
type ChatMessage struct {
	Sender string `json:"sender"` // "user" or "ai"
	Text   string `json:"text"`
}

// DocumentMetadata describes the analyzed document.
type DocumentMetadata struct {
	Title        string `json:"title"`
	DocumentType string `json:"document_type"`
	PageCount    int    `json:"page_count"`
	SHA256Hash   string `json:"sha256_hash"`
}

// AnalysisResult is the final payload delivered over the stream.
type AnalysisResult struct {
	JSONData       string           `json:"jsonData"`
	MarkdownData   string           `json:"markdownData"`
	Metadata       DocumentMetadata `json:"metadata"`
	GeminiFileName string           `json:"geminiFileName"`
	ArchiveURL     string           `json:"archiveUrl,omitempty"`
}

// Session drives a single analysis flow against the server: health
// check, upload with retries, progress stream, then Q&A over the
// result. All methods are safe for concurrent use.
type Session struct {
	client *Client

	mu            sync.Mutex
	step          Step
	serverStatus  ServerStatus
	loaderMessage string
	result        *AnalysisResult
	lastError     *apperr.AppError
	conversation  []ChatMessage
	submitter     *Submitter
	sub           *StreamSubscription
	done          chan struct{}
}

// NewSession returns a session in the checking state.
func NewSession(c *Client) *Session {
	return &Session{
		client:       c,
		step:         StepChecking,
		serverStatus: ServerChecking,
	}
}

// Step returns the current step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// ServerStatus returns the last known server reachability.
func (s *Session) ServerStatus() ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverStatus
}

// LoaderMessage returns the most recent progress message.
func (s *Session) LoaderMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaderMessage
}

// Result returns the analysis result, or nil before completion.
func (s *Session) Result() *AnalysisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// LastError returns the terminal error, or nil.
func (s *Session) LastError() *apperr.AppError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Conversation returns a copy of the chat history.
func (s *Session) Conversation() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// CheckHealth probes the server and moves to idle or offline. Every
// check starts from a clean slate: a stale terminal error never
// survives a reachability transition, and going offline also drops the
// result.
func (s *Session) CheckHealth(ctx context.Context) {
	err := s.client.CheckHealth(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = nil
	if err != nil {
		s.serverStatus = ServerOffline
		s.step = StepOffline
		s.result = nil
		s.conversation = nil
		return
	}
	s.serverStatus = ServerOnline
	if s.step == StepChecking || s.step == StepOffline || s.step == StepError {
		s.step = StepIdle
	}
}

// StartProcessing uploads the document and follows the progress stream
// to its terminal event. It returns once the outcome is known. Only one
// processing run may be active at a time.
func (s *Session) StartProcessing(ctx context.Context, fileName string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.step == StepSubmitting || s.step == StepProcessing {
		s.mu.Unlock()
		return apperr.New(apperr.CodeProcessingFailed, "A document is already being processed", "")
	}
	s.step = StepSubmitting
	s.loaderMessage = "Uploading document..."
	s.result = nil
	s.lastError = nil
	sub, err := s.client.OpenStream(ctx)
	if err != nil {
		s.step = StepError
		s.lastError = apperr.From(err)
		s.mu.Unlock()
		return err
	}
	s.sub = sub
	submitter := NewSubmitter(s.client)
	s.submitter = submitter
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	outcome := submitter.Submit(ctx, fileName, "application/pdf", data)

	s.mu.Lock()
	s.submitter = nil
	if outcome.Cancelled || outcome.Err != nil {
		s.sub = nil
		s.done = nil
		if outcome.Cancelled {
			s.step = StepIdle
		} else {
			s.step = StepError
			s.lastError = apperr.From(outcome.Err)
			if s.lastError.Code == apperr.CodeNetworkError {
				s.serverStatus = ServerOffline
			}
		}
		s.mu.Unlock()
		sub.Close()
		close(done)
		if outcome.Cancelled {
			return nil
		}
		return outcome.Err
	}
	s.step = StepProcessing
	s.mu.Unlock()

	go s.consume(sub, done)
	<-done

	s.mu.Lock()
	err = nil
	if s.lastError != nil {
		err = s.lastError
	}
	s.mu.Unlock()
	return err
}

// consume follows the stream until a terminal event or connection loss.
func (s *Session) consume(sub *StreamSubscription, done chan struct{}) {
	defer close(done)
	defer sub.Close()

	for ev := range sub.Events {
		switch ev.Type {
		case "progress":
			s.mu.Lock()
			s.loaderMessage = ev.Message
			s.mu.Unlock()
		case "result":
			var res AnalysisResult
			if err := unmarshalPayload(ev.Payload, &res); err != nil {
				continue
			}
			s.mu.Lock()
			s.result = &res
			s.step = StepResults
			s.conversation = []ChatMessage{{Sender: "ai", Text: assistantGreeting}}
			s.sub = nil
			s.done = nil
			s.mu.Unlock()
			return
		case "error":
			var ae apperr.AppError
			if err := unmarshalPayload(ev.Payload, &ae); err != nil {
				ae = *apperr.New(apperr.CodeUnknownError, "Processing failed", "")
			}
			s.mu.Lock()
			s.lastError = &ae
			s.step = StepError
			s.sub = nil
			s.done = nil
			s.mu.Unlock()
			return
		}
	}

	// Stream closed without a terminal event.
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sub = nil
	s.done = nil
	if s.step == StepProcessing {
		s.step = StepIdle
		s.serverStatus = ServerOffline
		s.lastError = apperr.New(apperr.CodeStreamLost, "Connection lost",
			"The connection to the server was lost during processing.")
	}
}

// CancelRetry aborts an in-flight upload retry cycle, if any.
func (s *Session) CancelRetry() {
	s.mu.Lock()
	submitter := s.submitter
	s.mu.Unlock()
	if submitter != nil {
		submitter.Cancel()
	}
}

// IsRetrying reports whether the upload is waiting out a retry backoff.
func (s *Session) IsRetrying() bool {
	s.mu.Lock()
	submitter := s.submitter
	s.mu.Unlock()
	return submitter != nil && submitter.IsRetrying()
}

// Ask sends a question about the analyzed document and records both
// sides of the exchange. A failed question becomes an assistant message
// rather than a state change, except that losing the connection marks
// the server offline.
func (s *Session) Ask(ctx context.Context, question string) {
	s.mu.Lock()
	if s.step != StepResults || s.result == nil {
		s.mu.Unlock()
		return
	}
	fileName := s.result.GeminiFileName
	s.conversation = append(s.conversation, ChatMessage{Sender: "user", Text: question})
	s.mu.Unlock()

	answer, err := s.client.Query(ctx, question, fileName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		ae := apperr.From(err)
		if ae.Code == apperr.CodeNetworkError || ae.Code == apperr.CodeServerUnreachable {
			s.serverStatus = ServerOffline
		}
		s.conversation = append(s.conversation, ChatMessage{
			Sender: "ai",
			Text:   "Sorry, something went wrong: " + ae.Message,
		})
		return
	}
	s.conversation = append(s.conversation, ChatMessage{Sender: "ai", Text: answer})
}

// Reset clears the result and conversation and returns to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.done = nil
	s.result = nil
	s.lastError = nil
	s.conversation = nil
	s.loaderMessage = ""
	s.step = StepIdle
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
