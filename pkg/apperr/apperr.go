package apperr

import "fmt"

// Error codes used across handlers, the pipeline worker and the Go client.
const (
	CodeInvalidAPIKey     = "INVALID_API_KEY"
	CodeInvalidFileType   = "INVALID_FILE_TYPE"
	CodeInvalidMimeType   = "INVALID_MIME_TYPE"
	CodeNetworkError      = "NETWORK_ERROR"
	CodeServerUnreachable = "SERVER_UNREACHABLE"
	CodeStreamLost        = "STREAM_CONNECTION_LOST"
	CodeNoResponse        = "GEMINI_NO_RESPONSE"
	CodeSafetyBlock       = "GEMINI_SAFETY_BLOCK"
	CodeNoCandidates      = "GEMINI_NO_CANDIDATES"
	CodeMaxTokens         = "GEMINI_MAX_TOKENS"
	CodeUnexpectedFinish  = "GEMINI_UNEXPECTED_FINISH"
	CodeUnknownError      = "GEMINI_UNKNOWN_ERROR"
	CodeFileError         = "GEMINI_FILE_ERROR"
	CodeProcessingFailed  = "PROCESSING_FAILED"
)

// AppError is the uniform error shape carried by HTTP error envelopes,
// stream error events and the client session. Code may be empty for
// errors that have no symbolic kind.
type AppError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func New(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

func (e *AppError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
}

// HTTPStatus builds the generic error for a non-2xx status with no usable body.
func HTTPStatus(status int) *AppError {
	return &AppError{
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: fmt.Sprintf("Server error: %d", status),
		Details: "The server cannot handle the request right now.",
	}
}

// From converts any error into an AppError, passing AppErrors through
// unchanged and wrapping everything else as a processing failure.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return &AppError{Code: CodeProcessingFailed, Message: "Processing failed on the server", Details: err.Error()}
}
