package client

import (
	"fmt"

	genai "google.golang.org/genai"

	"github.com/nebulosa/api/pkg/apperr"
)

// ResponseSummary is a plain description of a provider response, kept
// independent of the SDK types so classification stays a pure function.
type ResponseSummary struct {
	Present        bool
	BlockReason    string
	CandidateCount int
	FinishReason   string
}

// SummarizeResponse reduces a generation response to the fields the
// error classifier inspects.
func SummarizeResponse(resp *genai.GenerateContentResponse) ResponseSummary {
	if resp == nil {
		return ResponseSummary{}
	}
	sum := ResponseSummary{Present: true, CandidateCount: len(resp.Candidates)}
	if resp.PromptFeedback != nil {
		sum.BlockReason = string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) > 0 {
		sum.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	return sum
}

// ClassifyResponse maps a response that produced no usable output to a
// provider error kind. Checks run in a fixed priority order: missing
// response, block reason, no candidates, abnormal finish reason, then
// unknown.
func ClassifyResponse(sum ResponseSummary, context string) *apperr.AppError {
	if !sum.Present {
		return apperr.New(apperr.CodeNoResponse,
			fmt.Sprintf("No response (%s)", context),
			"The model returned no response at all.")
	}
	if blocked(sum.BlockReason) {
		return apperr.New(apperr.CodeSafetyBlock,
			fmt.Sprintf("Blocked (%s)", context),
			fmt.Sprintf("Reason: %s.", sum.BlockReason))
	}
	if sum.CandidateCount == 0 {
		return apperr.New(apperr.CodeNoCandidates,
			fmt.Sprintf("No candidates (%s)", context),
			"The model returned no answer.")
	}
	if abnormalFinish(sum.FinishReason) {
		if sum.FinishReason == string(genai.FinishReasonMaxTokens) {
			return apperr.New(apperr.CodeMaxTokens,
				fmt.Sprintf("Token limit reached (%s)", context),
				"The model stopped before completing the output.")
		}
		return apperr.New(apperr.CodeUnexpectedFinish,
			fmt.Sprintf("Unexpected finish (%s)", context),
			fmt.Sprintf("Finish reason: %s.", sum.FinishReason))
	}
	return apperr.New(apperr.CodeUnknownError,
		fmt.Sprintf("Unknown error (%s)", context),
		"The model failed to generate the data.")
}

func blocked(reason string) bool {
	return reason != "" && reason != string(genai.BlockedReasonUnspecified)
}

func abnormalFinish(reason string) bool {
	return reason != "" &&
		reason != string(genai.FinishReasonStop) &&
		reason != string(genai.FinishReasonUnspecified)
}
