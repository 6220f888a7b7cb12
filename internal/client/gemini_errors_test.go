package client

import (
	"testing"

	genai "google.golang.org/genai"

	"github.com/nebulosa/api/pkg/apperr"
)

func TestClassifyResponse(t *testing.T) {
	cases := []struct {
		name string
		sum  ResponseSummary
		want string
	}{
		{
			name: "missing response",
			sum:  ResponseSummary{},
			want: apperr.CodeNoResponse,
		},
		{
			name: "safety block",
			sum:  ResponseSummary{Present: true, BlockReason: "SAFETY", CandidateCount: 1},
			want: apperr.CodeSafetyBlock,
		},
		{
			name: "block outranks empty candidates",
			sum:  ResponseSummary{Present: true, BlockReason: "OTHER", CandidateCount: 0},
			want: apperr.CodeSafetyBlock,
		},
		{
			name: "unspecified block is not a block",
			sum:  ResponseSummary{Present: true, BlockReason: string(genai.BlockedReasonUnspecified), CandidateCount: 0},
			want: apperr.CodeNoCandidates,
		},
		{
			name: "no candidates",
			sum:  ResponseSummary{Present: true, CandidateCount: 0},
			want: apperr.CodeNoCandidates,
		},
		{
			name: "max tokens",
			sum:  ResponseSummary{Present: true, CandidateCount: 1, FinishReason: string(genai.FinishReasonMaxTokens)},
			want: apperr.CodeMaxTokens,
		},
		{
			name: "other abnormal finish",
			sum:  ResponseSummary{Present: true, CandidateCount: 1, FinishReason: string(genai.FinishReasonRecitation)},
			want: apperr.CodeUnexpectedFinish,
		},
		{
			name: "normal stop falls through to unknown",
			sum:  ResponseSummary{Present: true, CandidateCount: 1, FinishReason: string(genai.FinishReasonStop)},
			want: apperr.CodeUnknownError,
		},
		{
			name: "empty finish reason falls through to unknown",
			sum:  ResponseSummary{Present: true, CandidateCount: 1},
			want: apperr.CodeUnknownError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyResponse(tc.sum, "analysis")
			if got.Code != tc.want {
				t.Errorf("ClassifyResponse(%+v) = %s, want %s", tc.sum, got.Code, tc.want)
			}
		})
	}
}

func TestSummarizeResponseNil(t *testing.T) {
	sum := SummarizeResponse(nil)
	if sum.Present {
		t.Error("Nil response must summarize as absent")
	}
}

func TestSummarizeResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
			BlockReason: genai.BlockedReasonSafety,
		},
		Candidates: []*genai.Candidate{
			{FinishReason: genai.FinishReasonMaxTokens},
		},
	}
	sum := SummarizeResponse(resp)
	if !sum.Present {
		t.Error("Expected Present")
	}
	if sum.BlockReason != string(genai.BlockedReasonSafety) {
		t.Errorf("BlockReason = %s", sum.BlockReason)
	}
	if sum.CandidateCount != 1 {
		t.Errorf("CandidateCount = %d", sum.CandidateCount)
	}
	if sum.FinishReason != string(genai.FinishReasonMaxTokens) {
		t.Errorf("FinishReason = %s", sum.FinishReason)
	}
}
