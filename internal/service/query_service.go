package service

import (
	"context"

	"github.com/nebulosa/api/internal/client"
	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/pkg/apperr"
)

// QueryService answers follow-up questions about a previously analyzed
// document. Each call is stateless: the provider artifact is re-resolved
// by name, with no retry and no streaming.
type QueryService struct {
	analyzer client.DocumentAnalyzer
}

func NewQueryService(analyzer client.DocumentAnalyzer) *QueryService {
	return &QueryService{analyzer: analyzer}
}

// Answer resolves the artifact and asks the model a single question.
func (s *QueryService) Answer(ctx context.Context, req *model.QueryRequest) (string, error) {
	if s.analyzer == nil {
		return "", apperr.New(apperr.CodeInvalidAPIKey, "Server configuration error", "GEMINI_API_KEY is not set on the server.")
	}

	file, err := s.analyzer.GetFile(ctx, req.GeminiFileName)
	if err != nil {
		return "", err
	}

	return s.analyzer.AnswerQuery(ctx, file, req.Query)
}
