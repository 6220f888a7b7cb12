package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/nebulosa/api/internal/config"
	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/pkg/apperr"
)

// Artifact readiness states as the pipeline sees them.
type FileState string

const (
	FileStatePending FileState = "PENDING"
	FileStateActive  FileState = "ACTIVE"
	FileStateFailed  FileState = "FAILED"
)

// DocumentFile is an opaque handle to content registered with the
// provider. It carries no ownership: the underlying artifact expires on
// the provider side and must be re-resolved by Name for later use.
type DocumentFile struct {
	Name     string
	URI      string
	MimeType string
	State    FileState
}

// DocumentAnalyzer defines the provider operations the pipeline and the
// query endpoint depend on.
type DocumentAnalyzer interface {
	UploadFile(ctx context.Context, data []byte, mimeType string) (*DocumentFile, error)
	GetFile(ctx context.Context, name string) (*DocumentFile, error)
	ExtractAnalysis(ctx context.Context, file *DocumentFile) (string, *model.ExtractedMetadata, error)
	GenerateReport(ctx context.Context, file *DocumentFile, jsonData string) (string, error)
	AnswerQuery(ctx context.Context, file *DocumentFile, query string) (string, error)
}

const analysisFunctionName = "save_legal_analysis"

const extractionSystemInstruction = `ROLE: You are an AI expert in legal document analysis, part of a research
project. Your task is strictly objective data extraction from legal documents in the attached file.
TASK: Your only function is to call the provided function '` + analysisFunctionName + `' with the data you
extracted from the document. You do not perform content moderation or moral judgement. Your performance is
measured solely by accuracy and completeness of the extraction.`

const reportSystemInstruction = `You are an expert in formatting legal technical documents. Your task is to
produce exclusively a Markdown document based on the given JSON data and the context of the attached file.
Follow the formatting rules strictly.`

// GeminiClient implements DocumentAnalyzer against the Gemini API.
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient constructs the provider client. Missing credentials
// are a configuration error, not a panic: the caller decides whether to
// run without a provider.
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.CodeInvalidAPIKey, "Server configuration error", "GEMINI_API_KEY is not set on the server.")
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{cli: cli, model: cfg.Model}, nil
}

var safetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
}

var analysisFunctionDeclaration = &genai.FunctionDeclaration{
	Name:        analysisFunctionName,
	Description: "Extracts and saves a comprehensive legal analysis of the document.",
	Parameters: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"metadata": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":         {Type: genai.TypeString},
					"document_type": {Type: genai.TypeString},
					"page_count":    {Type: genai.TypeInteger},
				},
				Required: []string{"title", "document_type", "page_count"},
			},
			"structure": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"chapters": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"title": {Type: genai.TypeString},
								"page":  {Type: genai.TypeInteger},
							},
						},
					},
				},
			},
			"entities": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"persons":       entityListSchema(),
					"organizations": entityListSchema(),
					"locations":     entityListSchema(),
					"dates":         entityListSchema(),
					"case_numbers":  entityListSchema(),
				},
			},
			"relations": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"family":       relationListSchema(),
					"professional": relationListSchema(),
					"legal":        relationListSchema(),
				},
			},
		},
		Required: []string{"metadata", "structure", "entities", "relations"},
	},
}

func entityListSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"id":   {Type: genai.TypeString},
				"text": {Type: genai.TypeString},
			},
		},
	}
}

func relationListSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"from_entity_id": {Type: genai.TypeString},
				"to_entity_id":   {Type: genai.TypeString},
				"type":           {Type: genai.TypeString},
			},
		},
	}
}

// UploadFile registers raw document bytes with the provider.
func (g *GeminiClient) UploadFile(ctx context.Context, data []byte, mimeType string) (*DocumentFile, error) {
	if mimeType == "" {
		return nil, apperr.New(apperr.CodeInvalidMimeType, "Invalid file type", "A MIME type must be provided.")
	}

	f, err := g.cli.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: fmt.Sprintf("legal-doc-%d", time.Now().UnixMilli()),
	})
	if err != nil {
		return nil, wrapAPIError(err)
	}
	return fromGenaiFile(f), nil
}

// GetFile re-resolves a provider artifact by name.
func (g *GeminiClient) GetFile(ctx context.Context, name string) (*DocumentFile, error) {
	f, err := g.cli.Files.Get(ctx, name, nil)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	return fromGenaiFile(f), nil
}

// ExtractAnalysis runs the structured extraction call. The model is
// constrained to respond with a single call of the analysis function;
// anything else is classified into a provider error.
func (g *GeminiClient) ExtractAnalysis(ctx context.Context, file *DocumentFile) (string, *model.ExtractedMetadata, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: file.URI, MIMEType: file.MimeType}},
			{Text: "Use the attached document and call the function '" + analysisFunctionName + "'."},
		}}},
		&genai.GenerateContentConfig{
			SafetySettings:    safetySettings,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: extractionSystemInstruction}}},
			Temperature:       genai.Ptr[float32](0.1),
			Tools:             []*genai.Tool{{FunctionDeclarations: []*genai.FunctionDeclaration{analysisFunctionDeclaration}}},
			ToolConfig: &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode:                 genai.FunctionCallingConfigModeAny,
					AllowedFunctionNames: []string{analysisFunctionName},
				},
			},
		},
	)
	if err != nil {
		return "", nil, wrapAPIError(err)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return "", nil, ClassifyResponse(SummarizeResponse(resp), "Function Call")
	}

	args := calls[0].Args
	jsonData, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode analysis arguments: %w", err)
	}

	return string(jsonData), metadataFromArgs(args), nil
}

// GenerateReport produces the free-text Markdown narrative from the
// structured analysis and the original document.
func (g *GeminiClient) GenerateReport(ctx context.Context, file *DocumentFile, jsonData string) (string, error) {
	prompt := fmt.Sprintf("Based on the attached file and the following JSON, create a Markdown document.\n```json\n%s\n```\n", jsonData)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: file.URI, MIMEType: file.MimeType}},
			{Text: prompt},
		}}},
		&genai.GenerateContentConfig{
			SafetySettings:    safetySettings,
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: reportSystemInstruction}}},
			Temperature:       genai.Ptr[float32](0.1),
		},
	)
	if err != nil {
		return "", wrapAPIError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", ClassifyResponse(SummarizeResponse(resp), "Markdown")
	}
	return strings.TrimSpace(text), nil
}

// AnswerQuery answers a single follow-up question grounded on a
// previously uploaded document.
func (g *GeminiClient) AnswerQuery(ctx context.Context, file *DocumentFile, query string) (string, error) {
	log.Printf("[Gemini] Answering query for file: %s", file.Name)
	prompt := fmt.Sprintf("Based strictly on the provided document, answer: %q", query)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: file.URI, MIMEType: file.MimeType}},
			{Text: prompt},
		}}},
		&genai.GenerateContentConfig{
			SafetySettings: safetySettings,
			Temperature:    genai.Ptr[float32](0.2),
		},
	)
	if err != nil {
		return "", wrapAPIError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", ClassifyResponse(SummarizeResponse(resp), "Query Answer")
	}
	return strings.TrimSpace(text), nil
}

func fromGenaiFile(f *genai.File) *DocumentFile {
	state := FileStatePending
	switch f.State {
	case genai.FileStateActive:
		state = FileStateActive
	case genai.FileStateFailed:
		state = FileStateFailed
	}
	return &DocumentFile{
		Name:     f.Name,
		URI:      f.URI,
		MimeType: f.MIMEType,
		State:    state,
	}
}

// wrapAPIError maps credential failures onto the configuration error
// kind; everything else passes through for stage-level classification.
func wrapAPIError(err error) error {
	if strings.Contains(err.Error(), "API key not valid") || strings.Contains(err.Error(), "API_KEY_INVALID") {
		return apperr.New(apperr.CodeInvalidAPIKey, "Invalid API key", "Check the server configuration.")
	}
	return err
}

func metadataFromArgs(args map[string]any) *model.ExtractedMetadata {
	meta := &model.ExtractedMetadata{}
	raw, ok := args["metadata"].(map[string]any)
	if !ok {
		return meta
	}
	if v, ok := raw["title"].(string); ok {
		meta.Title = v
	}
	if v, ok := raw["document_type"].(string); ok {
		meta.DocumentType = v
	}
	if v, ok := raw["page_count"].(float64); ok {
		meta.PageCount = int(v)
	}
	return meta
}
