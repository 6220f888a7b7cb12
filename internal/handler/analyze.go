package handler

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nebulosa/api/internal/service"
	"github.com/nebulosa/api/pkg/response"
)

const maxUploadSize = 50 * 1024 * 1024 // 50MB

// acceptedMimeType is the single media type /process accepts; anything
// else is rejected before the pipeline sees it.
const acceptedMimeType = "application/pdf"

type AnalyzeHandler struct {
	service   *service.AnalyzeService
	validator *validator.Validate
}

func NewAnalyzeHandler(svc *service.AnalyzeService, v *validator.Validate) *AnalyzeHandler {
	return &AnalyzeHandler{
		service:   svc,
		validator: v,
	}
}

// Process handles POST /api/process. The upload is validated and queued;
// the caller gets 202 immediately and the outcome arrives on the stream.
func (h *AnalyzeHandler) Process(c *fiber.Ctx) error {
	file, err := c.FormFile("pdfFile")
	if err != nil {
		return response.ValidationError(c, "No file uploaded.", "The multipart field 'pdfFile' is required.")
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File too large",
			fmt.Sprintf("Maximum upload size is %d bytes.", maxUploadSize))
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != acceptedMimeType {
		return response.InvalidFileType(c, "Only PDF files are allowed.")
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	result, err := h.service.StartAnalysis(c.Context(), file.Filename, contentType, data)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/status/:jobId
func (h *AnalyzeHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", "")
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not found" {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response details
func formatValidationErrors(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field(), e.Tag()))
	}
	return strings.Join(parts, ", ")
}
