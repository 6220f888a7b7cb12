package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nebulosa/api/internal/model"
	"github.com/nebulosa/api/internal/service"
	"github.com/nebulosa/api/pkg/apperr"
	"github.com/nebulosa/api/pkg/response"
)

type QueryHandler struct {
	service   *service.QueryService
	validator *validator.Validate
}

func NewQueryHandler(svc *service.QueryService, v *validator.Validate) *QueryHandler {
	return &QueryHandler{
		service:   svc,
		validator: v,
	}
}

// Ask handles POST /api/query
func (h *QueryHandler) Ask(c *fiber.Ctx) error {
	var req model.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", "")
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Missing query or geminiFileName.", formatValidationErrors(err))
	}

	answer, err := h.service.Answer(c.Context(), &req)
	if err != nil {
		ae := apperr.From(err)
		return response.Error(c, fiber.StatusInternalServerError, ae.Code, "Failed to get answer from Gemini.", ae.Details)
	}

	return response.OK(c, model.QueryResponse{Answer: answer})
}
