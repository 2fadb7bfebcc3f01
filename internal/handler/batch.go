package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ballotbase/api/internal/model"
	"github.com/ballotbase/api/internal/service"
	"github.com/ballotbase/api/pkg/response"
)

type BatchHandler struct {
	service   *service.BatchService
	validator *validator.Validate
}

func NewBatchHandler(svc *service.BatchService, v *validator.Validate) *BatchHandler {
	return &BatchHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /api/batches
func (h *BatchHandler) Submit(c *fiber.Ctx) error {
	var req model.BatchSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.Submit(c.Context(), &req)
	if err != nil {
		return response.GatewayError(c, err.Error())
	}

	return response.Accepted(c, model.BatchSubmitResponse{
		JobID:  job.ID,
		Status: job.Status,
		Groups: len(job.Groups),
	})
}

// Get handles GET /api/batches/:jobId
func (h *BatchHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.Get(c.Context(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Batch job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// List handles GET /api/batches
func (h *BatchHandler) List(c *fiber.Ctx) error {
	jobs, err := h.service.List(c.Context(), c.QueryInt("limit", 50))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, fiber.Map{"jobs": jobs})
}
