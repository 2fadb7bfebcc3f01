package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/config"
	"github.com/ballotbase/api/internal/model"
	"github.com/ballotbase/api/internal/pipeline"
	"github.com/ballotbase/api/pkg/response"
)

// Runner is the orchestrator surface the trigger endpoint needs.
type Runner interface {
	Run(ctx context.Context) pipeline.Summary
	TryLock(ctx context.Context) bool
	Unlock(ctx context.Context)
}

type PipelineHandler struct {
	runner Runner
	cfg    *config.Config
	logger *zap.Logger
}

func NewPipelineHandler(runner Runner, cfg *config.Config, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Run handles POST /api/pipeline/run: one full orchestrator invocation.
func (h *PipelineHandler) Run(c *fiber.Ctx) error {
	if ready, reason := h.cfg.InferenceReady(); !ready {
		return response.OK(c, model.RunResponse{
			OK:      false,
			Skipped: true,
			Reason:  reason,
		})
	}

	ctx := c.Context()
	if !h.runner.TryLock(ctx) {
		return response.OK(c, model.RunResponse{
			OK:      false,
			Skipped: true,
			Reason:  "another invocation is already running",
		})
	}
	defer h.runner.Unlock(ctx)

	summary := h.runner.Run(ctx)
	return response.OK(c, model.RunResponse{
		OK:      summary.OK(),
		Summary: summary,
	})
}

// Probe handles GET /api/pipeline/run: acknowledges without doing work.
func (h *PipelineHandler) Probe(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{
		"message": "use POST to run the ingestion pipeline",
	})
}
