package worker

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/config"
	"github.com/ballotbase/api/internal/pipeline"
)

// TaskTypePipelineTick is the periodic task that runs one orchestrator
// invocation.
const TaskTypePipelineTick = "pipeline:tick"

// NewTickTask builds the scheduler task. Uniqueness keeps a slow sweep
// from stacking up behind itself.
func NewTickTask() *asynq.Task {
	return asynq.NewTask(TaskTypePipelineTick, nil)
}

// PipelineWorker runs scheduled orchestrator invocations.
type PipelineWorker struct {
	orchestrator *pipeline.Orchestrator
	cfg          *config.Config
	logger       *zap.Logger
}

func NewPipelineWorker(orchestrator *pipeline.Orchestrator, cfg *config.Config, logger *zap.Logger) *PipelineWorker {
	return &PipelineWorker{
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

// ProcessTask handles one pipeline tick.
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if ready, reason := w.cfg.InferenceReady(); !ready {
		w.logger.Debug("pipeline tick skipped", zap.String("reason", reason))
		return nil
	}

	if !w.orchestrator.TryLock(ctx) {
		w.logger.Info("pipeline tick skipped, invocation already running")
		return nil
	}
	defer w.orchestrator.Unlock(ctx)

	summary := w.orchestrator.Run(ctx)
	if !summary.OK() {
		// Soft errors are already in the run summary and the job
		// records; the tick itself never fails so asynq does not retry
		// a sweep that partially succeeded.
		w.logger.Warn("pipeline tick finished with errors",
			zap.Strings("errors", summary.Errors))
	}
	return nil
}
