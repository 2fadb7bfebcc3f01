package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/config"
	"github.com/ballotbase/api/internal/ingest"
	"github.com/ballotbase/api/internal/mail"
	"github.com/ballotbase/api/internal/model"
)

// JobStore is the persistence surface the orchestrator needs. All
// cross-invocation state lives behind it; the orchestrator itself is
// stateless between runs.
type JobStore interface {
	JobsByStatus(ctx context.Context, status model.JobStatus, limit int) ([]model.BatchJob, error)
	SaveJob(ctx context.Context, job *model.BatchJob) error
	GroupsByJob(ctx context.Context, jobID string, statuses ...model.GroupStatus) ([]model.BatchGroup, error)
	SaveGroup(ctx context.Context, group *model.BatchGroup) error
	SumEstimatedTokens(ctx context.Context, statuses []model.JobStatus) (int64, error)
}

// InferenceGateway is the batch inference service boundary.
type InferenceGateway interface {
	SubmitBatch(ctx context.Context, model, displayName string, requests []client.BatchRequest) (string, error)
	GetBatchStatus(ctx context.Context, name string) (*client.BatchStatus, error)
	FetchResults(ctx context.Context, name, mode string, keys []string) ([]client.ItemResult, error)
}

// Ingestor turns an aggregated structured payload into domain records.
type Ingestor interface {
	Ingest(ctx context.Context, payload model.ElectionsPayload, hidden bool, uploader string) ([]ingest.Outcome, error)
}

// Config carries the orchestrator's tunables.
type Config struct {
	PrimaryModel       string
	FallbackModel      string
	MaxOutputTokens    int
	ThinkingEnabled    bool
	ThinkingBudget     int
	MaxAnalyzeJobs     int
	MaxStructureStarts int
	MaxIngestJobs      int
	ActiveTokenCeiling int64
	DefaultHidden      bool
	TeamAddress        string
}

// ConfigFromApp derives the orchestrator config from the app config.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		PrimaryModel:       cfg.Inference.Model,
		FallbackModel:      cfg.Inference.FallbackModel,
		MaxOutputTokens:    cfg.Inference.MaxOutputTokens,
		ThinkingEnabled:    cfg.Inference.ThinkingEnabled,
		ThinkingBudget:     cfg.Inference.ThinkingBudget,
		MaxAnalyzeJobs:     cfg.Pipeline.MaxAnalyzeJobs,
		MaxStructureStarts: cfg.Pipeline.MaxStructureStarts,
		MaxIngestJobs:      cfg.Pipeline.MaxIngestJobs,
		ActiveTokenCeiling: cfg.Pipeline.ActiveTokenCeiling,
		DefaultHidden:      cfg.Pipeline.DefaultHidden,
		TeamAddress:        cfg.Email.TeamAddress,
	}
}

// Orchestrator advances batch jobs through the persisted state machine:
// poll analyze batches, admit and submit structuring batches, poll
// those, and ingest the structured results. Each invocation runs the
// four phases in order; a failure in one phase never prevents the next
// from running.
type Orchestrator struct {
	store    JobStore
	gateway  InferenceGateway
	ingestor Ingestor
	notifier mail.Service
	redis    *redis.Client
	cfg      Config
	logger   *zap.Logger
}

func New(store JobStore, gateway InferenceGateway, ingestor Ingestor, notifier mail.Service, redisClient *redis.Client, cfg Config, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gateway:  gateway,
		ingestor: ingestor,
		notifier: notifier,
		redis:    redisClient,
		cfg:      cfg,
		logger:   logger,
	}
}

// Stage error attribution for failJob.
const (
	stageAnalyze   = "analyze"
	stageStructure = "structure"
	stageIngest    = "ingest"
)

// Run executes one full invocation and returns its summary.
func (o *Orchestrator) Run(ctx context.Context) Summary {
	started := time.Now()

	phases := []struct {
		name string
		fn   func(context.Context) Summary
	}{
		{"analyze", o.processAnalyzeJobs},
		{"structure-start", o.startStructureJobs},
		{"structure", o.processStructureJobs},
		{"ingest", o.processIngestion},
	}

	var summary Summary
	for _, phase := range phases {
		summary = summary.Merge(o.runPhase(ctx, phase.name, phase.fn))
	}

	o.logger.Info("pipeline invocation finished",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("analyzeChecked", summary.AnalyzeChecked),
		zap.Int("structureStarted", summary.StructureStarted),
		zap.Int("structureChecked", summary.StructureChecked),
		zap.Int("ingestChecked", summary.IngestChecked),
		zap.Strings("errors", summary.Errors))
	return summary
}

// runPhase isolates a phase: a panic is converted into a summary error
// so the remaining phases still run.
func (o *Orchestrator) runPhase(ctx context.Context, name string, fn func(context.Context) Summary) (s Summary) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline phase panicked",
				zap.String("phase", name),
				zap.Any("panic", r))
			s.Errors = append(s.Errors, fmt.Sprintf("%s: panic: %v", name, r))
		}
	}()
	return fn(ctx)
}

// failJob moves the job to the terminal FAILED state, recording the
// detail on the stage that failed.
func (o *Orchestrator) failJob(ctx context.Context, job *model.BatchJob, stage, detail string) {
	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.LastProcessedAt = &now

	switch stage {
	case stageAnalyze:
		job.AnalyzeError = &detail
	case stageStructure:
		job.StructureError = &detail
	case stageIngest:
		job.IngestError = &detail
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Error("failed to persist job failure",
			zap.String("job", job.ID),
			zap.String("stage", stage),
			zap.Error(err))
		return
	}

	o.logger.Warn("job failed",
		zap.String("job", job.ID),
		zap.String("stage", stage),
		zap.String("detail", detail))
}

func groupKeys(groups []model.BatchGroup) []string {
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}
