package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/model"
	"github.com/ballotbase/api/internal/pipeline"
)

// defaultAnalyzePrompt drives the first inference pass over raw rows.
const defaultAnalyzePrompt = `You are an election data analyst. You will receive raw spreadsheet rows ` +
	`describing an election for one municipality and position. Describe the election, the candidates, ` +
	`their parties and vote counts, and flag rows that look malformed or ambiguous. Answer in plain prose.`

// defaultStructurePrompt drives the second pass that turns an analysis
// into the structured payload.
const defaultStructurePrompt = `Convert the following election analysis into structured JSON that conforms ` +
	`to the response schema. Include every election and candidate mentioned. Omit fields you cannot ` +
	`determine rather than guessing.`

// defaultResponseSchema constrains structuring output when the caller
// does not supply a schema.
const defaultResponseSchema = `{
  "type": "object",
  "properties": {
    "elections": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "state": {"type": "string"},
          "municipality": {"type": "string"},
          "position": {"type": "string"},
          "date": {"type": "string"},
          "description": {"type": "string"},
          "candidates": {
            "type": "array",
            "items": {
              "type": "object",
              "properties": {
                "name": {"type": "string"},
                "party": {"type": "string"},
                "votes": {"type": "integer"},
                "winner": {"type": "boolean"}
              },
              "required": ["name"]
            }
          }
        },
        "required": ["name", "candidates"]
      }
    }
  },
  "required": ["elections"]
}`

// Store is the persistence surface the submission flow needs.
type Store interface {
	CreateJob(ctx context.Context, job *model.BatchJob) error
	SaveJob(ctx context.Context, job *model.BatchJob) error
	GetJob(ctx context.Context, id string) (*model.BatchJob, error)
	RecentJobs(ctx context.Context, limit int) ([]model.BatchJob, error)
}

// Gateway is the slice of the inference API used at submission time.
type Gateway interface {
	SubmitBatch(ctx context.Context, model, displayName string, requests []client.BatchRequest) (string, error)
}

// BatchService handles batch job submission and lookups. After
// submission the orchestrator owns the job.
type BatchService struct {
	store        Store
	gateway      Gateway
	analyzeModel string
	logger       *zap.Logger
}

func NewBatchService(store Store, gateway Gateway, analyzeModel string, logger *zap.Logger) *BatchService {
	return &BatchService{
		store:        store,
		gateway:      gateway,
		analyzeModel: analyzeModel,
		logger:       logger,
	}
}

// Submit creates the job with its groups and submits the analyze
// batch. The job lands in ANALYZE_SUBMITTED on success and FAILED when
// submission itself throws.
func (s *BatchService) Submit(ctx context.Context, req *model.BatchSubmitRequest) (*model.BatchJob, error) {
	job := &model.BatchJob{
		ID:              uuid.New().String(),
		Status:          model.JobStatusPendingAnalyze,
		DisplayName:     req.DisplayName,
		UploaderEmail:   req.UploaderEmail,
		ForceHidden:     req.ForceHidden,
		StructurePrompt: req.StructurePrompt,
	}
	if job.StructurePrompt == "" {
		job.StructurePrompt = defaultStructurePrompt
	}
	if len(req.ResponseSchema) > 0 {
		job.ResponseSchema = datatypes.JSON(req.ResponseSchema)
	} else {
		job.ResponseSchema = datatypes.JSON(defaultResponseSchema)
	}

	for i, g := range req.Groups {
		rows, err := json.Marshal(g.Rows)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rows for group %d: %w", i+1, err)
		}
		job.Groups = append(job.Groups, model.BatchGroup{
			Key:          fmt.Sprintf("group-%03d", i+1),
			Order:        i + 1,
			Municipality: g.Municipality,
			State:        g.State,
			Position:     g.Position,
			Rows:         datatypes.JSON(rows),
			Status:       model.GroupStatusPending,
		})
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	requests := make([]client.BatchRequest, len(job.Groups))
	for i := range job.Groups {
		requests[i] = pipeline.BuildAnalyzeRequest(&job.Groups[i], defaultAnalyzePrompt)
	}

	name, err := s.gateway.SubmitBatch(ctx, s.analyzeModel, job.DisplayName, requests)
	now := time.Now().UTC()
	if err != nil {
		detail := fmt.Sprintf("analyze submission failed: %v", err)
		job.Status = model.JobStatusFailed
		job.AnalyzeError = &detail
		job.LastProcessedAt = &now
		if saveErr := s.store.SaveJob(ctx, job); saveErr != nil {
			s.logger.Error("failed to persist submission failure",
				zap.String("job", job.ID),
				zap.Error(saveErr))
		}
		return nil, fmt.Errorf("failed to submit analyze batch: %w", err)
	}

	job.Status = model.JobStatusAnalyzeSubmitted
	job.AnalyzeBatchName = &name
	job.AnalyzeMode = model.InferenceModeInline
	job.AnalyzeSubmittedAt = &now
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save submitted job: %w", err)
	}

	s.logger.Info("batch submitted",
		zap.String("job", job.ID),
		zap.String("batch", name),
		zap.Int("groups", len(job.Groups)))
	return job, nil
}

// Get returns one job with its groups.
func (s *BatchService) Get(ctx context.Context, id string) (*model.BatchJob, error) {
	return s.store.GetJob(ctx, id)
}

// List returns the most recently submitted jobs.
func (s *BatchService) List(ctx context.Context, limit int) ([]model.BatchJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.RecentJobs(ctx, limit)
}
