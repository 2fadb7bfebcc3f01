package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/model"
)

// processIngestion aggregates structured groups and hands the combined
// payload to the ingestion service. The job is marked INGEST_RUNNING
// before any work so a crash mid-ingestion is visibly stuck instead of
// silently retried with duplicate side effects.
func (o *Orchestrator) processIngestion(ctx context.Context) Summary {
	var sum Summary

	jobs, err := o.store.JobsByStatus(ctx, model.JobStatusIngestPending, o.cfg.MaxIngestJobs)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("ingest: %v", err))
		return sum
	}

	for i := range jobs {
		job := &jobs[i]
		sum.IngestChecked++
		if err := o.runIngestion(ctx, job, &sum); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("ingest:%s: %v", job.ID, err))
		}
	}

	return sum
}

func (o *Orchestrator) runIngestion(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	now := time.Now().UTC()
	job.Status = model.JobStatusIngestRunning
	job.IngestRequestedAt = &now
	job.LastProcessedAt = &now
	if err := o.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	groups, err := o.store.GroupsByJob(ctx, job.ID, model.GroupStatusStructureCompleted)
	if err != nil {
		o.failJob(ctx, job, stageIngest, fmt.Sprintf("failed to load structured groups: %v", err))
		return nil
	}

	var aggregate model.ElectionsPayload
	for i := range groups {
		var payload model.ElectionsPayload
		if err := json.Unmarshal(groups[i].Structured, &payload); err != nil {
			o.logger.Warn("skipping group with unreadable structured payload",
				zap.String("job", job.ID),
				zap.String("group", groups[i].Key),
				zap.Error(err))
			continue
		}
		aggregate.Elections = append(aggregate.Elections, payload.Elections...)
	}

	if len(aggregate.Elections) == 0 {
		o.failJob(ctx, job, stageIngest, "No structured elections available")
		return nil
	}

	hidden := job.ForceHidden || o.cfg.DefaultHidden
	outcomes, err := o.ingestor.Ingest(ctx, aggregate, hidden, job.UploaderEmail)
	if err != nil {
		// No rollback: the job requires a manual reset before retrying.
		o.failJob(ctx, job, stageIngest, err.Error())
		return nil
	}

	done := time.Now().UTC()
	job.Status = model.JobStatusCompleted
	job.IngestCompletedAt = &done
	job.LastProcessedAt = &done
	if notes, err := json.Marshal(outcomes); err == nil {
		s := string(notes)
		job.Notes = &s
	}
	if err := o.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save completed job: %w", err)
	}

	for i := range groups {
		group := &groups[i]
		group.Status = model.GroupStatusIngestCompleted
		completed := done
		group.IngestCompletedAt = &completed
		if err := o.store.SaveGroup(ctx, group); err != nil {
			o.logger.Error("failed to mark group ingested",
				zap.String("job", job.ID),
				zap.String("group", group.Key),
				zap.Error(err))
		}
	}

	sum.IngestCompleted++
	o.logger.Info("ingestion finished",
		zap.String("job", job.ID),
		zap.Int("elections", len(aggregate.Elections)),
		zap.Int("outcomes", len(outcomes)))

	o.sendIngestEmail(ctx, job, len(outcomes))
	return nil
}
