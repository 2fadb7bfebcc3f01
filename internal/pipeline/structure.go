package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/model"
)

// startStructureJobs submits structuring batches for jobs whose
// analysis finished, subject to the global active-token ceiling.
func (o *Orchestrator) startStructureJobs(ctx context.Context) Summary {
	var sum Summary

	jobs, err := o.store.JobsByStatus(ctx, model.JobStatusAnalyzeCompleted, o.cfg.MaxStructureStarts)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("structure-start: %v", err))
		return sum
	}

	for i := range jobs {
		job := &jobs[i]
		if err := o.startStructureJob(ctx, job, &sum); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("structure-start:%s: %v", job.ID, err))
		}
	}

	return sum
}

func (o *Orchestrator) startStructureJob(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	if job.StructurePrompt == "" {
		o.failJob(ctx, job, stageStructure, "job has no structuring prompt")
		return nil
	}

	groups, err := o.store.GroupsByJob(ctx, job.ID, model.GroupStatusAnalyzeCompleted)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	qualifying := groups[:0:0]
	for _, g := range groups {
		if g.AnalyzeText != nil && *g.AnalyzeText != "" {
			qualifying = append(qualifying, g)
		}
	}
	if len(qualifying) == 0 {
		o.failJob(ctx, job, stageStructure, "no analyzed groups available for structuring")
		return nil
	}

	opts := StructureOptions{
		MaxOutputTokens: o.cfg.MaxOutputTokens,
		ThinkingEnabled: o.cfg.ThinkingEnabled,
		ThinkingBudget:  o.cfg.ThinkingBudget,
	}
	requests := make([]client.BatchRequest, len(qualifying))
	for i := range qualifying {
		requests[i] = BuildStructureRequest(job, &qualifying[i], opts)
	}

	total, per := EstimateTokens(requests)

	// Admission control: skip (not fail) when the ceiling would be
	// exceeded; the job is retried on a later cycle.
	activeSum, err := o.store.SumEstimatedTokens(ctx, model.ActiveJobStatuses())
	if err != nil {
		return fmt.Errorf("failed to sum active token estimates: %w", err)
	}
	if activeSum+total > o.cfg.ActiveTokenCeiling {
		o.logger.Info("structure submission deferred by token budget",
			zap.String("job", job.ID),
			zap.Int64("active", activeSum),
			zap.Int64("requested", total),
			zap.Int64("ceiling", o.cfg.ActiveTokenCeiling))
		sum.Errors = append(sum.Errors, fmt.Sprintf(
			"structure-start:%s: deferred, token budget exhausted (%d active + %d requested > %d ceiling)",
			job.ID, activeSum, total, o.cfg.ActiveTokenCeiling))
		return nil
	}

	name, usedModel, fallbackUsed, err := o.submitWithFallback(ctx, job.DisplayName, requests)
	if err != nil {
		o.failJob(ctx, job, stageStructure, fmt.Sprintf("batch submission failed: %v", err))
		return nil
	}

	now := time.Now().UTC()
	job.Status = model.JobStatusStructureSubmitted
	job.StructureBatchName = &name
	job.StructureMode = model.InferenceModeInline
	job.StructureModel = usedModel
	job.StructureFallbackUsed = fallbackUsed
	job.StructureSubmittedAt = &now
	job.EstimatedTokens = total
	job.LastProcessedAt = &now
	if err := o.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job after submission: %w", err)
	}

	for i := range qualifying {
		group := &qualifying[i]
		group.Status = model.GroupStatusStructureRunning
		group.StructureTokenEstimate = per[i]
		if err := o.store.SaveGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to mark group %s running: %w", group.Key, err)
		}
	}

	sum.StructureStarted++
	o.logger.Info("structure batch submitted",
		zap.String("job", job.ID),
		zap.String("batch", name),
		zap.String("model", usedModel),
		zap.Bool("fallback", fallbackUsed),
		zap.Int64("estimatedTokens", total))
	return nil
}

// submitWithFallback tries the primary model and, only if submission
// itself fails, the distinct fallback model.
func (o *Orchestrator) submitWithFallback(ctx context.Context, displayName string, requests []client.BatchRequest) (string, string, bool, error) {
	name, err := o.gateway.SubmitBatch(ctx, o.cfg.PrimaryModel, displayName, requests)
	if err == nil {
		return name, o.cfg.PrimaryModel, false, nil
	}

	if o.cfg.FallbackModel == "" || o.cfg.FallbackModel == o.cfg.PrimaryModel {
		return "", "", false, err
	}

	o.logger.Warn("primary model submission failed, trying fallback",
		zap.String("primary", o.cfg.PrimaryModel),
		zap.String("fallback", o.cfg.FallbackModel),
		zap.Error(err))

	name, fallbackErr := o.gateway.SubmitBatch(ctx, o.cfg.FallbackModel, displayName, requests)
	if fallbackErr != nil {
		return "", "", false, fmt.Errorf("primary: %v; fallback: %w", err, fallbackErr)
	}
	return name, o.cfg.FallbackModel, true, nil
}

// processStructureJobs polls submitted structuring batches and parses
// per-group structured output.
func (o *Orchestrator) processStructureJobs(ctx context.Context) Summary {
	var sum Summary

	jobs, err := o.store.JobsByStatus(ctx, model.JobStatusStructureSubmitted, o.cfg.MaxStructureStarts)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("structure: %v", err))
		return sum
	}

	for i := range jobs {
		job := &jobs[i]
		sum.StructureChecked++
		if err := o.checkStructureJob(ctx, job, &sum); err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("structure:%s: %v", job.ID, err))
		}
	}

	return sum
}

func (o *Orchestrator) checkStructureJob(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	if job.StructureBatchName == nil || *job.StructureBatchName == "" || job.StructureMode == "" {
		o.failJob(ctx, job, stageStructure, "job has no structure batch reference")
		return nil
	}

	status, err := o.gateway.GetBatchStatus(ctx, *job.StructureBatchName)
	if err != nil {
		return fmt.Errorf("failed to poll structure batch: %w", err)
	}

	switch status.State {
	case client.BatchStateSucceeded:
		return o.reconcileStructureResults(ctx, job, sum)
	case client.BatchStateFailed, client.BatchStateCancelled:
		detail := status.ErrorDetail
		if detail == "" {
			detail = string(status.State)
		}
		o.failJob(ctx, job, stageStructure, detail)
		return nil
	default:
		return nil
	}
}

func (o *Orchestrator) reconcileStructureResults(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	groups, err := o.store.GroupsByJob(ctx, job.ID, model.GroupStatusStructureRunning)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	if len(groups) == 0 {
		o.failJob(ctx, job, stageStructure, "no groups awaiting structured results")
		return nil
	}

	results, err := o.gateway.FetchResults(ctx, *job.StructureBatchName, job.StructureMode, groupKeys(groups))
	if err != nil {
		return fmt.Errorf("failed to fetch structure results: %w", err)
	}

	now := time.Now().UTC()
	succeeded := 0
	for i := range groups {
		group := &groups[i]
		result := results[i]

		switch {
		case result.Error != "":
			group.Status = model.GroupStatusStructureFailed
			detail := result.Error
			group.StructureError = &detail
		default:
			// A parse failure is a structuring error for this group
			// only; siblings are unaffected.
			var payload model.ElectionsPayload
			if err := json.Unmarshal([]byte(result.Text), &payload); err != nil {
				group.Status = model.GroupStatusStructureFailed
				detail := fmt.Sprintf("failed to parse structured output: %v", err)
				group.StructureError = &detail
				break
			}
			text := result.Text
			completed := now
			group.Status = model.GroupStatusStructureCompleted
			group.StructureText = &text
			group.Structured = datatypes.JSON(result.Text)
			group.StructureError = nil
			group.StructureCompletedAt = &completed
			succeeded++
		}

		if err := o.store.SaveGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to save group %s: %w", group.Key, err)
		}
	}

	job.StructureCompletedAt = &now
	job.LastProcessedAt = &now
	if succeeded > 0 {
		job.Status = model.JobStatusIngestPending
	} else {
		job.Status = model.JobStatusFailed
		if job.StructureError == nil {
			detail := "no group produced structured output"
			job.StructureError = &detail
		}
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if succeeded > 0 {
		sum.StructureCompleted++
	}

	o.logger.Info("structure batch reconciled",
		zap.String("job", job.ID),
		zap.Int("succeeded", succeeded),
		zap.Int("groups", len(groups)))
	return nil
}
