package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/client"
	"github.com/ballotbase/api/internal/model"
)

// processAnalyzeJobs polls the analyze batches of submitted jobs and
// reconciles per-group results once a batch reaches a terminal state.
func (o *Orchestrator) processAnalyzeJobs(ctx context.Context) Summary {
	var sum Summary

	jobs, err := o.store.JobsByStatus(ctx, model.JobStatusAnalyzeSubmitted, o.cfg.MaxAnalyzeJobs)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("analyze: %v", err))
		return sum
	}

	for i := range jobs {
		job := &jobs[i]
		sum.AnalyzeChecked++
		if err := o.checkAnalyzeJob(ctx, job, &sum); err != nil {
			// Soft failure: the job stays ANALYZE_SUBMITTED and is
			// revisited next cycle.
			sum.Errors = append(sum.Errors, fmt.Sprintf("analyze:%s: %v", job.ID, err))
		}
	}

	return sum
}

func (o *Orchestrator) checkAnalyzeJob(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	if job.AnalyzeBatchName == nil || *job.AnalyzeBatchName == "" || job.AnalyzeMode == "" {
		o.failJob(ctx, job, stageAnalyze, "job has no analyze batch reference")
		return nil
	}

	status, err := o.gateway.GetBatchStatus(ctx, *job.AnalyzeBatchName)
	if err != nil {
		return fmt.Errorf("failed to poll analyze batch: %w", err)
	}

	switch status.State {
	case client.BatchStateSucceeded:
		return o.reconcileAnalyzeResults(ctx, job, sum)
	case client.BatchStateFailed, client.BatchStateCancelled:
		detail := status.ErrorDetail
		if detail == "" {
			detail = string(status.State)
		}
		o.failJob(ctx, job, stageAnalyze, detail)
		return nil
	default:
		// Still running, revisit next cycle.
		return nil
	}
}

func (o *Orchestrator) reconcileAnalyzeResults(ctx context.Context, job *model.BatchJob, sum *Summary) error {
	groups, err := o.store.GroupsByJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	if len(groups) == 0 {
		o.failJob(ctx, job, stageAnalyze, "job has no groups")
		return nil
	}

	results, err := o.gateway.FetchResults(ctx, *job.AnalyzeBatchName, job.AnalyzeMode, groupKeys(groups))
	if err != nil {
		return fmt.Errorf("failed to fetch analyze results: %w", err)
	}

	now := time.Now().UTC()
	succeeded := 0
	for i := range groups {
		group := &groups[i]
		result := results[i]

		switch {
		case result.Error != "":
			group.Status = model.GroupStatusAnalyzeFailed
			detail := result.Error
			group.AnalyzeError = &detail
		case result.Text == "":
			group.Status = model.GroupStatusAnalyzeFailed
			detail := "analyze returned empty text"
			group.AnalyzeError = &detail
		default:
			text := result.Text
			completed := now
			group.Status = model.GroupStatusAnalyzeCompleted
			group.AnalyzeText = &text
			group.AnalyzeError = nil
			group.AnalyzeCompletedAt = &completed
			succeeded++
		}

		if err := o.store.SaveGroup(ctx, group); err != nil {
			return fmt.Errorf("failed to save group %s: %w", group.Key, err)
		}
	}

	job.AnalyzeCompletedAt = &now
	job.LastProcessedAt = &now
	if succeeded > 0 {
		job.Status = model.JobStatusAnalyzeCompleted
	} else {
		job.Status = model.JobStatusFailed
		detail := "no group produced an analysis"
		job.AnalyzeError = &detail
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	if succeeded > 0 {
		sum.AnalyzeCompleted++
	}

	o.logger.Info("analyze batch reconciled",
		zap.String("job", job.ID),
		zap.Int("succeeded", succeeded),
		zap.Int("groups", len(groups)))

	o.sendAnalyzeEmail(ctx, job, succeeded, len(groups))
	return nil
}
