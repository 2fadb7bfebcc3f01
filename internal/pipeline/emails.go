package pipeline

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/model"
)

// sendAnalyzeEmail notifies the uploader and the team once the analyze
// stage reached a terminal result. The sentinel is only set after a
// successful send, so a transient notifier failure does not burn the
// single notification.
func (o *Orchestrator) sendAnalyzeEmail(ctx context.Context, job *model.BatchJob, succeeded, total int) {
	if o.notifier == nil || job.AnalyzeEmailSentAt != nil {
		return
	}

	subject := fmt.Sprintf("Analysis finished: %s", job.DisplayName)
	body := fmt.Sprintf(
		"<p>The analysis stage for <strong>%s</strong> has finished.</p>"+
			"<p>%d of %d groups produced an analysis.</p>",
		html.EscapeString(job.DisplayName), succeeded, total)

	o.sendStageEmail(ctx, job, subject, body, func(sentAt *time.Time) {
		job.AnalyzeEmailSentAt = sentAt
	})
}

// sendIngestEmail notifies the uploader and the team once the job's
// records have been ingested.
func (o *Orchestrator) sendIngestEmail(ctx context.Context, job *model.BatchJob, outcomes int) {
	if o.notifier == nil || job.IngestEmailSentAt != nil {
		return
	}

	subject := fmt.Sprintf("Ingestion finished: %s", job.DisplayName)
	body := fmt.Sprintf(
		"<p>The upload <strong>%s</strong> has been ingested.</p>"+
			"<p>%d election records were created or merged.</p>",
		html.EscapeString(job.DisplayName), outcomes)

	o.sendStageEmail(ctx, job, subject, body, func(sentAt *time.Time) {
		job.IngestEmailSentAt = sentAt
	})
}

func (o *Orchestrator) sendStageEmail(ctx context.Context, job *model.BatchJob, subject, body string, markSent func(*time.Time)) {
	recipients := make([]string, 0, 2)
	if job.UploaderEmail != "" {
		recipients = append(recipients, job.UploaderEmail)
	}
	if o.cfg.TeamAddress != "" {
		recipients = append(recipients, o.cfg.TeamAddress)
	}
	if len(recipients) == 0 {
		return
	}

	if err := o.notifier.Send(ctx, recipients, subject, body); err != nil {
		// Notification failures never propagate; the nil sentinel
		// allows a retry on a later cycle.
		o.logger.Warn("notification failed",
			zap.String("job", job.ID),
			zap.String("subject", subject),
			zap.Error(err))
		return
	}

	now := time.Now().UTC()
	markSent(&now)
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.logger.Error("failed to persist email sentinel",
			zap.String("job", job.ID),
			zap.Error(err))
	}
}
