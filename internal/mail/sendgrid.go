package mail

import (
	"context"
	"fmt"

	sendgridgo "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/ballotbase/api/internal/config"
)

// Service sends transactional notification emails. Implementations are
// best-effort: callers log failures and move on.
type Service interface {
	Send(ctx context.Context, recipients []string, subject, htmlBody string) error
}

type sendGridClient struct {
	client     *sendgridgo.Client
	sender     string
	senderName string
	logger     *zap.Logger
}

func NewSendGridClient(cfg *config.EmailConfig, logger *zap.Logger) Service {
	return &sendGridClient{
		client:     sendgridgo.NewSendClient(cfg.SendGridAPIKey),
		sender:     cfg.Sender,
		senderName: cfg.SenderName,
		logger:     logger,
	}
}

func (c *sendGridClient) Send(ctx context.Context, recipients []string, subject, htmlBody string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}

	from := sgmail.NewEmail(c.senderName, c.sender)

	personalization := sgmail.NewPersonalization()
	for _, r := range recipients {
		personalization.AddTos(sgmail.NewEmail(r, r))
	}

	message := sgmail.NewV3Mail()
	message.SetFrom(from)
	message.Subject = subject
	message.AddPersonalizations(personalization)
	message.AddContent(sgmail.NewContent("text/html", htmlBody))

	resp, err := c.client.SendWithContext(ctx, message)
	if err != nil {
		c.logger.Error("send email error",
			zap.Strings("recipients", recipients),
			zap.Error(err))
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("send email rejected",
			zap.Strings("recipients", recipients),
			zap.Int("status", resp.StatusCode),
			zap.String("response", resp.Body))
		return fmt.Errorf("sendgrid rejected message (status %d)", resp.StatusCode)
	}

	c.logger.Info("email sent",
		zap.Strings("recipients", recipients),
		zap.String("subject", subject))
	return nil
}
