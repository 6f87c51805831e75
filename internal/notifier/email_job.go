package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
)

// EmailJob is the queue worker side of queued email alerts. Failures are
// retried by the queue and end in its dead-letter list.
type EmailJob struct {
	mailer Mailer
	log    *applogger.Logger
}

func NewEmailJob(mailer Mailer, log *applogger.Logger) *EmailJob {
	return &EmailJob{mailer: mailer, log: log}
}

func (j *EmailJob) Name() string { return "EmailJob" }

func (j *EmailJob) Type() string { return EmailJobType }

func (j *EmailJob) Handle(ctx context.Context, payload json.RawMessage) error {
	m, err := queue.ParsePayload[Mail](payload)
	if err != nil {
		return err
	}
	if err := j.mailer.Send(ctx, *m); err != nil {
		return fmt.Errorf("deliver alert %s: %w", m.AlertID, err)
	}
	j.log.Debug("alert mail delivered", applogger.String("alert_id", m.AlertID), applogger.Strings("to", m.To))
	return nil
}
