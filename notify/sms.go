// Package notify sends run status messages over SMS. Notification failures
// never fail a run.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/storyreel/storyreel/config"
)

const maxSMSLength = 320

// SMSNotifier delivers messages through the Twilio API.
type SMSNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
	logger *slog.Logger
}

// New returns nil when the Twilio credentials are not configured; a nil
// notifier is simply not attached to the pipeline.
func New(cfg *config.Config, logger *slog.Logger) *SMSNotifier {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioToNumber == "" {
		return nil
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &SMSNotifier{
		client: client,
		from:   cfg.TwilioFromNumber,
		to:     cfg.TwilioToNumber,
		logger: logger,
	}
}

func (n *SMSNotifier) Notify(ctx context.Context, message string) error {
	if len(message) > maxSMSLength {
		message = message[:maxSMSLength]
	}

	params := &twilioApi.CreateMessageParams{
		To:   &n.to,
		From: &n.from,
		Body: &message,
	}

	result, err := n.client.Api.CreateMessage(params)
	if err != nil {
		n.logger.Error("Failed to send SMS",
			slog.String("error", err.Error()),
			slog.String("to", n.to))
		return fmt.Errorf("sending SMS: %w", err)
	}

	if result.Sid != nil {
		n.logger.Info("SMS notification sent", slog.String("message_sid", *result.Sid))
	}
	return nil
}
