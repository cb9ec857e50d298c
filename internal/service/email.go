package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker/v2"
)

// ErrPermanentEmail marks a delivery the provider rejected outright; retrying
// it cannot succeed.
var ErrPermanentEmail = errors.New("email rejected")

type sendGridSender struct {
	client  *sendgrid.Client
	from    *mail.Email
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewSendGridSender returns a SendGrid-backed sender behind a circuit breaker
// that opens after five consecutive transport or 5xx failures.
func NewSendGridSender(apiKey, fromEmail, fromName string) EmailSender {
	settings := gobreaker.Settings{
		Name:        "sendgrid",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrPermanentEmail)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Email circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if to == gobreaker.StateOpen {
				metrics.EmailBreakerOpen.Set(1)
			} else {
				metrics.EmailBreakerOpen.Set(0)
			}
		},
	}
	return &sendGridSender{
		client:  sendgrid.NewSendClient(apiKey),
		from:    mail.NewEmail(fromName, fromEmail),
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (s *sendGridSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	recipient := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(s.from, msg.Subject, recipient, msg.PlainText, msg.HTML)

	logger.ExternalServiceCall("sendgrid", "Send", "to", msg.To, "subject", msg.Subject)
	_, err := s.breaker.Execute(func() (struct{}, error) {
		response, err := s.client.SendWithContext(ctx, message)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to send email: %w", err)
		}
		switch {
		case response.StatusCode >= 500:
			return struct{}{}, fmt.Errorf("sendgrid error: status %d", response.StatusCode)
		case response.StatusCode >= 400:
			return struct{}{}, fmt.Errorf("%w: sendgrid status %d, body: %s", ErrPermanentEmail, response.StatusCode, response.Body)
		}
		return struct{}{}, nil
	})
	logger.ExternalServiceResult("sendgrid", "Send", err, "to", msg.To)
	return err
}

// logSender only logs messages. It is the default when no provider is
// configured.
type logSender struct{}

func NewLogSender() EmailSender {
	return logSender{}
}

func (logSender) SendEmail(ctx context.Context, msg EmailMessage) error {
	logger.Info("Email not sent (log provider)", "to", msg.To, "subject", msg.Subject, "body", msg.PlainText)
	return nil
}
