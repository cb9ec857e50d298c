package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"
	"clubledger-backend/internal/repository"
)

type NotifierConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	JobTimeout     time.Duration
	ClubName       string
	FrontendURL    string
}

type noticeJob struct {
	kind      domain.NotificationKind
	childID   string
	balance   int
	paymentID string
	attempt   int
}

func (j noticeJob) subject() string {
	if j.kind == domain.NotificationLowBalance {
		return j.childID
	}
	return j.paymentID
}

// AsyncNotifier delivers notices on a bounded queue drained by a worker pool.
// A full queue drops the notice; failed deliveries are retried with
// quadratic backoff.
type AsyncNotifier struct {
	store  repository.Store
	sender EmailSender
	cfg    NotifierConfig
	jobs   chan noticeJob
	log    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

var _ Notifier = (*AsyncNotifier)(nil)

func NewAsyncNotifier(store repository.Store, sender EmailSender, cfg NotifierConfig) *AsyncNotifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 15 * time.Second
	}
	return &AsyncNotifier{
		store:  store,
		sender: sender,
		cfg:    cfg,
		jobs:   make(chan noticeJob, cfg.QueueSize),
		log:    logger.WithComponent("notifier"),
	}
}

// Start launches the workers. They run until ctx is done or Stop is called.
func (n *AsyncNotifier) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.started = true
	for i := 0; i < n.cfg.Workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
	n.log.Info("Notification workers started", "workers", n.cfg.Workers, "queueSize", n.cfg.QueueSize)
}

// Stop cancels the workers and waits for in-flight deliveries to return.
// Queued notices are abandoned.
func (n *AsyncNotifier) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.cancel()
	n.mu.Unlock()
	n.wg.Wait()
	n.log.Info("Notification workers stopped", "abandoned", len(n.jobs))
}

func (n *AsyncNotifier) LowBalance(childID string, balance int) {
	n.enqueue(noticeJob{kind: domain.NotificationLowBalance, childID: childID, balance: balance})
}

func (n *AsyncNotifier) PaymentConfirmed(paymentID string) {
	n.enqueue(noticeJob{kind: domain.NotificationPaymentConfirmed, paymentID: paymentID})
}

func (n *AsyncNotifier) enqueue(job noticeJob) {
	select {
	case n.jobs <- job:
		metrics.NotificationQueueDepth.Inc()
	default:
		metrics.NotificationsTotal.WithLabelValues(string(job.kind), metrics.NoticeDropped).Inc()
		n.log.Warn("Notification queue full, notice dropped", "kind", job.kind, "subject", job.subject())
	}
}

func (n *AsyncNotifier) worker(id int) {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case job := <-n.jobs:
			metrics.NotificationQueueDepth.Dec()
			n.process(job)
		}
	}
}

func (n *AsyncNotifier) process(job noticeJob) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error("Notification worker panic", "kind", job.kind, "subject", job.subject(), "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.JobTimeout)
	defer cancel()

	err := n.deliver(ctx, job)
	if err == nil {
		metrics.NotificationsTotal.WithLabelValues(string(job.kind), metrics.NoticeSent).Inc()
		return
	}

	retryable := !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, ErrPermanentEmail)
	if !retryable || job.attempt >= n.cfg.MaxRetries {
		metrics.NotificationsTotal.WithLabelValues(string(job.kind), metrics.NoticeFailed).Inc()
		n.log.Error("Notice delivery failed", "kind", job.kind, "subject", job.subject(), "attempts", job.attempt+1, "error", err)
		return
	}

	job.attempt++
	backoff := time.Duration(job.attempt*job.attempt) * n.cfg.RetryBaseDelay
	n.log.Warn("Retrying notice", "kind", job.kind, "subject", job.subject(), "attempt", job.attempt, "backoff", backoff, "error", err)
	time.AfterFunc(backoff, func() {
		if n.ctx.Err() != nil {
			return
		}
		n.enqueue(job)
	})
}

func (n *AsyncNotifier) deliver(ctx context.Context, job noticeJob) error {
	repos := n.store.Repos()

	var (
		recipient *domain.User
		note      domain.Notification
		msg       EmailMessage
		err       error
	)
	switch job.kind {
	case domain.NotificationLowBalance:
		recipient, note, msg, err = n.lowBalanceNotice(ctx, repos, job)
	case domain.NotificationPaymentConfirmed:
		recipient, note, msg, err = n.paymentConfirmedNotice(ctx, repos, job)
	default:
		return fmt.Errorf("unknown notice kind %s: %w", job.kind, domain.ErrNotFound)
	}
	if err != nil {
		return err
	}

	// The in-app copy is written once; retries only repeat the email.
	if job.attempt == 0 {
		note.UserID = recipient.ID
		if err := repos.Notifications.Create(ctx, &note); err != nil {
			n.log.Warn("Failed to store in-app notice", "kind", job.kind, "userID", recipient.ID, "error", err)
		}
	}

	if recipient.Email == "" {
		return nil
	}
	msg.To = recipient.Email
	msg.ToName = recipient.FullName()
	return n.sender.SendEmail(ctx, msg)
}

func (n *AsyncNotifier) lowBalanceNotice(ctx context.Context, repos repository.Repositories, job noticeJob) (*domain.User, domain.Notification, EmailMessage, error) {
	child, err := repos.Children.GetByID(ctx, job.childID)
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}
	parent, err := repos.Users.GetByID(ctx, child.ParentID)
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}

	note := domain.Notification{
		Title:   "Session balance is running low",
		Message: fmt.Sprintf("%s has %d %s left.", child.FullName(), job.balance, sessionsWord(job.balance)),
		Attributes: map[string]string{
			"kind":    string(domain.NotificationLowBalance),
			"childId": child.ID,
			"balance": strconv.Itoa(job.balance),
		},
	}
	html, err := renderEmail(lowBalanceTemplate, map[string]any{
		"ParentName": parent.FirstName,
		"ChildName":  child.FullName(),
		"Balance":    job.balance,
		"Sessions":   sessionsWord(job.balance),
		"Link":       n.cfg.FrontendURL + "/parent",
		"Club":       n.cfg.ClubName,
	})
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}
	msg := EmailMessage{
		Subject:   fmt.Sprintf("Session balance is running low - %s", n.cfg.ClubName),
		PlainText: fmt.Sprintf("Hello %s! %s Top up the balance so no training is missed.", parent.FirstName, note.Message),
		HTML:      html,
	}
	return parent, note, msg, nil
}

func (n *AsyncNotifier) paymentConfirmedNotice(ctx context.Context, repos repository.Repositories, job noticeJob) (*domain.User, domain.Notification, EmailMessage, error) {
	payment, err := repos.Payments.GetByID(ctx, job.paymentID)
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}
	user, err := repos.Users.GetByID(ctx, payment.UserID)
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}
	childName := ""
	if childID, ok := payment.TargetChildID(); ok {
		if child, err := repos.Children.GetByID(ctx, childID); err == nil {
			childName = child.FullName()
		}
	}

	note := domain.Notification{
		Title:   "Payment confirmed",
		Message: fmt.Sprintf("%d %s added to the balance.", payment.SessionsCount, sessionsWord(payment.SessionsCount)),
		Attributes: map[string]string{
			"kind":      string(domain.NotificationPaymentConfirmed),
			"paymentId": payment.ID,
			"childId":   payment.Metadata.ChildID,
		},
	}
	html, err := renderEmail(paymentConfirmedTemplate, map[string]any{
		"Name":      user.FirstName,
		"Amount":    payment.Amount,
		"Currency":  payment.Currency,
		"Sessions":  payment.SessionsCount,
		"ChildName": childName,
		"Date":      payment.CreatedOn.Format("2 January 2006 15:04"),
		"Link":      n.cfg.FrontendURL + "/parent",
		"Club":      n.cfg.ClubName,
	})
	if err != nil {
		return nil, domain.Notification{}, EmailMessage{}, err
	}
	msg := EmailMessage{
		Subject:   fmt.Sprintf("Payment confirmed - %s", n.cfg.ClubName),
		PlainText: fmt.Sprintf("Hello %s! Your payment of %d %s was processed. %s", user.FirstName, payment.Amount, payment.Currency, note.Message),
		HTML:      html,
	}
	return user, note, msg, nil
}

func sessionsWord(n int) string {
	if n == 1 {
		return "session"
	}
	return "sessions"
}

var (
	lowBalanceTemplate = template.Must(template.New("low_balance").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>Session balance is running low</h2>
<p>Hello {{.ParentName}}!</p>
<p><strong>{{.ChildName}}</strong> has <strong>{{.Balance}}</strong> {{.Sessions}} left.</p>
<p>Top up the balance in advance so no training is missed.</p>
<p><a href="{{.Link}}">Top up balance</a></p>
<p style="color: #666; font-size: 12px;">{{.Club}}. This is an automated message, please do not reply.</p>
</body></html>`))

	paymentConfirmedTemplate = template.Must(template.New("payment_confirmed").Parse(`<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2>Payment confirmed</h2>
<p>Hello {{.Name}}!</p>
<p>Your payment of <strong>{{.Amount}} {{.Currency}}</strong> was processed.</p>
<p>Sessions added: <strong>{{.Sessions}}</strong></p>
{{if .ChildName}}<p>For: <strong>{{.ChildName}}</strong></p>{{end}}
<p>Payment date: {{.Date}}</p>
<p><a href="{{.Link}}">Open your account</a></p>
<p style="color: #666; font-size: 12px;">{{.Club}}. This is an automated message, please do not reply.</p>
</body></html>`))
)

func renderEmail(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
