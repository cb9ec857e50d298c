package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/metrics"
	"clubledger-backend/internal/repository"
)

type paymentService struct {
	store     repository.Store
	gateway   CheckoutGateway
	notifier  Notifier
	returnURL string
	now       func() time.Time
}

func NewPaymentService(store repository.Store, gateway CheckoutGateway, notifier Notifier, returnURL string) PaymentService {
	return &paymentService{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		returnURL: returnURL,
		now:       time.Now,
	}
}

func (s *paymentService) GetTariffs() []domain.TariffPlan {
	return domain.TariffPlans()
}

// CreatePayment records a PENDING payment for one of the parent's children
// and opens a checkout for it. A checkout failure fails the payment.
func (s *paymentService) CreatePayment(ctx context.Context, actor domain.Actor, tariffID, childID string) (*domain.CheckoutResult, error) {
	logger.EnterMethod("paymentService.CreatePayment", "actor", actor.UserID, "tariffID", tariffID, "childID", childID)

	if actor.Role != domain.RoleParent {
		return nil, fmt.Errorf("create payment: %w", domain.ErrForbidden)
	}
	tariff, ok := domain.FindTariff(tariffID)
	if !ok {
		return nil, fmt.Errorf("tariff %s: %w", tariffID, domain.ErrNotFound)
	}
	if strings.TrimSpace(childID) == "" {
		return nil, fmt.Errorf("%w: child is required", domain.ErrInvalidInput)
	}

	repos := s.store.Repos()
	user, err := repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err)
		return nil, err
	}
	child, err := loadVisibleChild(ctx, repos, actor, childID)
	if err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err)
		return nil, err
	}

	payment := &domain.Payment{
		UserID:        actor.UserID,
		Amount:        tariff.Price,
		Currency:      domain.DefaultCurrency,
		SessionsCount: tariff.SessionsCount,
		Status:        domain.PaymentStatusPending,
		PaymentMethod: "checkout",
		Metadata:      domain.PaymentMetadata{TariffID: tariff.ID, ChildID: child.ID},
	}
	if err := repos.Payments.Create(ctx, payment); err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err)
		return nil, err
	}

	description := fmt.Sprintf("%s for %s", tariff.Name, user.FullName())
	logger.ExternalServiceCall("checkout", "CreateCheckout", "paymentID", payment.ID)
	checkout, err := s.gateway.CreateCheckout(ctx, payment, description, s.returnURLFor(payment.ID))
	logger.ExternalServiceResult("checkout", "CreateCheckout", err, "paymentID", payment.ID)
	if err != nil {
		if _, _, failErr := repos.Payments.TransitionStatus(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed); failErr != nil {
			logger.Error("Failed to mark payment as failed", "paymentID", payment.ID, "error", failErr)
		}
		err = fmt.Errorf("create checkout for payment %s: %w", payment.ID, err)
		logger.ExitMethodWithError("paymentService.CreatePayment", err)
		return nil, err
	}

	if err := repos.Payments.SetExternalReference(ctx, payment.ID, checkout.ExternalReference); err != nil {
		logger.ExitMethodWithError("paymentService.CreatePayment", err)
		return nil, err
	}

	logger.ExitMethod("paymentService.CreatePayment", "paymentID", payment.ID, "externalReference", checkout.ExternalReference)
	return &domain.CheckoutResult{
		PaymentID:       payment.ID,
		ConfirmationURL: checkout.ConfirmationURL,
		Amount:          payment.Amount,
		SessionsCount:   payment.SessionsCount,
	}, nil
}

func (s *paymentService) returnURLFor(paymentID string) string {
	u, err := url.Parse(s.returnURL)
	if err != nil || s.returnURL == "" {
		return s.returnURL
	}
	q := u.Query()
	q.Set("paymentId", paymentID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ApplyWebhookEvent settles a PENDING payment from a provider callback. The
// status flip is a conditional update, so replays and racing deliveries of
// any event for the same reference apply at most once.
func (s *paymentService) ApplyWebhookEvent(ctx context.Context, eventType, externalReference string, rawPayload []byte) (*domain.ReconciliationOutcome, error) {
	logger.EnterMethod("paymentService.ApplyWebhookEvent", "event", eventType, "externalReference", externalReference)

	outcome, err := s.applyWebhookEvent(ctx, eventType, strings.TrimSpace(externalReference), rawPayload)
	switch {
	case err != nil:
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindWebhook, metrics.ResultError).Inc()
		logger.ExitMethodWithError("paymentService.ApplyWebhookEvent", err, "externalReference", externalReference)
		return nil, err
	case outcome.IsNoOp():
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindWebhook, metrics.ResultNoOp).Inc()
		logger.Info("Webhook acknowledged without changes", "event", eventType, "externalReference", externalReference, "reason", outcome.Reason)
	default:
		metrics.ReconciliationsTotal.WithLabelValues(metrics.KindWebhook, metrics.ResultApplied).Inc()
	}
	logger.ExitMethod("paymentService.ApplyWebhookEvent", "result", outcome.Result)
	return outcome, nil
}

func (s *paymentService) applyWebhookEvent(ctx context.Context, eventType, ref string, rawPayload []byte) (*domain.ReconciliationOutcome, error) {
	event, ok := domain.ParseWebhookEvent(eventType)
	if !ok {
		return domain.NoOpOutcome("ignored event type " + eventType), nil
	}
	if ref == "" {
		return domain.NoOpOutcome("missing external reference"), nil
	}
	logProviderObject(ref, rawPayload)

	payment, err := s.store.Repos().Payments.GetByExternalReference(ctx, ref)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NoOpOutcome("no payment for external reference"), nil
	}
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return domain.NoOpOutcome("payment already " + string(payment.Status)), nil
	}

	if event == domain.WebhookPaymentCanceled {
		return s.cancel(ctx, event, payment)
	}
	return s.complete(ctx, event, payment)
}

func (s *paymentService) complete(ctx context.Context, event domain.WebhookEvent, payment *domain.Payment) (*domain.ReconciliationOutcome, error) {
	// Resolved before the transaction: without a child there is nothing
	// consistent to commit.
	childID, ok := payment.TargetChildID()
	if !ok {
		return nil, fmt.Errorf("payment %s has no child reference in metadata: %w", payment.ID, domain.ErrDataIntegrity)
	}

	var (
		changed bool
		balance int
	)
	start := time.Now()
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		p, ok, err := repos.Payments.TransitionStatus(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusCompleted)
		if err != nil || !ok {
			return err
		}
		balance, err = adjustAndJournal(ctx, repos, domain.LedgerTransaction{
			ChildID:          childID,
			Amount:           p.SessionsCount,
			Type:             domain.TransactionTypePaymentCredit,
			RelatedPaymentID: &p.ID,
			Description:      fmt.Sprintf("Payment completed: %d sessions", p.SessionsCount),
		})
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	metrics.TransactionDuration.WithLabelValues(metrics.KindWebhook).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if !changed {
		return domain.NoOpOutcome("payment settled concurrently"), nil
	}

	recordAdjustment(metrics.KindWebhook, domain.TransactionTypePaymentCredit, childID, payment.SessionsCount, balance, "paymentID", payment.ID)
	s.notifier.PaymentConfirmed(payment.ID)

	return &domain.ReconciliationOutcome{
		Result:    domain.ReconciliationApplied,
		Event:     event,
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusCompleted,
		ChildID:   childID,
		Credited:  payment.SessionsCount,
		Balance:   &balance,
	}, nil
}

func (s *paymentService) cancel(ctx context.Context, event domain.WebhookEvent, payment *domain.Payment) (*domain.ReconciliationOutcome, error) {
	var changed bool
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		_, changed, err = repos.Payments.TransitionStatus(ctx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return domain.NoOpOutcome("payment settled concurrently"), nil
	}
	logger.Info("Payment canceled", "paymentID", payment.ID)
	return &domain.ReconciliationOutcome{
		Result:    domain.ReconciliationApplied,
		Event:     event,
		PaymentID: payment.ID,
		Status:    domain.PaymentStatusFailed,
	}, nil
}

// logProviderObject records the provider's own object id and status for
// tracing. Nothing in the payload is used for amounts or children.
func logProviderObject(ref string, rawPayload []byte) {
	if len(rawPayload) == 0 {
		return
	}
	var envelope struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	}
	if err := json.Unmarshal(rawPayload, &envelope); err != nil {
		logger.Debug("Webhook payload is not a provider envelope", "externalReference", ref, "error", err)
		return
	}
	logger.Debug("Webhook provider object", "externalReference", ref,
		"providerObjectID", envelope.Object.ID, "providerStatus", envelope.Object.Status)
}

func (s *paymentService) GetPayment(ctx context.Context, actor domain.Actor, paymentID string) (*domain.Payment, error) {
	payment, err := s.store.Repos().Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	// other users' payments are indistinguishable from missing ones
	if payment.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, fmt.Errorf("payment %s: %w", paymentID, domain.ErrNotFound)
	}
	return payment, nil
}

func (s *paymentService) ListPayments(ctx context.Context, actor domain.Actor) ([]domain.Payment, error) {
	return s.store.Repos().Payments.ListByUser(ctx, actor.UserID)
}

// ExpireStalePayments fails PENDING payments created more than olderThan
// ago. It uses the same conditional transition as the webhook, so a
// delivery racing the job still settles the payment at most once.
func (s *paymentService) ExpireStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	logger.EnterMethod("paymentService.ExpireStalePayments", "olderThan", olderThan)

	repos := s.store.Repos()
	stale, err := repos.Payments.ListStalePending(ctx, s.now().Add(-olderThan))
	if err != nil {
		logger.ExitMethodWithError("paymentService.ExpireStalePayments", err)
		return 0, err
	}

	expired := 0
	var errs []error
	for _, p := range stale {
		_, changed, err := repos.Payments.TransitionStatus(ctx, p.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed)
		switch {
		case err != nil:
			metrics.ReconciliationsTotal.WithLabelValues(metrics.KindExpiry, metrics.ResultError).Inc()
			errs = append(errs, fmt.Errorf("expire payment %s: %w", p.ID, err))
		case changed:
			expired++
			metrics.ReconciliationsTotal.WithLabelValues(metrics.KindExpiry, metrics.ResultApplied).Inc()
			logger.Info("Stale payment expired", "paymentID", p.ID, "createdOn", p.CreatedOn)
		default:
			metrics.ReconciliationsTotal.WithLabelValues(metrics.KindExpiry, metrics.ResultNoOp).Inc()
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		logger.ExitMethodWithError("paymentService.ExpireStalePayments", err, "expired", expired)
		return expired, err
	}
	logger.ExitMethod("paymentService.ExpireStalePayments", "expired", expired)
	return expired, nil
}
