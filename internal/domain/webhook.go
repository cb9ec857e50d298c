package domain

type WebhookEvent string

const (
	WebhookPaymentSucceeded WebhookEvent = "payment.succeeded"
	WebhookPaymentCanceled  WebhookEvent = "payment.canceled"
)

// ParseWebhookEvent returns false for every event type the reconciler ignores.
func ParseWebhookEvent(eventType string) (WebhookEvent, bool) {
	switch WebhookEvent(eventType) {
	case WebhookPaymentSucceeded, WebhookPaymentCanceled:
		return WebhookEvent(eventType), true
	}
	return "", false
}

type ReconciliationResult string

const (
	ReconciliationApplied ReconciliationResult = "APPLIED"
	ReconciliationNoOp    ReconciliationResult = "NOOP"
)

// ReconciliationOutcome describes what a webhook delivery did. A NoOp outcome
// is a success: the event was acknowledged and nothing changed.
type ReconciliationOutcome struct {
	Result    ReconciliationResult `json:"result"`
	Event     WebhookEvent         `json:"event,omitempty"`
	PaymentID string               `json:"payment_id,omitempty"`
	Status    PaymentStatus        `json:"status,omitempty"`
	ChildID   string               `json:"child_id,omitempty"`
	Credited  int                  `json:"credited"`
	Balance   *int                 `json:"balance,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

func (o *ReconciliationOutcome) IsNoOp() bool {
	return o.Result == ReconciliationNoOp
}

func NoOpOutcome(reason string) *ReconciliationOutcome {
	return &ReconciliationOutcome{Result: ReconciliationNoOp, Reason: reason}
}
