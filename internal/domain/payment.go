package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

const DefaultCurrency = "RUB"

// PaymentMetadata is stored alongside the payment as JSON. ChildID is the
// child whose balance a completed payment credits.
type PaymentMetadata struct {
	TariffID string `json:"tariffId,omitempty"`
	ChildID  string `json:"childId,omitempty"`
}

type Payment struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	Amount            int             `json:"amount"`
	Currency          string          `json:"currency"`
	SessionsCount     int             `json:"sessions_count"`
	Status            PaymentStatus   `json:"status"`
	PaymentMethod     string          `json:"payment_method"`
	ExternalReference *string         `json:"external_reference,omitempty"`
	Metadata          PaymentMetadata `json:"metadata"`
	CreatedOn         time.Time       `json:"created_on"`
	UpdatedOn         time.Time       `json:"updated_on"`
}

// TargetChildID resolves the credited child from the stored metadata.
func (p *Payment) TargetChildID() (string, bool) {
	id := strings.TrimSpace(p.Metadata.ChildID)
	return id, id != ""
}

func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// DecodePaymentMetadata tolerates empty and null documents.
func DecodePaymentMetadata(raw []byte) (PaymentMetadata, error) {
	var md PaymentMetadata
	if len(raw) == 0 || string(raw) == "null" {
		return md, nil
	}
	err := json.Unmarshal(raw, &md)
	return md, err
}

// CheckoutResult is returned to the parent after a payment is initiated.
type CheckoutResult struct {
	PaymentID       string `json:"payment_id"`
	ConfirmationURL string `json:"confirmation_url"`
	Amount          int    `json:"amount"`
	SessionsCount   int    `json:"sessions_count"`
}
