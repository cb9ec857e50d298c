package domain

import "time"

type NotificationKind string

const (
	NotificationLowBalance       NotificationKind = "LOW_BALANCE"
	NotificationPaymentConfirmed NotificationKind = "PAYMENT_CONFIRMED"
)

type Notification struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	IsRead     bool              `json:"is_read"`
	Attributes map[string]string `json:"attributes"`
	CreatedOn  time.Time         `json:"created_on"`
}
