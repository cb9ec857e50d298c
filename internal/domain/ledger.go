package domain

import "time"

type TransactionType string

const (
	TransactionTypeAttendanceDebit     TransactionType = "ATTENDANCE_DEBIT"
	TransactionTypeAttendanceRefund    TransactionType = "ATTENDANCE_REFUND"
	TransactionTypeSessionDeleteRefund TransactionType = "SESSION_DELETE_REFUND"
	TransactionTypePaymentCredit       TransactionType = "PAYMENT_CREDIT"
)

// LedgerTransaction is one journal row. Every balance adjustment writes
// exactly one, in the same transaction, so replaying the journal reproduces
// the balance.
type LedgerTransaction struct {
	ID               string          `json:"id"`
	ChildID          string          `json:"child_id"`
	Amount           int             `json:"amount"` // positive for credit, negative for debit
	Type             TransactionType `json:"type"`
	BalanceAfter     int             `json:"balance_after"`
	RelatedSessionID *string         `json:"related_session_id,omitempty"`
	RelatedPaymentID *string         `json:"related_payment_id,omitempty"`
	Description      string          `json:"description"`
	CreatedOn        time.Time       `json:"created_on"`
}

type LedgerSummary struct {
	ChildID           string `json:"child_id"`
	Balance           int    `json:"balance"`
	TotalCredited     int    `json:"total_credited"`
	TotalDebited      int    `json:"total_debited"`
	TotalRefunded     int    `json:"total_refunded"`
	AttendedSessions  int    `json:"attended_sessions"`
	CompletedPayments int    `json:"completed_payments"`
}

// BalanceDrift is a child whose stored balance disagrees with its journal.
type BalanceDrift struct {
	ChildID        string `json:"child_id"`
	Balance        int    `json:"balance"`
	OpeningBalance int    `json:"opening_balance"`
	JournalSum     int    `json:"journal_sum"`
}

func (d BalanceDrift) Expected() int {
	return d.OpeningBalance + d.JournalSum
}
