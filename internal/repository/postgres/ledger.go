package postgres

import (
	"context"
	"database/sql"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) CreateTransaction(ctx context.Context, tx *domain.LedgerTransaction) error {
	query := `INSERT INTO ledger_transactions (child_id, amount, type, balance_after, related_session_id, related_payment_id, description)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_on`
	logger.DatabaseCall("INSERT", "ledger_transactions", "childID", tx.ChildID, "type", tx.Type)

	err := r.db.QueryRowContext(ctx, query, tx.ChildID, tx.Amount, tx.Type, tx.BalanceAfter,
		tx.RelatedSessionID, tx.RelatedPaymentID, tx.Description).Scan(&tx.ID, &tx.CreatedOn)
	logger.DatabaseResult("INSERT", 1, err, "transactionID", tx.ID)
	return classifyError(err)
}

func (r *ledgerRepository) ListTransactions(ctx context.Context, childID string, page, pageSize int32) ([]domain.LedgerTransaction, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	// Count before opening the row cursor: a transaction-bound repository
	// shares one connection.
	var count int32
	countQuery := `SELECT count(*) FROM ledger_transactions WHERE child_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, childID).Scan(&count); err != nil {
		return nil, 0, classifyError(err)
	}

	query := `SELECT id, child_id, amount, type, balance_after, related_session_id, related_payment_id, COALESCE(description, ''), created_on
	          FROM ledger_transactions WHERE child_id = $1 ORDER BY created_on DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, childID, pageSize, offset)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	defer rows.Close()

	var txs []domain.LedgerTransaction
	for rows.Next() {
		var tx domain.LedgerTransaction
		var sessionID, paymentID sql.NullString
		if err := rows.Scan(&tx.ID, &tx.ChildID, &tx.Amount, &tx.Type, &tx.BalanceAfter, &sessionID, &paymentID, &tx.Description, &tx.CreatedOn); err != nil {
			return nil, 0, err
		}
		if sessionID.Valid {
			tx.RelatedSessionID = &sessionID.String
		}
		if paymentID.Valid {
			tx.RelatedPaymentID = &paymentID.String
		}
		txs = append(txs, tx)
	}
	return txs, count, classifyError(rows.Err())
}

func (r *ledgerRepository) GetSummary(ctx context.Context, childID string) (*domain.LedgerSummary, error) {
	summary := &domain.LedgerSummary{ChildID: childID}

	// Balance and journal totals
	err := r.db.QueryRowContext(ctx, `
		SELECT c.balance,
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'PAYMENT_CREDIT'), 0),
		       COALESCE(-SUM(t.amount) FILTER (WHERE t.type = 'ATTENDANCE_DEBIT'), 0),
		       COALESCE(SUM(t.amount) FILTER (WHERE t.type IN ('ATTENDANCE_REFUND', 'SESSION_DELETE_REFUND')), 0)
		FROM children c
		LEFT JOIN ledger_transactions t ON t.child_id = c.id
		WHERE c.id = $1
		GROUP BY c.id, c.balance`, childID).
		Scan(&summary.Balance, &summary.TotalCredited, &summary.TotalDebited, &summary.TotalRefunded)
	if err != nil {
		return nil, notFound(err, "child", childID)
	}

	// Attended sessions
	err = r.db.QueryRowContext(ctx, "SELECT count(*) FROM sessions WHERE child_id = $1 AND attended", childID).Scan(&summary.AttendedSessions)
	if err != nil {
		return nil, classifyError(err)
	}

	// Completed payments credited to this child
	err = r.db.QueryRowContext(ctx, "SELECT count(*) FROM payments WHERE status = 'COMPLETED' AND metadata->>'childId' = $1", childID).Scan(&summary.CompletedPayments)
	if err != nil {
		return nil, classifyError(err)
	}

	return summary, nil
}

// ListDrift returns children whose stored balance differs from the opening
// balance plus the sum of their journal.
func (r *ledgerRepository) ListDrift(ctx context.Context) ([]domain.BalanceDrift, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.balance, c.opening_balance, COALESCE(SUM(t.amount), 0)
		FROM children c
		LEFT JOIN ledger_transactions t ON t.child_id = c.id
		GROUP BY c.id, c.balance, c.opening_balance
		HAVING c.balance <> c.opening_balance + COALESCE(SUM(t.amount), 0)
		ORDER BY c.id`)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var drifts []domain.BalanceDrift
	for rows.Next() {
		var d domain.BalanceDrift
		if err := rows.Scan(&d.ChildID, &d.Balance, &d.OpeningBalance, &d.JournalSum); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, classifyError(rows.Err())
}
