package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
)

type paymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) repository.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, amount, currency, sessions_count, status, COALESCE(payment_method, ''),
	external_reference, metadata, created_on, updated_on`

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	p := &domain.Payment{}
	var extRef sql.NullString
	var metadata []byte
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.SessionsCount, &p.Status, &p.PaymentMethod,
		&extRef, &metadata, &p.CreatedOn, &p.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if extRef.Valid {
		p.ExternalReference = &extRef.String
	}
	md, err := domain.DecodePaymentMetadata(metadata)
	if err != nil {
		return nil, fmt.Errorf("payment %s metadata: %w: %w", p.ID, domain.ErrDataIntegrity, err)
	}
	p.Metadata = md
	return p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	logger.EnterMethod("paymentRepository.Create", "userID", p.UserID, "sessions", p.SessionsCount)

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		logger.ExitMethodWithError("paymentRepository.Create", err, "reason", "failed to marshal metadata")
		return err
	}
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}

	query := `INSERT INTO payments (user_id, amount, currency, sessions_count, status, payment_method, external_reference, metadata)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_on, updated_on`
	logger.DatabaseCall("INSERT", "payments", "userID", p.UserID)
	err = r.db.QueryRowContext(ctx, query, p.UserID, p.Amount, p.Currency, p.SessionsCount, p.Status,
		p.PaymentMethod, p.ExternalReference, metadata).Scan(&p.ID, &p.CreatedOn, &p.UpdatedOn)
	logger.DatabaseResult("INSERT", 1, err, "paymentID", p.ID)

	if err != nil {
		err = classifyError(err)
		logger.ExitMethodWithError("paymentRepository.Create", err, "userID", p.UserID)
		return err
	}
	logger.ExitMethod("paymentRepository.Create", "paymentID", p.ID)
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "payment", id)
	}
	return p, nil
}

func (r *paymentRepository) GetByExternalReference(ctx context.Context, ref string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE external_reference = $1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		return nil, notFound(err, "payment with external reference", ref)
	}
	return p, nil
}

func (r *paymentRepository) SetExternalReference(ctx context.Context, id, ref string) error {
	query := `UPDATE payments SET external_reference = $2, updated_on = NOW() WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, ref)
	if err != nil {
		return classifyError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_on DESC, id`
	return r.list(ctx, query, userID)
}

func (r *paymentRepository) ListStalePending(ctx context.Context, createdBefore time.Time) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 AND created_on < $2 ORDER BY created_on`
	return r.list(ctx, query, domain.PaymentStatusPending, createdBefore)
}

func (r *paymentRepository) list(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, classifyError(rows.Err())
}

// TransitionStatus is the idempotency guard: the WHERE clause on the current
// status makes the check and the write one statement, so of any number of
// concurrent callers exactly one sees changed == true.
func (r *paymentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (*domain.Payment, bool, error) {
	query := `UPDATE payments SET status = $3, updated_on = NOW()
	          WHERE id = $1 AND status = $2 RETURNING ` + paymentColumns
	logger.DatabaseCall("UPDATE", "payments", "paymentID", id, "from", from, "to", to)

	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("UPDATE", 0, nil, "paymentID", id)
		return nil, false, nil
	}
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err, "paymentID", id)
		return nil, false, classifyError(err)
	}
	logger.DatabaseResult("UPDATE", 1, nil, "paymentID", id)
	return p, true, nil
}
