package postgres

import (
	"context"
	"database/sql"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/repository"
)

type childRepository struct {
	db DBTX
}

func NewChildRepository(db DBTX) repository.ChildRepository {
	return &childRepository{db: db}
}

const childColumns = `id, parent_id, trainer_id, first_name, COALESCE(last_name, ''), balance, created_on, updated_on`

func scanChild(row interface{ Scan(...any) error }) (*domain.Child, error) {
	c := &domain.Child{}
	var trainerID sql.NullString
	if err := row.Scan(&c.ID, &c.ParentID, &trainerID, &c.FirstName, &c.LastName, &c.Balance, &c.CreatedOn, &c.UpdatedOn); err != nil {
		return nil, err
	}
	if trainerID.Valid {
		c.TrainerID = &trainerID.String
	}
	return c, nil
}

func (r *childRepository) GetByID(ctx context.Context, id string) (*domain.Child, error) {
	query := `SELECT ` + childColumns + ` FROM children WHERE id = $1`
	c, err := scanChild(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "child", id)
	}
	return c, nil
}

func (r *childRepository) GetBalance(ctx context.Context, id string) (int, error) {
	var balance int
	query := `SELECT balance FROM children WHERE id = $1`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&balance); err != nil {
		return 0, notFound(err, "child", id)
	}
	return balance, nil
}

func (r *childRepository) ListByParent(ctx context.Context, parentID string) ([]domain.Child, error) {
	query := `SELECT ` + childColumns + ` FROM children WHERE parent_id = $1 ORDER BY first_name, id`
	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	var children []domain.Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, *c)
	}
	return children, classifyError(rows.Err())
}

// AdjustBalance is a relative increment evaluated by the database, so
// concurrent adjustments of the same child commute.
func (r *childRepository) AdjustBalance(ctx context.Context, id string, delta int) (int, error) {
	query := `UPDATE children SET balance = balance + $1, updated_on = NOW() WHERE id = $2 RETURNING balance`
	logger.DatabaseCall("UPDATE", "children", "childID", id, "delta", delta)

	var balance int
	err := r.db.QueryRowContext(ctx, query, delta, id).Scan(&balance)
	logger.DatabaseResult("UPDATE", 1, err, "childID", id, "balance", balance)
	if err != nil {
		return 0, notFound(err, "child", id)
	}
	return balance, nil
}
