package postgres

import (
	"context"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/repository"
)

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT id, email, first_name, COALESCE(last_name, ''), role, created_on FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.CreatedOn)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}
