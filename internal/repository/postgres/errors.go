package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"clubledger-backend/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE codes that mean "retry the whole transaction".
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available (lock_timeout)
	"57014": true, // query_canceled (statement_timeout)
	"53300": true, // too_many_connections
}

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

func isTransientCode(code string) bool {
	// class 08: connection exceptions
	return transientCodes[code] || strings.HasPrefix(code, "08")
}

// classifyError maps driver errors onto the domain taxonomy. Errors that
// already carry a domain kind pass through untouched.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		domain.ErrNotFound, domain.ErrForbidden, domain.ErrDataIntegrity,
		domain.ErrTransientStore, domain.ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
	}
	if code, ok := sqlState(err); ok {
		switch {
		case isTransientCode(code):
			return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
		case code == "23503": // foreign_key_violation
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		case code == "22P02": // invalid_text_representation: a malformed uuid matches no row
			return fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
	}
	return err
}

// notFound turns sql.ErrNoRows into a domain.ErrNotFound naming the entity.
func notFound(err error, entity, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, domain.ErrNotFound)
	}
	return classifyError(err)
}
