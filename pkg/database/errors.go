package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
)

const uniqueViolation = "23505"

// Classify maps a PostgreSQL error onto the store error taxonomy:
// unique violations become ErrDuplicateKey, other integrity constraint
// violations (class 23) ErrConstraintViolation, everything else ErrStore.
// The original error stays in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %w", apperrors.ErrDuplicateKey, err)
		case strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%w: %w", apperrors.ErrConstraintViolation, err)
		}
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStore, err)
}
