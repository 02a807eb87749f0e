package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"lotledger/pkg/domain"
)

// SQLSTATE codes that mean the statement lost a lock race and may be retried.
const (
	sqlStateLockNotAvailable     = "55P03"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateSerializationFailure = "40001"
	sqlStateUniqueViolation      = "23505"
)

// mapError converts lock failures into domain contention errors and wraps
// everything else with the failing operation.
func mapError(op, key string, wait time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateDeadlockDetected, sqlStateSerializationFailure:
			return &domain.ContentionError{Key: key, Wait: wait, Err: err}
		case sqlStateUniqueViolation:
			return fmt.Errorf("%s: duplicate %s: %w", op, pgErr.ConstraintName, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
