package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/logging"
	"github.com/gbus-app/gbus-server/internal/repository"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}
	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrForbidden):
		return "forbidden"
	case errors.Is(err, repository.ErrInactiveUser):
		return "inactive_user"
	case errors.Is(err, repository.ErrTransactionConflict), errors.Is(err, lock.ErrNotAcquired):
		return "transaction_conflict"
	case errors.Is(err, repository.ErrReservationNotCalled):
		return "not_called"
	case errors.Is(err, repository.ErrSessionNotOpen),
		errors.Is(err, repository.ErrSessionNotCompleted),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrAlreadyResolved),
		errors.Is(err, repository.ErrBidAlreadyAccepted),
		errors.Is(err, repository.ErrNotAuction):
		return "state_conflict"
	case errors.Is(err, repository.ErrDuplicateCharacter),
		errors.Is(err, repository.ErrCharacterAlreadyReserved),
		errors.Is(err, repository.ErrCharacterNotInBarrack),
		errors.Is(err, repository.ErrBidExists),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrEmailExists):
		return "already_exists"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}

// logResult logs the outcome of an operation at a level that matches its
// error kind: expected business rejections at info, the rest at error.
func logResult(logger *slog.Logger, msg string, err error) {
	if err == nil {
		logger.Info(msg)
		return
	}
	kind := ErrorKind(err)
	if kind == "unexpected" {
		logger.Error(msg+" failed", "error", err, "error_kind", kind)
		return
	}
	logger.Info(msg+" rejected", "error", err, "error_kind", kind)
}
