package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/logging"
	"github.com/gbus-app/gbus-server/internal/middleware"
	"github.com/gbus-app/gbus-server/internal/repository"
	"github.com/gbus-app/gbus-server/internal/service"
)

var errUnauthenticated = errors.New("invalid user_id in context")

// getUserID returns the authenticated caller set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errUnauthenticated
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, &service.ValidationError{FieldErrors: map[string]string{name: "must be a positive integer"}}
	}
	return id, nil
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}

func handlerLogger(c echo.Context) *slog.Logger {
	if l := logging.FromContext(c.Request().Context()); l != nil {
		return l
	}
	return slog.Default()
}

// statusFor maps service and repository errors onto HTTP status codes.
func statusFor(err error) int {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrForbidden), errors.Is(err, repository.ErrInactiveUser):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrDuplicateCharacter), errors.Is(err, repository.ErrCharacterNotInBarrack):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrTransactionConflict),
		errors.Is(err, lock.ErrNotAcquired),
		errors.Is(err, repository.ErrCharacterAlreadyReserved),
		errors.Is(err, repository.ErrReservationNotCalled),
		errors.Is(err, repository.ErrSessionNotOpen),
		errors.Is(err, repository.ErrSessionNotCompleted),
		errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrAlreadyResolved),
		errors.Is(err, repository.ErrNotAuction),
		errors.Is(err, repository.ErrBidExists),
		errors.Is(err, repository.ErrBidAlreadyAccepted),
		errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrEmailExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ...}.  Validation errors add their
// field messages and lost races are flagged as retryable.  Unexpected
// errors are logged and hidden from the client.
func writeError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		handlerLogger(c).Error("request failed", "error", err, "error_kind", service.ErrorKind(err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	}
	body := echo.Map{"error": err.Error()}
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		body["error"] = "validation failed"
		body["fields"] = vErr.FieldErrors
	}
	if repository.Retryable(err) || errors.Is(err, lock.ErrNotAcquired) {
		body["retryable"] = true
	}
	return c.JSON(status, body)
}
