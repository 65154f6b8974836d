package response

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
)

// ErrorHandler is the fiber error handler. AppErrors keep their code and
// status, fiber errors are mapped by status and anything else becomes a
// 500 without leaking the cause.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		logFailure(c, appErr.HTTPStatus, err)
		return Error(c, appErr.HTTPStatus, appErr.Code, appErr.Message, detailsOf(appErr.Details)...)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return Error(c, fiberErr.Code, codeForStatus(fiberErr.Code), fiberErr.Message)
	}

	logFailure(c, fiber.StatusInternalServerError, err)
	return Error(c, fiber.StatusInternalServerError, apperrors.ErrInternal.Code, apperrors.ErrInternal.Message)
}

// logFailure logs server faults at error and retryable conditions (version
// conflicts, missing quotes) at warn. Client mistakes are not logged here;
// the access log already records them.
func logFailure(c *fiber.Ctx, status int, err error) {
	log := logger.WithContext(c.UserContext())
	switch {
	case status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable:
		log.Error().Err(err).Str("path", c.Path()).Str("request_id", GetRequestID(c)).Msg("request failed")
	case status == fiber.StatusConflict || status == fiber.StatusServiceUnavailable:
		log.Warn().Err(err).Str("path", c.Path()).Str("request_id", GetRequestID(c)).Msg("request not completed")
	}
}

func detailsOf(d any) []string {
	switch v := d.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case error:
		return []string{v.Error()}
	default:
		return []string{fmt.Sprint(v)}
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperrors.ErrBadRequest.Code
	case fiber.StatusNotFound:
		return apperrors.ErrNotFound.Code
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusConflict:
		return apperrors.ErrConcurrencyConflict.Code
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusUnprocessableEntity:
		return apperrors.ErrValidation.Code
	case fiber.StatusTooManyRequests:
		return apperrors.ErrRateLimited.Code
	case fiber.StatusServiceUnavailable:
		return apperrors.ErrServiceUnavailable.Code
	case fiber.StatusInternalServerError:
		return apperrors.ErrInternal.Code
	default:
		return "UNKNOWN_ERROR"
	}
}
