package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON error envelope for every non-2xx response.
type Body struct {
	Error     BodyError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

type BodyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status maps an error kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindProfileMissing, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindDoctorNotEligible:
		return http.StatusUnprocessableEntity
	case KindInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Render converts err into a status code and response body. Internal
// details never reach the body.
func Render(err error) (int, Body) {
	var ae *Error
	if errors.As(err, &ae) {
		msg := ae.Message
		switch ae.Kind {
		case KindUnauthenticated:
			msg = UnauthenticatedMessage
		case KindInfrastructure:
			msg = "service temporarily unavailable"
		}
		return Status(ae.Kind), Body{Error: BodyError{Code: ae.Kind.String(), Message: msg}}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, Body{Error: BodyError{
			Code: KindInfrastructure.String(), Message: "service temporarily unavailable",
		}}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		code := httpCode(he.Code)
		if he.Code == http.StatusUnauthorized {
			msg = UnauthenticatedMessage
		}
		if he.Code >= 500 {
			msg = http.StatusText(he.Code)
		}
		return he.Code, Body{Error: BodyError{Code: code, Message: msg}}
	}

	return http.StatusInternalServerError, Body{Error: BodyError{
		Code: "internal", Message: "internal server error",
	}}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidation.String()
	case http.StatusUnauthorized:
		return KindUnauthenticated.String()
	case http.StatusForbidden:
		return KindForbidden.String()
	case http.StatusNotFound:
		return KindNotFound.String()
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindInfrastructure.String()
	default:
		if status >= 500 {
			return "internal"
		}
		return "error"
	}
}

// HTTPErrorHandler returns an echo.HTTPErrorHandler that renders every error
// in the Body envelope and logs server-side failures with their cause.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := Render(err)
		if rid, ok := c.Get("request_id").(string); ok {
			body.RequestID = rid
		}

		if status >= 500 {
			logger.Error().Err(err).
				Str("request_id", body.RequestID).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Int("status", status).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("failed to write error response")
		}
	}
}
