package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorHandler returns an echo.HTTPErrorHandler that renders *Error values
// as {"detail","code","fields"} and hides store failures behind a generic 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func render(err error) (int, map[string]any) {
	var appErr *Error
	if errors.As(err, &appErr) {
		if errors.Is(appErr, ErrStore) {
			return http.StatusInternalServerError, map[string]any{
				"detail": "internal server error",
				"code":   appErr.Code,
			}
		}
		body := map[string]any{
			"detail": appErr.Message,
			"code":   appErr.Code,
		}
		if len(appErr.Fields) > 0 {
			body["fields"] = appErr.Fields
		}
		return appErr.HTTPStatus, body
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, map[string]any{"detail": msg}
	}

	return http.StatusInternalServerError, map[string]any{"detail": "internal server error"}
}
