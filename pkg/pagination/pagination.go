package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/apperr"
)

// Defaults used by the list endpoints.
const (
	DefaultPatientLimit = 50
	DefaultVisitLimit   = 100
)

// Params holds offset pagination parameters extracted from a request.
type Params struct {
	Skip  int
	Limit int
}

// Parser reads skip/limit query parameters. MaxLimit of 0 leaves limit
// unbounded.
type Parser struct {
	MaxLimit int
}

// FromContext extracts skip and limit from the echo context, falling back to
// 0 and defaultLimit. Non-integer or negative values are a validation error;
// a limit above MaxLimit is clamped.
func (p Parser) FromContext(c echo.Context, defaultLimit int) (Params, error) {
	skip, err := intParam(c, "skip", 0)
	if err != nil {
		return Params{}, err
	}
	limit, err := intParam(c, "limit", defaultLimit)
	if err != nil {
		return Params{}, err
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return Params{Skip: skip, Limit: limit}, nil
}

func intParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Invalid(name, "must be an integer")
	}
	if n < 0 {
		return 0, apperr.Invalid(name, "must not be negative")
	}
	return n, nil
}
