package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// ImportPath is the bulk CSV endpoint, which gets the larger body limit.
const ImportPath = "/import/patients"

const fallbackLimit = 1 << 20

var sizeUnits = []struct {
	suffix string
	scale  int64
}{
	{"GB", 1 << 30}, {"G", 1 << 30},
	{"MB", 1 << 20}, {"M", 1 << 20},
	{"KB", 1 << 10}, {"K", 1 << 10},
	{"B", 1},
}

// ParseSize turns "1M", "512K", "10MB" or a bare byte count into bytes.
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	scale := int64(1)
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			v, scale = strings.TrimSpace(strings.TrimSuffix(v, u.suffix)), u.scale
			break
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * scale, nil
}

// BodyLimit rejects request bodies over defaultLimit, or over importLimit on
// POST /import/patients, with 413. Content-Length is checked up front and the
// body is counted while read, since the header may be absent or wrong.
// Unparseable limits fall back to 1 MB.
func BodyLimit(defaultLimit, importLimit string) echo.MiddlewareFunc {
	defaultBytes := sizeOr(defaultLimit, fallbackLimit)
	importBytes := sizeOr(importLimit, fallbackLimit)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := defaultBytes
			if req.Method == http.MethodPost && strings.TrimSuffix(req.URL.Path, "/") == ImportPath {
				limit = importBytes
			}
			if req.ContentLength > limit {
				return tooLarge(limit)
			}

			req.Body = &countingBody{ReadCloser: req.Body, limit: limit}
			return next(c)
		}
	}
}

func sizeOr(s string, fallback int64) int64 {
	n, err := ParseSize(s)
	if err != nil {
		return fallback
	}
	return n
}

// countingBody fails once more than limit bytes have been read and keeps
// failing on later reads.
type countingBody struct {
	io.ReadCloser
	limit int64
	read  int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	if b.read > b.limit {
		return 0, tooLarge(b.limit)
	}
	if room := b.limit - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.ReadCloser.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		return 0, tooLarge(b.limit)
	}
	return n, err
}

func tooLarge(limit int64) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit))
}
