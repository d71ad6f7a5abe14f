package pagination

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/apperr"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p, err := Parser{}.FromContext(newContext("/"), DefaultPatientLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultPatientLimit {
		t.Errorf("expected default limit %d, got %d", DefaultPatientLimit, p.Limit)
	}
	if p.Skip != 0 {
		t.Errorf("expected default skip 0, got %d", p.Skip)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p, err := Parser{}.FromContext(newContext("/?limit=25&skip=10"), DefaultVisitLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
	if p.Skip != 10 {
		t.Errorf("expected skip 10, got %d", p.Skip)
	}
}

func TestFromContext_Unbounded(t *testing.T) {
	p, err := Parser{}.FromContext(newContext("/?limit=5000"), DefaultPatientLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 5000 {
		t.Errorf("expected limit 5000 with no cap, got %d", p.Limit)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p, err := Parser{MaxLimit: 200}.FromContext(newContext("/?limit=5000"), DefaultPatientLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 200 {
		t.Errorf("expected limit capped at 200, got %d", p.Limit)
	}
}

func TestFromContext_ZeroLimit(t *testing.T) {
	p, err := Parser{}.FromContext(newContext("/?limit=0"), DefaultPatientLimit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 0 {
		t.Errorf("expected explicit zero limit to be kept, got %d", p.Limit)
	}
}

func TestFromContext_Invalid(t *testing.T) {
	tests := []string{
		"/?skip=-1",
		"/?limit=-5",
		"/?limit=ten",
		"/?skip=1.5",
	}
	for _, target := range tests {
		t.Run(target, func(t *testing.T) {
			_, err := Parser{}.FromContext(newContext(target), DefaultPatientLimit)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
