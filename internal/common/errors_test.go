package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Display(ErrValidation, "bad"), http.StatusBadRequest},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound), http.StatusNotFound},
		{"busy", ErrBusy, http.StatusConflict},
		{"locked", Display(ErrLocked, "solved"), http.StatusLocked},
		{"ended", ErrSessionEnded, http.StatusGone},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"provider", DisplayWrap(ErrProvider, "otp", errors.New("boom")), http.StatusBadGateway},
		{"unavailable", ErrServiceUnavailable, http.StatusServiceUnavailable},
		{"unique violation", &pgconn.PgError{Code: "23505"}, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusFromError(tc.err))
		})
	}
}

func TestDisplayErrorChain(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("service: %w", DisplayWrap(ErrServiceUnavailable, "Please try again.", cause))

	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Please try again.", ErrorMessage(err))
	assert.Equal(t, "plain", ErrorMessage(errors.New("plain")))
}

func TestRespondWithDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, Display(ErrLocked, "Problem already solved"))

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.JSONEq(t, `{"error":"Problem already solved"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
