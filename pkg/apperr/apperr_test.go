package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusAndMessage(t *testing.T) {
	cause := errors.New("connection refused")
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation keeps message", Validation("mode is required"), http.StatusBadRequest, "mode is required"},
		{"auth is always generic", Auth("signature mismatch for key k1"), http.StatusUnauthorized, "authentication failed"},
		{"conflict keeps message", Conflict("subscription already active"), http.StatusConflict, "subscription already active"},
		{"not found keeps message", NotFound("no user mapped to customer"), http.StatusNotFound, "no user mapped to customer"},
		{"gateway is internal", Gateway("failed to create session", cause), http.StatusInternalServerError, "failed to create session"},
		{"unknown error is internal", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
		{"wrapped taxonomy error still maps", fmt.Errorf("outer: %w", Conflict("taken")), http.StatusConflict, "taken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, msg := StatusAndMessage(tc.err)
			require.Equal(t, tc.wantStatus, status)
			require.Equal(t, tc.wantMsg, msg)
		})
	}
}

func TestIsKindAndUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindGateway, "call failed", cause)

	require.True(t, IsKind(err, KindGateway))
	require.False(t, IsKind(err, KindValidation))
	require.ErrorIs(t, err, cause)

	wrapped := fmt.Errorf("handler: %w", err)
	require.True(t, IsKind(wrapped, KindGateway))
}
