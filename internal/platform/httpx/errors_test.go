package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/malimina/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wallet: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.Validation("amount must be positive"), http.StatusBadRequest},
		{shared.Ineligible("max_credit", "2000 > 1000"), http.StatusUnprocessableEntity},
		{shared.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{shared.ErrStateConflict, http.StatusConflict},
		{shared.ErrIdempotencyConflict, http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrIntegrity, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}
