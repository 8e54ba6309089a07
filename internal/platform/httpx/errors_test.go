package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: caja: no open register", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: amount", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: busy", ErrConflict), http.StatusConflict},
		{ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("pg: connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.False(t, body.Success)
		if tc.status == http.StatusInternalServerError {
			require.Empty(t, body.Detail)
		} else {
			require.Equal(t, tc.err.Error(), body.Detail)
		}
	}
}

func TestDecodeJSONRejectsUnknownAndTrailing(t *testing.T) {
	var target struct {
		Amount string `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1"} {}`))
	require.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "1", target.Amount)
}

func TestOKAddsSuccessFlag(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, nil)
	require.JSONEq(t, `{"success":true}`, rr.Body.String())
}
