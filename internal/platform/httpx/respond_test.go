package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProblemCode(t *testing.T) {
	res := httptest.NewRecorder()
	ProblemCode(res, http.StatusForbidden, CodeNoPatientAssignment, "no active assignment for this patient")

	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, "Forbidden", body.Title)
	require.Equal(t, http.StatusForbidden, body.Status)
	require.Equal(t, CodeNoPatientAssignment, body.Code)
	require.Equal(t, "no active assignment for this patient", body.Detail)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("assignment: %w", ErrNotFound), http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		res := httptest.NewRecorder()
		RespondError(res, tc.err)
		require.Equal(t, tc.status, res.Code, tc.err.Error())
	}
}
