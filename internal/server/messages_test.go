package server

import (
	"net/http"
	"testing"

	"github.com/nearchat/nearchat/internal/access"
	"github.com/stretchr/testify/assert"
)

func TestDecisionStatusCode(t *testing.T) {
	tcases := []struct {
		decision access.Decision
		code     int
	}{
		{access.Granted, http.StatusOK},
		{access.DeniedRoomMissing, http.StatusNotFound},
		{access.DeniedRoomInactive, http.StatusGone},
		{access.DeniedNoLocation, http.StatusBadRequest},
		{access.DeniedTooFar, http.StatusForbidden},
		{access.Pending, http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		assert.Equalf(t, tc.code, DecisionStatusCode(tc.decision),
			"expected status code for decision %q", tc.decision)
	}
}

func TestErrAccessDenied(t *testing.T) {
	msg := ErrAccessDenied(3, access.DeniedTooFar)
	assert.Equal(t, 3, msg.Id, "expected the request id to be echoed")
	assert.Equal(t, http.StatusForbidden, msg.Response.ResponseCode, "expected a forbidden response")
	assert.Equal(t, access.DeniedTooFar, msg.Response.Decision, "expected the decision to be carried")
	assert.Equal(t, access.DeniedTooFar.Reason(), msg.Response.Error, "expected the decision's reason")
}
