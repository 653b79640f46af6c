package services

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationHelper(t *testing.T) {
	v := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := v.ValidateStruct(castVoteRequest{Value: 1})
		assert.NoError(t, err)
	})

	t.Run("out of range", func(t *testing.T) {
		err := v.ValidateStruct(castVoteRequest{Value: 2})
		assert.Error(t, err)
	})

	t.Run("missing request id", func(t *testing.T) {
		err := v.ValidateStruct(buyTicketsRequest{Quantity: 1})
		assert.Error(t, err)
	})
}

func TestSendJSONResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	SendJSONResponse(rec, 200, map[string]string{"hello": "world"})

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp APIResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
}

func TestSendErrorWithReason(t *testing.T) {
	rec := httptest.NewRecorder()
	SendErrorWithReason(rec, 409, "Vote is locked", ReasonFlipAlreadyUsed)

	assert.Equal(t, 409, rec.Code)

	var resp APIResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "Vote is locked", resp.Error)
	assert.Equal(t, "VOTE_LOCKED_FLIP_ALREADY_USED", resp.Reason)
}
