package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingRequest struct {
	SalonID string `json:"salon_id" validate:"required"`
	Date    string `json:"date" validate:"required,datetime=2006-01-02"`
	Time    string `json:"time" validate:"required,datetime=15:04"`
	Email   string `json:"customer_email" validate:"omitempty,email"`
}

func TestDecodeJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"salon_id":"s1","date":"2026-10-19","time":"09:30"}`))
	var body bookingRequest
	require.NoError(t, DecodeJSON(req, &body))
	assert.Equal(t, "09:30", body.Time)
}

func TestDecodeJSON_ValidationDetailsUseJSONNames(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"date":"19/10/2026","time":"09:30","customer_email":"nope"}`))
	var body bookingRequest
	err := DecodeJSON(req, &body)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{
		"salon_id is required",
		"date must match 2006-01-02",
		"customer_email failed email",
	}, verr.Details)
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"salon_id":"s1","colour":"red"}`))
	var body bookingRequest
	var verr *ValidationError
	require.ErrorAs(t, DecodeJSON(req, &body), &verr)
	assert.Contains(t, verr.Details[0], "colour")
}

func TestWriteBadRequest(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteBadRequest(rec, &ValidationError{Details: []string{"date is required"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, KindInvalidRequest, body.Kind)
	assert.Equal(t, []string{"date is required"}, body.Details)
}
