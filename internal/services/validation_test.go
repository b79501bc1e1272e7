package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type payoutTestStruct struct {
	UPIAddress    string `validate:"omitempty,upi"`
	IFSC          string `validate:"omitempty,ifsc"`
	AccountNumber string `validate:"omitempty,numeric,min=9"`
}

func TestNewValidatorPayoutTags(t *testing.T) {
	v := NewValidator()

	t.Run("valid upi address", func(t *testing.T) {
		err := v.Struct(&payoutTestStruct{UPIAddress: "ravi.kumar@okaxis"})
		assert.NoError(t, err)
	})

	t.Run("invalid upi address", func(t *testing.T) {
		err := v.Struct(&payoutTestStruct{UPIAddress: "not-a-upi-handle"})
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Equal(t, "UPIAddress", validationErrors[0].Field())
		assert.Equal(t, "upi", validationErrors[0].Tag())
	})

	t.Run("valid bank details", func(t *testing.T) {
		err := v.Struct(&payoutTestStruct{
			IFSC:          "HDFC0001234",
			AccountNumber: "123456789012",
		})
		assert.NoError(t, err)
	})

	t.Run("invalid ifsc", func(t *testing.T) {
		err := v.Struct(&payoutTestStruct{IFSC: "HDFC1234"})
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Equal(t, "ifsc", validationErrors[0].Tag())
	})

	t.Run("account number too short", func(t *testing.T) {
		err := v.Struct(&payoutTestStruct{AccountNumber: "12345678"})
		assert.Error(t, err)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		validationErr := NewValidator().Struct(&payoutTestStruct{
			UPIAddress: "bad",
			IFSC:       "bad",
		})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.NotNil(t, response.Details)
		assert.Contains(t, response.Details, "UPIAddress")
		assert.Contains(t, response.Details, "IFSC")
	})

	t.Run("unauthorized error", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Unauthorized access", http.StatusUnauthorized, nil)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Unauthorized access", response.Error)
	})
}
