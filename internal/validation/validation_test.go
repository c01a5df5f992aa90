package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	Method string `json:"payment_method" validate:"oneof=cash card upi"`
	Qty    int    `json:"quantity" validate:"gte=0"`
}

func TestFields(t *testing.T) {
	err := Struct(sample{Email: "nope", Method: "cheque", Qty: -1})
	require.Error(t, err)

	fields, ok := Fields(err)
	require.True(t, ok)
	assert.Equal(t, map[string]string{
		"name":           "is required",
		"email":          "must be a valid email address",
		"payment_method": "must be one of: cash card upi",
		"quantity":       "must be greater than or equal to 0",
	}, fields)
}

func TestFieldsIgnoresOtherErrors(t *testing.T) {
	_, ok := Fields(errors.New("db down"))
	assert.False(t, ok)
	assert.NoError(t, Struct(sample{Name: "x", Method: "upi"}))
}
