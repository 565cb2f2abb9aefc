package validation_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"katalog/internal/models"
	"katalog/internal/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestValidator_ProductInput(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name  string
		in    models.ProductInput
		field string
		msg   string
	}{
		{"negative price", models.ProductInput{Price: ptr(decimal.NewFromInt(-1))}, "price", validation.MsgPriceNegative},
		{"negative stock", models.ProductInput{Stock: ptr(-3)}, "stock", validation.MsgStockNegative},
		{"blank name", models.ProductInput{Name: ptr("   ")}, "name", validation.MsgNameBlank},
		{"empty name", models.ProductInput{Name: ptr("")}, "name", validation.MsgNameBlank},
		{"long name", models.ProductInput{Name: ptr(strings.Repeat("x", 256))}, "name",
			"Ensure this field has no more than 255 characters."},
		{"stock over cap", models.ProductInput{Stock: ptr(models.MaxStock + 1)}, "stock",
			"Ensure this value is less than or equal to 2147483647."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			require.Error(t, err)
			fe, ok := validation.AsErrors(err)
			require.True(t, ok)
			assert.Equal(t, []string{tt.msg}, fe[tt.field])
		})
	}
}

func TestValidator_AcceptsValidInput(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Struct(models.ProductInput{}))
	assert.NoError(t, v.Struct(models.ProductInput{
		Name:  ptr("Laptop"),
		Price: ptr(decimal.RequireFromString("0.00")),
		Stock: ptr(0),
	}))
}

func TestValidator_AccumulatesFields(t *testing.T) {
	v := validation.New()

	err := v.Struct(models.ProductInput{
		Name:  ptr(" "),
		Price: ptr(decimal.NewFromInt(-5)),
		Stock: ptr(-1),
	})
	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Len(t, fe, 3)
	assert.Contains(t, err.Error(), "price: "+validation.MsgPriceNegative)
}

func TestAsErrors_Wrapped(t *testing.T) {
	err := fmt.Errorf("create: %w", validation.NewFieldError("name", validation.MsgNameTaken))
	fe, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Equal(t, []string{validation.MsgNameTaken}, fe["name"])

	_, ok = validation.AsErrors(errors.New("boom"))
	assert.False(t, ok)
}

func TestDecimalPrecision(t *testing.T) {
	tests := []struct {
		value string
		msg   string
	}{
		{"0", ""},
		{"0.05", ""},
		{"1200.00", ""},
		{"99999999.99", ""},
		{"1199.999", "Ensure that there are no more than 2 decimal places."},
		{"1.500", "Ensure that there are no more than 2 decimal places."},
		{"123456789.1", "Ensure that there are no more than 8 digits before the decimal point."},
		{"123456789012345678901.23", "Ensure that there are no more than 10 digits in total."},
		{"1e12", "Ensure that there are no more than 10 digits in total."},
	}
	for _, tt := range tests {
		msg, ok := validation.DecimalPrecision(decimal.RequireFromString(tt.value), 10, 2)
		assert.Equal(t, tt.msg == "", ok, tt.value)
		assert.Equal(t, tt.msg, msg, tt.value)
	}
}

func TestErrors_Merge(t *testing.T) {
	errs := validation.NewFieldError("name", validation.MsgNameBlank)
	errs.Merge(map[string][]string{"stock": {validation.MsgNotInteger}, "name": {"second"}})
	assert.Equal(t, []string{validation.MsgNameBlank, "second"}, errs["name"])
	assert.Equal(t, []string{validation.MsgNotInteger}, errs["stock"])
}
