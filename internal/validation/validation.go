// Package validation runs field rules on incoming product payloads and turns
// validator failures into per-field messages.
package validation

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Messages returned to clients.
const (
	MsgRequired      = "This field is required."
	MsgPriceNegative = "Price cannot be negative."
	MsgStockNegative = "Stock cannot be negative."
	MsgNameBlank     = "Item name cannot be empty or just whitespace."
	MsgNameTaken     = "product with this name already exists."
	MsgInvalid       = "Invalid value."
	MsgNull          = "This field may not be null."
	MsgNotString     = "Not a valid string."
	MsgNotNumber     = "A valid number is required."
	MsgNotInteger    = "A valid integer is required."
	MsgNotBoolean    = "Must be a valid boolean."
)

// Errors maps a JSON field name to the messages collected for it.
type Errors map[string][]string

// Add appends a message for field.
func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

// Error implements error.
func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, strings.Join(e[f], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewFieldError builds an Errors value with a single message.
func NewFieldError(field, msg string) Errors {
	return Errors{field: {msg}}
}

// AsErrors extracts field errors from err.
func AsErrors(err error) (Errors, bool) {
	var fe Errors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// Merge appends every message of other to e.
func (e Errors) Merge(other map[string][]string) {
	for field, msgs := range other {
		e[field] = append(e[field], msgs...)
	}
}

// Validator wraps a configured validator.Validate.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator with the catalogue's custom rules registered.
func New() *Validator {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Prices are validated as numbers.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	return &Validator{validate: v}
}

// Struct validates s and returns Errors with one entry per offending field.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(Errors)
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "notblank":
		return MsgNameBlank
	case "gte":
		switch fe.Field() {
		case "price":
			return MsgPriceNegative
		case "stock":
			return MsgStockNegative
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	default:
		return MsgInvalid
	}
}

// DecimalPrecision checks d against a decimal(maxDigits, places) column and
// returns the message for the first limit it breaks.
func DecimalPrecision(d decimal.Decimal, maxDigits, places int) (string, bool) {
	digits := len(new(big.Int).Abs(d.Coefficient()).String())
	exp := int(d.Exponent())

	var total, decimals int
	switch {
	case exp >= 0:
		total = digits + exp
	case -exp > digits:
		total, decimals = -exp, -exp
	default:
		total, decimals = digits, -exp
	}

	switch {
	case total > maxDigits:
		return fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxDigits), false
	case decimals > places:
		return fmt.Sprintf("Ensure that there are no more than %d decimal places.", places), false
	case total-decimals > maxDigits-places:
		return fmt.Sprintf("Ensure that there are no more than %d digits before the decimal point.", maxDigits-places), false
	}
	return "", true
}
