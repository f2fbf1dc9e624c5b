// Package validate wraps go-playground/validator so struct-tag failures come
// back as *apperr.ValidationError keyed by JSON field name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ehr/claimsdb/internal/platform/apperr"
)

var (
	once     sync.Once
	instance *validator.Validate
)

var npiPattern = regexp.MustCompile(`^[0-9]{10}$`)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Money is decimal.Decimal; validators see its exact decimal text.
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
			return moneyProblem(fl.Field().String(), fl.Param()) == ""
		})
		v.RegisterValidation("npi", func(fl validator.FieldLevel) bool {
			return npiPattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates s and converts failures into an apperr.ValidationError.
func Struct(s interface{}) error {
	err := get().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &apperr.ValidationError{}
	for _, fe := range fieldErrs {
		field := fieldPath(fe)
		out.Fields = append(out.Fields, apperr.FieldError{Field: field, Message: msgForTag(field, fe)})
	}
	return out
}

// fieldPath drops the root struct name from the namespace, so nested
// fields read "allowed.facility".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func msgForTag(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte":
		if fe.Param() == "0" {
			return fmt.Sprintf("%s must not be negative", field)
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "npi":
		return fmt.Sprintf("%s must be a 10-digit National Provider Identifier", field)
	case "money":
		return fmt.Sprintf("%s %s", field, moneyProblem(fmt.Sprint(fe.Value()), fe.Param()))
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

// moneyProblem checks an amount against a NUMERIC(p,2) column where digits
// is p-2, the number of digits allowed before the decimal point. It returns
// "" when the amount fits.
func moneyProblem(text, digits string) string {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return "must be a decimal amount"
	}
	if d.IsNegative() {
		return "must not be negative"
	}
	if !d.Equal(d.Round(2)) {
		return "must have at most 2 decimal places"
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return ""
	}
	if limit := decimal.New(1, int32(n)); d.GreaterThanOrEqual(limit) {
		return "must be less than " + limit.String()
	}
	return ""
}
