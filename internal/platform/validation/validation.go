// Package validation adapts go-playground/validator to echo and to the
// apperror taxonomy.
package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/clinic/clinic/internal/platform/apperror"
)

var ErrInvalidField = apperror.Validation("InvalidField", "invalid field")

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate checks i's `validate` tags. The first failing field is reported:
// a missing required field as MissingField, anything else as InvalidField.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrInvalidField.Wrap(err)
	}

	fe := verrs[0]
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return apperror.MissingField(field)
	case "email":
		return ErrInvalidField.WithMessage("%s must be a valid email address", field)
	case "min", "gte":
		return ErrInvalidField.WithMessage("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return ErrInvalidField.WithMessage("%s must be at most %s", field, fe.Param())
	case "oneof":
		return ErrInvalidField.WithMessage("%s must be one of: %s", field, fe.Param())
	case "uuid":
		return ErrInvalidField.WithMessage("%s must be a valid id", field)
	case "datetime":
		return ErrInvalidField.WithMessage("%s must match %s", field, fe.Param())
	default:
		return ErrInvalidField.WithMessage("%s is invalid", field)
	}
}

// fieldPath drops the top-level struct name: "BookRequest.appointment_time.date"
// becomes "appointment_time.date".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
