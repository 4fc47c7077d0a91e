package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/upb/integration-gateway/internal/policy"
)

var validate = newValidator()

// newValidator reports fields by their JSON names and knows the
// "provider" tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		_, err := policy.ParseProvider(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidateStruct checks s against its validate tags
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return NewValidationError(verrs)
	}
	return err
}

// ValidationError lists the failing request fields with a message each
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var tagMessages = map[string]string{
	"required": "is required",
	"provider": "must be a supported provider",
	"min":      "must be at least %s",
	"max":      "must be at most %s",
	"gte":      "must be >= %s",
	"lte":      "must be <= %s",
	"oneof":    "must be one of: %s",
}

// NewValidationError converts validator errors keyed by field path
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = "failed the " + fe.Tag() + " check"
		} else if strings.Contains(msg, "%s") {
			msg = fmt.Sprintf(msg, fe.Param())
		}
		fields[fieldPath(fe)] = fe.Field() + " " + msg
	}
	return &ValidationError{Message: "Validation failed", Fields: fields}
}

// fieldPath drops the top-level struct name: "AttachRequest.confirmations[1]"
// becomes "confirmations[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// IsValidationError reports whether err carries a ValidationError
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// GetValidationFields returns the per-field messages of a ValidationError
func GetValidationFields(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
