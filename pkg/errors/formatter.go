package errors

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MessageTable maps a validation failure to a user-facing sentence. Keys are
// "<StructField>.<tag>"; a bare "<StructField>" key is the fallback for any tag on that field.
type MessageTable map[string]string

func msgForTag(tag string) string {
	switch tag {
	case "required", "notblank":
		return "This field is required."
	case "email":
		return "Invalid email format."
	case "min":
		return "Value is too short."
	case "max":
		return "Value is too long."
	default:
		return "Invalid value."
	}
}

func (m MessageTable) lookup(fieldError validator.FieldError) string {
	if msg, ok := m[fieldError.StructField()+"."+fieldError.Tag()]; ok {
		return msg
	}
	if msg, ok := m[fieldError.StructField()]; ok {
		return msg
	}
	return fmt.Sprintf("%s: %s", fieldError.Field(), msgForTag(fieldError.Tag()))
}

// FormatValidationErrors turns a validator or JSON type error into human-readable sentences,
// preserving the order in which the validator reported them.
func FormatValidationErrors(err error, messages MessageTable) []string {
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		// A type error on the document root means the body is not an object at all.
		if typeErr.Field == "" {
			return nil
		}
		return []string{fmt.Sprintf("Invalid type for field %s. Expected %s.", typeErr.Field, typeErr.Type)}
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	formatted := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		formatted = append(formatted, messages.lookup(fieldError))
	}

	return formatted
}
