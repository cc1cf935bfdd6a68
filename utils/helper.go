package utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ProcessValidationErrors flattens binding validation failures into a
// field -> failed-rule map for 400 responses. Returns nil when the error is
// not a validation error (for example malformed JSON).
func ProcessValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}
