package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// DecodeJSON decodes the request body into dest and validates its struct tags.
// Failures are returned as a 400 *AppError whose details name the offending
// fields, or a 413 when the body hits an http.MaxBytesReader limit.
func DecodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewAppError("PAYLOAD_TOO_LARGE", "request entity too large", http.StatusRequestEntityTooLarge, err).
				WithDetails(map[string]any{"max_bytes": tooLarge.Limit})
		}
		return NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, err).
			WithDetails(map[string]any{"error": err.Error()})
	}
	if err := validate.Struct(dest); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) *AppError {
	appErr := NewAppError("VALIDATION_FAILED", "validation failed", http.StatusBadRequest, err)
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fe := range errs {
			details[fe.Field()] = validationMessage(fe)
		}
		appErr.Details = details
	}
	return appErr
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "ne":
		return fmt.Sprintf("must not be %s", fe.Param())
	}
	return "is invalid"
}

// WriteAppError renders err using its code and status, falling back to 500.
func WriteAppError(w http.ResponseWriter, err *AppError) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := err.Code
	if code == "" {
		code = "INTERNAL"
	}
	message := err.Message
	if message == "" {
		message = "internal error"
	}
	JSONError(w, status, code, message, err.Details)
}
