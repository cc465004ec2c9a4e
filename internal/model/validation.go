package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Payload errors.
var (
	// ErrMalformedBody means the request body is not parseable JSON.
	ErrMalformedBody = errors.New("malformed request body")
	// ErrInvalidItem means the body parsed but its fields are missing or out of range.
	ErrInvalidItem = errors.New("invalid item data")
)

// CreateItemRequest is the accepted body of POST /api/items.
type CreateItemRequest struct {
	Name  string  `json:"name" validate:"required"`
	Price float64 `json:"price" validate:"required"`
	Size  Size    `json:"size" validate:"required,oneof=s m l"`
}

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of field validation failures.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	parts := make([]string, 0, len(ve))
	for _, e := range ve {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidItem.
func (ve ValidationErrors) Unwrap() error {
	return ErrInvalidItem
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report JSON field names instead of Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ParseCreateItem decodes and validates a create body. The error is either
// wrapped ErrMalformedBody or a ValidationErrors value. Field names are
// matched exactly, so "NAME" does not stand in for "name".
func ParseCreateItem(body []byte) (CreateItemRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return CreateItemRequest{}, ValidationErrors{{
				Field:   "body",
				Message: fmt.Sprintf("must be an object, got %s", typeErr.Value),
			}}
		}
		return CreateItemRequest{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if fields == nil {
		return CreateItemRequest{}, fmt.Errorf("%w: null body", ErrMalformedBody)
	}

	var req CreateItemRequest
	targets := []struct {
		key string
		dst any
	}{
		{"name", &req.Name},
		{"price", &req.Price},
		{"size", &req.Size},
	}
	for _, target := range targets {
		raw, ok := fields[target.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, target.dst); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return CreateItemRequest{}, ValidationErrors{{
					Field:   target.key,
					Message: fmt.Sprintf("must be %s, got %s", typeErr.Type.Kind(), typeErr.Value),
				}}
			}
			return CreateItemRequest{}, fmt.Errorf("%w: %s: %v", ErrMalformedBody, target.key, err)
		}
	}

	if err := validate.Struct(req); err != nil {
		return CreateItemRequest{}, convertValidatorErrors(err)
	}

	return req, nil
}

// ParseItemPatch decodes an update body. No field values are checked.
func ParseItemPatch(body []byte) (ItemPatch, error) {
	var patch ItemPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return patch, nil
}

// ToItem builds an item carrying the given id.
func (r CreateItemRequest) ToItem(id int) Item {
	return Item{
		ID:    id,
		Name:  r.Name,
		Price: r.Price,
		Size:  r.Size,
	}
}

// convertValidatorErrors converts go-playground/validator errors to ValidationErrors.
func convertValidatorErrors(err error) error {
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	out := make(ValidationErrors, 0, len(validatorErrs))
	for _, e := range validatorErrs {
		out = append(out, ValidationError{
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	return out
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}
