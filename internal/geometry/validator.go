package geometry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// Validation limits
const (
	MaxIDLength   = 256
	MaxCoordinate = 1000000
	MinCoordinate = -1000000
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeString strips any markup from s.
func SanitizeString(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

// Validator: validation of wire drawings and object ids
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ValidateDrawing: checks a poll drawing against its schema and returns the primitive
func (v *Validator) ValidateDrawing(d Drawing) (Primitive, error) {
	p, err := d.Primitive()
	if err != nil {
		return nil, err
	}

	var target any
	switch {
	case d.Line != nil:
		target = d.Line
	case d.Rectangle != nil:
		target = d.Rectangle
	default:
		target = d.Circle
	}
	if err := v.validate.Struct(target); err != nil {
		return nil, formatValidationErrors(err)
	}
	return p, nil
}

// ValidateLineContent: checks a push line payload
func (v *Validator) ValidateLineContent(c LineContent) error {
	if err := v.validate.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// ValidateID: object ids are opaque keys, only emptiness and length are checked
func (v *Validator) ValidateID(id string) error {
	if err := v.validate.Var(id, fmt.Sprintf("required,max=%d", MaxIDLength)); err != nil {
		return fmt.Errorf("%w: invalid object id", ErrMalformed)
	}
	return nil
}

// formatValidationErrors reports the first failing field
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fmt.Errorf("%w: %s", ErrMalformed, formatSingleError(validationErrors[0]))
}

func formatSingleError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max":
		return fmt.Sprintf("'%s' value out of allowed range", field)
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
