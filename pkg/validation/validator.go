package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrInputContract marks a record that is missing a field the pipeline cannot
// proceed without. It is always fatal to the run.
var ErrInputContract = errors.New("input contract violation")

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Validation constants
	MaxLabelLength = 128

	// Store labels are interpolated into queries, so they are restricted to
	// identifier characters plus the hyphen bundle relationship types carry.
	labelPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

func init() {
	validate = validator.New()
}

// Struct validates v against its `validate` struct tags. Failures are wrapped
// with ErrInputContract and name the first offending field.
func Struct(v any) error {
	if v == nil {
		return fmt.Errorf("%w: nil value", ErrInputContract)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInputContract, formatValidationError(err))
	}
	return nil
}

// ValidateLabel validates a node label or relationship type before it is
// written into a query.
func ValidateLabel(label string) error {
	if label == "" {
		return errors.New("label cannot be empty")
	}
	if len(label) > MaxLabelLength {
		return fmt.Errorf("label '%s' exceeds maximum length of %d characters", label, MaxLabelLength)
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("label '%s' contains invalid characters (only alphanumeric, underscore and hyphen allowed)", label)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "required_if":
			return fmt.Errorf("%s: field is required when %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
