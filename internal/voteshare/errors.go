package voteshare

import (
	"errors"
	"fmt"

	"opinecli/pkg/contracts/domain"
)

var (
	// ErrMissingField means the question column is not in the source schema.
	ErrMissingField = errors.New("field missing from schema")
	// ErrMissingWeight means the weight column is not in the source schema.
	ErrMissingWeight = errors.New("weight column missing from schema")
	// ErrEmptyWeights means the weight column exists but no record in the
	// set carries a value in it.
	ErrEmptyWeights = errors.New("weight column has no values")
)

// SchemaError reports that a computation needs a column the input lacks.
type SchemaError struct {
	Field  domain.Field
	Weight *domain.WeightKey
	Err    error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	if e.Weight != nil {
		return fmt.Sprintf("schema: %s: %v", e.Weight.String(), e.Err)
	}
	return fmt.Sprintf("schema: %q: %v", string(e.Field), e.Err)
}

// Unwrap allows errors.Is on the cause
func (e *SchemaError) Unwrap() error {
	return e.Err
}

func missingField(f domain.Field) error {
	return &SchemaError{Field: f, Err: ErrMissingField}
}

func missingWeight(k domain.WeightKey, cause error) error {
	return &SchemaError{Weight: &k, Err: cause}
}

// IsSchemaError reports whether err is or wraps a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
