package validation

import (
	"fmt"

	"github.com/bcnelson/firewall-policy-manager/internal/domain"
)

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rejected field of one request.
// It matches domain.ErrInvalidInput under errors.Is.
type ValidationErrors []*ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ""
	case 1:
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more errors)", e[0].Error(), len(e)-1)
}

// Is reports whether target is domain.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return target == domain.ErrInvalidInput
}

// Check records field as invalid when err is non-nil.
func (e *ValidationErrors) Check(field, value string, err error) {
	if err != nil {
		*e = append(*e, &ValidationError{Field: field, Value: value, Message: err.Error()})
	}
}

// Fields returns the rejected field names in the order they were checked.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, ve := range e {
		fields[i] = ve.Field
	}
	return fields
}

// Err returns e as an error, or nil when nothing was rejected.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
