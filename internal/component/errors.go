package component

import (
	"fmt"

	"github.com/juju/errors"
)

// SchemaError reports a component that does not satisfy its kind's rules.
// It matches errors.NotValid.
type SchemaError struct {
	Kind   string
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "unknown"
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid %s component: %s", kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s component: %s: %s", kind, e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return errors.NotValid }

func invalid(field, reason string) *SchemaError {
	return &SchemaError{Field: field, Reason: reason}
}

// at prefixes the field path of a nested error.
func at(prefix string, err *SchemaError) *SchemaError {
	if err == nil {
		return nil
	}
	if err.Field == "" {
		err.Field = prefix
	} else {
		err.Field = prefix + "." + err.Field
	}
	return err
}
