package query

import (
	"fmt"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// UnknownFieldError is returned when a filter or sort names a field that
// is not in the schema.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// Validate checks that every field named by the filter tree and the sort
// keys exists in the schema and that every comparison suits its field's
// kind. It runs before any SQL is generated, so a bad filter fails the
// same way whether or not any record would reach it.
func Validate(schema *model.Schema, filter Node, sorts []Sort) error {
	if schema == nil {
		return fmt.Errorf("validate: nil schema")
	}
	if err := validateNode(schema, filter); err != nil {
		return err
	}
	for _, s := range sorts {
		if _, ok := schema.FieldByName(s.Field); !ok {
			return &UnknownFieldError{Name: s.Field}
		}
	}
	return nil
}

func validateNode(schema *model.Schema, n Node) error {
	switch n := n.(type) {
	case nil:
		return nil
	case And:
		return validateNodes(schema, n.Nodes)
	case Or:
		return validateNodes(schema, n.Nodes)
	case Compare:
		f, ok := schema.FieldByName(n.Field)
		if !ok {
			return &UnknownFieldError{Name: n.Field}
		}
		if !n.Op.IsValid() {
			return fmt.Errorf("%w: unknown operator %q", ErrUnsupportedComparison, n.Op)
		}
		_, _, err := checkCompare(f, n)
		return err
	default:
		return fmt.Errorf("unsupported filter node %T", n)
	}
}

func validateNodes(schema *model.Schema, nodes []Node) error {
	for _, c := range nodes {
		if err := validateNode(schema, c); err != nil {
			return err
		}
	}
	return nil
}
