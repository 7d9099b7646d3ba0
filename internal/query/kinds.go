package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// ErrUnsupportedComparison is returned for operator/kind pairs the grammar
// cannot express, such as ordering a multi-valued field, and for literals
// of the wrong type for the field.
var ErrUnsupportedComparison = errors.New("unsupported comparison")

type shape int

const (
	shapeScalar shape = iota
	shapeList
	shapeObject
)

// kind describes how one field kind is projected and compared.
type kind struct {
	shape  shape
	column string // resource_values column, or the value column of table
	table  string // child table for list kinds
	coerce func(lit any) (any, error)
}

func kindOf(t model.FieldType) (kind, error) {
	return model.MatchKind[kind](t, kindCases{})
}

type kindCases struct{}

func (kindCases) Text() kind     { return kind{shape: shapeScalar, column: "string", coerce: coerceString} }
func (kindCases) Textarea() kind { return kind{shape: shapeScalar, column: "string", coerce: coerceString} }
func (kindCases) Number() kind   { return kind{shape: shapeScalar, column: "number", coerce: coerceNumber} }
func (kindCases) Money() kind    { return kind{shape: shapeScalar, column: "number", coerce: coerceNumber} }
func (kindCases) Checkbox() kind { return kind{shape: shapeScalar, column: "boolean", coerce: coerceBool} }
func (kindCases) Date() kind     { return kind{shape: shapeScalar, column: "date", coerce: coerceDate} }
func (kindCases) Select() kind   { return kind{shape: shapeScalar, column: "option_id", coerce: coerceString} }
func (kindCases) User() kind     { return kind{shape: shapeScalar, column: "user_id", coerce: coerceString} }
func (kindCases) File() kind     { return kind{shape: shapeScalar, column: "file_id", coerce: coerceString} }
func (kindCases) Resource() kind {
	return kind{shape: shapeScalar, column: "ref_resource_id", coerce: coerceString}
}
func (kindCases) Contact() kind { return kind{shape: shapeObject, column: "contact"} }
func (kindCases) Address() kind { return kind{shape: shapeObject, column: "address"} }

func (kindCases) MultiSelect() kind {
	return kind{shape: shapeList, table: "resource_value_options", column: "option_id", coerce: coerceString}
}

func (kindCases) Files() kind {
	return kind{shape: shapeList, table: "resource_value_files", column: "file_id", coerce: coerceString}
}

func coerceString(lit any) (any, error) {
	s, ok := lit.(string)
	if !ok {
		return nil, fmt.Errorf("expected a string literal, got %T", lit)
	}
	return s, nil
}

func coerceNumber(lit any) (any, error) {
	n, ok := lit.(float64)
	if !ok {
		return nil, fmt.Errorf("expected a number literal, got %T", lit)
	}
	return n, nil
}

func coerceBool(lit any) (any, error) {
	b, ok := lit.(bool)
	if !ok {
		return nil, fmt.Errorf("expected a boolean literal, got %T", lit)
	}
	return b, nil
}

func coerceDate(lit any) (any, error) {
	s, ok := lit.(string)
	if !ok {
		return nil, fmt.Errorf("expected a date string literal, got %T", lit)
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// checkCompare applies the operator/shape rules shared by the SQL and
// in-memory backends and coerces the literal for the field's kind.
func checkCompare(f *model.Field, c Compare) (kind, any, error) {
	k, err := kindOf(f.Type)
	if err != nil {
		return kind{}, nil, err
	}
	if c.Literal == nil {
		if c.Op != OpEq && c.Op != OpNe {
			return kind{}, nil, fmt.Errorf("%w: %q against null on %q", ErrUnsupportedComparison, c.Op, f.Name)
		}
		return k, nil, nil
	}
	switch k.shape {
	case shapeObject:
		return kind{}, nil, fmt.Errorf("%w: %s field %q only compares against null", ErrUnsupportedComparison, f.Type, f.Name)
	case shapeList:
		if c.Op.Ordered() {
			return kind{}, nil, fmt.Errorf("%w: %q on %s field %q", ErrUnsupportedComparison, c.Op, f.Type, f.Name)
		}
	}
	lit, err := k.coerce(c.Literal)
	if err != nil {
		return kind{}, nil, fmt.Errorf("%w: field %q: %w", ErrUnsupportedComparison, f.Name, err)
	}
	if t, ok := lit.(time.Time); ok {
		lit = t.UTC()
	}
	return k, lit, nil
}
