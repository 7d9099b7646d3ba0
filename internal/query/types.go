// Package query parses, validates and compiles the filter/sort grammar
// used to select Resources by their field values.
package query

import "github.com/chriskuech/supplyside-sub001/internal/model"

// Node is a boolean filter expression. Only types in this package
// implement it, so switches over Node are exhaustive within the package.
type Node interface {
	node()
}

// And holds when every child holds. An empty And matches everything.
type And struct {
	Nodes []Node
}

func (And) node() {}

// Or holds when any child holds. An empty Or matches nothing.
type Or struct {
	Nodes []Node
}

func (Or) node() {}

// Op is a binary comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// IsValid checks whether the operator is part of the grammar.
func (o Op) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Ordered reports whether the operator compares by ordering rather than
// equality.
func (o Op) Ordered() bool {
	return o == OpLt || o == OpLte || o == OpGt || o == OpGte
}

// Compare compares the field named Field against a JSON literal
// (string, float64, bool or nil).
type Compare struct {
	Op      Op
	Field   string
	Literal any
}

func (Compare) node() {}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders results by one field.
type Sort struct {
	Field string    `json:"var"`
	Dir   Direction `json:"dir"`
}

// Request is a filtered, sorted selection over one record type.
// Filter may be nil.
type Request struct {
	Schema *model.Schema
	Filter Node
	Sort   []Sort
	Limit  int
}
