package query

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseFilter decodes the JSON wire form of a filter:
//
//	{"and": [...]} | {"or": [...]} | {"<op>": [{"var": "<field name>"}, <literal>]}
//
// An empty body or JSON null yields a nil filter.
func ParseFilter(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var raw json.RawMessage = data
	return parseNode(raw)
}

func parseNode(raw json.RawMessage) (Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("filter node must be an object: %w", err)
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("filter node must have exactly one key, got %d", len(obj))
	}
	for key, body := range obj {
		switch key {
		case "and", "or":
			var children []json.RawMessage
			if err := json.Unmarshal(body, &children); err != nil {
				return nil, fmt.Errorf("%q expects an array: %w", key, err)
			}
			nodes := make([]Node, 0, len(children))
			for _, c := range children {
				n, err := parseNode(c)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
			}
			if key == "and" {
				return And{Nodes: nodes}, nil
			}
			return Or{Nodes: nodes}, nil
		default:
			op := Op(key)
			if !op.IsValid() {
				return nil, fmt.Errorf("unknown filter operator %q", key)
			}
			return parseCompare(op, body)
		}
	}
	return nil, fmt.Errorf("empty filter node")
}

func parseCompare(op Op, body json.RawMessage) (Node, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil || len(args) != 2 {
		return nil, fmt.Errorf("%q expects [{\"var\": name}, literal]", op)
	}
	var ref struct {
		Var *string `json:"var"`
	}
	if err := json.Unmarshal(args[0], &ref); err != nil || ref.Var == nil {
		return nil, fmt.Errorf("%q: first operand must be {\"var\": name}", op)
	}
	var lit any
	if err := json.Unmarshal(args[1], &lit); err != nil {
		return nil, fmt.Errorf("%q: invalid literal: %w", op, err)
	}
	switch lit.(type) {
	case nil, string, float64, bool:
	default:
		return nil, fmt.Errorf("%q: literal must be a string, number, boolean or null", op)
	}
	return Compare{Op: op, Field: *ref.Var, Literal: lit}, nil
}

// ParseSort decodes [{"var": "<field name>", "dir": "asc"|"desc"}, ...].
// A missing dir means ascending.
func ParseSort(data []byte) ([]Sort, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var sorts []Sort
	if err := json.Unmarshal(data, &sorts); err != nil {
		return nil, fmt.Errorf("sort must be an array of {\"var\", \"dir\"}: %w", err)
	}
	for i := range sorts {
		switch sorts[i].Dir {
		case "":
			sorts[i].Dir = Asc
		case Asc, Desc:
		default:
			return nil, fmt.Errorf("sort %q: unknown direction %q", sorts[i].Field, sorts[i].Dir)
		}
	}
	return sorts, nil
}
