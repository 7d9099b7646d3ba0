package query

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// Match evaluates a filter against one resource in memory, with the same
// null and operator semantics as the compiled SQL.
func Match(schema *model.Schema, n Node, r *model.Resource) (bool, error) {
	switch n := n.(type) {
	case nil:
		return true, nil
	case And:
		for _, c := range n.Nodes {
			ok, err := Match(schema, c, r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, c := range n.Nodes {
			ok, err := Match(schema, c, r)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case Compare:
		return matchCompare(schema, n, r)
	default:
		return false, fmt.Errorf("unsupported filter node %T", n)
	}
}

func matchCompare(schema *model.Schema, c Compare, r *model.Resource) (bool, error) {
	f, ok := schema.FieldByName(c.Field)
	if !ok {
		return false, &UnknownFieldError{Name: c.Field}
	}
	k, lit, err := checkCompare(f, c)
	if err != nil {
		return false, err
	}
	v := r.Value(f.ID)

	if lit == nil {
		return v.IsEmpty(f.Type) == (c.Op == OpEq), nil
	}
	op := operandOf(f.Type, v)
	if k.shape == shapeList {
		return slices.Contains(op.list, lit.(string)) == (c.Op == OpEq), nil
	}
	if op.scalar == nil {
		// SQL: NULL IS DISTINCT FROM x is true; every other comparison is unknown.
		return c.Op == OpNe, nil
	}
	d := compareScalar(op.scalar, lit)
	switch c.Op {
	case OpEq:
		return d == 0, nil
	case OpNe:
		return d != 0, nil
	case OpLt:
		return d < 0, nil
	case OpLte:
		return d <= 0, nil
	case OpGt:
		return d > 0, nil
	case OpGte:
		return d >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Op)
}

// SortResources orders rs in place by the sort keys, nulls last in either
// direction, then by key ascending.
func SortResources(schema *model.Schema, sorts []Sort, rs []*model.Resource) error {
	fields := make([]*model.Field, len(sorts))
	for i, s := range sorts {
		f, ok := schema.FieldByName(s.Field)
		if !ok {
			return &UnknownFieldError{Name: s.Field}
		}
		fields[i] = f
	}
	slices.SortStableFunc(rs, func(a, b *model.Resource) int {
		for i, s := range sorts {
			f := fields[i]
			oa, ob := operandOf(f.Type, a.Value(f.ID)), operandOf(f.Type, b.Value(f.ID))
			na, nb := oa.null(), ob.null()
			switch {
			case na && nb:
				continue
			case na:
				return 1
			case nb:
				return -1
			}
			d := oa.compare(ob)
			if s.Dir == Desc {
				d = -d
			}
			if d != 0 {
				return d
			}
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return nil
}

type operand struct {
	scalar any
	list   []string
	object string
}

func (o operand) null() bool {
	return o.scalar == nil && o.list == nil && o.object == ""
}

func (o operand) compare(p operand) int {
	switch {
	case o.list != nil || p.list != nil:
		return slices.Compare(o.list, p.list)
	case o.object != "" || p.object != "":
		return cmp.Compare(o.object, p.object)
	}
	return compareScalar(o.scalar, p.scalar)
}

func compareScalar(a, b any) int {
	switch a := a.(type) {
	case string:
		return cmp.Compare(a, b.(string))
	case float64:
		return cmp.Compare(a, b.(float64))
	case bool:
		bb := b.(bool)
		switch {
		case a == bb:
			return 0
		case !a:
			return -1
		}
		return 1
	case time.Time:
		return a.Compare(b.(time.Time))
	}
	return 0
}

func operandOf(t model.FieldType, v model.Value) operand {
	if v.IsEmpty(t) {
		return operand{}
	}
	op, _ := model.MatchKind[operand](t, operandCases{v})
	return op
}

type operandCases struct{ v model.Value }

func (c operandCases) Text() operand        { return operand{scalar: *c.v.String} }
func (c operandCases) Textarea() operand    { return operand{scalar: *c.v.String} }
func (c operandCases) Number() operand      { return operand{scalar: *c.v.Number} }
func (c operandCases) Money() operand       { return operand{scalar: *c.v.Number} }
func (c operandCases) Checkbox() operand    { return operand{scalar: *c.v.Boolean} }
func (c operandCases) Date() operand        { return operand{scalar: c.v.Date.UTC()} }
func (c operandCases) Select() operand      { return operand{scalar: *c.v.OptionID} }
func (c operandCases) MultiSelect() operand { return operand{list: c.v.OptionIDs} }
func (c operandCases) User() operand        { return operand{scalar: *c.v.UserID} }
func (c operandCases) Contact() operand     { return operand{object: fmt.Sprint(*c.v.Contact)} }
func (c operandCases) Address() operand     { return operand{object: fmt.Sprint(*c.v.Address)} }
func (c operandCases) File() operand        { return operand{scalar: *c.v.FileID} }
func (c operandCases) Files() operand       { return operand{list: c.v.FileIDs} }
func (c operandCases) Resource() operand    { return operand{scalar: *c.v.ResourceID} }
