package query

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// Alias returns the projection column name for a field. Field IDs are
// hex-encoded so any ID yields a valid quoted identifier.
func Alias(fieldID string) string {
	return `"f_` + hex.EncodeToString([]byte(fieldID)) + `"`
}

type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Compile translates req into a parameterized Postgres statement
// returning the matching resource IDs. Every value, field ID and literal,
// is bound as a parameter. The ORDER BY always ends with the key so the
// result order is deterministic.
func Compile(tenantID string, req Request) (string, []any, error) {
	if err := Validate(req.Schema, req.Filter, req.Sort); err != nil {
		return "", nil, err
	}
	b := &builder{}
	var sb strings.Builder

	tenant := b.arg(tenantID)
	rtype := b.arg(string(req.Schema.ResourceType))

	sb.WriteString("SELECT p.id FROM (SELECT r.id, r.key, r.created_at")
	for _, f := range req.Schema.Fields {
		expr, err := projectField(b, f)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(", ")
		sb.WriteString(expr)
		sb.WriteString(" AS ")
		sb.WriteString(Alias(f.ID))
	}
	fmt.Fprintf(&sb, " FROM resources r WHERE r.tenant_id = %s AND r.type = %s) p", tenant, rtype)

	if req.Filter != nil {
		where, err := compileNode(b, req.Schema, req.Filter)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	sb.WriteString(" ORDER BY ")
	for _, s := range req.Sort {
		f, _ := req.Schema.FieldByName(s.Field)
		dir := "ASC"
		if s.Dir == Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, "p.%s %s NULLS LAST, ", Alias(f.ID), dir)
	}
	sb.WriteString("p.key ASC")

	if req.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.arg(req.Limit))
	}
	return sb.String(), b.args, nil
}

func projectField(b *builder, f model.Field) (string, error) {
	k, err := kindOf(f.Type)
	if err != nil {
		return "", err
	}
	id := b.arg(f.ID)
	if k.shape == shapeList {
		return fmt.Sprintf("ARRAY(SELECT x.%s FROM %s x WHERE x.resource_id = r.id AND x.field_id = %s ORDER BY x.ord)",
			k.column, k.table, id), nil
	}
	return fmt.Sprintf("(SELECT rv.%s FROM resource_values rv WHERE rv.resource_id = r.id AND rv.field_id = %s)",
		k.column, id), nil
}

func compileNode(b *builder, schema *model.Schema, n Node) (string, error) {
	switch n := n.(type) {
	case And:
		return compileGroup(b, schema, n.Nodes, " AND ", "TRUE")
	case Or:
		return compileGroup(b, schema, n.Nodes, " OR ", "FALSE")
	case Compare:
		return compileCompare(b, schema, n)
	default:
		return "", fmt.Errorf("unsupported filter node %T", n)
	}
}

func compileGroup(b *builder, schema *model.Schema, nodes []Node, sep, empty string) (string, error) {
	if len(nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(nodes))
	for _, c := range nodes {
		s, err := compileNode(b, schema, c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "IS DISTINCT FROM",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

func compileCompare(b *builder, schema *model.Schema, c Compare) (string, error) {
	f, _ := schema.FieldByName(c.Field)
	k, lit, err := checkCompare(f, c)
	if err != nil {
		return "", err
	}
	col := "p." + Alias(f.ID)

	if lit == nil {
		if k.shape == shapeList {
			if c.Op == OpEq {
				return "cardinality(" + col + ") = 0", nil
			}
			return "cardinality(" + col + ") > 0", nil
		}
		if c.Op == OpEq {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	}

	param := b.arg(lit)
	if k.shape == shapeList {
		if c.Op == OpEq {
			return param + " = ANY(" + col + ")", nil
		}
		return "NOT (" + param + " = ANY(" + col + "))", nil
	}
	return col + " " + sqlOps[c.Op] + " " + param, nil
}
