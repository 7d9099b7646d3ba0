package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries every store operation over an executor, so the pooled
// store and the transaction store share one implementation.
type queries struct {
	db executor
}

func (q queries) ListFields(ctx context.Context, tenantID string) ([]*model.Field, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+fieldColumns+` FROM fields f WHERE f.tenant_id = $1 ORDER BY f.created_at, f.id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var fields []*model.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attachOptions(ctx, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (q queries) GetField(ctx context.Context, tenantID, id string) (*model.Field, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+fieldColumns+` FROM fields f WHERE f.tenant_id = $1 AND f.id = $2`, tenantID, id)
	f, err := scanField(row)
	if err != nil {
		return nil, err
	}
	if err := q.attachOptions(ctx, []*model.Field{f}); err != nil {
		return nil, err
	}
	return f, nil
}

// attachOptions loads the options of every field in one query.
func (q queries) attachOptions(ctx context.Context, fields []*model.Field) error {
	if len(fields) == 0 {
		return nil
	}
	ids := make([]string, len(fields))
	byID := make(map[string]*model.Field, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
		byID[f.ID] = f
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, field_id, template_id, name, ord FROM options
		WHERE field_id = ANY($1) ORDER BY field_id, ord, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOption(rows)
		if err != nil {
			return fmt.Errorf("scan option: %w", err)
		}
		if f, ok := byID[o.FieldID]; ok {
			f.Options = append(f.Options, o)
		}
	}
	return rows.Err()
}

func (q queries) CreateField(ctx context.Context, f *model.Field) error {
	def, err := model.MarshalValue(f.DefaultValue)
	if err != nil {
		return fmt.Errorf("encode default value: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO fields (
			id, tenant_id, template_id, name, description, type,
			resource_type, is_required, is_derived, default_value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		f.ID,
		f.TenantID,
		nullString(f.TemplateID),
		f.Name,
		f.Description,
		string(f.Type),
		nullString(string(f.ResourceType)),
		f.IsRequired,
		f.IsDerived,
		def,
		f.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("field template %q: %w", f.TemplateID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return q.SetOptions(ctx, f.ID, f.Options)
}

func (q queries) UpdateField(ctx context.Context, f *model.Field) error {
	def, err := model.MarshalValue(f.DefaultValue)
	if err != nil {
		return fmt.Errorf("encode default value: %w", err)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE fields SET
			name = $3, description = $4, type = $5, resource_type = $6,
			is_required = $7, is_derived = $8, default_value = $9
		WHERE tenant_id = $1 AND id = $2`,
		f.TenantID,
		f.ID,
		f.Name,
		f.Description,
		string(f.Type),
		nullString(string(f.ResourceType)),
		f.IsRequired,
		f.IsDerived,
		def,
	)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	return requireAffected(res)
}

func (q queries) DeleteField(ctx context.Context, tenantID, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM fields WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	return requireAffected(res)
}

func (q queries) FieldInUse(ctx context.Context, tenantID, id string) (bool, error) {
	var inUse bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schema_fields sf
			JOIN schemas s ON s.id = sf.schema_id
			WHERE s.tenant_id = $1 AND sf.field_id = $2
		)`, tenantID, id).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("check field usage: %w", err)
	}
	return inUse, nil
}

// SetOptions makes options the complete, ordered option list of a field.
// Options missing from the list are deleted.
func (q queries) SetOptions(ctx context.Context, fieldID string, options []model.Option) error {
	keep := make([]string, len(options))
	for i, o := range options {
		keep[i] = o.ID
	}
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM options WHERE field_id = $1 AND NOT (id = ANY($2))`, fieldID, pq.Array(keep)); err != nil {
		return fmt.Errorf("delete options: %w", err)
	}
	for i, o := range options {
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO options (id, field_id, template_id, name, ord)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				template_id = EXCLUDED.template_id, name = EXCLUDED.name, ord = EXCLUDED.ord`,
			o.ID, fieldID, nullString(o.TemplateID), o.Name, i)
		if err != nil {
			return fmt.Errorf("upsert option %s: %w", o.ID, err)
		}
	}
	return nil
}

func (q queries) GetSchema(ctx context.Context, tenantID string, resourceType model.ResourceType, layer model.Layer) (*model.Schema, error) {
	switch layer {
	case model.LayerSystem, model.LayerCustom:
		return q.loadLayer(ctx, tenantID, resourceType, layer)
	case model.LayerMerged, "":
		system, err := q.loadLayer(ctx, tenantID, resourceType, model.LayerSystem)
		if err != nil {
			return nil, err
		}
		custom, err := q.loadLayer(ctx, tenantID, resourceType, model.LayerCustom)
		if err != nil {
			return nil, err
		}
		return model.MergeSchemas(system, custom), nil
	}
	return nil, fmt.Errorf("unknown schema layer %q", layer)
}

// schemaRowID derives the stable primary key of one schema layer.
func schemaRowID(tenantID string, resourceType model.ResourceType, layer model.Layer) string {
	return tenantID + ":" + string(resourceType) + ":" + string(layer)
}

// loadLayer reads one schema layer. A layer that was never saved reads as
// an empty schema.
func (q queries) loadLayer(ctx context.Context, tenantID string, resourceType model.ResourceType, layer model.Layer) (*model.Schema, error) {
	schema := &model.Schema{TenantID: tenantID, ResourceType: resourceType, Layer: layer}
	schemaID := schemaRowID(tenantID, resourceType, layer)

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+fieldColumns+` FROM schema_fields sf
		JOIN fields f ON f.id = sf.field_id
		WHERE sf.schema_id = $1 ORDER BY sf.ord`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("load schema fields: %w", err)
	}
	var fields []*model.Field
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schema field: %w", err)
		}
		fields = append(fields, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := q.attachOptions(ctx, fields); err != nil {
		return nil, err
	}
	for _, f := range fields {
		schema.Fields = append(schema.Fields, *f)
	}

	rows, err = q.db.QueryContext(ctx, `
		SELECT s.id, s.name, sf.field_id FROM sections s
		LEFT JOIN section_fields sf ON sf.section_id = s.id
		WHERE s.schema_id = $1 ORDER BY s.ord, sf.ord`, schemaID)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id, name string
			fieldID  sql.NullString
		)
		if err := rows.Scan(&id, &name, &fieldID); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		if n := len(schema.Sections); n == 0 || schema.Sections[n-1].ID != id {
			schema.Sections = append(schema.Sections, model.Section{ID: id, Name: name})
		}
		if fieldID.Valid {
			sec := &schema.Sections[len(schema.Sections)-1]
			sec.FieldIDs = append(sec.FieldIDs, fieldID.String)
		}
	}
	return schema, rows.Err()
}

// SaveSchema replaces the field list and sections of one schema layer.
func (q queries) SaveSchema(ctx context.Context, s *model.Schema) error {
	if s.Layer != model.LayerSystem && s.Layer != model.LayerCustom {
		return fmt.Errorf("save schema: layer must be system or custom, got %q", s.Layer)
	}
	schemaID := schemaRowID(s.TenantID, s.ResourceType, s.Layer)

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO schemas (id, tenant_id, resource_type, is_system)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		schemaID, s.TenantID, string(s.ResourceType), s.Layer == model.LayerSystem)
	if err != nil {
		return fmt.Errorf("upsert schema: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, `DELETE FROM schema_fields WHERE schema_id = $1`, schemaID); err != nil {
		return fmt.Errorf("clear schema fields: %w", err)
	}
	for i, f := range s.Fields {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO schema_fields (schema_id, field_id, ord) VALUES ($1, $2, $3)`,
			schemaID, f.ID, i); err != nil {
			return fmt.Errorf("insert schema field %s: %w", f.ID, err)
		}
	}

	if _, err := q.db.ExecContext(ctx, `DELETE FROM sections WHERE schema_id = $1`, schemaID); err != nil {
		return fmt.Errorf("clear sections: %w", err)
	}
	for i, sec := range s.Sections {
		secID := sec.ID
		if secID == "" {
			secID = fmt.Sprintf("%s:%d", schemaID, i)
		}
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO sections (id, schema_id, name, ord) VALUES ($1, $2, $3, $4)`,
			secID, schemaID, sec.Name, i); err != nil {
			return fmt.Errorf("insert section %q: %w", sec.Name, err)
		}
		for j, fieldID := range sec.FieldIDs {
			if _, err := q.db.ExecContext(ctx,
				`INSERT INTO section_fields (section_id, field_id, ord) VALUES ($1, $2, $3)`,
				secID, fieldID, j); err != nil {
				return fmt.Errorf("insert section field %s: %w", fieldID, err)
			}
		}
	}
	return nil
}

// requireAffected maps a zero-row write to sql.ErrNoRows.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
