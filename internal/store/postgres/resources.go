package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// NextKey returns max(key)+1 for the (tenant, type). It takes a
// per-(tenant, type) advisory lock held until the surrounding transaction
// ends; callers must run it inside RunInTransaction.
func (q queries) NextKey(ctx context.Context, tenantID string, resourceType model.ResourceType) (int, error) {
	if _, err := q.db.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || ':' || $2))`, tenantID, string(resourceType)); err != nil {
		return 0, fmt.Errorf("lock key sequence: %w", err)
	}
	var key int
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(key), 0) + 1 FROM resources WHERE tenant_id = $1 AND type = $2`,
		tenantID, string(resourceType)).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("next key: %w", err)
	}
	return key, nil
}

func (q queries) CreateResource(ctx context.Context, r *model.Resource) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO resources (id, tenant_id, type, key, template_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		r.ID, r.TenantID, string(r.Type), r.Key, nullString(r.TemplateID), r.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s key %d: %w", r.Type, r.Key, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (q queries) GetResource(ctx context.Context, tenantID, id string) (*model.Resource, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources r WHERE r.tenant_id = $1 AND r.id = $2`, tenantID, id)
	return q.loadResource(ctx, row)
}

func (q queries) GetResourceByKey(ctx context.Context, tenantID string, resourceType model.ResourceType, key int) (*model.Resource, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+resourceColumns+` FROM resources r WHERE r.tenant_id = $1 AND r.type = $2 AND r.key = $3`,
		tenantID, string(resourceType), key)
	return q.loadResource(ctx, row)
}

func (q queries) loadResource(ctx context.Context, row scannable) (*model.Resource, error) {
	r, err := scanResource(row)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT `+valueColumns+` FROM resource_values rv
		JOIN fields f ON f.id = rv.field_id
		WHERE rv.resource_id = $1 ORDER BY f.created_at, f.id`, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rf, err := scanValue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		r.Fields = append(r.Fields, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	costs, err := q.ListCosts(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	r.Costs = costs
	return r, nil
}

func (q queries) DeleteResource(ctx context.Context, tenantID, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM resources WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	return requireAffected(res)
}

// WriteValue upserts one value. A blank template ID keeps the one already
// stored. List kinds replace their child rows.
func (q queries) WriteValue(ctx context.Context, resourceID string, rf model.ResourceField) error {
	v := rf.Value
	address, err := jsonbValue(v.Address)
	if err != nil {
		return fmt.Errorf("encode address: %w", err)
	}
	contact, err := jsonbValue(v.Contact)
	if err != nil {
		return fmt.Errorf("encode contact: %w", err)
	}

	var number sql.NullFloat64
	if v.Number != nil {
		number = sql.NullFloat64{Float64: *v.Number, Valid: true}
	}
	var boolean sql.NullBool
	if v.Boolean != nil {
		boolean = sql.NullBool{Bool: *v.Boolean, Valid: true}
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO resource_values (
			resource_id, field_id, template_id, string, number, boolean, date,
			option_id, user_id, file_id, ref_resource_id, address, contact
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (resource_id, field_id) DO UPDATE SET
			template_id = COALESCE(EXCLUDED.template_id, resource_values.template_id),
			string = EXCLUDED.string,
			number = EXCLUDED.number,
			boolean = EXCLUDED.boolean,
			date = EXCLUDED.date,
			option_id = EXCLUDED.option_id,
			user_id = EXCLUDED.user_id,
			file_id = EXCLUDED.file_id,
			ref_resource_id = EXCLUDED.ref_resource_id,
			address = EXCLUDED.address,
			contact = EXCLUDED.contact`,
		resourceID,
		rf.FieldID,
		nullString(rf.TemplateID),
		nullStringPtr(v.String),
		number,
		boolean,
		nullTimePtr(v.Date),
		nullStringPtr(v.OptionID),
		nullStringPtr(v.UserID),
		nullStringPtr(v.FileID),
		nullStringPtr(v.ResourceID),
		address,
		contact,
	)
	if err != nil {
		return fmt.Errorf("upsert value %s: %w", rf.FieldID, err)
	}

	if err := q.replaceList(ctx, "resource_value_options", "option_id", resourceID, rf.FieldID, v.OptionIDs); err != nil {
		return err
	}
	return q.replaceList(ctx, "resource_value_files", "file_id", resourceID, rf.FieldID, v.FileIDs)
}

func (q queries) replaceList(ctx context.Context, table, column, resourceID, fieldID string, ids []string) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE resource_id = $1 AND field_id = $2`, resourceID, fieldID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	for i, id := range ids {
		if _, err := q.db.ExecContext(ctx,
			`INSERT INTO `+table+` (resource_id, field_id, `+column+`, ord) VALUES ($1, $2, $3, $4)`,
			resourceID, fieldID, id, i); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func (q queries) ListReferencing(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error) {
	var (
		where = []string{"r.tenant_id = $1", "rv.ref_resource_id = $2"}
		args  = []any{tenantID, targetID}
	)
	if resourceType != "" {
		args = append(args, string(resourceType))
		where = append(where, fmt.Sprintf("r.type = $%d", len(args)))
	}
	if fieldID != "" {
		args = append(args, fieldID)
		where = append(where, fmt.Sprintf("rv.field_id = $%d", len(args)))
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT r.id, r.key FROM resources r
		JOIN resource_values rv ON rv.resource_id = r.id
		WHERE `+strings.Join(where, " AND ")+` ORDER BY r.key, r.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list referencing: %w", err)
	}
	ids, err := collectIDs(rows, true)
	if err != nil {
		return nil, err
	}
	return q.getAll(ctx, tenantID, ids)
}

func (q queries) getAll(ctx context.Context, tenantID string, ids []string) ([]*model.Resource, error) {
	out := make([]*model.Resource, 0, len(ids))
	for _, id := range ids {
		r, err := q.GetResource(ctx, tenantID, id)
		if err != nil {
			return nil, fmt.Errorf("get resource %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func collectIDs(rows *sql.Rows, withKey bool) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var (
			id  string
			key int
			err error
		)
		if withKey {
			err = rows.Scan(&id, &key)
		} else {
			err = rows.Scan(&id)
		}
		if err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NameTaken reports whether another resource of the type holds value,
// compared case-insensitively, under a field named like fieldID's field.
func (q queries) NameTaken(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, value, excludeID string) (bool, error) {
	var taken bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM resources r
			JOIN resource_values rv ON rv.resource_id = r.id
			JOIN fields f ON f.id = rv.field_id
			WHERE r.tenant_id = $1 AND r.type = $2
				AND f.name = (SELECT name FROM fields WHERE id = $3)
				AND lower(btrim(rv.string)) = lower(btrim($4))
				AND r.id <> $5
		)`, tenantID, string(resourceType), fieldID, value, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check duplicate name: %w", err)
	}
	return taken, nil
}

// SearchResources ranks resources by trigram similarity of any of the
// given text fields to input. Exact mode matches case-insensitively.
func (q queries) SearchResources(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldIDs []string, input string, exact bool, limit int) ([]model.ResourceMatch, error) {
	match := `(rv.string ILIKE '%' || $4 || '%' OR similarity(rv.string, $4) > 0.3)`
	if exact {
		match = `lower(btrim(rv.string)) = lower(btrim($4))`
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, key, text, score FROM (
			SELECT DISTINCT ON (r.id) r.id, r.key, rv.string AS text, similarity(rv.string, $4) AS score
			FROM resources r
			JOIN resource_values rv ON rv.resource_id = r.id
			WHERE r.tenant_id = $1 AND r.type = $2 AND rv.field_id = ANY($3)
				AND rv.string IS NOT NULL AND `+match+`
			ORDER BY r.id, score DESC
		) m
		ORDER BY score DESC, key ASC
		LIMIT $5`,
		tenantID, string(resourceType), pq.Array(fieldIDs), input, limit)
	if err != nil {
		return nil, fmt.Errorf("search resources: %w", err)
	}
	defer rows.Close()

	var out []model.ResourceMatch
	for rows.Next() {
		var m model.ResourceMatch
		if err := rows.Scan(&m.ResourceID, &m.Key, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// QueryResources runs a compiled filter/sort and returns ordered IDs.
func (q queries) QueryResources(ctx context.Context, tenantID string, req query.Request) ([]string, error) {
	stmt, args, err := query.Compile(tenantID, req)
	if err != nil {
		return nil, err
	}
	rows, err := q.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	return collectIDs(rows, false)
}

func (q queries) ListCosts(ctx context.Context, resourceID string) ([]model.Cost, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+costColumns+` FROM costs WHERE resource_id = $1 ORDER BY created_at, id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list costs: %w", err)
	}
	defer rows.Close()

	var costs []model.Cost
	for rows.Next() {
		c, err := scanCost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cost: %w", err)
		}
		costs = append(costs, c)
	}
	return costs, rows.Err()
}

func (q queries) GetCost(ctx context.Context, id string) (*model.Cost, error) {
	c, err := scanCost(q.db.QueryRowContext(ctx, `SELECT `+costColumns+` FROM costs WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) CreateCost(ctx context.Context, c *model.Cost) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO costs (id, resource_id, name, is_percentage, value, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ResourceID, c.Name, c.IsPercentage, c.Value, c.SourceID, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cost: %w", err)
	}
	return nil
}

func (q queries) UpdateCost(ctx context.Context, c *model.Cost) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE costs SET name = $2, is_percentage = $3, value = $4 WHERE id = $1`,
		c.ID, c.Name, c.IsPercentage, c.Value)
	if err != nil {
		return fmt.Errorf("update cost: %w", err)
	}
	return requireAffected(res)
}

func (q queries) DeleteCost(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM costs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cost: %w", err)
	}
	return requireAffected(res)
}

func (q queries) CreateFile(ctx context.Context, f *model.File) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO files (id, tenant_id, name, content_type, blob_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.TenantID, f.Name, f.ContentType, f.BlobKey, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (q queries) GetFile(ctx context.Context, tenantID, id string) (*model.File, error) {
	return scanFile(q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, content_type, blob_key, created_at
		FROM files WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (q queries) ListUsers(ctx context.Context, tenantID string) ([]*model.User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, email FROM users WHERE tenant_id = $1 ORDER BY name, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (q queries) GetUser(ctx context.Context, tenantID, id string) (*model.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, email FROM users WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}
