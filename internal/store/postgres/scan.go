package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// fieldColumns is the column list used for SELECT statements on fields f.
const fieldColumns = `f.id, f.tenant_id, f.template_id, f.name, f.description, f.type,
	f.resource_type, f.is_required, f.is_derived, f.default_value, f.created_at`

// resourceColumns is the column list used for SELECT statements on resources r.
const resourceColumns = `r.id, r.tenant_id, r.type, r.key, r.template_id, r.created_at`

// valueColumns is the column list used for SELECT statements on resource_values rv
// joined with fields f.
const valueColumns = `f.id, f.name, f.type, rv.template_id, rv.string, rv.number, rv.boolean,
	rv.date, rv.option_id, rv.user_id, rv.file_id, rv.ref_resource_id, rv.address, rv.contact,
	ARRAY(SELECT o.option_id FROM resource_value_options o
		WHERE o.resource_id = rv.resource_id AND o.field_id = rv.field_id ORDER BY o.ord),
	ARRAY(SELECT x.file_id FROM resource_value_files x
		WHERE x.resource_id = rv.resource_id AND x.field_id = rv.field_id ORDER BY x.ord)`

const costColumns = `id, resource_id, name, is_percentage, value, source_id, created_at`

func scanField(row scannable) (*model.Field, error) {
	var (
		f            model.Field
		templateID   sql.NullString
		resourceType sql.NullString
		defaultValue []byte
	)
	err := row.Scan(
		&f.ID,
		&f.TenantID,
		&templateID,
		&f.Name,
		&f.Description,
		&f.Type,
		&resourceType,
		&f.IsRequired,
		&f.IsDerived,
		&defaultValue,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.TemplateID = templateID.String
	f.ResourceType = model.ResourceType(resourceType.String)
	if len(defaultValue) > 0 {
		if err := json.Unmarshal(defaultValue, &f.DefaultValue); err != nil {
			return nil, fmt.Errorf("decode default value of field %s: %w", f.ID, err)
		}
	}
	return &f, nil
}

func scanOption(row scannable) (model.Option, error) {
	var (
		o          model.Option
		templateID sql.NullString
	)
	if err := row.Scan(&o.ID, &o.FieldID, &templateID, &o.Name, &o.Order); err != nil {
		return model.Option{}, err
	}
	o.TemplateID = templateID.String
	return o, nil
}

func scanResource(row scannable) (*model.Resource, error) {
	var (
		r          model.Resource
		templateID sql.NullString
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.Type, &r.Key, &templateID, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.TemplateID = templateID.String
	return &r, nil
}

func scanValue(row scannable) (model.ResourceField, error) {
	var (
		rf         model.ResourceField
		templateID sql.NullString
		str        sql.NullString
		number     sql.NullFloat64
		boolean    sql.NullBool
		date       sql.NullTime
		optionID   sql.NullString
		userID     sql.NullString
		fileID     sql.NullString
		refID      sql.NullString
		address    []byte
		contact    []byte
		optionIDs  pq.StringArray
		fileIDs    pq.StringArray
	)
	err := row.Scan(
		&rf.FieldID, &rf.Name, &rf.Type, &templateID,
		&str, &number, &boolean, &date,
		&optionID, &userID, &fileID, &refID,
		&address, &contact, &optionIDs, &fileIDs,
	)
	if err != nil {
		return model.ResourceField{}, err
	}
	rf.TemplateID = templateID.String

	v := model.Value{
		String:     stringPtr(str),
		OptionID:   stringPtr(optionID),
		UserID:     stringPtr(userID),
		FileID:     stringPtr(fileID),
		ResourceID: stringPtr(refID),
	}
	if number.Valid {
		n := number.Float64
		v.Number = &n
	}
	if boolean.Valid {
		b := boolean.Bool
		v.Boolean = &b
	}
	if date.Valid {
		d := model.TruncateDate(date.Time)
		v.Date = &d
	}
	if len(optionIDs) > 0 {
		v.OptionIDs = []string(optionIDs)
	}
	if len(fileIDs) > 0 {
		v.FileIDs = []string(fileIDs)
	}
	if len(address) > 0 {
		var a model.Address
		if err := json.Unmarshal(address, &a); err != nil {
			return model.ResourceField{}, fmt.Errorf("decode address of field %s: %w", rf.FieldID, err)
		}
		v.Address = &a
	}
	if len(contact) > 0 {
		var c model.Contact
		if err := json.Unmarshal(contact, &c); err != nil {
			return model.ResourceField{}, fmt.Errorf("decode contact of field %s: %w", rf.FieldID, err)
		}
		v.Contact = &c
	}
	rf.Value = v
	return rf, nil
}

func scanCost(row scannable) (model.Cost, error) {
	var c model.Cost
	err := row.Scan(&c.ID, &c.ResourceID, &c.Name, &c.IsPercentage, &c.Value, &c.SourceID, &c.CreatedAt)
	return c, err
}

func scanFile(row scannable) (*model.File, error) {
	var f model.File
	if err := row.Scan(&f.ID, &f.TenantID, &f.Name, &f.ContentType, &f.BlobKey, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email); err != nil {
		return nil, err
	}
	return &u, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullString converts an empty Go string to a SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullStringPtr converts a nil *string to a SQL NULL.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTimePtr converts a nil *time.Time to a SQL NULL.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// jsonbValue marshals v for a JSONB column. A nil pointer becomes SQL NULL.
func jsonbValue[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
