// Package catalog manages a tenant's field definitions and schema layers,
// and reconciles the system layer against the built-in template set.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// Catalog is the schema catalog of every tenant.
type Catalog struct {
	store     store.Store
	publisher events.Publisher
	templates *TemplateSet
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Catalog over the given store using the embedded templates.
func New(s store.Store, p events.Publisher) (*Catalog, error) {
	set, err := Templates()
	if err != nil {
		return nil, err
	}
	return NewWithTemplates(s, p, set), nil
}

// NewWithTemplates returns a Catalog reconciling against a custom template set.
func NewWithTemplates(s store.Store, p events.Publisher, set *TemplateSet) *Catalog {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	return &Catalog{
		store:     s,
		publisher: p,
		templates: set,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Templates returns the template set the catalog reconciles against.
func (c *Catalog) Templates() *TemplateSet { return c.templates }

// ListFields returns every field defined for the tenant.
func (c *Catalog) ListFields(ctx context.Context, tenantID string) ([]*model.Field, error) {
	fields, err := c.store.ListFields(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return fields, nil
}

// GetField returns one field of the tenant.
func (c *Catalog) GetField(ctx context.Context, tenantID, id string) (*model.Field, error) {
	f, err := c.store.GetField(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, "field %s", id)
	}
	return f, nil
}

// CreateField defines a new tenant field. Tenant fields carry no template
// identifier and are never touched by ApplyTemplate.
func (c *Catalog) CreateField(ctx context.Context, tenantID string, draft model.FieldDraft) (*model.Field, error) {
	if err := model.Validate(draft); err != nil {
		return nil, err
	}
	ve := &model.ValidationError{}
	checkKind(ve, draft.Type, draft.ResourceType)
	if len(draft.Options) > 0 && !hasOptions(draft.Type) {
		ve.Add("options", "only Select and MultiSelect fields have options")
	}
	if err := ve.ErrOrNil(); err != nil {
		return nil, err
	}

	id, err := idgen.New(idgen.Field)
	if err != nil {
		return nil, err
	}
	f := &model.Field{
		ID:           id,
		TenantID:     tenantID,
		Name:         draft.Name,
		Description:  draft.Description,
		Type:         draft.Type,
		ResourceType: draft.ResourceType,
		IsRequired:   draft.IsRequired,
		CreatedAt:    c.now(),
	}
	for i, name := range draft.Options {
		optID, err := idgen.New(idgen.Option)
		if err != nil {
			return nil, err
		}
		f.Options = append(f.Options, model.Option{ID: optID, FieldID: id, Name: name, Order: i})
	}
	if draft.DefaultValue != nil {
		v, err := model.ValueFromInput(f.Type, *draft.DefaultValue)
		if err != nil {
			return nil, fieldError("defaultValue", err)
		}
		f.DefaultValue = v
	}

	if err := c.store.CreateField(ctx, f); err != nil {
		return nil, fmt.Errorf("create field: %w", err)
	}
	c.logger.Info("field created", "tenant", tenantID, "field_id", f.ID, "type", f.Type)
	return f, nil
}

// UpdateField applies a partial update. Option patches run in order and
// their order becomes the option order; options the patch list does not
// mention keep their relative order after the patched ones.
func (c *Catalog) UpdateField(ctx context.Context, tenantID, id string, patch model.FieldPatch) (*model.Field, error) {
	if err := model.Validate(patch); err != nil {
		return nil, err
	}
	var out *model.Field
	err := c.store.RunInTransaction(ctx, func(tx store.Store) error {
		f, err := tx.GetField(ctx, tenantID, id)
		if err != nil {
			return notFound(err, "field %s", id)
		}
		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.Description != nil {
			f.Description = *patch.Description
		}
		if patch.IsRequired != nil {
			f.IsRequired = *patch.IsRequired
		}
		if patch.ResourceType != nil {
			ve := &model.ValidationError{}
			checkKind(ve, f.Type, *patch.ResourceType)
			if err := ve.ErrOrNil(); err != nil {
				return err
			}
			f.ResourceType = *patch.ResourceType
		}
		if patch.DefaultValue != nil {
			v, err := model.ValueFromInput(f.Type, *patch.DefaultValue)
			if err != nil {
				return fieldError("defaultValue", err)
			}
			f.DefaultValue = v
		}
		if err := tx.UpdateField(ctx, f); err != nil {
			return fmt.Errorf("update field: %w", err)
		}
		if patch.Name != nil {
			if err := checkRename(ctx, tx, tenantID, f.ID); err != nil {
				return err
			}
		}
		if len(patch.Options) > 0 {
			if !hasOptions(f.Type) {
				return fieldError("options", fmt.Errorf("%s fields have no options", f.Type))
			}
			opts, err := patchOptions(f.Options, patch.Options)
			if err != nil {
				return err
			}
			if err := tx.SetOptions(ctx, f.ID, opts); err != nil {
				return fmt.Errorf("set options: %w", err)
			}
		}
		out, err = tx.GetField(ctx, tenantID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func patchOptions(current []model.Option, patches []model.OptionPatch) ([]model.Option, error) {
	byID := make(map[string]model.Option, len(current))
	for _, o := range current {
		byID[o.ID] = o
	}
	mentioned := make(map[string]bool, len(patches))
	var out []model.Option
	ve := &model.ValidationError{}
	for i, p := range patches {
		switch p.Op {
		case model.OptionAdd:
			id, err := idgen.New(idgen.Option)
			if err != nil {
				return nil, err
			}
			out = append(out, model.Option{ID: id, Name: p.Name})
		case model.OptionUpdate, model.OptionRemove:
			o, ok := byID[p.ID]
			if !ok || mentioned[p.ID] {
				ve.Add(fmt.Sprintf("options[%d]", i), "option %s is unknown or already patched", p.ID)
				continue
			}
			mentioned[p.ID] = true
			if p.Op == model.OptionUpdate {
				o.Name = p.Name
				out = append(out, o)
			}
		}
	}
	if err := ve.ErrOrNil(); err != nil {
		return nil, err
	}
	for _, o := range current {
		if !mentioned[o.ID] {
			out = append(out, o)
		}
	}
	for i := range out {
		out[i].Order = i
	}
	return out, nil
}

// DeleteField removes a field no schema layer references.
func (c *Catalog) DeleteField(ctx context.Context, tenantID, id string) error {
	return c.store.RunInTransaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetField(ctx, tenantID, id); err != nil {
			return notFound(err, "field %s", id)
		}
		inUse, err := tx.FieldInUse(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("check field usage: %w", err)
		}
		if inUse {
			return fmt.Errorf("field %s: %w", id, model.ErrFieldInUse)
		}
		if err := tx.DeleteField(ctx, tenantID, id); err != nil {
			return notFound(err, "field %s", id)
		}
		return nil
	})
}

// ReadSchema returns one layer of a record type's schema, or both merged.
func (c *Catalog) ReadSchema(ctx context.Context, tenantID string, resourceType model.ResourceType, layer model.Layer) (*model.Schema, error) {
	if layer == "" {
		layer = model.LayerMerged
	}
	ve := &model.ValidationError{}
	if !resourceType.IsValid() {
		ve.Add("resourceType", "unknown record type %q", resourceType)
	}
	if !layer.IsValid() {
		ve.Add("layer", "unknown schema layer %q", layer)
	}
	if err := ve.ErrOrNil(); err != nil {
		return nil, err
	}
	schema, err := c.store.GetSchema(ctx, tenantID, resourceType, layer)
	if err != nil {
		return nil, fmt.Errorf("read %s schema: %w", resourceType, err)
	}
	return schema, nil
}

// UpdateSchema replaces the custom layer of a record type and returns the
// merged schema. Section fields not listed in FieldIDs are appended to it.
func (c *Catalog) UpdateSchema(ctx context.Context, tenantID string, resourceType model.ResourceType, draft model.SchemaDraft) (*model.Schema, error) {
	if !resourceType.IsValid() {
		return nil, fieldError("resourceType", fmt.Errorf("unknown record type %q", resourceType))
	}
	if err := model.Validate(draft); err != nil {
		return nil, err
	}
	var merged *model.Schema
	err := c.store.RunInTransaction(ctx, func(tx store.Store) error {
		layer := &model.Schema{TenantID: tenantID, ResourceType: resourceType, Layer: model.LayerCustom}
		seen := make(map[string]bool)
		add := func(id string) error {
			if seen[id] {
				return nil
			}
			f, err := tx.GetField(ctx, tenantID, id)
			if err != nil {
				return notFound(err, "field %s", id)
			}
			seen[id] = true
			layer.Fields = append(layer.Fields, *f)
			return nil
		}
		for _, id := range draft.FieldIDs {
			if err := add(id); err != nil {
				return err
			}
		}
		for _, sd := range draft.Sections {
			secID, err := idgen.New(idgen.Section)
			if err != nil {
				return err
			}
			sec := model.Section{ID: secID, Name: sd.Name}
			for _, id := range sd.FieldIDs {
				if err := add(id); err != nil {
					return err
				}
				sec.FieldIDs = append(sec.FieldIDs, id)
			}
			layer.Sections = append(layer.Sections, sec)
		}
		if err := tx.SaveSchema(ctx, layer); err != nil {
			return fmt.Errorf("save %s schema: %w", resourceType, err)
		}
		var err error
		merged, err = tx.GetSchema(ctx, tenantID, resourceType, model.LayerMerged)
		if err != nil {
			return err
		}
		return checkNames("fieldIds", merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// checkNames rejects a merged schema in which two fields share a name.
// Filters and sorts address fields by name.
func checkNames(key string, schema *model.Schema) error {
	name, dup := schema.DuplicateName()
	if !dup {
		return nil
	}
	ve := &model.ValidationError{}
	ve.Add(key, "the %s schema already has a field named %q", schema.ResourceType, name)
	return ve
}

// checkRename checks every merged schema holding the field after it was
// renamed.
func checkRename(ctx context.Context, tx store.Store, tenantID, fieldID string) error {
	for _, rt := range model.ResourceTypes {
		schema, err := tx.GetSchema(ctx, tenantID, rt, model.LayerMerged)
		if err != nil {
			return fmt.Errorf("read %s schema: %w", rt, err)
		}
		if _, ok := schema.Field(fieldID); !ok {
			continue
		}
		if err := checkNames("name", schema); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(ve *model.ValidationError, t model.FieldType, target model.ResourceType) {
	if !t.IsValid() {
		ve.Add("type", "unknown field type %q", t)
		return
	}
	switch {
	case t == model.FieldTypeResource && !target.IsValid():
		ve.Add("resourceType", "Resource fields need a valid target record type, got %q", target)
	case t != model.FieldTypeResource && target != "":
		ve.Add("resourceType", "only Resource fields have a target record type")
	}
}

func fieldError(field string, err error) error {
	ve := &model.ValidationError{}
	ve.Add(field, "%v", err)
	if errors.Is(err, model.ErrWrongValueKind) {
		return fmt.Errorf("%w: %w", model.ErrWrongValueKind, ve)
	}
	return ve
}

// notFound maps store absence onto model.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, model.ErrNotFound)...)
	}
	return err
}
