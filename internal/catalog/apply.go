package catalog

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// ApplyResult counts the writes one ApplyTemplate run performed.
type ApplyResult struct {
	FieldsCreated int `json:"fieldsCreated"`
	FieldsUpdated int `json:"fieldsUpdated"`
	FieldsDeleted int `json:"fieldsDeleted"`
	SchemasSaved  int `json:"schemasSaved"`
}

// Changed reports whether the run wrote anything.
func (r ApplyResult) Changed() bool {
	return r.FieldsCreated+r.FieldsUpdated+r.FieldsDeleted+r.SchemasSaved > 0
}

// ApplyTemplate reconciles the tenant's system fields and system schema
// layers against the template set: fields and options are upserted by
// template identifier, system fields and options the set no longer
// declares are deleted, and nothing is written when the tenant already
// matches. Tenant-defined fields and options are left alone.
func (c *Catalog) ApplyTemplate(ctx context.Context, tenantID string) (ApplyResult, error) {
	var res ApplyResult
	err := c.store.RunInTransaction(ctx, func(tx store.Store) error {
		res = ApplyResult{}
		existing, err := tx.ListFields(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("list fields: %w", err)
		}
		byTemplate := make(map[string]*model.Field)
		for _, f := range existing {
			if f.IsSystem() {
				byTemplate[f.TemplateID] = f
			}
		}

		ids := make(map[string]string, len(c.templates.Fields))
		for i := range c.templates.Fields {
			tf := &c.templates.Fields[i]
			cur, ok := byTemplate[tf.Template]
			if !ok {
				f, err := c.systemField(tenantID, tf)
				if err != nil {
					return err
				}
				if err := tx.CreateField(ctx, f); err != nil {
					return fmt.Errorf("create field %s: %w", tf.Template, err)
				}
				ids[tf.Template] = f.ID
				res.FieldsCreated++
				continue
			}
			ids[tf.Template] = cur.ID
			changed, err := reconcileField(ctx, tx, cur, tf)
			if err != nil {
				return err
			}
			if changed {
				res.FieldsUpdated++
			}
		}

		for _, f := range existing {
			if _, declared := ids[f.TemplateID]; f.IsSystem() && !declared {
				if err := tx.DeleteField(ctx, tenantID, f.ID); err != nil {
					return fmt.Errorf("delete orphaned field %s: %w", f.TemplateID, err)
				}
				res.FieldsDeleted++
			}
		}

		for _, ts := range c.templates.Schemas {
			saved, err := reconcileSchema(ctx, tx, tenantID, ts, ids)
			if err != nil {
				return err
			}
			if saved {
				res.SchemasSaved++
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	c.logger.Info("templates applied", "tenant", tenantID,
		"fields_created", res.FieldsCreated, "fields_updated", res.FieldsUpdated,
		"fields_deleted", res.FieldsDeleted, "schemas_saved", res.SchemasSaved)
	if res.Changed() {
		if err := c.publisher.Publish(ctx, events.TopicTemplateApplied, events.TemplateApplied{
			TenantID:      tenantID,
			FieldsCreated: res.FieldsCreated,
			FieldsUpdated: res.FieldsUpdated,
			FieldsDeleted: res.FieldsDeleted,
			SchemasSaved:  res.SchemasSaved,
		}); err != nil {
			c.logger.Warn("failed to publish event", "topic", events.TopicTemplateApplied, "tenant", tenantID, "error", err)
		}
	}
	return res, nil
}

func (c *Catalog) systemField(tenantID string, tf *TemplateField) (*model.Field, error) {
	id, err := idgen.New(idgen.Field)
	if err != nil {
		return nil, err
	}
	f := &model.Field{
		ID:         id,
		TenantID:   tenantID,
		TemplateID: tf.Template,
		CreatedAt:  c.now(),
	}
	opts, err := templateOptions(nil, tf.Options)
	if err != nil {
		return nil, err
	}
	f.Options = opts
	for i := range f.Options {
		f.Options[i].FieldID = id
	}
	applyAttributes(f, tf)
	return f, nil
}

// applyAttributes overwrites the template-owned attributes of f. Options
// must already be in place so the default can resolve option templates.
func applyAttributes(f *model.Field, tf *TemplateField) {
	f.Name = tf.Name
	f.Description = tf.Description
	f.Type = tf.Type
	f.ResourceType = tf.ResourceType
	f.IsRequired = tf.Required
	f.IsDerived = tf.Derived
	f.DefaultValue = model.Value{}
	if d := tf.Default; d != nil {
		switch {
		case d.Option != "":
			if o, ok := f.OptionByTemplate(d.Option); ok {
				f.DefaultValue = model.OptionValue(o.ID)
			}
		case d.String != nil:
			f.DefaultValue = model.TextValue(*d.String)
		case d.Number != nil:
			f.DefaultValue = model.NumberValue(*d.Number)
		case d.Boolean != nil:
			f.DefaultValue = model.BoolValue(*d.Boolean)
		}
	}
}

// templateOptions returns the desired option list: the template's options
// in template order, keeping the IDs of matching current options, followed
// by the tenant's own options in their current order.
func templateOptions(current []model.Option, declared []TemplateOption) ([]model.Option, error) {
	var out []model.Option
	for _, to := range declared {
		o := model.Option{TemplateID: to.Template, Name: to.Name}
		if i := slices.IndexFunc(current, func(c model.Option) bool { return c.TemplateID == to.Template }); i >= 0 {
			o.ID = current[i].ID
			o.FieldID = current[i].FieldID
		} else {
			id, err := idgen.New(idgen.Option)
			if err != nil {
				return nil, err
			}
			o.ID = id
		}
		out = append(out, o)
	}
	for _, o := range current {
		if o.TemplateID == "" {
			out = append(out, o)
		}
	}
	for i := range out {
		out[i].Order = i
	}
	return out, nil
}

func reconcileField(ctx context.Context, tx store.Store, cur *model.Field, tf *TemplateField) (bool, error) {
	want := *cur
	opts, err := templateOptions(cur.Options, tf.Options)
	if err != nil {
		return false, err
	}
	want.Options = opts
	applyAttributes(&want, tf)

	changed := false
	if !sameAttributes(cur, &want) {
		if err := tx.UpdateField(ctx, &want); err != nil {
			return false, fmt.Errorf("update field %s: %w", tf.Template, err)
		}
		changed = true
	}
	if !sameOptions(cur.Options, want.Options) {
		if err := tx.SetOptions(ctx, cur.ID, want.Options); err != nil {
			return false, fmt.Errorf("set options of %s: %w", tf.Template, err)
		}
		changed = true
	}
	return changed, nil
}

func sameAttributes(a, b *model.Field) bool {
	if a.Name != b.Name || a.Description != b.Description || a.Type != b.Type ||
		a.ResourceType != b.ResourceType || a.IsRequired != b.IsRequired || a.IsDerived != b.IsDerived {
		return false
	}
	da, errA := model.MarshalValue(a.DefaultValue)
	db, errB := model.MarshalValue(b.DefaultValue)
	return errA == nil && errB == nil && bytes.Equal(da, db)
}

func sameOptions(a, b []model.Option) bool {
	return slices.EqualFunc(a, b, func(x, y model.Option) bool {
		return x.ID == y.ID && x.TemplateID == y.TemplateID && x.Name == y.Name
	})
}

func reconcileSchema(ctx context.Context, tx store.Store, tenantID string, ts TemplateSchema, ids map[string]string) (bool, error) {
	cur, err := tx.GetSchema(ctx, tenantID, ts.Type, model.LayerSystem)
	if err != nil {
		return false, fmt.Errorf("read %s system schema: %w", ts.Type, err)
	}

	want := &model.Schema{TenantID: tenantID, ResourceType: ts.Type, Layer: model.LayerSystem}
	var wantIDs []string
	for _, t := range ts.Fields {
		wantIDs = append(wantIDs, ids[t])
	}
	for _, tsec := range ts.Sections {
		sec := model.Section{Name: tsec.Name}
		if i := slices.IndexFunc(cur.Sections, func(s model.Section) bool { return s.Name == tsec.Name }); i >= 0 {
			sec.ID = cur.Sections[i].ID
		} else {
			id, err := idgen.New(idgen.Section)
			if err != nil {
				return false, err
			}
			sec.ID = id
		}
		for _, t := range tsec.Fields {
			sec.FieldIDs = append(sec.FieldIDs, ids[t])
			wantIDs = append(wantIDs, ids[t])
		}
		want.Sections = append(want.Sections, sec)
	}

	curIDs := make([]string, len(cur.Fields))
	for i, f := range cur.Fields {
		curIDs[i] = f.ID
	}
	if slices.Equal(curIDs, wantIDs) && sameSections(cur.Sections, want.Sections) {
		return false, nil
	}

	for _, id := range wantIDs {
		want.Fields = append(want.Fields, model.Field{ID: id, TenantID: tenantID})
	}
	if err := tx.SaveSchema(ctx, want); err != nil {
		return false, fmt.Errorf("save %s system schema: %w", ts.Type, err)
	}
	return true, nil
}

func sameSections(a, b []model.Section) bool {
	return slices.EqualFunc(a, b, func(x, y model.Section) bool {
		return x.ID == y.ID && x.Name == y.Name && slices.Equal(x.FieldIDs, y.FieldIDs)
	})
}
