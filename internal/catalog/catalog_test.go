package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store/memory"
)

const tenant = "t1"

func newTestCatalog(t *testing.T) (*Catalog, *memory.Store, *events.Recorder) {
	t.Helper()
	s := memory.New()
	rec := &events.Recorder{}
	c, err := New(s, rec)
	require.NoError(t, err)
	return c, s, rec
}

func TestTemplates_EmbeddedSetIsComplete(t *testing.T) {
	set, err := Templates()
	require.NoError(t, err)

	types := map[model.ResourceType]bool{}
	for _, ts := range set.Schemas {
		types[ts.Type] = true
	}
	for _, rt := range model.ResourceTypes {
		assert.True(t, types[rt], "no system schema for %s", rt)
	}
	for _, tmpl := range []string{
		model.TemplateName, model.TemplateNumber, model.TemplateUnitCost, model.TemplateQuantity,
		model.TemplateTotalCost, model.TemplateSubtotalCost, model.TemplateItemizedCosts,
		model.TemplatePaymentTerms, model.TemplatePaymentDueDate, model.TemplateThumbnail,
	} {
		_, ok := set.Field(tmpl)
		assert.True(t, ok, "template %s missing", tmpl)
	}
	for _, rt := range []model.ResourceType{model.ResourceTypePurchase, model.ResourceTypeBill, model.ResourceTypeJob, model.ResourceTypeStep} {
		field, draft, ok := model.StatusTemplate(rt)
		require.True(t, ok)
		tf, ok := set.Field(field)
		require.True(t, ok, "status field %s", field)
		require.NotNil(t, tf.Default)
		assert.Equal(t, draft, tf.Default.Option)
	}
}

func TestParseTemplates_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", `
[[fields]]
template = "name"
name = "Name"
type = "Text"
colour = "red"
`},
		{"unknown type", `
[[fields]]
template = "name"
name = "Name"
type = "Blob"
`},
		{"dangling reference", `
[[fields]]
template = "name"
name = "Name"
type = "Text"

[[schemas]]
type = "Vendor"
fields = ["name", "missing"]
`},
		{"resource without target", `
[[fields]]
template = "vendor"
name = "Vendor"
type = "Resource"
`},
		{"undeclared default option", `
[[fields]]
template = "status"
name = "Status"
type = "Select"
options = [{ template = "a", name = "A" }]
default = { option = "b" }
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplates(tt.doc)
			assert.Error(t, err)
		})
	}
}

func TestApplyTemplate_Idempotent(t *testing.T) {
	c, s, rec := newTestCatalog(t)
	ctx := context.Background()

	first, err := c.ApplyTemplate(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, len(c.Templates().Fields), first.FieldsCreated)
	assert.Equal(t, len(model.ResourceTypes), first.SchemasSaved)
	assert.Zero(t, first.FieldsUpdated)
	assert.Zero(t, first.FieldsDeleted)

	second, err := c.ApplyTemplate(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, second.Changed(), "second run wrote %+v", second)
	assert.Equal(t, []string{events.TopicTemplateApplied}, rec.Topics())

	schema, err := s.GetSchema(ctx, tenant, model.ResourceTypePurchase, model.LayerMerged)
	require.NoError(t, err)
	assert.True(t, schema.Implements(model.TemplateNumber, model.TemplatePurchaseStatus, model.TemplateTotalCost))
	require.Len(t, schema.Sections, 2)
	assert.Equal(t, "Totals", schema.Sections[1].Name)
	assert.Len(t, schema.Sections[1].FieldIDs, 3)

	status, _ := schema.FieldByTemplate(model.TemplatePurchaseStatus)
	draft, ok := status.OptionByTemplate(model.OptionPurchaseDraft)
	require.True(t, ok)
	assert.Equal(t, model.OptionValue(draft.ID), status.DefaultValue)
}

func TestApplyTemplate_TenantsAreIndependent(t *testing.T) {
	c, s, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.ApplyTemplate(ctx, "t1")
	require.NoError(t, err)
	_, err = c.ApplyTemplate(ctx, "t2")
	require.NoError(t, err)

	f1, _ := s.ListFields(ctx, "t1")
	f2, _ := s.ListFields(ctx, "t2")
	require.Len(t, f2, len(f1))
	assert.NotEqual(t, f1[0].ID, f2[0].ID)
}

func TestApplyTemplate_ReconcilesChangedSet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	c, err := New(s, nil)
	require.NoError(t, err)
	_, err = c.ApplyTemplate(ctx, tenant)
	require.NoError(t, err)

	// A tenant option on a system field survives reconciliation.
	fields, _ := s.ListFields(ctx, tenant)
	var method *model.Field
	for _, f := range fields {
		if f.TemplateID == model.TemplatePaymentMethod {
			method = f
		}
	}
	require.NotNil(t, method)
	_, err = c.UpdateField(ctx, tenant, method.ID, model.FieldPatch{
		Options: []model.OptionPatch{{Op: model.OptionAdd, Name: "Barter"}},
	})
	require.NoError(t, err)

	set, err := Templates()
	require.NoError(t, err)
	pm, _ := set.Field(model.TemplatePaymentMethod)
	pm.Options = pm.Options[1:] // drop ACH
	pm.Options[0].Name = "Paper Check"
	set.Fields = set.Fields[:len(set.Fields)-1] // drop thumbnail
	for i := range set.Schemas {
		if set.Schemas[i].Type == model.ResourceTypePart {
			set.Schemas[i].Sections[0].Fields = []string{model.TemplatePartModel}
		}
	}

	res, err := NewWithTemplates(s, nil, set).ApplyTemplate(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, res.FieldsCreated)
	assert.Equal(t, 1, res.FieldsUpdated)
	assert.Equal(t, 1, res.FieldsDeleted)
	// Deleting the field already dropped it from the Part layer.
	assert.Equal(t, 0, res.SchemasSaved)

	got, err := s.GetField(ctx, tenant, method.ID)
	require.NoError(t, err)
	names := make([]string, len(got.Options))
	for i, o := range got.Options {
		names[i] = o.Name
	}
	assert.Equal(t, []string{"Paper Check", "Credit Card", "Wire", "Barter"}, names)

	part, err := s.GetSchema(ctx, tenant, model.ResourceTypePart, model.LayerSystem)
	require.NoError(t, err)
	assert.False(t, part.Implements(model.TemplateThumbnail))
}

func TestCreateField_Validation(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Owner", Type: model.FieldTypeResource})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = c.CreateField(ctx, tenant, model.FieldDraft{Type: model.FieldTypeText})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Errors[0].Field)

	in := model.StringInput("x")
	_, err = c.CreateField(ctx, tenant, model.FieldDraft{Name: "Weight", Type: model.FieldTypeNumber, DefaultValue: &in})
	assert.ErrorIs(t, err, model.ErrWrongValueKind)

	_, err = c.CreateField(ctx, tenant, model.FieldDraft{Name: "Notes", Type: model.FieldTypeText, Options: []string{"a"}})
	require.ErrorAs(t, err, &ve)
}

func TestUpdateField_OptionPatchOrder(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()

	f, err := c.CreateField(ctx, tenant, model.FieldDraft{
		Name:    "Priority",
		Type:    model.FieldTypeSelect,
		Options: []string{"Low", "Medium", "High"},
	})
	require.NoError(t, err)
	low, medium, high := f.Options[0], f.Options[1], f.Options[2]

	got, err := c.UpdateField(ctx, tenant, f.ID, model.FieldPatch{
		Options: []model.OptionPatch{
			{Op: model.OptionUpdate, ID: high.ID, Name: "Urgent"},
			{Op: model.OptionAdd, Name: "Someday"},
			{Op: model.OptionRemove, ID: low.ID},
		},
	})
	require.NoError(t, err)
	require.Len(t, got.Options, 3)
	assert.Equal(t, high.ID, got.Options[0].ID)
	assert.Equal(t, "Urgent", got.Options[0].Name)
	assert.Equal(t, "Someday", got.Options[1].Name)
	assert.Equal(t, medium.ID, got.Options[2].ID)
	for i, o := range got.Options {
		assert.Equal(t, i, o.Order)
	}

	_, err = c.UpdateField(ctx, tenant, f.ID, model.FieldPatch{
		Options: []model.OptionPatch{{Op: model.OptionRemove, ID: low.ID}},
	})
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = c.UpdateField(ctx, tenant, "fld-missing", model.FieldPatch{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDeleteField_InUse(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()

	f, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Color", Type: model.FieldTypeText})
	require.NoError(t, err)
	_, err = c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{FieldIDs: []string{f.ID}})
	require.NoError(t, err)

	err = c.DeleteField(ctx, tenant, f.ID)
	assert.ErrorIs(t, err, model.ErrFieldInUse)

	_, err = c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{})
	require.NoError(t, err)
	require.NoError(t, c.DeleteField(ctx, tenant, f.ID))
	assert.True(t, errors.Is(c.DeleteField(ctx, tenant, f.ID), model.ErrNotFound))
}

func TestUpdateSchema_MergesAfterSystemLayer(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.ApplyTemplate(ctx, tenant)
	require.NoError(t, err)

	color, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Color", Type: model.FieldTypeText})
	require.NoError(t, err)
	size, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Size", Type: model.FieldTypeNumber})
	require.NoError(t, err)

	merged, err := c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{
		FieldIDs: []string{color.ID},
		Sections: []model.SectionDraft{{Name: "Dimensions", FieldIDs: []string{size.ID}}},
	})
	require.NoError(t, err)

	system, err := c.ReadSchema(ctx, tenant, model.ResourceTypeItem, model.LayerSystem)
	require.NoError(t, err)
	n := len(system.Fields)
	require.Len(t, merged.Fields, n+2)
	assert.Equal(t, color.ID, merged.Fields[n].ID)
	assert.Equal(t, size.ID, merged.Fields[n+1].ID)
	assert.Equal(t, "Dimensions", merged.Sections[len(merged.Sections)-1].Name)

	custom, err := c.ReadSchema(ctx, tenant, model.ResourceTypeItem, model.LayerCustom)
	require.NoError(t, err)
	assert.Len(t, custom.Fields, 2)

	_, err = c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{FieldIDs: []string{"fld-nope"}})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSchemaFieldNamesStayUnique(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()
	_, err := c.ApplyTemplate(ctx, tenant)
	require.NoError(t, err)

	shadow, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Unit Cost", Type: model.FieldTypeNumber})
	require.NoError(t, err)
	_, err = c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{FieldIDs: []string{shadow.ID}})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "fieldIds", ve.Errors[0].Field)
	custom, err := c.ReadSchema(ctx, tenant, model.ResourceTypeItem, model.LayerCustom)
	require.NoError(t, err)
	assert.Empty(t, custom.Fields, "a rejected schema is not saved")

	color, err := c.CreateField(ctx, tenant, model.FieldDraft{Name: "Color", Type: model.FieldTypeText})
	require.NoError(t, err)
	_, err = c.UpdateSchema(ctx, tenant, model.ResourceTypeItem, model.SchemaDraft{FieldIDs: []string{color.ID}})
	require.NoError(t, err)

	taken := "Name"
	_, err = c.UpdateField(ctx, tenant, color.ID, model.FieldPatch{Name: &taken})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Errors[0].Field)
	got, err := c.GetField(ctx, tenant, color.ID)
	require.NoError(t, err)
	assert.Equal(t, "Color", got.Name)

	_, err = c.UpdateField(ctx, tenant, shadow.ID, model.FieldPatch{Name: &taken})
	assert.NoError(t, err, "fields outside any schema may share names")
}

func TestReadSchema_RejectsUnknownLayer(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	_, err := c.ReadSchema(context.Background(), tenant, model.ResourceTypeItem, "draft")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "layer", ve.Errors[0].Field)
}
