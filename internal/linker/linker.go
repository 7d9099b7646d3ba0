// Package linker copies values between records: linking a document into
// its next lifecycle stage and deep-cloning records.
package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chriskuech/supplyside-sub001/internal/derive"
	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// Records is the record repository as the linker sees it.
type Records interface {
	Read(ctx context.Context, tenantID, id string) (*model.Resource, error)
	Schema(ctx context.Context, tenantID string, resourceType model.ResourceType) (*model.Schema, error)
	Create(ctx context.Context, scope model.Scope, draft model.ResourceDraft) (*model.Resource, error)
	UpdateValues(ctx context.Context, scope model.Scope, id string, values []model.FieldValue) (*model.Resource, error)
	ListReferencing(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error)
	CreateCost(ctx context.Context, scope model.Scope, resourceID string, draft model.CostDraft) (*model.Cost, error)
}

// Linker implements linkResource, cloneResource and copyFields.
type Linker struct {
	records Records
	logger  *slog.Logger
}

// New returns a Linker over the given records.
func New(records Records) *Linker {
	return &Linker{records: records, logger: slog.Default()}
}

// backlinks maps each document type with Line children to the Line field
// linking back to it.
var backlinks = map[model.ResourceType]string{
	model.ResourceTypePurchase: model.TemplatePurchase,
	model.ResourceTypeBill:     model.TemplateBill,
}

// lifecycle lists the (from, to) document pairs whose link also moves
// Costs and Lines.
var lifecycle = map[model.ResourceType]model.ResourceType{
	model.ResourceTypePurchase: model.ResourceTypeBill,
}

// CopyFields copies every non-empty value of from onto to for the fields
// both schemas share by template identifier. Pipeline-derived fields are
// skipped. It returns the updated target.
func (l *Linker) CopyFields(ctx context.Context, scope model.Scope, fromID, toID string) (*model.Resource, error) {
	from, to, err := l.pair(ctx, scope.TenantID, fromID, toID)
	if err != nil {
		return nil, err
	}
	fromSchema, err := l.records.Schema(ctx, scope.TenantID, from.Type)
	if err != nil {
		return nil, err
	}
	toSchema, err := l.records.Schema(ctx, scope.TenantID, to.Type)
	if err != nil {
		return nil, err
	}

	var values []model.FieldValue
	for _, f := range fromSchema.Fields {
		if !f.IsSystem() || f.IsDerived {
			continue
		}
		target, ok := toSchema.FieldByTemplate(f.TemplateID)
		if !ok || target.Type != f.Type {
			continue
		}
		v := from.Value(f.ID)
		if v.IsEmpty(f.Type) || to.Value(target.ID).Equal(target.Type, v) {
			continue
		}
		values = append(values, model.FieldValue{FieldID: target.ID, Value: v})
	}
	if len(values) == 0 {
		return to, nil
	}
	return l.records.UpdateValues(ctx, scope, to.ID, values)
}

// LinkResource copies shared fields from one record onto another. When
// the pair is a document linked into its next lifecycle stage, the
// source's Costs are cloned onto the target and the source's Lines are
// linked to the target as well. Linking the same pair again clones only
// Costs the target does not already carry a copy of.
func (l *Linker) LinkResource(ctx context.Context, scope model.Scope, fromID, toID string) error {
	to, err := l.CopyFields(ctx, scope, fromID, toID)
	if err != nil {
		return fmt.Errorf("copy fields: %w", err)
	}
	from, err := l.records.Read(ctx, scope.TenantID, fromID)
	if err != nil {
		return err
	}
	if lifecycle[from.Type] != to.Type {
		return nil
	}

	cloned := make(map[string]bool, len(to.Costs))
	for _, c := range to.Costs {
		if c.SourceID != "" {
			cloned[c.SourceID] = true
		}
	}
	costs := 0
	for _, c := range from.Costs {
		if cloned[c.ID] {
			continue
		}
		if _, err := l.records.CreateCost(ctx, scope, to.ID, model.CostDraft{
			Name:         c.Name,
			IsPercentage: c.IsPercentage,
			Value:        c.Value,
			SourceID:     c.ID,
		}); err != nil {
			return fmt.Errorf("clone cost %s: %w", c.ID, err)
		}
		costs++
	}

	lineSchema, err := l.records.Schema(ctx, scope.TenantID, model.ResourceTypeLine)
	if err != nil {
		return err
	}
	fromLink, ok := lineSchema.FieldByTemplate(backlinks[from.Type])
	if !ok {
		return nil
	}
	toLink, ok := lineSchema.FieldByTemplate(backlinks[to.Type])
	if !ok {
		return nil
	}
	lines, err := l.records.ListReferencing(ctx, scope.TenantID, model.ResourceTypeLine, fromLink.ID, from.ID)
	if err != nil {
		return fmt.Errorf("list lines: %w", err)
	}
	for _, line := range lines {
		if cur := line.Value(toLink.ID); cur.ResourceID != nil && *cur.ResourceID == to.ID {
			continue
		}
		if _, err := l.records.UpdateValues(ctx, scope, line.ID, []model.FieldValue{
			{FieldID: toLink.ID, Value: model.ResourceValue(to.ID)},
		}); err != nil {
			return fmt.Errorf("link line %s: %w", line.ID, err)
		}
	}
	l.logger.Info("resources linked", "tenant", scope.TenantID, "from", from.ID, "to", to.ID, "lines", len(lines), "costs", costs)
	return nil
}

// CloneResource creates a copy of a record. The copy gets a fresh key and
// number, and status-bearing types start from their initial status
// without the dates that status stamped. Other derived values are copied
// and then recomputed wherever their inputs are present. Documents with
// Lines get copies of their Lines and Costs. Records are created one at
// a time so keys follow creation order.
func (l *Linker) CloneResource(ctx context.Context, scope model.Scope, id string) (*model.Resource, error) {
	src, err := l.records.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	schema, err := l.records.Schema(ctx, scope.TenantID, src.Type)
	if err != nil {
		return nil, err
	}

	statusTemplate, draftTemplate, hasStatus := model.StatusTemplate(src.Type)
	stamped := map[string]bool{}
	if hasStatus {
		for _, t := range derive.StampedBy(statusTemplate) {
			stamped[t] = true
		}
	}
	var (
		inputs []model.FieldInput
		name   string
		nameAt = -1
	)
	for _, f := range schema.Fields {
		if f.TemplateID == model.TemplateNumber {
			continue
		}
		v := src.Value(f.ID)
		switch {
		case hasStatus && f.TemplateID == statusTemplate:
			if o, ok := f.OptionByTemplate(draftTemplate); ok {
				v = model.OptionValue(o.ID)
			}
		case f.IsDerived && stamped[f.TemplateID]:
			continue
		case f.TemplateID == model.TemplateName && !v.IsEmpty(f.Type):
			name, nameAt = *v.String, len(inputs)
			v = model.TextValue(copyName(name, 1))
		}
		if v.IsEmpty(f.Type) {
			continue
		}
		inputs = append(inputs, model.FieldInput{FieldID: f.ID, Value: model.InputFor(f.Type, v)})
	}

	// Names are unique per type, so later copies are numbered.
	var clone *model.Resource
	for n := 1; ; n++ {
		clone, err = l.records.Create(ctx, scope, model.ResourceDraft{Type: src.Type, Fields: inputs})
		if err == nil {
			break
		}
		if nameAt < 0 || n == maxCopies || !errors.Is(err, model.ErrDuplicateResource) {
			return nil, fmt.Errorf("create clone: %w", err)
		}
		inputs[nameAt].Value = model.StringInput(copyName(name, n+1))
	}

	if backlink, ok := backlinks[src.Type]; ok {
		if err := l.cloneLines(ctx, scope, src, clone, backlink); err != nil {
			return nil, err
		}
	}
	for _, c := range src.Costs {
		if _, err := l.records.CreateCost(ctx, scope, clone.ID, model.CostDraft{
			Name:         c.Name,
			IsPercentage: c.IsPercentage,
			Value:        c.Value,
		}); err != nil {
			return nil, fmt.Errorf("clone cost %s: %w", c.ID, err)
		}
	}
	return l.records.Read(ctx, scope.TenantID, clone.ID)
}

func (l *Linker) cloneLines(ctx context.Context, scope model.Scope, src, clone *model.Resource, backlink string) error {
	lineSchema, err := l.records.Schema(ctx, scope.TenantID, model.ResourceTypeLine)
	if err != nil {
		return err
	}
	link, ok := lineSchema.FieldByTemplate(backlink)
	if !ok {
		return nil
	}
	lines, err := l.records.ListReferencing(ctx, scope.TenantID, model.ResourceTypeLine, link.ID, src.ID)
	if err != nil {
		return fmt.Errorf("list lines: %w", err)
	}
	for _, line := range lines {
		var inputs []model.FieldInput
		for _, f := range lineSchema.Fields {
			v := line.Value(f.ID)
			switch {
			case f.ID == link.ID:
				v = model.ResourceValue(clone.ID)
			case isBacklink(f.TemplateID):
				continue
			}
			if v.IsEmpty(f.Type) {
				continue
			}
			inputs = append(inputs, model.FieldInput{FieldID: f.ID, Value: model.InputFor(f.Type, v)})
		}
		copied, err := l.records.Create(ctx, scope, model.ResourceDraft{Type: model.ResourceTypeLine, Fields: inputs})
		if err != nil {
			return fmt.Errorf("clone line %s: %w", line.ID, err)
		}
		// A total entered by hand has no inputs to rederive it from.
		var restore []model.FieldValue
		for _, f := range lineSchema.Fields {
			if v := line.Value(f.ID); f.IsDerived && !copied.Value(f.ID).Equal(f.Type, v) {
				restore = append(restore, model.FieldValue{FieldID: f.ID, Value: v})
			}
		}
		if len(restore) > 0 {
			if _, err := l.records.UpdateValues(ctx, scope, copied.ID, restore); err != nil {
				return fmt.Errorf("clone line %s: %w", line.ID, err)
			}
		}
	}
	return nil
}

// maxCopies bounds the numbered names tried for one clone.
const maxCopies = 100

func copyName(name string, n int) string {
	if n == 1 {
		return name + " (Copy)"
	}
	return fmt.Sprintf("%s (Copy %d)", name, n)
}

func isBacklink(template string) bool {
	for _, t := range backlinks {
		if t == template {
			return true
		}
	}
	return false
}

func (l *Linker) pair(ctx context.Context, tenantID, fromID, toID string) (*model.Resource, *model.Resource, error) {
	from, err := l.records.Read(ctx, tenantID, fromID)
	if err != nil {
		return nil, nil, err
	}
	to, err := l.records.Read(ctx, tenantID, toID)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
