package repository

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chriskuech/supplyside-sub001/internal/derive"
	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// BatchCreate creates many Resources. Drafts of one record type are
// created one after another in input order so keys follow that order;
// different types proceed concurrently. The result is index-aligned with
// drafts; on error the Resources created so far are kept.
func (r *Repository) BatchCreate(ctx context.Context, scope model.Scope, drafts []model.ResourceDraft) ([]*model.Resource, error) {
	out := make([]*model.Resource, len(drafts))
	byType := map[model.ResourceType][]int{}
	var types []model.ResourceType
	for i, d := range drafts {
		if _, ok := byType[d.Type]; !ok {
			types = append(types, d.Type)
		}
		byType[d.Type] = append(byType[d.Type], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range types {
		idxs := byType[t]
		g.Go(func() error {
			for _, i := range idxs {
				res, err := r.Create(gctx, scope, drafts[i])
				if err != nil {
					return fmt.Errorf("item %d (%s): %w", i, drafts[i].Type, err)
				}
				out[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyExtraction applies an extraction proposal to a Resource through
// the ordinary write paths: field values by Update, Costs by CreateCost,
// Lines by Create. Proposed values for fields the schema lacks, or for
// derived fields, are skipped. A vendor name resolves to an existing
// Vendor by exact match.
func (r *Repository) ApplyExtraction(ctx context.Context, scope model.Scope, id string, ex model.Extraction) (*model.Resource, error) {
	res, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	schema, err := r.Schema(ctx, scope.TenantID, res.Type)
	if err != nil {
		return nil, err
	}

	inputs := extractedInputs(schema, ex.Fields, "")
	if ex.VendorName != "" {
		if vf, ok := schema.FieldByTemplate(model.TemplateVendor); ok {
			matches, err := r.FindByNameOrNumber(ctx, scope.TenantID, model.ResourceTypeVendor, ex.VendorName, true)
			if err != nil {
				return nil, fmt.Errorf("resolve vendor: %w", err)
			}
			if len(matches) > 0 {
				inputs = append(inputs, model.FieldInput{FieldID: vf.ID, Value: model.ResourceInput(matches[0].ResourceID)})
			} else {
				r.logger.Debug("extracted vendor not found", "tenant", scope.TenantID, "resource_id", id, "vendor", ex.VendorName)
			}
		}
	}
	if len(inputs) > 0 {
		if _, err := r.Update(ctx, scope, id, inputs); err != nil {
			return nil, err
		}
	}

	for _, c := range ex.Costs {
		if _, err := r.CreateCost(ctx, scope, id, c); err != nil {
			return nil, fmt.Errorf("extracted cost %q: %w", c.Name, err)
		}
	}

	if backlink, ok := derive.DocumentBacklink(res.Type); ok && len(ex.Lines) > 0 {
		lineSchema, err := r.Schema(ctx, scope.TenantID, model.ResourceTypeLine)
		if err != nil {
			return nil, err
		}
		link, ok := lineSchema.FieldByTemplate(backlink)
		if !ok {
			return nil, fmt.Errorf("line schema has no %s field: %w", backlink, model.ErrFieldNotFound)
		}
		for i, l := range ex.Lines {
			fields := append(extractedInputs(lineSchema, l.Fields, link.ID),
				model.FieldInput{FieldID: link.ID, Value: model.ResourceInput(id)})
			if _, err := r.Create(ctx, scope, model.ResourceDraft{Type: model.ResourceTypeLine, Fields: fields}); err != nil {
				return nil, fmt.Errorf("extracted line %d: %w", i, err)
			}
		}
	}

	r.logger.Info("extraction applied", "tenant", scope.TenantID, "resource_id", id,
		"fields", len(inputs), "costs", len(ex.Costs), "lines", len(ex.Lines))
	return r.Read(ctx, scope.TenantID, id)
}

func extractedInputs(schema *model.Schema, proposed []model.ExtractedField, skipID string) []model.FieldInput {
	var out []model.FieldInput
	for _, ef := range proposed {
		f, ok := ef.Resolve(schema)
		if !ok || f.IsDerived || f.ID == skipID {
			continue
		}
		out = append(out, model.FieldInput{FieldID: f.ID, Value: ef.Value})
	}
	return out
}
