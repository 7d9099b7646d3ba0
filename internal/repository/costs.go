package repository

import (
	"context"
	"fmt"

	"github.com/chriskuech/supplyside-sub001/internal/derive"
	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// CreateCost adds a Cost to a document and recomputes its totals.
func (r *Repository) CreateCost(ctx context.Context, scope model.Scope, resourceID string, draft model.CostDraft) (*model.Cost, error) {
	if err := model.Validate(draft); err != nil {
		return nil, err
	}
	before, err := r.Read(ctx, scope.TenantID, resourceID)
	if err != nil {
		return nil, err
	}
	id, err := idgen.New(idgen.Cost)
	if err != nil {
		return nil, err
	}
	c := &model.Cost{
		ID:           id,
		ResourceID:   resourceID,
		Name:         draft.Name,
		IsPercentage: draft.IsPercentage,
		Value:        draft.Value,
		SourceID:     draft.SourceID,
		CreatedAt:    r.now(),
	}
	if err := r.store.CreateCost(ctx, c); err != nil {
		return nil, fmt.Errorf("create cost: %w", err)
	}
	if err := r.costsChanged(ctx, scope, before); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCost patches a Cost and recomputes its document's totals.
func (r *Repository) UpdateCost(ctx context.Context, scope model.Scope, costID string, patch model.CostPatch) (*model.Cost, error) {
	c, before, err := r.cost(ctx, scope.TenantID, costID)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.IsPercentage != nil {
		c.IsPercentage = *patch.IsPercentage
	}
	if patch.Value != nil {
		c.Value = *patch.Value
	}
	if err := model.Validate(model.CostDraft{Name: c.Name, IsPercentage: c.IsPercentage, Value: c.Value}); err != nil {
		return nil, err
	}
	if err := r.store.UpdateCost(ctx, c); err != nil {
		return nil, notFound(err, "cost %s", costID)
	}
	if err := r.costsChanged(ctx, scope, before); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCost removes a Cost and recomputes its document's totals.
func (r *Repository) DeleteCost(ctx context.Context, scope model.Scope, costID string) error {
	_, before, err := r.cost(ctx, scope.TenantID, costID)
	if err != nil {
		return err
	}
	if err := r.store.DeleteCost(ctx, costID); err != nil {
		return notFound(err, "cost %s", costID)
	}
	return r.costsChanged(ctx, scope, before)
}

// cost loads a Cost and its document, hiding Costs of other tenants.
func (r *Repository) cost(ctx context.Context, tenantID, costID string) (*model.Cost, *model.Resource, error) {
	c, err := r.store.GetCost(ctx, costID)
	if err != nil {
		return nil, nil, notFound(err, "cost %s", costID)
	}
	res, err := r.Read(ctx, tenantID, c.ResourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("cost %s: %w", costID, model.ErrNotFound)
	}
	return c, res, nil
}

func (r *Repository) costsChanged(ctx context.Context, scope model.Scope, before *model.Resource) error {
	after, err := r.Read(ctx, scope.TenantID, before.ID)
	if err != nil {
		return err
	}
	resourceWrites.WithLabelValues("cost").Inc()
	return r.engine.Derive(ctx, &derive.ChangeSet{Scope: scope, Before: before, After: after, CostsChanged: true})
}
