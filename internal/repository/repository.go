// Package repository is the record repository: typed reads and writes of
// Resources against a tenant's effective schema, with every write followed
// by a pass of the derivation engine.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chriskuech/supplyside-sub001/internal/blob"
	"github.com/chriskuech/supplyside-sub001/internal/derive"
	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/idgen"
	"github.com/chriskuech/supplyside-sub001/internal/linker"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// SearchLimit caps the results of FindByNameOrNumber.
const SearchLimit = 15

var (
	resourceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplyside",
		Subsystem: "records",
		Name:      "writes_total",
		Help:      "Resource writes accepted by the repository, by operation.",
	}, []string{"op"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "supplyside",
		Subsystem: "records",
		Name:      "query_duration_seconds",
		Help:      "Time spent running filtered resource queries, by record type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"type"})
)

// Repository reads and writes Resources.
type Repository struct {
	store     store.Store
	publisher events.Publisher
	blobs     blob.Store
	linker    *linker.Linker
	engine    *derive.Engine
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Repository with its relation linker and derivation engine
// wired. A nil publisher discards events; a nil blob store disables file
// uploads.
func New(s store.Store, p events.Publisher, b blob.Store) *Repository {
	if p == nil {
		p = &events.NoopPublisher{}
	}
	r := &Repository{
		store:     s,
		publisher: p,
		blobs:     b,
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	r.linker = linker.New(r)
	r.engine = derive.New(r, r.linker, nil)
	return r
}

// SetRenderer installs the thumbnail renderer used by derivation.
func (r *Repository) SetRenderer(rd derive.Renderer) {
	r.engine = derive.New(r, r.linker, rd)
	r.engine.SetClock(r.now)
}

// SetClock replaces the time source of the repository and its engine.
func (r *Repository) SetClock(now func() time.Time) {
	r.now = now
	r.engine.SetClock(now)
}

// Engine returns the derivation engine.
func (r *Repository) Engine() *derive.Engine { return r.engine }

// Schema returns the merged schema of a record type.
func (r *Repository) Schema(ctx context.Context, tenantID string, resourceType model.ResourceType) (*model.Schema, error) {
	if !resourceType.IsValid() {
		ve := &model.ValidationError{}
		ve.Add("type", "unknown record type %q", resourceType)
		return nil, ve
	}
	s, err := r.store.GetSchema(ctx, tenantID, resourceType, model.LayerMerged)
	if err != nil {
		return nil, notFound(err, "schema %s", resourceType)
	}
	return s, nil
}

// Create creates a Resource. The key is the next per-type sequence
// number; every schema field is seeded with the supplied value, its
// default, or empty, and the number field defaults to the key.
func (r *Repository) Create(ctx context.Context, scope model.Scope, draft model.ResourceDraft) (*model.Resource, error) {
	schema, err := r.Schema(ctx, scope.TenantID, draft.Type)
	if err != nil {
		return nil, err
	}
	values, err := resolve(schema, draft.Fields)
	if err != nil {
		return nil, err
	}
	if err := r.checkDuplicate(ctx, scope.TenantID, schema, values, ""); err != nil {
		return nil, err
	}
	if err := derive.CheckSchedule(schema, &model.Resource{Type: draft.Type}, values); err != nil {
		return nil, err
	}
	supplied := make(map[string]model.Value, len(values))
	for _, v := range values {
		supplied[v.FieldID] = v.Value
	}

	id, err := idgen.New(idgen.Resource)
	if err != nil {
		return nil, err
	}
	changes := maps.Clone(supplied)
	err = r.store.RunInTransaction(ctx, func(tx store.Store) error {
		key, err := tx.NextKey(ctx, scope.TenantID, draft.Type)
		if err != nil {
			return fmt.Errorf("next key: %w", err)
		}
		res := &model.Resource{
			ID:         id,
			TenantID:   scope.TenantID,
			Type:       draft.Type,
			Key:        key,
			TemplateID: draft.TemplateID,
			CreatedAt:  r.now(),
		}
		if err := tx.CreateResource(ctx, res); err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		for _, f := range schema.Fields {
			rf := model.ResourceField{FieldID: f.ID}
			if v, ok := supplied[f.ID]; ok {
				rf.Value = v
				rf.TemplateID = draft.TemplateID
			} else if f.TemplateID == model.TemplateNumber {
				rf.Value = model.TextValue(strconv.Itoa(key))
				changes[f.ID] = rf.Value
			} else {
				rf.Value = f.DefaultValue.OnlySlot(f.Type)
			}
			if err := tx.WriteValue(ctx, id, rf); err != nil {
				return fmt.Errorf("seed %s: %w", f.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	after, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := r.engine.Derive(ctx, &derive.ChangeSet{Scope: scope, After: after, Changes: changes}); err != nil {
		return nil, err
	}
	final, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}

	resourceWrites.WithLabelValues("create").Inc()
	r.logger.Info("resource created", "tenant", scope.TenantID, "resource_id", id, "type", draft.Type, "key", final.Key)
	r.publish(ctx, events.TopicResourceCreated, id, events.ResourceCreated{Resource: final})
	return final, nil
}

// Read returns a Resource with its values in schema order and its costs.
func (r *Repository) Read(ctx context.Context, tenantID, id string) (*model.Resource, error) {
	res, err := r.store.GetResource(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, "resource %s", id)
	}
	return r.present(ctx, res)
}

// ReadByKey returns the Resource of a type holding the given key.
func (r *Repository) ReadByKey(ctx context.Context, tenantID string, resourceType model.ResourceType, key int) (*model.Resource, error) {
	res, err := r.store.GetResourceByKey(ctx, tenantID, resourceType, key)
	if err != nil {
		return nil, notFound(err, "%s %d", resourceType, key)
	}
	return r.present(ctx, res)
}

func (r *Repository) present(ctx context.Context, res *model.Resource) (*model.Resource, error) {
	schema, err := r.Schema(ctx, res.TenantID, res.Type)
	if err != nil {
		return nil, err
	}
	return order(schema, res), nil
}

// order rearranges a Resource's values into schema order. Values of
// fields no longer in the schema follow in store order.
func order(schema *model.Schema, res *model.Resource) *model.Resource {
	placed := make(map[string]bool, len(res.Fields))
	out := make([]model.ResourceField, 0, len(res.Fields))
	for _, f := range schema.Fields {
		if rf, ok := res.Field(f.ID); ok {
			out = append(out, *rf)
			placed[f.ID] = true
		}
	}
	for _, rf := range res.Fields {
		if !placed[rf.FieldID] {
			out = append(out, rf)
		}
	}
	res.Fields = out
	return res
}

// Update writes wire inputs to a Resource and runs derivation. Values a
// resource template seeded cannot be edited.
func (r *Repository) Update(ctx context.Context, scope model.Scope, id string, inputs []model.FieldInput) (*model.Resource, error) {
	before, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	schema, err := r.Schema(ctx, scope.TenantID, before.Type)
	if err != nil {
		return nil, err
	}
	values, err := resolve(schema, inputs)
	if err != nil {
		return nil, err
	}
	if before.TemplateID != "" {
		for _, v := range values {
			if rf, ok := before.Field(v.FieldID); ok && rf.TemplateID != "" {
				return nil, fmt.Errorf("field %s: %w", rf.Name, model.ErrSystemValue)
			}
		}
	}
	return r.write(ctx, scope, before, schema, values)
}

// UpdateValues writes typed values to a Resource and runs derivation.
func (r *Repository) UpdateValues(ctx context.Context, scope model.Scope, id string, values []model.FieldValue) (*model.Resource, error) {
	before, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return nil, err
	}
	schema, err := r.Schema(ctx, scope.TenantID, before.Type)
	if err != nil {
		return nil, err
	}
	typed := make([]model.FieldValue, 0, len(values))
	for _, v := range values {
		f, ok := schema.Field(v.FieldID)
		if !ok {
			return nil, &model.FieldNotFoundError{FieldID: v.FieldID, ResourceType: before.Type}
		}
		typed = append(typed, model.FieldValue{FieldID: f.ID, Value: v.Value.OnlySlot(f.Type)})
	}
	return r.write(ctx, scope, before, schema, typed)
}

func (r *Repository) write(ctx context.Context, scope model.Scope, before *model.Resource, schema *model.Schema, values []model.FieldValue) (*model.Resource, error) {
	if err := r.checkDuplicate(ctx, scope.TenantID, schema, values, before.ID); err != nil {
		return nil, err
	}
	if err := derive.CheckSchedule(schema, before, values); err != nil {
		return nil, err
	}
	changes := make(map[string]model.Value)
	var written []string
	for _, v := range values {
		f, _ := schema.Field(v.FieldID)
		if _, present := before.Field(f.ID); present && before.Value(f.ID).Equal(f.Type, v.Value) {
			continue
		}
		if _, seen := changes[f.ID]; !seen {
			written = append(written, f.ID)
		}
		changes[f.ID] = v.Value
	}
	if len(changes) == 0 {
		return before, nil
	}

	err := r.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, fieldID := range written {
			if err := tx.WriteValue(ctx, before.ID, model.ResourceField{FieldID: fieldID, Value: changes[fieldID]}); err != nil {
				return fmt.Errorf("write %s: %w", fieldID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	after, err := r.Read(ctx, scope.TenantID, before.ID)
	if err != nil {
		return nil, err
	}
	cs := &derive.ChangeSet{Scope: scope, Before: before, After: after, Changes: maps.Clone(changes)}
	if err := r.engine.Derive(ctx, cs); err != nil {
		return nil, err
	}
	final, err := r.Read(ctx, scope.TenantID, before.ID)
	if err != nil {
		return nil, err
	}

	resourceWrites.WithLabelValues("update").Inc()
	r.publish(ctx, events.TopicResourceUpdated, final.ID, events.ResourceUpdated{
		Resource: final,
		Changes:  display(schema, cs.Changes),
	})
	return final, nil
}

// WriteValues persists values without running derivation. Derivation
// rules write their outputs through it.
func (r *Repository) WriteValues(ctx context.Context, tenantID, id string, values []model.FieldValue) error {
	if _, err := r.store.GetResource(ctx, tenantID, id); err != nil {
		return notFound(err, "resource %s", id)
	}
	return r.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, v := range values {
			if err := tx.WriteValue(ctx, id, model.ResourceField{FieldID: v.FieldID, Value: v.Value}); err != nil {
				return fmt.Errorf("write %s: %w", v.FieldID, err)
			}
		}
		return nil
	})
}

// Delete removes a Resource with its values and costs. Deleting a Line
// recomputes the subtotal of the documents it belonged to.
func (r *Repository) Delete(ctx context.Context, scope model.Scope, id string) error {
	before, err := r.Read(ctx, scope.TenantID, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteResource(ctx, scope.TenantID, id); err != nil {
		return notFound(err, "resource %s", id)
	}
	resourceWrites.WithLabelValues("delete").Inc()
	r.logger.Info("resource deleted", "tenant", scope.TenantID, "resource_id", id, "type", before.Type)
	r.publish(ctx, events.TopicResourceDeleted, id, events.ResourceDeleted{
		TenantID:   scope.TenantID,
		ResourceID: id,
		Type:       before.Type,
	})
	return r.engine.Derive(ctx, &derive.ChangeSet{Scope: scope, Before: before})
}

// Clone deep-copies a Resource.
func (r *Repository) Clone(ctx context.Context, scope model.Scope, id string) (*model.Resource, error) {
	return r.linker.CloneResource(ctx, scope, id)
}

// Link copies shared fields of one Resource onto another.
func (r *Repository) Link(ctx context.Context, scope model.Scope, fromID, toID string) (*model.Resource, error) {
	if err := r.linker.LinkResource(ctx, scope, fromID, toID); err != nil {
		return nil, err
	}
	return r.Read(ctx, scope.TenantID, toID)
}

// ListReferencing returns the Resources of a type whose field points at
// targetID.
func (r *Repository) ListReferencing(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error) {
	rs, err := r.store.ListReferencing(ctx, tenantID, resourceType, fieldID, targetID)
	if err != nil {
		return nil, err
	}
	schemas := map[model.ResourceType]*model.Schema{}
	for i, res := range rs {
		s, ok := schemas[res.Type]
		if !ok {
			if s, err = r.Schema(ctx, tenantID, res.Type); err != nil {
				return nil, err
			}
			schemas[res.Type] = s
		}
		rs[i] = order(s, res)
	}
	return rs, nil
}

// FindByNameOrNumber ranks the Resources of a type whose name or number
// resembles input. With exact set only case-insensitive equal values
// match.
func (r *Repository) FindByNameOrNumber(ctx context.Context, tenantID string, resourceType model.ResourceType, input string, exact bool) ([]model.ResourceMatch, error) {
	schema, err := r.Schema(ctx, tenantID, resourceType)
	if err != nil {
		return nil, err
	}
	var fieldIDs []string
	for _, t := range []string{model.TemplateName, model.TemplateNumber} {
		if f, ok := schema.FieldByTemplate(t); ok {
			fieldIDs = append(fieldIDs, f.ID)
		}
	}
	if len(fieldIDs) == 0 {
		return nil, nil
	}
	return r.store.SearchResources(ctx, tenantID, resourceType, fieldIDs, input, exact, SearchLimit)
}

// Query returns the Resources matching a filter in sort order. Filters
// and sorts may only name fields of the type's schema.
func (r *Repository) Query(ctx context.Context, tenantID string, resourceType model.ResourceType, filter query.Node, sorts []query.Sort, limit int) ([]*model.Resource, error) {
	schema, err := r.Schema(ctx, tenantID, resourceType)
	if err != nil {
		return nil, err
	}
	if err := query.Validate(schema, filter, sorts); err != nil {
		return nil, err
	}
	timer := prometheus.NewTimer(queryDuration.WithLabelValues(string(resourceType)))
	ids, err := r.store.QueryResources(ctx, tenantID, query.Request{Schema: schema, Filter: filter, Sort: sorts, Limit: limit})
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", resourceType, err)
	}
	out := make([]*model.Resource, 0, len(ids))
	for _, id := range ids {
		res, err := r.store.GetResource(ctx, tenantID, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, order(schema, res))
	}
	return out, nil
}

// ListUsers returns the tenant's user directory.
func (r *Repository) ListUsers(ctx context.Context, tenantID string) ([]*model.User, error) {
	return r.store.ListUsers(ctx, tenantID)
}

// GetUser returns one user of the directory.
func (r *Repository) GetUser(ctx context.Context, tenantID, id string) (*model.User, error) {
	u, err := r.store.GetUser(ctx, tenantID, id)
	if err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return u, nil
}

// resolve maps wire inputs onto typed values of schema fields. Any input
// naming a field outside the schema rejects the whole write.
func resolve(schema *model.Schema, inputs []model.FieldInput) ([]model.FieldValue, error) {
	out := make([]model.FieldValue, 0, len(inputs))
	for _, in := range inputs {
		f, ok := schema.Field(in.FieldID)
		if !ok {
			return nil, &model.FieldNotFoundError{FieldID: in.FieldID, ResourceType: schema.ResourceType}
		}
		v, err := model.ValueFromInput(f.Type, in.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if err := checkOptions(f, v); err != nil {
			return nil, err
		}
		out = append(out, model.FieldValue{FieldID: f.ID, Value: v})
	}
	return out, nil
}

func checkOptions(f *model.Field, v model.Value) error {
	ids := slices.Clone(v.OptionIDs)
	if v.OptionID != nil && *v.OptionID != "" {
		ids = append(ids, *v.OptionID)
	}
	for _, id := range ids {
		if _, ok := f.Option(id); !ok {
			ve := &model.ValidationError{}
			ve.Add(f.Name, "unknown option %q", id)
			return ve
		}
	}
	return nil
}

// checkDuplicate rejects a write of the canonical name another Resource
// of the type already holds.
func (r *Repository) checkDuplicate(ctx context.Context, tenantID string, schema *model.Schema, values []model.FieldValue, excludeID string) error {
	name, ok := schema.FieldByTemplate(model.TemplateName)
	if !ok {
		return nil
	}
	for _, v := range values {
		if v.FieldID != name.ID || v.Value.IsEmpty(name.Type) {
			continue
		}
		taken, err := r.store.NameTaken(ctx, tenantID, schema.ResourceType, name.ID, *v.Value.String, excludeID)
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if taken {
			return &model.DuplicateResourceError{ResourceType: schema.ResourceType, Value: *v.Value.String}
		}
	}
	return nil
}

func display(schema *model.Schema, changes map[string]model.Value) map[string]any {
	out := make(map[string]any, len(changes))
	for id, v := range changes {
		if f, ok := schema.Field(id); ok {
			out[f.Name] = v.Display(f.Type)
		}
	}
	return out
}

func (r *Repository) publish(ctx context.Context, topic, resourceID string, event any) {
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("failed to publish event", "topic", topic, "resource_id", resourceID, "error", err)
	}
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf(format+": %w", append(args, model.ErrNotFound)...)
	}
	return err
}
