// Package memory implements store.Store in process memory. It backs tests
// and `serve --in-memory`; state is lost when the process exits.
package memory

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// layer is a stored schema layer: field references plus sections.
// Field definitions are resolved on read so edits show through.
type layer struct {
	fieldIDs []string
	sections []model.Section
}

type data struct {
	users     map[string]model.User
	fields    map[string]model.Field
	layers    map[string]layer
	resources map[string]model.Resource
	costs     map[string]model.Cost
	files     map[string]model.File
}

func newData() *data {
	return &data{
		users:     map[string]model.User{},
		fields:    map[string]model.Field{},
		layers:    map[string]layer{},
		resources: map[string]model.Resource{},
		costs:     map[string]model.Cost{},
		files:     map[string]model.File{},
	}
}

func (d *data) clone() *data {
	out := &data{
		users:     maps.Clone(d.users),
		fields:    make(map[string]model.Field, len(d.fields)),
		layers:    make(map[string]layer, len(d.layers)),
		resources: make(map[string]model.Resource, len(d.resources)),
		costs:     maps.Clone(d.costs),
		files:     maps.Clone(d.files),
	}
	for id, f := range d.fields {
		out.fields[id] = copyField(f)
	}
	for id, l := range d.layers {
		out.layers[id] = layer{fieldIDs: slices.Clone(l.fieldIDs), sections: copySections(l.sections)}
	}
	for id, r := range d.resources {
		r.Fields = slices.Clone(r.Fields)
		out.resources[id] = r
	}
	return out
}

// Store is an in-memory store.Store. Transactions are serialized and roll
// back by restoring a snapshot taken when they began.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	d    *data
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{d: newData()}
}

// AddUser seeds the user directory.
func (s *Store) AddUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.users[u.ID] = u
}

func (s *Store) Close() error { return nil }

func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.d.clone()
	s.mu.RUnlock()

	if err := fn(&txStore{s}); err != nil {
		s.mu.Lock()
		s.d = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore runs operations inside an open transaction.
type txStore struct {
	*Store
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (t *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(t)
}

func copyField(f model.Field) model.Field {
	f.Options = slices.Clone(f.Options)
	return f
}

func copySections(secs []model.Section) []model.Section {
	out := make([]model.Section, len(secs))
	for i, sec := range secs {
		sec.FieldIDs = slices.Clone(sec.FieldIDs)
		out[i] = sec
	}
	return out
}

func layerKey(tenantID string, resourceType model.ResourceType, l model.Layer) string {
	return tenantID + ":" + string(resourceType) + ":" + string(l)
}

// Fields

func (s *Store) ListFields(_ context.Context, tenantID string) ([]*model.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Field
	for _, f := range s.d.fields {
		if f.TenantID == tenantID {
			c := copyField(f)
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *model.Field) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetField(_ context.Context, tenantID, id string) (*model.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.d.fields[id]
	if !ok || f.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	c := copyField(f)
	return &c, nil
}

func (s *Store) CreateField(_ context.Context, f *model.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.d.fields[f.ID]; ok {
		return fmt.Errorf("field %s: %w", f.ID, store.ErrConflict)
	}
	if f.TemplateID != "" {
		for _, other := range s.d.fields {
			if other.TenantID == f.TenantID && other.TemplateID == f.TemplateID {
				return fmt.Errorf("field template %q: %w", f.TemplateID, store.ErrConflict)
			}
		}
	}
	c := copyField(*f)
	for i := range c.Options {
		c.Options[i].FieldID = c.ID
		c.Options[i].Order = i
	}
	s.d.fields[f.ID] = c
	return nil
}

func (s *Store) UpdateField(_ context.Context, f *model.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.d.fields[f.ID]
	if !ok || cur.TenantID != f.TenantID {
		return sql.ErrNoRows
	}
	cur.Name = f.Name
	cur.Description = f.Description
	cur.Type = f.Type
	cur.ResourceType = f.ResourceType
	cur.IsRequired = f.IsRequired
	cur.IsDerived = f.IsDerived
	cur.DefaultValue = f.DefaultValue
	s.d.fields[f.ID] = cur
	return nil
}

func (s *Store) DeleteField(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.d.fields[id]
	if !ok || f.TenantID != tenantID {
		return sql.ErrNoRows
	}
	delete(s.d.fields, id)
	for key, l := range s.d.layers {
		l.fieldIDs = slices.DeleteFunc(l.fieldIDs, func(fid string) bool { return fid == id })
		for i := range l.sections {
			l.sections[i].FieldIDs = slices.DeleteFunc(l.sections[i].FieldIDs, func(fid string) bool { return fid == id })
		}
		s.d.layers[key] = l
	}
	for rid, r := range s.d.resources {
		r.Fields = slices.DeleteFunc(r.Fields, func(rf model.ResourceField) bool { return rf.FieldID == id })
		s.d.resources[rid] = r
	}
	return nil
}

func (s *Store) FieldInUse(_ context.Context, tenantID, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, l := range s.d.layers {
		if strings.HasPrefix(key, tenantID+":") && slices.Contains(l.fieldIDs, id) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SetOptions(_ context.Context, fieldID string, options []model.Option) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.d.fields[fieldID]
	if !ok {
		return sql.ErrNoRows
	}
	keep := make(map[string]bool, len(options))
	f.Options = make([]model.Option, len(options))
	for i, o := range options {
		o.FieldID = fieldID
		o.Order = i
		f.Options[i] = o
		keep[o.ID] = true
	}
	s.d.fields[fieldID] = f

	// Removed options disappear from stored values.
	for rid, r := range s.d.resources {
		changed := false
		for i, rf := range r.Fields {
			if rf.FieldID != fieldID {
				continue
			}
			v := rf.Value
			if v.OptionID != nil && !keep[*v.OptionID] {
				v.OptionID = nil
				changed = true
			}
			if len(v.OptionIDs) > 0 {
				kept := slices.DeleteFunc(slices.Clone(v.OptionIDs), func(id string) bool { return !keep[id] })
				if len(kept) != len(v.OptionIDs) {
					v.OptionIDs = kept
					changed = true
				}
			}
			r.Fields[i].Value = v
		}
		if changed {
			s.d.resources[rid] = r
		}
	}
	return nil
}

// Schemas

func (s *Store) GetSchema(_ context.Context, tenantID string, resourceType model.ResourceType, l model.Layer) (*model.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch l {
	case model.LayerSystem, model.LayerCustom:
		return s.loadLayer(tenantID, resourceType, l), nil
	case model.LayerMerged, "":
		return model.MergeSchemas(
			s.loadLayer(tenantID, resourceType, model.LayerSystem),
			s.loadLayer(tenantID, resourceType, model.LayerCustom),
		), nil
	}
	return nil, fmt.Errorf("unknown schema layer %q", l)
}

func (s *Store) loadLayer(tenantID string, resourceType model.ResourceType, l model.Layer) *model.Schema {
	schema := &model.Schema{TenantID: tenantID, ResourceType: resourceType, Layer: l}
	stored := s.d.layers[layerKey(tenantID, resourceType, l)]
	for _, id := range stored.fieldIDs {
		if f, ok := s.d.fields[id]; ok {
			schema.Fields = append(schema.Fields, copyField(f))
		}
	}
	schema.Sections = copySections(stored.sections)
	return schema
}

func (s *Store) SaveSchema(_ context.Context, schema *model.Schema) error {
	if schema.Layer != model.LayerSystem && schema.Layer != model.LayerCustom {
		return fmt.Errorf("save schema: layer must be system or custom, got %q", schema.Layer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var l layer
	for _, f := range schema.Fields {
		if _, ok := s.d.fields[f.ID]; !ok {
			return fmt.Errorf("save schema: field %s: %w", f.ID, sql.ErrNoRows)
		}
		l.fieldIDs = append(l.fieldIDs, f.ID)
	}
	l.sections = copySections(schema.Sections)
	for i := range l.sections {
		if l.sections[i].ID == "" {
			l.sections[i].ID = fmt.Sprintf("%s:%d", layerKey(schema.TenantID, schema.ResourceType, schema.Layer), i)
		}
	}
	s.d.layers[layerKey(schema.TenantID, schema.ResourceType, schema.Layer)] = l
	return nil
}
