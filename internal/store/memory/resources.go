package memory

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

func (s *Store) NextKey(_ context.Context, tenantID string, resourceType model.ResourceType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 1
	for _, r := range s.d.resources {
		if r.TenantID == tenantID && r.Type == resourceType && r.Key >= next {
			next = r.Key + 1
		}
	}
	return next, nil
}

func (s *Store) CreateResource(_ context.Context, r *model.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.d.resources[r.ID]; ok {
		return fmt.Errorf("resource %s: %w", r.ID, store.ErrConflict)
	}
	for _, other := range s.d.resources {
		if other.TenantID == r.TenantID && other.Type == r.Type && other.Key == r.Key {
			return fmt.Errorf("%s key %d: %w", r.Type, r.Key, store.ErrConflict)
		}
	}
	c := *r
	c.Fields = nil
	c.Costs = nil
	s.d.resources[r.ID] = c
	return nil
}

func (s *Store) GetResource(_ context.Context, tenantID, id string) (*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.d.resources[id]
	if !ok || r.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return s.read(r), nil
}

func (s *Store) GetResourceByKey(_ context.Context, tenantID string, resourceType model.ResourceType, key int) (*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.d.resources {
		if r.TenantID == tenantID && r.Type == resourceType && r.Key == key {
			return s.read(r), nil
		}
	}
	return nil, sql.ErrNoRows
}

// read joins field definitions and costs onto a stored resource, in the
// same order the Postgres store returns them.
func (s *Store) read(r model.Resource) *model.Resource {
	out := r
	out.Fields = nil
	for _, rf := range r.Fields {
		f, ok := s.d.fields[rf.FieldID]
		if !ok {
			continue
		}
		rf.Name = f.Name
		rf.Type = f.Type
		rf.Value.OptionIDs = slices.Clone(rf.Value.OptionIDs)
		rf.Value.FileIDs = slices.Clone(rf.Value.FileIDs)
		out.Fields = append(out.Fields, rf)
	}
	slices.SortFunc(out.Fields, func(a, b model.ResourceField) int {
		fa, fb := s.d.fields[a.FieldID], s.d.fields[b.FieldID]
		return cmp.Or(fa.CreatedAt.Compare(fb.CreatedAt), cmp.Compare(fa.ID, fb.ID))
	})
	out.Costs = s.costsOf(r.ID)
	return &out
}

func (s *Store) DeleteResource(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.d.resources[id]
	if !ok || r.TenantID != tenantID {
		return sql.ErrNoRows
	}
	delete(s.d.resources, id)
	for cid, c := range s.d.costs {
		if c.ResourceID == id {
			delete(s.d.costs, cid)
		}
	}
	return nil
}

func (s *Store) WriteValue(_ context.Context, resourceID string, rf model.ResourceField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.d.resources[resourceID]
	if !ok {
		return sql.ErrNoRows
	}
	if _, ok := s.d.fields[rf.FieldID]; !ok {
		return fmt.Errorf("write value: field %s: %w", rf.FieldID, sql.ErrNoRows)
	}
	rf.Value.OptionIDs = slices.Clone(rf.Value.OptionIDs)
	rf.Value.FileIDs = slices.Clone(rf.Value.FileIDs)

	fields := slices.Clone(r.Fields)
	idx := slices.IndexFunc(fields, func(x model.ResourceField) bool { return x.FieldID == rf.FieldID })
	if idx < 0 {
		fields = append(fields, rf)
	} else {
		if rf.TemplateID == "" {
			rf.TemplateID = fields[idx].TemplateID
		}
		fields[idx] = rf
	}
	r.Fields = fields
	s.d.resources[resourceID] = r
	return nil
}

func (s *Store) ListReferencing(_ context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Resource
	for _, r := range s.d.resources {
		if r.TenantID != tenantID || (resourceType != "" && r.Type != resourceType) {
			continue
		}
		if slices.ContainsFunc(r.Fields, func(rf model.ResourceField) bool {
			return (fieldID == "" || rf.FieldID == fieldID) &&
				rf.Value.ResourceID != nil && *rf.Value.ResourceID == targetID
		}) {
			out = append(out, s.read(r))
		}
	}
	sortByKey(out)
	return out, nil
}

func sortByKey(rs []*model.Resource) {
	slices.SortFunc(rs, func(a, b *model.Resource) int {
		return cmp.Or(cmp.Compare(a.Key, b.Key), cmp.Compare(a.ID, b.ID))
	})
}

func (s *Store) NameTaken(_ context.Context, tenantID string, resourceType model.ResourceType, fieldID, value, excludeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.d.fields[fieldID]
	if !ok {
		return false, nil
	}
	for _, r := range s.d.resources {
		if r.TenantID != tenantID || r.Type != resourceType || r.ID == excludeID {
			continue
		}
		for _, rf := range r.Fields {
			f := s.d.fields[rf.FieldID]
			if f.Name == target.Name && rf.Value.String != nil && model.FoldEqual(*rf.Value.String, value) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) SearchResources(_ context.Context, tenantID string, resourceType model.ResourceType, fieldIDs []string, input string, exact bool, limit int) ([]model.ResourceMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(input))
	var out []model.ResourceMatch
	for _, r := range s.d.resources {
		if r.TenantID != tenantID || r.Type != resourceType {
			continue
		}
		best := model.ResourceMatch{Score: -1}
		for _, rf := range r.Fields {
			if !slices.Contains(fieldIDs, rf.FieldID) || rf.Value.String == nil {
				continue
			}
			text := *rf.Value.String
			score := similarity(text, input)
			var hit bool
			if exact {
				hit = model.FoldEqual(text, input)
			} else {
				hit = strings.Contains(strings.ToLower(text), needle) || score > 0.3
			}
			if hit && score > best.Score {
				best = model.ResourceMatch{ResourceID: r.ID, Key: r.Key, Text: text, Score: score}
			}
		}
		if best.ResourceID != "" {
			out = append(out, best)
		}
	}
	slices.SortFunc(out, func(a, b model.ResourceMatch) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.Key, b.Key))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) QueryResources(_ context.Context, tenantID string, req query.Request) ([]string, error) {
	if err := query.Validate(req.Schema, req.Filter, req.Sort); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var candidates []*model.Resource
	for _, r := range s.d.resources {
		if r.TenantID == tenantID && r.Type == req.Schema.ResourceType {
			candidates = append(candidates, s.read(r))
		}
	}
	s.mu.RUnlock()

	var matched []*model.Resource
	for _, r := range candidates {
		ok, err := query.Match(req.Schema, req.Filter, r)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}
	sortByKey(matched)
	if err := query.SortResources(req.Schema, req.Sort, matched); err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	ids := make([]string, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	return ids, nil
}

// Costs

func (s *Store) costsOf(resourceID string) []model.Cost {
	var out []model.Cost
	for _, c := range s.d.costs {
		if c.ResourceID == resourceID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b model.Cost) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *Store) ListCosts(_ context.Context, resourceID string) ([]model.Cost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.costsOf(resourceID), nil
}

func (s *Store) GetCost(_ context.Context, id string) (*model.Cost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.d.costs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *Store) CreateCost(_ context.Context, c *model.Cost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.d.resources[c.ResourceID]; !ok {
		return fmt.Errorf("create cost: resource %s: %w", c.ResourceID, sql.ErrNoRows)
	}
	s.d.costs[c.ID] = *c
	return nil
}

func (s *Store) UpdateCost(_ context.Context, c *model.Cost) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.d.costs[c.ID]
	if !ok {
		return sql.ErrNoRows
	}
	cur.Name = c.Name
	cur.IsPercentage = c.IsPercentage
	cur.Value = c.Value
	s.d.costs[c.ID] = cur
	return nil
}

func (s *Store) DeleteCost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.d.costs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.d.costs, id)
	return nil
}

// Files and users

func (s *Store) CreateFile(_ context.Context, f *model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.files[f.ID] = *f
	return nil
}

func (s *Store) GetFile(_ context.Context, tenantID, id string) (*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.d.files[id]
	if !ok || f.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &f, nil
}

func (s *Store) ListUsers(_ context.Context, tenantID string) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.User
	for _, u := range s.d.users {
		if u.TenantID == tenantID {
			out = append(out, &u)
		}
	}
	slices.SortFunc(out, func(a, b *model.User) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *Store) GetUser(_ context.Context, tenantID, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.d.users[id]
	if !ok || u.TenantID != tenantID {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}
