package model

// Layer selects which part of a (tenant, record type) schema to read.
type Layer string

const (
	LayerMerged Layer = "merged"
	LayerSystem Layer = "system"
	LayerCustom Layer = "custom"
)

// IsValid checks whether the layer is a known value.
func (l Layer) IsValid() bool {
	switch l {
	case LayerMerged, LayerSystem, LayerCustom:
		return true
	}
	return false
}

// Section is a named, ordered group of schema fields.
type Section struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	FieldIDs []string `json:"fieldIds"`
}

// Schema is the ordered field list of one record type for one tenant.
// Fields is the full ordered list; Sections group a subset of it and the
// rest are loose.
type Schema struct {
	TenantID     string       `json:"tenantId"`
	ResourceType ResourceType `json:"resourceType"`
	Layer        Layer        `json:"layer"`
	Fields       []Field      `json:"fields"`
	Sections     []Section    `json:"sections"`
}

// MergeSchemas combines the system and tenant layers: system fields first,
// duplicate field IDs dropped in favor of their first occurrence.
func MergeSchemas(system, custom *Schema) *Schema {
	merged := &Schema{
		TenantID:     system.TenantID,
		ResourceType: system.ResourceType,
		Layer:        LayerMerged,
	}
	seen := make(map[string]bool)
	for _, layer := range []*Schema{system, custom} {
		if layer == nil {
			continue
		}
		for _, f := range layer.Fields {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			merged.Fields = append(merged.Fields, f)
		}
	}
	sectioned := make(map[string]bool)
	for _, layer := range []*Schema{system, custom} {
		if layer == nil {
			continue
		}
		for _, sec := range layer.Sections {
			out := Section{ID: sec.ID, Name: sec.Name}
			for _, id := range sec.FieldIDs {
				if seen[id] && !sectioned[id] {
					sectioned[id] = true
					out.FieldIDs = append(out.FieldIDs, id)
				}
			}
			merged.Sections = append(merged.Sections, out)
		}
	}
	return merged
}

// Field looks up a schema field by ID.
func (s *Schema) Field(id string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].ID == id {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FieldByTemplate looks up a schema field by template identifier.
func (s *Schema) FieldByTemplate(templateID string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].TemplateID != "" && s.Fields[i].TemplateID == templateID {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// FieldByName looks up a schema field by its tenant-facing name. Names
// are unique within a merged schema.
func (s *Schema) FieldByName(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// DuplicateName returns a name carried by more than one field.
func (s *Schema) DuplicateName() (string, bool) {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			return f.Name, true
		}
		seen[f.Name] = true
	}
	return "", false
}

// Implements reports whether the schema has a field for every template.
func (s *Schema) Implements(templateIDs ...string) bool {
	for _, t := range templateIDs {
		if _, ok := s.FieldByTemplate(t); !ok {
			return false
		}
	}
	return true
}

// LooseFields returns the fields that belong to no section, in order.
func (s *Schema) LooseFields() []Field {
	inSection := make(map[string]bool)
	for _, sec := range s.Sections {
		for _, id := range sec.FieldIDs {
			inSection[id] = true
		}
	}
	var out []Field
	for _, f := range s.Fields {
		if !inSection[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// SchemaDraft replaces the custom layer of a schema.
type SchemaDraft struct {
	FieldIDs []string       `json:"fieldIds"`
	Sections []SectionDraft `json:"sections,omitempty" validate:"dive"`
}

// SectionDraft is one section of a SchemaDraft.
type SectionDraft struct {
	Name     string   `json:"name" validate:"required,max=200"`
	FieldIDs []string `json:"fieldIds"`
}
