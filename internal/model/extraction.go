package model

// Extraction is a proposal produced by a document-extraction collaborator.
// Fields are matched by template identifier first, then by name; proposals
// the record's schema cannot hold are skipped.
type Extraction struct {
	Fields     []ExtractedField `json:"fields,omitempty"`
	VendorName string           `json:"vendorName,omitempty"`
	Costs      []CostDraft      `json:"costs,omitempty"`
	Lines      []ExtractedLine  `json:"lines,omitempty"`
}

// ExtractedField is one proposed value.
type ExtractedField struct {
	Template string     `json:"template,omitempty"`
	Name     string     `json:"name,omitempty"`
	Value    ValueInput `json:"value"`
}

// ExtractedLine is one proposed Line of a document.
type ExtractedLine struct {
	Fields []ExtractedField `json:"fields"`
}

// Resolve finds the schema field an extracted value targets.
func (e ExtractedField) Resolve(s *Schema) (*Field, bool) {
	if e.Template != "" {
		if f, ok := s.FieldByTemplate(e.Template); ok {
			return f, true
		}
	}
	if e.Name != "" {
		return s.FieldByName(e.Name)
	}
	return nil, false
}
