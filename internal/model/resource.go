package model

import "time"

// Scope identifies the tenant a call acts on and the acting user, if any.
type Scope struct {
	TenantID string
	UserID   string
}

// Resource is a record instance holding one Value per schema Field.
type Resource struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenantId"`
	Type       ResourceType    `json:"type"`
	Key        int             `json:"key"`
	TemplateID string          `json:"templateId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	Fields     []ResourceField `json:"fields"`
	Costs      []Cost          `json:"costs"`
}

// ResourceField pairs a Field with its Value on one Resource.
type ResourceField struct {
	FieldID    string    `json:"fieldId"`
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	TemplateID string    `json:"templateId,omitempty"` // set when the value was seeded by a resource template
	Value      Value     `json:"value"`
}

// Field returns the ResourceField for a field ID.
func (r *Resource) Field(fieldID string) (*ResourceField, bool) {
	for i := range r.Fields {
		if r.Fields[i].FieldID == fieldID {
			return &r.Fields[i], true
		}
	}
	return nil, false
}

// Value returns the value of a field, or the empty value when absent.
func (r *Resource) Value(fieldID string) Value {
	if rf, ok := r.Field(fieldID); ok {
		return rf.Value
	}
	return Value{}
}

// Cost is an itemized charge on a document: a fixed amount, or a
// percentage of the document's subtotal. SourceID names the Cost a
// document link cloned it from.
type Cost struct {
	ID           string    `json:"id"`
	ResourceID   string    `json:"resourceId"`
	Name         string    `json:"name"`
	IsPercentage bool      `json:"isPercentage"`
	Value        float64   `json:"value"`
	SourceID     string    `json:"sourceId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CostPatch holds a partial update of a cost.
type CostPatch struct {
	Name         *string  `json:"name,omitempty"`
	IsPercentage *bool    `json:"isPercentage,omitempty"`
	Value        *float64 `json:"value,omitempty"`
}

// FieldInput is a wire write of one field.
type FieldInput struct {
	FieldID string     `json:"fieldId"`
	Value   ValueInput `json:"value"`
}

// FieldValue is an already-typed write of one field.
type FieldValue struct {
	FieldID string
	Value   Value
}

// File is the metadata of a stored blob. Values reference files by ID only.
type File struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	BlobKey     string    `json:"blobKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is an entry of the tenant's user directory.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// ResourceMatch is one ranked hit of a name-or-number lookup.
type ResourceMatch struct {
	ResourceID string  `json:"resourceId"`
	Key        int     `json:"key"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// ResourceDraft holds the parameters of a new Resource. When TemplateID
// is set the supplied values are marked system-managed.
type ResourceDraft struct {
	Type       ResourceType `json:"type"`
	Fields     []FieldInput `json:"fields,omitempty"`
	TemplateID string       `json:"templateId,omitempty"`
}

// CostDraft holds the parameters of a new Cost.
type CostDraft struct {
	Name         string  `json:"name" validate:"required,max=200"`
	IsPercentage bool    `json:"isPercentage"`
	Value        float64 `json:"value"`
	SourceID     string  `json:"-"`
}
