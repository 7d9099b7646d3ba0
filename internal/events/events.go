package events

import (
	"context"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// Subjects of the record events.
const (
	TopicResourceCreated = "records.resource.created"
	TopicResourceUpdated = "records.resource.updated"
	TopicResourceDeleted = "records.resource.deleted"
	TopicTemplateApplied = "records.template.applied"

	// TopicAll matches every record event.
	TopicAll = "records.>"
)

type ResourceCreated struct {
	Resource *model.Resource `json:"resource"`
}

type ResourceUpdated struct {
	Resource *model.Resource `json:"resource"`
	Changes  map[string]any  `json:"changes"` // field name -> new display value
}

type ResourceDeleted struct {
	TenantID   string             `json:"tenant_id"`
	ResourceID string             `json:"resource_id"`
	Type       model.ResourceType `json:"type"`
}

type TemplateApplied struct {
	TenantID      string `json:"tenant_id"`
	FieldsCreated int    `json:"fields_created"`
	FieldsUpdated int    `json:"fields_updated"`
	FieldsDeleted int    `json:"fields_deleted"`
	SchemasSaved  int    `json:"schemas_saved"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// TenantOf returns the tenant a record event belongs to, or "" for
// values that are not record events.
func TenantOf(event any) string {
	switch e := event.(type) {
	case ResourceCreated:
		if e.Resource != nil {
			return e.Resource.TenantID
		}
	case ResourceUpdated:
		if e.Resource != nil {
			return e.Resource.TenantID
		}
	case ResourceDeleted:
		return e.TenantID
	case TemplateApplied:
		return e.TenantID
	}
	return ""
}
