package store

import (
	"context"
	"errors"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
)

// ErrConflict is returned when a write collides with a uniqueness
// constraint, such as a second Field with the same template identifier.
var ErrConflict = errors.New("conflict")

// Store defines the persistence interface for the record engine.
// Lookups of absent rows return sql.ErrNoRows (or an error wrapping it).
type Store interface {
	// Fields and options
	ListFields(ctx context.Context, tenantID string) ([]*model.Field, error)
	GetField(ctx context.Context, tenantID, id string) (*model.Field, error)
	CreateField(ctx context.Context, field *model.Field) error
	UpdateField(ctx context.Context, field *model.Field) error
	DeleteField(ctx context.Context, tenantID, id string) error
	FieldInUse(ctx context.Context, tenantID, id string) (bool, error)
	SetOptions(ctx context.Context, fieldID string, options []model.Option) error

	// Schema layers
	GetSchema(ctx context.Context, tenantID string, resourceType model.ResourceType, layer model.Layer) (*model.Schema, error)
	SaveSchema(ctx context.Context, schema *model.Schema) error

	// Resources and values
	NextKey(ctx context.Context, tenantID string, resourceType model.ResourceType) (int, error)
	CreateResource(ctx context.Context, resource *model.Resource) error
	GetResource(ctx context.Context, tenantID, id string) (*model.Resource, error)
	GetResourceByKey(ctx context.Context, tenantID string, resourceType model.ResourceType, key int) (*model.Resource, error)
	DeleteResource(ctx context.Context, tenantID, id string) error
	WriteValue(ctx context.Context, resourceID string, field model.ResourceField) error
	// ListReferencing returns the resources holding a Resource-kind value
	// pointing at targetID. Empty resourceType or fieldID match any.
	ListReferencing(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error)
	NameTaken(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, value, excludeID string) (bool, error)
	SearchResources(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldIDs []string, input string, exact bool, limit int) ([]model.ResourceMatch, error)
	QueryResources(ctx context.Context, tenantID string, req query.Request) ([]string, error)

	// Costs
	ListCosts(ctx context.Context, resourceID string) ([]model.Cost, error)
	GetCost(ctx context.Context, id string) (*model.Cost, error)
	CreateCost(ctx context.Context, cost *model.Cost) error
	UpdateCost(ctx context.Context, cost *model.Cost) error
	DeleteCost(ctx context.Context, id string) error

	// Files and users
	CreateFile(ctx context.Context, file *model.File) error
	GetFile(ctx context.Context, tenantID, id string) (*model.File, error)
	ListUsers(ctx context.Context, tenantID string) ([]*model.User, error)
	GetUser(ctx context.Context, tenantID, id string) (*model.User, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
