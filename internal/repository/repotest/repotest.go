// Package repotest builds a Repository over an in-memory store seeded with
// the built-in template set, for tests of the repository and the packages
// it drives.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chriskuech/supplyside-sub001/internal/blob"
	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/repository"
	"github.com/chriskuech/supplyside-sub001/internal/store/memory"
)

const (
	Tenant = "t1"
	UserID = "usr-ops"
)

// Now is the fixed clock of every Env.
var Now = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

// Env is a seeded repository with helpers addressing fields by template.
type Env struct {
	T       *testing.T
	Ctx     context.Context
	Repo    *repository.Repository
	Store   *memory.Store
	Catalog *catalog.Catalog
	Events  *events.Recorder
	Blobs   *blob.MemoryStore
	Scope   model.Scope
}

// New returns an Env for tenant Tenant acting as UserID.
func New(t *testing.T) *Env {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	s.AddUser(model.User{ID: UserID, TenantID: Tenant, Name: "Ops", Email: "ops@example.com"})

	cat, err := catalog.New(s, nil)
	require.NoError(t, err)
	_, err = cat.ApplyTemplate(ctx, Tenant)
	require.NoError(t, err)

	rec := &events.Recorder{}
	blobs := blob.NewMemoryStore()
	repo := repository.New(s, rec, blobs)
	repo.SetClock(func() time.Time { return Now })

	return &Env{
		T:       t,
		Ctx:     ctx,
		Repo:    repo,
		Store:   s,
		Catalog: cat,
		Events:  rec,
		Blobs:   blobs,
		Scope:   model.Scope{TenantID: Tenant, UserID: UserID},
	}
}

// Field returns the schema field of a type with the given template.
func (e *Env) Field(rt model.ResourceType, template string) *model.Field {
	e.T.Helper()
	s, err := e.Repo.Schema(e.Ctx, Tenant, rt)
	require.NoError(e.T, err)
	f, ok := s.FieldByTemplate(template)
	require.True(e.T, ok, "%s has no %s field", rt, template)
	return f
}

// Option returns the ID of a template option of a template field.
func (e *Env) Option(rt model.ResourceType, template, option string) string {
	e.T.Helper()
	o, ok := e.Field(rt, template).OptionByTemplate(option)
	require.True(e.T, ok, "%s.%s has no option %s", rt, template, option)
	return o.ID
}

// In builds an input for a template field.
func (e *Env) In(rt model.ResourceType, template string, v model.ValueInput) model.FieldInput {
	e.T.Helper()
	return model.FieldInput{FieldID: e.Field(rt, template).ID, Value: v}
}

// Create creates a Resource and fails the test on error.
func (e *Env) Create(rt model.ResourceType, inputs ...model.FieldInput) *model.Resource {
	e.T.Helper()
	res, err := e.Repo.Create(e.Ctx, e.Scope, model.ResourceDraft{Type: rt, Fields: inputs})
	require.NoError(e.T, err)
	return res
}

// Update updates a Resource and fails the test on error.
func (e *Env) Update(id string, inputs ...model.FieldInput) *model.Resource {
	e.T.Helper()
	res, err := e.Repo.Update(e.Ctx, e.Scope, id, inputs)
	require.NoError(e.T, err)
	return res
}

// Read reads a Resource and fails the test on error.
func (e *Env) Read(id string) *model.Resource {
	e.T.Helper()
	res, err := e.Repo.Read(e.Ctx, Tenant, id)
	require.NoError(e.T, err)
	return res
}

// Value returns the value of a template field of a Resource.
func (e *Env) Value(res *model.Resource, template string) model.Value {
	e.T.Helper()
	return res.Value(e.Field(res.Type, template).ID)
}

// Number returns a numeric template value, failing when it is empty.
func (e *Env) Number(res *model.Resource, template string) float64 {
	e.T.Helper()
	v := e.Value(res, template)
	require.NotNil(e.T, v.Number, "%s %s is empty", res.Type, template)
	return *v.Number
}

// Date returns a date template value, failing when it is empty.
func (e *Env) Date(res *model.Resource, template string) time.Time {
	e.T.Helper()
	v := e.Value(res, template)
	require.NotNil(e.T, v.Date, "%s %s is empty", res.Type, template)
	return *v.Date
}

// Day returns midnight UTC of a calendar day.
func Day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
