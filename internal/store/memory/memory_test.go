package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range []*model.Field{
		{ID: "fld-name", TenantID: "tn-1", Name: "Name", Type: model.FieldTypeText, TemplateID: model.TemplateName},
		{ID: "fld-tags", TenantID: "tn-1", Name: "Tags", Type: model.FieldTypeMultiSelect,
			Options: []model.Option{{ID: "opt-a", Name: "A"}, {ID: "opt-b", Name: "B"}}},
	} {
		f.CreatedAt = now.Add(time.Duration(i) * time.Second)
		if err := s.CreateField(ctx, f); err != nil {
			t.Fatalf("CreateField: %v", err)
		}
	}
	err := s.SaveSchema(ctx, &model.Schema{
		TenantID: "tn-1", ResourceType: model.ResourceTypeVendor, Layer: model.LayerSystem,
		Fields: []model.Field{{ID: "fld-name"}, {ID: "fld-tags"}},
	})
	if err != nil {
		t.Fatalf("SaveSchema: %v", err)
	}
}

func addVendor(t *testing.T, s *Store, id string, key int, name string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateResource(ctx, &model.Resource{ID: id, TenantID: "tn-1", Type: model.ResourceTypeVendor, Key: key}); err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	if err := s.WriteValue(ctx, id, model.ResourceField{FieldID: "fld-name", Value: model.TextValue(name)}); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
}

func TestRunInTransaction_RollsBack(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateResource(ctx, &model.Resource{ID: "res-1", TenantID: "tn-1", Type: model.ResourceTypeVendor, Key: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if _, err := s.GetResource(ctx, "tn-1", "res-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("resource survived rollback: %v", err)
	}
}

func TestNextKey(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme")
	addVendor(t, s, "res-2", 2, "Globex")

	key, err := s.NextKey(context.Background(), "tn-1", model.ResourceTypeVendor)
	if err != nil {
		t.Fatal(err)
	}
	if key != 3 {
		t.Errorf("key = %d, want 3", key)
	}
	if err := s.CreateResource(context.Background(), &model.Resource{ID: "res-3", TenantID: "tn-1", Type: model.ResourceTypeVendor, Key: 2}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate key err = %v, want ErrConflict", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme")

	if _, err := s.GetResource(context.Background(), "tn-other", "res-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("cross-tenant read err = %v, want sql.ErrNoRows", err)
	}
}

func TestNameTaken(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme")
	ctx := context.Background()

	for _, tc := range []struct {
		value, exclude string
		want           bool
	}{
		{"acme", "", true},
		{"  ACME ", "res-2", true},
		{"Acme", "res-1", false},
		{"Globex", "", false},
	} {
		got, err := s.NameTaken(ctx, "tn-1", model.ResourceTypeVendor, "fld-name", tc.value, tc.exclude)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("NameTaken(%q, exclude %q) = %v, want %v", tc.value, tc.exclude, got, tc.want)
		}
	}
}

func TestSetOptions_ClearsRemovedValues(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme")
	ctx := context.Background()

	if err := s.WriteValue(ctx, "res-1", model.ResourceField{FieldID: "fld-tags", Value: model.Value{OptionIDs: []string{"opt-a", "opt-b"}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetOptions(ctx, "fld-tags", []model.Option{{ID: "opt-b", Name: "B"}}); err != nil {
		t.Fatal(err)
	}
	r, err := s.GetResource(ctx, "tn-1", "res-1")
	if err != nil {
		t.Fatal(err)
	}
	if got := r.Value("fld-tags").OptionIDs; len(got) != 1 || got[0] != "opt-b" {
		t.Errorf("option ids = %v, want [opt-b]", got)
	}
}

func TestSearchResources(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme Industrial")
	addVendor(t, s, "res-2", 2, "Acme")
	addVendor(t, s, "res-3", 3, "Globex")
	ctx := context.Background()

	matches, err := s.SearchResources(ctx, "tn-1", model.ResourceTypeVendor, []string{"fld-name"}, "acme", false, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ResourceID != "res-2" {
		t.Errorf("fuzzy matches = %+v", matches)
	}

	matches, err = s.SearchResources(ctx, "tn-1", model.ResourceTypeVendor, []string{"fld-name"}, "ACME", true, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].ResourceID != "res-2" {
		t.Errorf("exact matches = %+v", matches)
	}
}

func TestQueryResources(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Globex")
	addVendor(t, s, "res-2", 2, "Acme")
	addVendor(t, s, "res-3", 3, "Initech")
	ctx := context.Background()

	schema, err := s.GetSchema(ctx, "tn-1", model.ResourceTypeVendor, model.LayerMerged)
	if err != nil {
		t.Fatal(err)
	}
	filter, err := query.ParseFilter([]byte(`{"!=":[{"var":"Name"},"Initech"]}`))
	if err != nil {
		t.Fatal(err)
	}
	ids, err := s.QueryResources(ctx, "tn-1", query.Request{
		Schema: schema,
		Filter: filter,
		Sort:   []query.Sort{{Field: "Name", Dir: query.Asc}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "res-2" || ids[1] != "res-1" {
		t.Errorf("ids = %v, want [res-2 res-1]", ids)
	}
}

func TestDeleteField_RemovesFromSchemaAndValues(t *testing.T) {
	s := New()
	seed(t, s)
	addVendor(t, s, "res-1", 1, "Acme")
	ctx := context.Background()

	if err := s.DeleteField(ctx, "tn-1", "fld-name"); err != nil {
		t.Fatal(err)
	}
	schema, _ := s.GetSchema(ctx, "tn-1", model.ResourceTypeVendor, model.LayerSystem)
	if len(schema.Fields) != 1 || schema.Fields[0].ID != "fld-tags" {
		t.Errorf("schema fields = %+v", schema.Fields)
	}
	r, _ := s.GetResource(ctx, "tn-1", "res-1")
	if _, ok := r.Field("fld-name"); ok {
		t.Error("value of deleted field still present")
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity("Acme", "acme"); got != 1 {
		t.Errorf("similarity(Acme, acme) = %v, want 1", got)
	}
	if got := similarity("Acme", "Globex"); got != 0 {
		t.Errorf("similarity(Acme, Globex) = %v, want 0", got)
	}
	if got := similarity("", "x"); got != 0 {
		t.Errorf("similarity(\"\", x) = %v", got)
	}
}
