package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/query"
	"github.com/chriskuech/supplyside-sub001/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var fieldRowColumns = []string{
	"id", "tenant_id", "template_id", "name", "description", "type",
	"resource_type", "is_required", "is_derived", "default_value", "created_at",
}

var resourceRowColumns = []string{"id", "tenant_id", "type", "key", "template_id", "created_at"}

var valueRowColumns = []string{
	"id", "name", "type", "template_id", "string", "number", "boolean",
	"date", "option_id", "user_id", "file_id", "ref_resource_id", "address", "contact",
	"option_ids", "file_ids",
}

var costRowColumns = []string{"id", "resource_id", "name", "is_percentage", "value", "source_id", "created_at"}

func TestScanHelpers(t *testing.T) {
	if nullTimePtr(nil).Valid {
		t.Error("nullTimePtr(nil) should be invalid")
	}
	now := time.Now()
	if nt := nullTimePtr(&now); !nt.Valid || !nt.Time.Equal(now) {
		t.Errorf("nullTimePtr(now) = %v", nt)
	}

	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("hello"); !ns.Valid || ns.String != "hello" {
		t.Errorf("nullString(\"hello\") = %v", ns)
	}

	empty := ""
	if ns := nullStringPtr(&empty); !ns.Valid {
		t.Error("nullStringPtr(&\"\") should be valid")
	}
	if nullStringPtr(nil).Valid {
		t.Error("nullStringPtr(nil) should be invalid")
	}

	if v, err := jsonbValue[model.Address](nil); err != nil || v != nil {
		t.Errorf("jsonbValue(nil) = %v, %v", v, err)
	}
	v, err := jsonbValue(&model.Address{City: "Oslo"})
	if err != nil {
		t.Fatalf("jsonbValue: %v", err)
	}
	if got := string(v.([]byte)); got != `{"city":"Oslo"}` {
		t.Errorf("jsonbValue = %s", got)
	}
}

func TestNextKey(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs("tn-1", "Purchase").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(key\\), 0\\) \\+ 1 FROM resources").WithArgs("tn-1", "Purchase").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow(4))

	key, err := q.NextKey(context.Background(), "tn-1", model.ResourceTypePurchase)
	if err != nil {
		t.Fatalf("NextKey: %v", err)
	}
	if key != 4 {
		t.Errorf("key = %d, want 4", key)
	}
}

func TestCreateField(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	now := time.Now().UTC()

	f := &model.Field{
		ID: "fld-1", TenantID: "tn-1", TemplateID: model.TemplatePurchaseStatus,
		Name: "Status", Type: model.FieldTypeSelect, CreatedAt: now,
		Options: []model.Option{
			{ID: "opt-1", Name: "Draft", TemplateID: model.OptionPurchaseDraft},
			{ID: "opt-2", Name: "Ordered"},
		},
	}

	mock.ExpectExec("INSERT INTO fields").
		WithArgs("fld-1", "tn-1", sqlmock.AnyArg(), "Status", "", "Select",
			sqlmock.AnyArg(), false, false, sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM options WHERE field_id = \\$1").
		WithArgs("fld-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO options").
		WithArgs("opt-1", "fld-1", sqlmock.AnyArg(), "Draft", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO options").
		WithArgs("opt-2", "fld-1", sqlmock.AnyArg(), "Ordered", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := q.CreateField(context.Background(), f); err != nil {
		t.Fatalf("CreateField: %v", err)
	}
}

func TestCreateField_TemplateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectExec("INSERT INTO fields").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := q.CreateField(context.Background(), &model.Field{ID: "fld-1", TenantID: "tn-1", TemplateID: "name", Type: model.FieldTypeText})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestGetResource(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	now := time.Now().UTC()
	due := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM resources r WHERE r.tenant_id = \\$1 AND r.id = \\$2").
		WithArgs("tn-1", "res-1").
		WillReturnRows(sqlmock.NewRows(resourceRowColumns).AddRow("res-1", "tn-1", "Purchase", 7, nil, now))
	mock.ExpectQuery("SELECT .+ FROM resource_values rv").WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(valueRowColumns).
			AddRow("fld-num", "PO Number", "Text", nil, "7", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil).
			AddRow("fld-due", "Payment Due Date", "Date", nil, nil, nil, nil, due, nil, nil, nil, nil, nil, nil, nil, nil).
			AddRow("fld-tags", "Tags", "MultiSelect", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, "{opt-1,opt-2}", nil).
			AddRow("fld-ship", "Ship To", "Address", nil, nil, nil, nil, nil, nil, nil, nil, nil, []byte(`{"city":"Oslo"}`), nil, nil, nil))
	mock.ExpectQuery("SELECT .+ FROM costs WHERE resource_id = \\$1").WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows(costRowColumns).AddRow("cost-1", "res-1", "Freight", false, 25.0, "", now))

	r, err := q.GetResource(context.Background(), "tn-1", "res-1")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if r.Key != 7 || r.Type != model.ResourceTypePurchase {
		t.Errorf("resource = %+v", r)
	}
	if len(r.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(r.Fields))
	}
	if got := r.Value("fld-num"); got.String == nil || *got.String != "7" {
		t.Errorf("number value = %+v", got)
	}
	if got := r.Value("fld-due"); got.Date == nil || !got.Date.Equal(due) {
		t.Errorf("due value = %+v", got)
	}
	if got := r.Value("fld-tags").OptionIDs; len(got) != 2 || got[1] != "opt-2" {
		t.Errorf("tags = %v", got)
	}
	if got := r.Value("fld-ship"); got.Address == nil || got.Address.City != "Oslo" {
		t.Errorf("address = %+v", got)
	}
	if len(r.Costs) != 1 || r.Costs[0].Value != 25 {
		t.Errorf("costs = %+v", r.Costs)
	}
}

func TestGetResource_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectQuery("SELECT .+ FROM resources r").WithArgs("tn-1", "missing").
		WillReturnRows(sqlmock.NewRows(resourceRowColumns))

	_, err := q.GetResource(context.Background(), "tn-1", "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteResource_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectExec("DELETE FROM resources").WithArgs("tn-1", "res-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := q.DeleteResource(context.Background(), "tn-1", "res-1"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestWriteValue_ReplacesListRows(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectExec("INSERT INTO resource_values").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM resource_value_options").WithArgs("res-1", "fld-tags").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO resource_value_options").WithArgs("res-1", "fld-tags", "opt-1", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO resource_value_options").WithArgs("res-1", "fld-tags", "opt-2", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM resource_value_files").WithArgs("res-1", "fld-tags").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.WriteValue(context.Background(), "res-1", model.ResourceField{
		FieldID: "fld-tags",
		Type:    model.FieldTypeMultiSelect,
		Value:   model.Value{OptionIDs: []string{"opt-1", "opt-2"}},
	})
	if err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
}

func TestGetSchema_NeverSaved(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	for _, layer := range []string{"system", "custom"} {
		id := "tn-1:Vendor:" + layer
		mock.ExpectQuery("SELECT .+ FROM schema_fields sf").WithArgs(id).
			WillReturnRows(sqlmock.NewRows(fieldRowColumns))
		mock.ExpectQuery("SELECT s.id, s.name, sf.field_id FROM sections s").WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "field_id"}))
	}

	s, err := q.GetSchema(context.Background(), "tn-1", model.ResourceTypeVendor, model.LayerMerged)
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	if s.Layer != model.LayerMerged || len(s.Fields) != 0 {
		t.Errorf("schema = %+v", s)
	}
}

func TestSaveSchema(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}
	id := "tn-1:Vendor:custom"

	mock.ExpectExec("INSERT INTO schemas").WithArgs(id, "tn-1", "Vendor", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM schema_fields").WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_fields").WithArgs(id, "fld-a", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO schema_fields").WithArgs(id, "fld-b", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM sections").WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO sections").WithArgs("sec-1", id, "Details", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO section_fields").WithArgs("sec-1", "fld-b", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.SaveSchema(context.Background(), &model.Schema{
		TenantID:     "tn-1",
		ResourceType: model.ResourceTypeVendor,
		Layer:        model.LayerCustom,
		Fields:       []model.Field{{ID: "fld-a"}, {ID: "fld-b"}},
		Sections:     []model.Section{{ID: "sec-1", Name: "Details", FieldIDs: []string{"fld-b"}}},
	})
	if err != nil {
		t.Fatalf("SaveSchema: %v", err)
	}
}

func TestSaveSchema_RejectsMerged(t *testing.T) {
	db, _ := newMockDB(t)
	q := queries{db: db}
	if err := q.SaveSchema(context.Background(), &model.Schema{Layer: model.LayerMerged}); err == nil {
		t.Fatal("expected error saving merged layer")
	}
}

func TestQueryResources(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	schema := &model.Schema{
		TenantID:     "tn-1",
		ResourceType: model.ResourceTypeVendor,
		Fields:       []model.Field{{ID: "fld-name", Name: "Name", Type: model.FieldTypeText}},
	}
	filter, err := query.ParseFilter([]byte(`{"==":[{"var":"Name"},"Acme"]}`))
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}

	mock.ExpectQuery("SELECT p.id FROM").WithArgs("tn-1", "Vendor", "fld-name", "Acme").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("res-2").AddRow("res-1"))

	ids, err := q.QueryResources(context.Background(), "tn-1", query.Request{Schema: schema, Filter: filter})
	if err != nil {
		t.Fatalf("QueryResources: %v", err)
	}
	if len(ids) != 2 || ids[0] != "res-2" {
		t.Errorf("ids = %v", ids)
	}
}

func TestQueryResources_UnknownFieldRunsNoSQL(t *testing.T) {
	db, _ := newMockDB(t)
	q := queries{db: db}

	schema := &model.Schema{TenantID: "tn-1", ResourceType: model.ResourceTypeVendor}
	filter, _ := query.ParseFilter([]byte(`{"==":[{"var":"Ghost"},"x"]}`))

	_, err := q.QueryResources(context.Background(), "tn-1", query.Request{Schema: schema, Filter: filter})
	var unknown *query.UnknownFieldError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want UnknownFieldError", err)
	}
}

func TestRunInTransaction(t *testing.T) {
	for _, tc := range []struct {
		name    string
		fnErr   error
		wantErr bool
	}{
		{"commit", nil, false},
		{"rollback", errors.New("boom"), true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewFromDB(db)

			mock.ExpectBegin()
			if tc.fnErr != nil {
				mock.ExpectRollback()
			} else {
				mock.ExpectCommit()
			}

			err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
				return tx.RunInTransaction(context.Background(), func(store.Store) error { return tc.fnErr })
			})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestUpdateCost_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	q := queries{db: db}

	mock.ExpectExec("UPDATE costs SET").WithArgs("cost-1", "Tax", true, 8.5).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := q.UpdateCost(context.Background(), &model.Cost{ID: "cost-1", Name: "Tax", IsPercentage: true, Value: 8.5})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestRunInTransaction_RollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewFromDB(db)
	mock.ExpectBegin()
	mock.ExpectRollback()

	defer func() {
		if recover() == nil {
			t.Fatal("expected the panic to propagate")
		}
	}()
	_ = s.RunInTransaction(context.Background(), func(store.Store) error { panic("boom") })
}
