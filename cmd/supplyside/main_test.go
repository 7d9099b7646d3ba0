package main

import (
	"context"
	"testing"

	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/store/memory"
	"github.com/chriskuech/supplyside-sub001/internal/ui"
)

func purchaseSchema(t *testing.T) *model.Schema {
	t.Helper()
	ctx := context.Background()
	cat, err := catalog.New(memory.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cat.ApplyTemplate(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	s, err := cat.ReadSchema(ctx, "t1", model.ResourceTypePurchase, model.LayerMerged)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSchemaRows(t *testing.T) {
	ui.ForceNoColor()
	s := purchaseSchema(t)
	rows := schemaRows(s)
	if len(rows) != len(s.Fields) {
		t.Fatalf("got %d rows for %d fields", len(rows), len(s.Fields))
	}

	byName := make(map[string]ui.Row)
	for _, r := range rows {
		byName[r.Cells[1]] = r
	}
	total, ok := byName["Total Cost"]
	if !ok {
		t.Fatal("missing Total Cost row")
	}
	if !total.Muted {
		t.Error("derived fields should be muted")
	}
	if total.Cells[3] != model.TemplateTotalCost {
		t.Errorf("template = %q, want %q", total.Cells[3], model.TemplateTotalCost)
	}
	if vendor := byName["Vendor"]; vendor.Cells[2] != "Resource → Vendor" {
		t.Errorf("vendor type = %q, want the target type", vendor.Cells[2])
	}
}

func TestFormatEvent(t *testing.T) {
	ui.ForceNoColor()
	for _, tc := range []struct {
		name     string
		payload  string
		tenant   string
		want     string
		wantShow bool
	}{
		{
			name:     "Created",
			payload:  `{"resource":{"id":"res-1","tenantId":"t1","type":"Purchase","key":4}}`,
			want:     "t1 Purchase #4 res-1",
			wantShow: true,
		},
		{
			name:     "UpdatedWithChanges",
			payload:  `{"resource":{"id":"res-1","tenantId":"t1","type":"Bill","key":2},"changes":{"Payment Terms":30}}`,
			want:     `t1 Bill #2 res-1 {"Payment Terms":30}`,
			wantShow: true,
		},
		{
			name:     "Deleted",
			payload:  `{"tenant_id":"t1","resource_id":"res-9","type":"Line"}`,
			want:     "t1 res-9",
			wantShow: true,
		},
		{
			name:    "OtherTenant",
			payload: `{"tenant_id":"t2","resource_id":"res-9"}`,
			tenant:  "t1",
		},
		{
			name:     "NotJSON",
			payload:  `hello`,
			want:     "hello",
			wantShow: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, show := formatEvent([]byte(tc.payload), tc.tenant)
			if show != tc.wantShow {
				t.Fatalf("show = %v, want %v", show, tc.wantShow)
			}
			if got != tc.want {
				t.Fatalf("line = %q, want %q", got, tc.want)
			}
		})
	}
}
