package model

import (
	"errors"
	"testing"
)

func TestResourceType_IsValid(t *testing.T) {
	for _, tc := range []struct {
		rt   ResourceType
		want bool
	}{
		{ResourceTypePurchase, true},
		{ResourceTypeLine, true},
		{ResourceTypeStep, true},
		{ResourceType(""), false},
		{ResourceType("purchase"), false},
		{ResourceType("Widget"), false},
	} {
		if got := tc.rt.IsValid(); got != tc.want {
			t.Errorf("ResourceType(%q).IsValid() = %v, want %v", tc.rt, got, tc.want)
		}
	}
}

func TestResourceTypes_AllValid(t *testing.T) {
	seen := make(map[ResourceType]bool)
	for _, rt := range ResourceTypes {
		if !rt.IsValid() {
			t.Errorf("%q listed but not valid", rt)
		}
		if seen[rt] {
			t.Errorf("%q listed twice", rt)
		}
		seen[rt] = true
	}
	if len(seen) != 9 {
		t.Errorf("got %d record types, want 9", len(seen))
	}
}

func TestLayer_IsValid(t *testing.T) {
	for _, tc := range []struct {
		layer Layer
		want  bool
	}{
		{LayerMerged, true},
		{LayerSystem, true},
		{LayerCustom, true},
		{Layer(""), false},
		{Layer("tenant"), false},
	} {
		if got := tc.layer.IsValid(); got != tc.want {
			t.Errorf("Layer(%q).IsValid() = %v, want %v", tc.layer, got, tc.want)
		}
	}
}

func TestStatusTemplate(t *testing.T) {
	for _, tc := range []struct {
		rt        ResourceType
		wantField string
		wantDraft string
		wantOK    bool
	}{
		{ResourceTypePurchase, TemplatePurchaseStatus, OptionPurchaseDraft, true},
		{ResourceTypeBill, TemplateBillStatus, OptionBillDraft, true},
		{ResourceTypeJob, TemplateJobStatus, OptionJobDraft, true},
		{ResourceTypeStep, TemplateStepStatus, OptionStepDraft, true},
		{ResourceTypeVendor, "", "", false},
		{ResourceTypeLine, "", "", false},
	} {
		field, draft, ok := StatusTemplate(tc.rt)
		if field != tc.wantField || draft != tc.wantDraft || ok != tc.wantOK {
			t.Errorf("StatusTemplate(%s) = (%q, %q, %v), want (%q, %q, %v)",
				tc.rt, field, draft, ok, tc.wantField, tc.wantDraft, tc.wantOK)
		}
	}
}

func TestErrors_Is(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		target error
	}{
		{"FieldNotFound", &FieldNotFoundError{FieldID: "fld-1", ResourceType: ResourceTypeBill}, ErrFieldNotFound},
		{"Duplicate", &DuplicateResourceError{ResourceType: ResourceTypeVendor, Value: "Acme"}, ErrDuplicateResource},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if !errors.Is(tc.err, tc.target) {
				t.Fatalf("errors.Is(%v, %v) = false", tc.err, tc.target)
			}
			if errors.Is(tc.err, ErrNotFound) {
				t.Fatalf("%v should not match ErrNotFound", tc.err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	ve := &ValidationError{}
	if ve.ErrOrNil() != nil {
		t.Fatal("empty ValidationError should be nil")
	}
	ve.Add("Delivery Date", "must be on or after %s", "Start Date")
	ve.Add("name", "is required")

	err := ve.ErrOrNil()
	if err == nil {
		t.Fatal("expected an error")
	}
	want := "validation failed: Delivery Date: must be on or after Start Date; name: is required"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidate_UsesJSONNames(t *testing.T) {
	err := Validate(CostDraft{Value: 5})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(ve.Errors) != 1 || ve.Errors[0].Field != "name" {
		t.Fatalf("errors = %+v, want one error on name", ve.Errors)
	}
	if err := Validate(CostDraft{Name: "Freight", Value: 5}); err != nil {
		t.Fatalf("valid draft: %v", err)
	}
}
