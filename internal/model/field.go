package model

import "time"

// Template identifiers of built-in Fields the derivation rules and the
// relation linker address.
const (
	TemplateName           = "name"
	TemplateNumber         = "number"
	TemplatePurchaseStatus = "purchase_status"
	TemplateBillStatus     = "bill_status"
	TemplateJobStatus      = "job_status"
	TemplateStepStatus     = "step_status"

	TemplateVendor   = "vendor"
	TemplateCustomer = "customer"
	TemplateJob      = "job"
	TemplatePart     = "part"
	TemplateItem     = "item"
	TemplatePurchase = "purchase"
	TemplateBill     = "bill"

	TemplateUnitCost      = "unit_cost"
	TemplateQuantity      = "quantity"
	TemplateTotalCost     = "total_cost"
	TemplateSubtotalCost  = "subtotal_cost"
	TemplateItemizedCosts = "itemized_costs"

	TemplatePaymentTerms   = "payment_terms"
	TemplatePaymentMethod  = "payment_method"
	TemplateInvoiceDate    = "invoice_date"
	TemplateNeedDate       = "need_date"
	TemplatePaymentDueDate = "payment_due_date"
	TemplateIssuedDate     = "issued_date"

	TemplateStartDate      = "start_date"
	TemplateProductionDays = "production_days"
	TemplateDeliveryDate   = "delivery_date"
	TemplateDateCompleted  = "date_completed"
	TemplateOperator       = "operator"

	TemplatePartModel = "part_model"
	TemplateThumbnail = "thumbnail"
)

// Option template identifiers referenced by the derivation rules.
const (
	OptionPurchaseDraft   = "purchase_draft"
	OptionPurchaseOrdered = "purchase_ordered"
	OptionBillDraft       = "bill_draft"
	OptionJobDraft        = "job_draft"
	OptionJobInvoiced     = "job_invoiced"
	OptionStepDraft       = "step_draft"
	OptionStepInProcess   = "step_in_process"
	OptionStepCompleted   = "step_completed"
)

// StatusTemplate returns the status Field template of a status-bearing
// type and the template of its initial option.
func StatusTemplate(t ResourceType) (field, draft string, ok bool) {
	switch t {
	case ResourceTypePurchase:
		return TemplatePurchaseStatus, OptionPurchaseDraft, true
	case ResourceTypeBill:
		return TemplateBillStatus, OptionBillDraft, true
	case ResourceTypeJob:
		return TemplateJobStatus, OptionJobDraft, true
	case ResourceTypeStep:
		return TemplateStepStatus, OptionStepDraft, true
	}
	return "", "", false
}

// Field is a tenant-scoped typed attribute declaration.
type Field struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenantId"`
	TemplateID   string       `json:"templateId,omitempty"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Type         FieldType    `json:"type"`
	ResourceType ResourceType `json:"resourceType,omitempty"` // target type of Resource fields
	IsRequired   bool         `json:"isRequired,omitempty"`
	IsDerived    bool         `json:"isDerived,omitempty"` // written by the derivation pipeline
	DefaultValue Value        `json:"defaultValue"`
	Options      []Option     `json:"options,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// IsSystem reports whether the field was seeded from a built-in template.
func (f *Field) IsSystem() bool {
	return f.TemplateID != ""
}

// Option looks up an option by ID.
func (f *Field) Option(id string) (Option, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// OptionByTemplate looks up an option by template identifier.
func (f *Field) OptionByTemplate(templateID string) (Option, bool) {
	for _, o := range f.Options {
		if o.TemplateID != "" && o.TemplateID == templateID {
			return o, true
		}
	}
	return Option{}, false
}

// Option is a named, ordered choice of a Select or MultiSelect field.
type Option struct {
	ID         string `json:"id"`
	FieldID    string `json:"fieldId"`
	TemplateID string `json:"templateId,omitempty"`
	Name       string `json:"name"`
	Order      int    `json:"order"`
}

// OptionOp is the kind of an option patch.
type OptionOp string

const (
	OptionAdd    OptionOp = "add"
	OptionUpdate OptionOp = "update"
	OptionRemove OptionOp = "remove"
)

// OptionPatch adds, renames or removes one option. The order of a patch
// list becomes the new option order.
type OptionPatch struct {
	Op   OptionOp `json:"op" validate:"required,oneof=add update remove"`
	ID   string   `json:"id,omitempty" validate:"required_unless=Op add"`
	Name string   `json:"name,omitempty" validate:"required_unless=Op remove"`
}

// FieldDraft holds the parameters of a new tenant field.
type FieldDraft struct {
	Name         string       `json:"name" validate:"required,max=200"`
	Description  string       `json:"description,omitempty"`
	Type         FieldType    `json:"type" validate:"required"`
	ResourceType ResourceType `json:"resourceType,omitempty"`
	IsRequired   bool         `json:"isRequired,omitempty"`
	DefaultValue *ValueInput  `json:"defaultValue,omitempty"`
	Options      []string     `json:"options,omitempty"`
}

// FieldPatch holds a partial update of a field; nil members stay as-is.
type FieldPatch struct {
	Name         *string       `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description  *string       `json:"description,omitempty"`
	ResourceType *ResourceType `json:"resourceType,omitempty"`
	IsRequired   *bool         `json:"isRequired,omitempty"`
	DefaultValue *ValueInput   `json:"defaultValue,omitempty"`
	Options      []OptionPatch `json:"options,omitempty" validate:"dive"`
}
