package derive

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

// pullIn declares parent fields copied onto a child when its link to the
// parent changes. Once-only pulls fill empty child values and never
// overwrite.
type pullIn struct {
	child  model.ResourceType
	link   string
	fields []string
	once   bool
}

var pullIns = []pullIn{
	{model.ResourceTypePart, model.TemplateJob, []string{model.TemplateCustomer, model.TemplateNeedDate}, false},
	{model.ResourceTypePurchase, model.TemplateVendor, []string{model.TemplatePaymentTerms, model.TemplatePaymentMethod}, true},
	{model.ResourceTypeBill, model.TemplateVendor, []string{model.TemplatePaymentTerms, model.TemplatePaymentMethod}, true},
	{model.ResourceTypeJob, model.TemplateCustomer, []string{model.TemplatePaymentTerms}, true},
	{model.ResourceTypeLine, model.TemplateItem, []string{model.TemplateUnitCost}, true},
}

// stamp declares a companion field written when a status field enters
// an option.
type stamp struct {
	status   string
	option   string
	date     string
	operator bool
}

var stamps = []stamp{
	{model.TemplateJobStatus, model.OptionJobInvoiced, model.TemplateInvoiceDate, false},
	{model.TemplatePurchaseStatus, model.OptionPurchaseOrdered, model.TemplateIssuedDate, false},
	{model.TemplateStepStatus, model.OptionStepInProcess, model.TemplateStartDate, false},
	{model.TemplateStepStatus, model.OptionStepCompleted, model.TemplateDateCompleted, true},
}

// StampedBy returns the templates of the fields a status field stamps
// when it enters one of its options.
func StampedBy(status string) []string {
	var out []string
	for _, s := range stamps {
		if s.status != status {
			continue
		}
		out = append(out, s.date)
		if s.operator {
			out = append(out, model.TemplateOperator)
		}
	}
	return out
}

// lineBacklinks are the Line fields pointing at the owning document.
var lineBacklinks = []string{model.TemplatePurchase, model.TemplateBill}

// DocumentBacklink returns the Line field template linking Lines to a
// document of the given type.
func DocumentBacklink(t model.ResourceType) (string, bool) {
	switch t {
	case model.ResourceTypePurchase:
		return model.TemplatePurchase, true
	case model.ResourceTypeBill:
		return model.TemplateBill, true
	}
	return "", false
}

// pipeline returns the rules in execution order. Status stamps run
// before the date rules that consume the stamped dates, and the money
// rules run line total, subtotal, itemized, total.
func pipeline() []rule {
	return []rule{
		{
			name:    "pull_in",
			trigger: func(p *pass) bool { return !p.deleted() && len(p.pullIns()) > 0 },
			run:     runPullIn,
		},
		{
			name:    "status_stamps",
			trigger: func(p *pass) bool { return !p.deleted() && len(p.stamps()) > 0 },
			run:     runStatusStamps,
		},
		{
			name:  "line_total",
			needs: []string{model.TemplateUnitCost, model.TemplateQuantity, model.TemplateTotalCost},
			trigger: func(p *pass) bool {
				return !p.deleted() && p.changed(model.TemplateUnitCost, model.TemplateQuantity)
			},
			run: runLineTotal,
		},
		{
			name:  "subtotal",
			needs: []string{model.TemplateTotalCost},
			trigger: func(p *pass) bool {
				if p.target().Type != model.ResourceTypeLine {
					return false
				}
				if p.deleted() {
					return true
				}
				return p.changed(append([]string{model.TemplateTotalCost}, lineBacklinks...)...)
			},
			run: runSubtotal,
		},
		{
			name:  "itemized_costs",
			needs: []string{model.TemplateSubtotalCost, model.TemplateItemizedCosts},
			trigger: func(p *pass) bool {
				return !p.deleted() && (p.cs.CostsChanged || p.changed(model.TemplateSubtotalCost))
			},
			run: runItemizedCosts,
		},
		{
			name:  "document_total",
			needs: []string{model.TemplateSubtotalCost, model.TemplateItemizedCosts, model.TemplateTotalCost},
			trigger: func(p *pass) bool {
				return !p.deleted() && p.changed(model.TemplateSubtotalCost, model.TemplateItemizedCosts)
			},
			run: runDocumentTotal,
		},
		{
			name:  "payment_due_date",
			needs: []string{model.TemplatePaymentTerms, model.TemplatePaymentDueDate},
			trigger: func(p *pass) bool {
				src, ok := p.dueDateSource()
				return ok && !p.deleted() && p.changed(model.TemplatePaymentTerms, src)
			},
			run: runPaymentDueDate,
		},
		{
			name:  "schedule",
			needs: []string{model.TemplateStartDate, model.TemplateProductionDays, model.TemplateDeliveryDate},
			trigger: func(p *pass) bool {
				return !p.deleted() && p.changed(model.TemplateStartDate, model.TemplateProductionDays, model.TemplateDeliveryDate)
			},
			run: runSchedule,
		},
		{
			name:  "thumbnail",
			needs: []string{model.TemplatePartModel, model.TemplateThumbnail},
			trigger: func(p *pass) bool {
				return !p.deleted() && p.changed(model.TemplatePartModel, model.TemplateThumbnail)
			},
			run: runThumbnail,
		},
		{
			name:  "document_link",
			needs: []string{model.TemplatePurchase},
			trigger: func(p *pass) bool {
				return !p.deleted() && p.target().Type == model.ResourceTypeBill &&
					p.changed(model.TemplatePurchase) && !p.isEmpty(model.TemplatePurchase)
			},
			run: runDocumentLink,
		},
	}
}

func (p *pass) target() *model.Resource {
	if p.res != nil {
		return p.res
	}
	return p.before
}

func (p *pass) pullIns() []pullIn {
	var out []pullIn
	for _, d := range pullIns {
		if d.child == p.target().Type && p.changed(d.link) && !p.isEmpty(d.link) {
			out = append(out, d)
		}
	}
	return out
}

func (p *pass) stamps() []stamp {
	var out []stamp
	for _, s := range stamps {
		if p.changed(s.status) {
			out = append(out, s)
		}
	}
	return out
}

func runPullIn(ctx context.Context, p *pass) error {
	for _, d := range p.pullIns() {
		parentID := *p.value(d.link).ResourceID
		parent, err := p.e.records.Read(ctx, p.res.TenantID, parentID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read parent %s: %w", parentID, err)
		}
		parentSchema, err := p.e.records.Schema(ctx, parent.TenantID, parent.Type)
		if err != nil {
			return err
		}
		for _, t := range d.fields {
			pf, ok := parentSchema.FieldByTemplate(t)
			if !ok || p.field(t) == nil {
				continue
			}
			pv := parent.Value(pf.ID)
			if d.once && (!p.isEmpty(t) || pv.IsEmpty(pf.Type)) {
				continue
			}
			if err := p.set(ctx, t, pv); err != nil {
				return err
			}
		}
	}
	return nil
}

func runStatusStamps(ctx context.Context, p *pass) error {
	for _, s := range p.stamps() {
		sf := p.field(s.status)
		cur := p.value(s.status)
		if cur.OptionID == nil {
			continue
		}
		opt, ok := sf.Option(*cur.OptionID)
		if !ok || opt.TemplateID != s.option {
			continue
		}
		if err := p.set(ctx, s.date, model.DateValue(p.today())); err != nil {
			return err
		}
		if s.operator && p.cs.Scope.UserID != "" {
			if err := p.set(ctx, model.TemplateOperator, model.UserValue(p.cs.Scope.UserID)); err != nil {
				return err
			}
		}
	}
	return nil
}

func runLineTotal(ctx context.Context, p *pass) error {
	total := dec(p.value(model.TemplateUnitCost)).Mul(dec(p.value(model.TemplateQuantity)))
	return p.set(ctx, model.TemplateTotalCost, num(total))
}

func runSubtotal(ctx context.Context, p *pass) error {
	var parents []string
	for _, r := range []*model.Resource{p.before, p.res} {
		if r == nil {
			continue
		}
		for _, t := range lineBacklinks {
			f := p.field(t)
			if f == nil {
				continue
			}
			if v := r.Value(f.ID); v.ResourceID != nil && *v.ResourceID != "" && !slices.Contains(parents, *v.ResourceID) {
				parents = append(parents, *v.ResourceID)
			}
		}
	}
	for _, id := range parents {
		if err := p.e.RecomputeSubtotal(ctx, p.cs.Scope, id); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeSubtotal sums the Total Cost of a document's Lines into its
// Subtotal Cost, running derivation on the document when it changes.
// A missing document is not an error.
func (e *Engine) RecomputeSubtotal(ctx context.Context, scope model.Scope, docID string) error {
	doc, err := e.records.Read(ctx, scope.TenantID, docID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read document %s: %w", docID, err)
	}
	backlink, ok := DocumentBacklink(doc.Type)
	if !ok {
		return nil
	}
	docSchema, err := e.records.Schema(ctx, scope.TenantID, doc.Type)
	if err != nil {
		return err
	}
	sub, ok := docSchema.FieldByTemplate(model.TemplateSubtotalCost)
	if !ok {
		return nil
	}
	lineSchema, err := e.records.Schema(ctx, scope.TenantID, model.ResourceTypeLine)
	if err != nil {
		return err
	}
	link, ok := lineSchema.FieldByTemplate(backlink)
	if !ok {
		return nil
	}
	total, ok := lineSchema.FieldByTemplate(model.TemplateTotalCost)
	if !ok {
		return nil
	}

	lines, err := e.records.ListReferencing(ctx, scope.TenantID, model.ResourceTypeLine, link.ID, doc.ID)
	if err != nil {
		return fmt.Errorf("list lines of %s: %w", doc.ID, err)
	}
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(dec(l.Value(total.ID)))
	}
	v := num(sum)
	if doc.Value(sub.ID).Equal(sub.Type, v) {
		return nil
	}
	ruleWrites.WithLabelValues("subtotal").Inc()
	_, err = e.records.UpdateValues(ctx, scope, doc.ID, []model.FieldValue{{FieldID: sub.ID, Value: v}})
	return err
}

func runItemizedCosts(ctx context.Context, p *pass) error {
	subtotal := dec(p.value(model.TemplateSubtotalCost))
	sum := decimal.Zero
	for _, c := range p.res.Costs {
		amount := decimal.NewFromFloat(c.Value)
		if c.IsPercentage {
			amount = subtotal.Mul(amount).Div(decimal.NewFromInt(100))
		}
		sum = sum.Add(amount)
	}
	return p.set(ctx, model.TemplateItemizedCosts, num(sum))
}

func runDocumentTotal(ctx context.Context, p *pass) error {
	total := dec(p.value(model.TemplateSubtotalCost)).Add(dec(p.value(model.TemplateItemizedCosts)))
	return p.set(ctx, model.TemplateTotalCost, num(total))
}

// dueDateSource picks the date the due date counts from: Invoice Date
// when the schema defines it, Need Date otherwise.
func (p *pass) dueDateSource() (string, bool) {
	for _, t := range []string{model.TemplateInvoiceDate, model.TemplateNeedDate} {
		if p.field(t) != nil {
			return t, true
		}
	}
	return "", false
}

func runPaymentDueDate(ctx context.Context, p *pass) error {
	src, _ := p.dueDateSource()
	if p.isEmpty(src) || p.isEmpty(model.TemplatePaymentTerms) {
		return nil
	}
	days := int(math.Round(*p.value(model.TemplatePaymentTerms).Number))
	due := p.value(src).Date.AddDate(0, 0, days)
	return p.set(ctx, model.TemplatePaymentDueDate, model.DateValue(due))
}

func runSchedule(ctx context.Context, p *pass) error {
	const (
		start    = model.TemplateStartDate
		days     = model.TemplateProductionDays
		delivery = model.TemplateDeliveryDate
	)
	has := func(t string) bool { return !p.isEmpty(t) }
	startAt := func() time.Time { return *p.value(start).Date }
	deliverAt := func() time.Time { return *p.value(delivery).Date }
	dayCount := func() int { return productionDays(p.value(days)) }

	if p.changed(start) && p.changed(days) && p.changed(delivery) {
		if has(start) && has(days) && has(delivery) && !startAt().AddDate(0, 0, dayCount()).Equal(deliverAt()) {
			return scheduleError(p.schema, "start date plus %d production days does not match the delivery date", dayCount())
		}
		return nil
	}

	setDays := func() error {
		n := daysBetween(startAt(), deliverAt())
		if n < 0 {
			return scheduleError(p.schema, "delivery date is before the start date")
		}
		return p.set(ctx, days, model.NumberValue(float64(n)))
	}
	setStart := func() error {
		return p.set(ctx, start, model.DateValue(deliverAt().AddDate(0, 0, -dayCount())))
	}
	setDelivery := func() error {
		return p.set(ctx, delivery, model.DateValue(startAt().AddDate(0, 0, dayCount())))
	}

	// A new delivery date keeps the start date and moves the production
	// days; any other change moves the delivery date.
	if p.changed(delivery) && has(delivery) {
		switch {
		case has(start):
			return setDays()
		case has(days):
			return setStart()
		}
		return nil
	}
	switch {
	case has(start) && has(days):
		return setDelivery()
	case has(start) && has(delivery):
		return setDays()
	case has(days) && has(delivery):
		return setStart()
	}
	return nil
}

func runThumbnail(ctx context.Context, p *pass) error {
	tenant := p.res.TenantID
	if p.changed(model.TemplateThumbnail) {
		cur := p.value(model.TemplateThumbnail)
		if cur.FileID == nil || *cur.FileID == "" {
			return nil
		}
		return p.renderThumbnail(ctx, tenant, *cur.FileID)
	}

	var previous []string
	if p.before != nil {
		if f := p.field(model.TemplatePartModel); f != nil {
			previous = p.before.Value(f.ID).FileIDs
		}
	}
	for _, id := range p.value(model.TemplatePartModel).FileIDs {
		if slices.Contains(previous, id) {
			continue
		}
		file, err := p.e.records.GetFile(ctx, tenant, id)
		if err != nil {
			return fmt.Errorf("load file %s: %w", id, err)
		}
		if p.e.renderer.CanRender(file.ContentType) {
			return p.renderFile(ctx, file)
		}
	}
	return nil
}

func (p *pass) renderThumbnail(ctx context.Context, tenant, fileID string) error {
	file, err := p.e.records.GetFile(ctx, tenant, fileID)
	if err != nil {
		return fmt.Errorf("load file %s: %w", fileID, err)
	}
	if !p.e.renderer.CanRender(file.ContentType) {
		return nil
	}
	return p.renderFile(ctx, file)
}

func (p *pass) renderFile(ctx context.Context, file *model.File) error {
	rendered, err := p.e.renderer.Render(ctx, file)
	if err != nil {
		return fmt.Errorf("render %s: %w", file.ID, err)
	}
	return p.set(ctx, model.TemplateThumbnail, model.FileValue(rendered.ID))
}

func runDocumentLink(ctx context.Context, p *pass) error {
	purchaseID := *p.value(model.TemplatePurchase).ResourceID
	if p.e.linker != nil {
		if err := p.e.linker.LinkResource(ctx, p.cs.Scope, purchaseID, p.res.ID); err != nil {
			return fmt.Errorf("link purchase %s: %w", purchaseID, err)
		}
	}
	return p.e.RecomputeSubtotal(ctx, p.cs.Scope, p.res.ID)
}

func dec(v model.Value) decimal.Decimal {
	if v.Number == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v.Number)
}

func num(d decimal.Decimal) model.Value {
	return model.NumberValue(d.InexactFloat64())
}
