// Package derive keeps computed fields consistent. Every Resource write
// runs the same fixed, ordered pipeline of guarded rules over an explicit
// change set; rules only write when a value actually changes, so a second
// pass over an unchanged record is a no-op.
package derive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

var (
	ruleFirings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplyside",
		Subsystem: "derive",
		Name:      "rule_firings_total",
		Help:      "Derivation rules whose guards passed, by rule.",
	}, []string{"rule"})

	ruleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplyside",
		Subsystem: "derive",
		Name:      "rule_errors_total",
		Help:      "Derivation rules that failed, by rule.",
	}, []string{"rule"})

	ruleWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supplyside",
		Subsystem: "derive",
		Name:      "writes_total",
		Help:      "Field values written by derivation rules, by rule.",
	}, []string{"rule"})
)

// Records is the record repository as the engine sees it.
type Records interface {
	Read(ctx context.Context, tenantID, id string) (*model.Resource, error)
	Schema(ctx context.Context, tenantID string, resourceType model.ResourceType) (*model.Schema, error)
	// WriteValues persists values without running derivation.
	WriteValues(ctx context.Context, tenantID, id string, values []model.FieldValue) error
	// UpdateValues persists values and runs derivation on the target.
	UpdateValues(ctx context.Context, scope model.Scope, id string, values []model.FieldValue) (*model.Resource, error)
	ListReferencing(ctx context.Context, tenantID string, resourceType model.ResourceType, fieldID, targetID string) ([]*model.Resource, error)
	GetFile(ctx context.Context, tenantID, id string) (*model.File, error)
}

// Linker propagates a document into the next lifecycle stage.
type Linker interface {
	LinkResource(ctx context.Context, scope model.Scope, fromID, toID string) error
}

// Renderer produces derived files such as thumbnails.
type Renderer interface {
	CanRender(contentType string) bool
	Render(ctx context.Context, file *model.File) (*model.File, error)
}

// NopRenderer renders nothing.
type NopRenderer struct{}

func (NopRenderer) CanRender(string) bool { return false }

func (NopRenderer) Render(context.Context, *model.File) (*model.File, error) {
	return nil, fmt.Errorf("no renderer configured")
}

// ChangeSet describes one write: the record before and after it, the
// field values that changed, and whether the record's Costs changed.
// Before is nil on create and After is nil on delete.
type ChangeSet struct {
	Scope        model.Scope
	Before       *model.Resource
	After        *model.Resource
	Changes      map[string]model.Value // field ID -> new value
	CostsChanged bool
}

// Changed reports whether the write changed the field.
func (cs *ChangeSet) Changed(fieldID string) bool {
	_, ok := cs.Changes[fieldID]
	return ok
}

// Engine runs the derivation pipeline.
type Engine struct {
	records  Records
	linker   Linker
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time
	rules    []rule
}

// New returns an Engine. A nil renderer disables thumbnail rendering.
func New(records Records, linker Linker, renderer Renderer) *Engine {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	e := &Engine{
		records:  records,
		linker:   linker,
		renderer: renderer,
		logger:   slog.Default(),
		now:      time.Now,
	}
	e.rules = pipeline()
	return e
}

// SetClock replaces the engine's time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// rule is one guarded step of the pipeline. A rule runs when the record's
// schema implements every template in needs and its trigger reports true.
type rule struct {
	name    string
	needs   []string
	trigger func(p *pass) bool
	run     func(ctx context.Context, p *pass) error
}

// pass is the state of one pipeline run over one record. Writes made by
// a rule are applied to res and recorded in cs.Changes so later rules
// see them.
type pass struct {
	e      *Engine
	cs     *ChangeSet
	schema *model.Schema
	res    *model.Resource
	before *model.Resource
	rule   string
}

// Derive runs the pipeline for one write.
func (e *Engine) Derive(ctx context.Context, cs *ChangeSet) error {
	target := cs.After
	if target == nil {
		target = cs.Before
	}
	if target == nil {
		return nil
	}
	if cs.Changes == nil {
		cs.Changes = map[string]model.Value{}
	}
	schema, err := e.records.Schema(ctx, target.TenantID, target.Type)
	if err != nil {
		return fmt.Errorf("derive: load %s schema: %w", target.Type, err)
	}
	p := &pass{e: e, cs: cs, schema: schema, res: cs.After, before: cs.Before}

	for _, r := range e.rules {
		if !schema.Implements(r.needs...) || !r.trigger(p) {
			continue
		}
		ruleFirings.WithLabelValues(r.name).Inc()
		p.rule = r.name
		if err := r.run(ctx, p); err != nil {
			ruleErrors.WithLabelValues(r.name).Inc()
			return fmt.Errorf("derive %s on %s %s: %w", r.name, target.Type, target.ID, err)
		}
	}
	return nil
}

func (p *pass) deleted() bool { return p.res == nil }

func (p *pass) field(template string) *model.Field {
	f, _ := p.schema.FieldByTemplate(template)
	return f
}

// changed reports whether the write changed any of the template fields.
func (p *pass) changed(templates ...string) bool {
	for _, t := range templates {
		if f := p.field(t); f != nil && p.cs.Changed(f.ID) {
			return true
		}
	}
	return false
}

// value returns the current value of a template field.
func (p *pass) value(template string) model.Value {
	f := p.field(template)
	if f == nil || p.res == nil {
		return model.Value{}
	}
	return p.res.Value(f.ID)
}

func (p *pass) isEmpty(template string) bool {
	f := p.field(template)
	return f == nil || p.value(template).IsEmpty(f.Type)
}

// set writes a template field unless it already holds v.
func (p *pass) set(ctx context.Context, template string, v model.Value) error {
	f := p.field(template)
	if f == nil || p.res == nil {
		return nil
	}
	v = v.OnlySlot(f.Type)
	if p.res.Value(f.ID).Equal(f.Type, v) {
		return nil
	}
	if err := p.e.records.WriteValues(ctx, p.res.TenantID, p.res.ID, []model.FieldValue{{FieldID: f.ID, Value: v}}); err != nil {
		return err
	}
	ruleWrites.WithLabelValues(p.rule).Inc()
	if rf, ok := p.res.Field(f.ID); ok {
		rf.Value = v
	} else {
		p.res.Fields = append(p.res.Fields, model.ResourceField{FieldID: f.ID, Name: f.Name, Type: f.Type, Value: v})
	}
	p.cs.Changes[f.ID] = v
	return nil
}

func (p *pass) today() time.Time {
	return model.TruncateDate(p.e.now())
}
