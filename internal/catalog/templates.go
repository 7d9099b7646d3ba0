package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chriskuech/supplyside-sub001/internal/model"
)

//go:embed templates.toml
var templatesTOML string

// TemplateSet is the built-in set of system fields and schema layers.
type TemplateSet struct {
	Fields  []TemplateField  `toml:"fields"`
	Schemas []TemplateSchema `toml:"schemas"`
}

// TemplateField declares one system field.
type TemplateField struct {
	Template     string             `toml:"template"`
	Name         string             `toml:"name"`
	Description  string             `toml:"description"`
	Type         model.FieldType    `toml:"type"`
	ResourceType model.ResourceType `toml:"resource_type"`
	Required     bool               `toml:"required"`
	Derived      bool               `toml:"derived"`
	Options      []TemplateOption   `toml:"options"`
	Default      *TemplateDefault   `toml:"default"`
}

// TemplateOption declares one system option of a select field.
type TemplateOption struct {
	Template string `toml:"template"`
	Name     string `toml:"name"`
}

// TemplateDefault is the default value of a system field. Option names
// an option template of the same field.
type TemplateDefault struct {
	String  *string  `toml:"string"`
	Number  *float64 `toml:"number"`
	Boolean *bool    `toml:"boolean"`
	Option  string   `toml:"option"`
}

// TemplateSchema declares the system layer of one record type.
type TemplateSchema struct {
	Type     model.ResourceType `toml:"type"`
	Fields   []string           `toml:"fields"`
	Sections []TemplateSection  `toml:"sections"`
}

// TemplateSection is a named group of field templates.
type TemplateSection struct {
	Name   string   `toml:"name"`
	Fields []string `toml:"fields"`
}

// Templates decodes the embedded template set.
func Templates() (*TemplateSet, error) {
	return ParseTemplates(templatesTOML)
}

// ParseTemplates decodes and checks a template document. Unknown keys,
// unknown kinds and dangling template references are errors.
func ParseTemplates(doc string) (*TemplateSet, error) {
	var set TemplateSet
	md, err := toml.Decode(doc, &set)
	if err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decode templates: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := set.check(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Field returns the template field with the given identifier.
func (s *TemplateSet) Field(template string) (*TemplateField, bool) {
	for i := range s.Fields {
		if s.Fields[i].Template == template {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

func (s *TemplateSet) check() error {
	ve := &model.ValidationError{}
	seen := make(map[string]bool, len(s.Fields))
	for _, tf := range s.Fields {
		if tf.Template == "" || tf.Name == "" {
			ve.Add("fields", "template and name are required (got %q, %q)", tf.Template, tf.Name)
			continue
		}
		if seen[tf.Template] {
			ve.Add(tf.Template, "declared twice")
		}
		seen[tf.Template] = true
		if !tf.Type.IsValid() {
			ve.Add(tf.Template, "unknown type %q", tf.Type)
		}
		if (tf.Type == model.FieldTypeResource) != (tf.ResourceType != "") {
			ve.Add(tf.Template, "resource_type must be set exactly on Resource fields")
		}
		if tf.ResourceType != "" && !tf.ResourceType.IsValid() {
			ve.Add(tf.Template, "unknown resource_type %q", tf.ResourceType)
		}
		if len(tf.Options) > 0 && !hasOptions(tf.Type) {
			ve.Add(tf.Template, "options on a %s field", tf.Type)
		}
		opts := make(map[string]bool, len(tf.Options))
		for _, o := range tf.Options {
			if o.Template == "" || opts[o.Template] {
				ve.Add(tf.Template, "option template %q is empty or repeated", o.Template)
			}
			opts[o.Template] = true
		}
		if d := tf.Default; d != nil && d.Option != "" && !opts[d.Option] {
			ve.Add(tf.Template, "default option %q is not declared", d.Option)
		}
	}
	types := make(map[model.ResourceType]bool)
	for _, ts := range s.Schemas {
		if !ts.Type.IsValid() || types[ts.Type] {
			ve.Add("schemas", "record type %q is unknown or repeated", ts.Type)
		}
		types[ts.Type] = true
		refs := append([]string(nil), ts.Fields...)
		for _, sec := range ts.Sections {
			refs = append(refs, sec.Fields...)
		}
		used := make(map[string]bool, len(refs))
		for _, ref := range refs {
			if !seen[ref] {
				ve.Add(string(ts.Type), "field template %q is not declared", ref)
			}
			if used[ref] {
				ve.Add(string(ts.Type), "field template %q appears twice", ref)
			}
			used[ref] = true
		}
	}
	if err := ve.ErrOrNil(); err != nil {
		return fmt.Errorf("templates: %w", err)
	}
	return nil
}

func hasOptions(t model.FieldType) bool {
	return t == model.FieldTypeSelect || t == model.FieldTypeMultiSelect
}
