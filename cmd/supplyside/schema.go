package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/model"
	"github.com/chriskuech/supplyside-sub001/internal/ui"
)

var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "Inspect record schemas",
	GroupID: "records",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the schema of a record type",
	Long: `Show the fields of a record type in schema order, grouped by section.

Derived fields are shown muted. With --in-memory the built-in templates are
applied to an empty tenant first, which shows the system layer as shipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tenant, _ := cmd.Flags().GetString("tenant")
		rawType, _ := cmd.Flags().GetString("type")
		layer, _ := cmd.Flags().GetString("layer")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		cat, err := catalog.New(st, nil)
		if err != nil {
			return err
		}
		if cfg.InMemory {
			if _, err := cat.ApplyTemplate(ctx, tenant); err != nil {
				return err
			}
		}
		schema, err := cat.ReadSchema(ctx, tenant, model.ResourceType(rawType), model.Layer(layer))
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		return ui.Table(os.Stdout, []string{"SECTION", "NAME", "TYPE", "TEMPLATE", "FLAGS"}, schemaRows(schema))
	},
}

// schemaRows lists sectioned fields first, section by section, then the
// loose fields.
func schemaRows(s *model.Schema) []ui.Row {
	var rows []ui.Row
	add := func(section string, f *model.Field) {
		typ := string(f.Type)
		if f.Type == model.FieldTypeResource && f.ResourceType != "" {
			typ += " → " + string(f.ResourceType)
		}
		var flags []string
		if f.IsRequired {
			flags = append(flags, "required")
		}
		if f.IsDerived {
			flags = append(flags, "derived")
		}
		if !f.IsSystem() {
			flags = append(flags, "custom")
		}
		rows = append(rows, ui.Row{
			Cells: []string{section, f.Name, typ, f.TemplateID, strings.Join(flags, ",")},
			Muted: f.IsDerived,
		})
	}
	for _, sec := range s.Sections {
		for _, id := range sec.FieldIDs {
			if f, ok := s.Field(id); ok {
				add(sec.Name, f)
			}
		}
	}
	for _, f := range s.LooseFields() {
		add("", &f)
	}
	return rows
}

func init() {
	schemaShowCmd.Flags().String("tenant", "", "tenant ID (required)")
	schemaShowCmd.Flags().String("type", "", "record type, e.g. Purchase (required)")
	schemaShowCmd.Flags().String("layer", string(model.LayerMerged), "schema layer: merged, system or custom")
	_ = schemaShowCmd.MarkFlagRequired("tenant")
	_ = schemaShowCmd.MarkFlagRequired("type")

	schemaCmd.AddCommand(schemaShowCmd)
}
