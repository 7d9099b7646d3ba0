package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chriskuech/supplyside-sub001/internal/catalog"
	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/ui"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Short:   "Manage the built-in field templates",
	GroupID: "records",
}

var templatesApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Reconcile a tenant's system fields and schemas with the built-in templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var pub events.Publisher = &events.NoopPublisher{}
		if cfg.NATSURL != "" {
			natsPub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				return err
			}
			defer natsPub.Close()
			pub = natsPub
		}

		cat, err := catalog.New(st, pub)
		if err != nil {
			return err
		}
		res, err := cat.ApplyTemplate(cmd.Context(), tenant)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		if !res.Changed() {
			fmt.Println(ui.RenderMuted("Tenant " + tenant + " already matches the templates"))
			return nil
		}
		fmt.Printf("Applied templates to %s: %d fields created, %d updated, %d deleted, %d schemas saved\n",
			ui.RenderAccent(tenant), res.FieldsCreated, res.FieldsUpdated, res.FieldsDeleted, res.SchemasSaved)
		return nil
	},
}

func init() {
	templatesApplyCmd.Flags().String("tenant", "", "tenant ID (required)")
	_ = templatesApplyCmd.MarkFlagRequired("tenant")

	templatesCmd.AddCommand(templatesApplyCmd)
}
