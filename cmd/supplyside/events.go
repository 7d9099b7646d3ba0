package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/chriskuech/supplyside-sub001/internal/events"
	"github.com/chriskuech/supplyside-sub001/internal/ui"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "Follow record change events",
	GroupID: "records",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print record change events from NATS as they arrive",
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		tenant, _ := cmd.Flags().GetString("tenant")
		if cfg.NATSURL == "" {
			return errors.New("SUPPLYSIDE_NATS_URL is required to watch events")
		}

		sub, err := events.NewNATSSubscriber(cfg.NATSURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		logger.Info("watching events", "topic", topic, "nats_url", cfg.NATSURL)

		return events.Follow(ctx, sub, topic, func(payload []byte) {
			if line, show := formatEvent(payload, tenant); show {
				fmt.Println(line)
			}
		})
	},
}

// eventSummary holds the fields shared by the record event payloads.
type eventSummary struct {
	TenantID   string `json:"tenant_id"`
	ResourceID string `json:"resource_id"`
	Resource   *struct {
		ID       string `json:"id"`
		TenantID string `json:"tenantId"`
		Type     string `json:"type"`
		Key      int    `json:"key"`
	} `json:"resource"`
	Changes map[string]any `json:"changes"`
}

// formatEvent renders one event payload as a single line. Events of other
// tenants are hidden when tenant is set.
func formatEvent(payload []byte, tenant string) (string, bool) {
	var e eventSummary
	if err := json.Unmarshal(payload, &e); err != nil {
		return string(payload), tenant == ""
	}
	evTenant, id := e.TenantID, e.ResourceID
	var label string
	if e.Resource != nil {
		evTenant, id = e.Resource.TenantID, e.Resource.ID
		label = fmt.Sprintf("%s #%d", e.Resource.Type, e.Resource.Key)
	}
	if tenant != "" && evTenant != tenant {
		return "", false
	}

	line := ui.RenderMuted(evTenant)
	if label != "" {
		line += " " + ui.RenderAccent(label)
	}
	if id != "" {
		line += " " + id
	}
	if len(e.Changes) > 0 {
		changes, _ := json.Marshal(e.Changes)
		line += " " + ui.RenderCommand(string(changes))
	}
	return line, true
}

func init() {
	eventsWatchCmd.Flags().String("topic", events.TopicAll, "NATS subject to follow (wildcards allowed)")
	eventsWatchCmd.Flags().String("tenant", "", "only show events of this tenant")

	eventsCmd.AddCommand(eventsWatchCmd)
}
