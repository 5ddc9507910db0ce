package cli

import (
	hub "github.com/goliatone/go-hub"
	"github.com/goliatone/go-hub/client"
	"github.com/goliatone/go-hub/pkg/state"
	"github.com/goliatone/go-hub/schema"
	"github.com/spf13/cobra"
)

// NewSchemaCmd creates the "schema" subcommand.
func NewSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the OpenAPI schema of event payloads, scopes and client options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := schema.Document(
				schema.Info{
					Title:       "hub events",
					Version:     "1",
					Description: "Payloads accepted by hubctl capture --event and written by the writer backend.",
				},
				"/events", "Event",
				map[string]any{
					"Event":         hub.Event{},
					"ScopeSnapshot": hub.ScopeSnapshot{},
					"ScopeRecord":   state.Record[hub.ScopeSnapshot]{},
					"ClientOptions": client.Options{},
				},
			)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
}
