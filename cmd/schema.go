package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"revbridge/internal/infrastructure/source"
)

// schemaCmd prints the JSON schema of the review payload so upstream
// integrations can validate what they push at us.
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema for review payloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := &jsonschema.Reflector{DoNotReference: true}
		schema := reflector.Reflect(&source.ReviewPayload{})
		raw, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
