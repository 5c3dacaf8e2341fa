package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/infrastructure/source"
)

// ingestCmd pushes a single review payload through the full pipeline.
// Useful for smoke tests and for re-driving a payload by hand.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one review payload from a file or stdin",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		file, _ := cmd.Flags().GetString("file")
		var raw []byte
		var err error
		if file == "" || file == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(file)
		}
		if err != nil {
			return errs.Wrap(err, "read payload")
		}

		payload, err := source.ParsePayload(raw)
		if err != nil {
			return errs.Wrap(err, "parse payload")
		}

		if err := svc.Relay.HandleReview(ctx, payload.ToReview(time.Now().UTC())); err != nil {
			return errs.Wrap(err, "bridge review")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "review %s ingested\n", payload.ID)
		return nil
	}),
}

func init() {
	ingestCmd.Flags().String("file", "", "Payload file path (default stdin)")
	rootCmd.AddCommand(ingestCmd)
}
