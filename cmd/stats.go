package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

type bridgeStats struct {
	Identities    identity.Stats     `json:"identities" yaml:"identities"`
	Rooms         rooms.Stats        `json:"rooms" yaml:"rooms"`
	Conversations conversation.Stats `json:"conversations" yaml:"conversations"`
	Threads       threads.Stats      `json:"threads" yaml:"threads"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print bridge registry counters",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		var (
			out bridgeStats
			err error
		)
		if out.Identities, err = svc.Identities.Stats(ctx); err != nil {
			return errs.Wrap(err, "identity stats")
		}
		if out.Rooms, err = svc.Rooms.Stats(ctx); err != nil {
			return errs.Wrap(err, "room stats")
		}
		if out.Conversations, err = svc.Conversations.Stats(ctx); err != nil {
			return errs.Wrap(err, "conversation stats")
		}
		if out.Threads, err = svc.Threads.Stats(ctx); err != nil {
			return errs.Wrap(err, "thread stats")
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		case "yaml":
			return yaml.NewEncoder(cmd.OutOrStdout()).Encode(out)
		default:
			return fmt.Errorf("unknown format %q", format)
		}
	}),
}

func init() {
	statsCmd.Flags().String("format", "yaml", "Output format (yaml|json)")
	rootCmd.AddCommand(statsCmd)
}
