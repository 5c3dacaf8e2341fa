package cmd

import (
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/console"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Start the operator console for browsing and resolving threads",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		status, _ := cmd.Flags().GetString("status")
		room, _ := cmd.Flags().GetString("room")
		refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
		if refreshInterval <= 0 {
			refreshInterval = 5 * time.Second
		}

		model := console.NewModel(ctx, svc.Threads, svc.Relay, console.Options{
			StatusFilter:    status,
			RoomFilter:      room,
			RefreshInterval: refreshInterval,
		})

		program := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.Flags().String("status", "", "Optional status filter (active|resolved|archived)")
	consoleCmd.Flags().String("room", "", "Only threads bridged into this room")
	consoleCmd.Flags().Duration("refresh-interval", 5*time.Second, "Auto refresh interval")
	rootCmd.AddCommand(consoleCmd)
}
