package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/relay"
)

// replyCmd drives the outbound path the same way a chat event would.
var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Submit an operator reply for a bridged review",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		suggest, _ := cmd.Flags().GetString("suggest")
		if suggest != "" {
			threadID, err := bridge.ParseThreadRef(suggest)
			if err != nil {
				return err
			}
			category, draft, err := svc.Relay.Suggest(ctx, threadID)
			if err != nil {
				return errs.Wrap(err, "suggest reply")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "category: %s\ndraft: %s\n", category, draft)
			return nil
		}

		roomID, _ := cmd.Flags().GetString("room")
		eventID, _ := cmd.Flags().GetString("event")
		relatesTo, _ := cmd.Flags().GetString("relates-to")
		sender, _ := cmd.Flags().GetString("sender")
		body, _ := cmd.Flags().GetString("body")

		if err := svc.Relay.HandleRoomReply(ctx, relay.HandleRoomReplyInput{
			RoomID:    roomID,
			EventID:   eventID,
			RelatesTo: relatesTo,
			Sender:    sender,
			Body:      body,
		}); err != nil {
			return errs.Wrap(err, "bridge reply")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reply submitted")
		return nil
	}),
}

func init() {
	replyCmd.Flags().String("suggest", "", "Print a reply draft for a thread ref instead of submitting")
	replyCmd.Flags().String("room", "", "Room id the reply was written in")
	replyCmd.Flags().String("event", "", "Chat event id of the reply")
	replyCmd.Flags().String("relates-to", "", "Event id the reply relates to (thread root or any thread event)")
	replyCmd.Flags().String("sender", "", "Chat user id of the operator")
	replyCmd.Flags().String("body", "", "Reply text")
	rootCmd.AddCommand(replyCmd)
}
