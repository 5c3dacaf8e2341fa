package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/threads"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect and manage conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads, optionally filtered by room or participant",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		room, _ := cmd.Flags().GetString("room")
		participant, _ := cmd.Flags().GetString("participant")

		var (
			items []bridge.Thread
			err   error
		)
		switch {
		case room != "":
			items, err = svc.Threads.ByRoom(ctx, room)
		case participant != "":
			items, err = svc.Threads.ByParticipant(ctx, participant)
		default:
			items, err = svc.Threads.List(ctx)
		}
		if err != nil {
			return errs.Wrap(err, "list threads")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "REF\tSTATUS\tREVIEW\tAPP\tROOM\tMSGS\tLAST ACTIVITY")
		for _, t := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				bridge.FormatThreadRef(t.ThreadID), t.Status, t.ReviewID, t.AppID,
				t.RoomID, t.MessageCount, t.LastActivity.Format(time.RFC3339))
		}
		return w.Flush()
	}),
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <ref>",
	Short: "Show one thread with its message history",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		threadID, err := bridge.ParseThreadRef(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		thread, found, err := svc.Threads.Get(ctx, threadID)
		if err != nil {
			return errs.Wrap(err, "load thread")
		}
		if !found {
			return fmt.Errorf("thread %s not found", bridge.FormatThreadRef(threadID))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s [%s] review=%s app=%s room=%s gen=%d\n",
			bridge.FormatThreadRef(thread.ThreadID), thread.Status, thread.ReviewID,
			thread.AppID, thread.RoomID, thread.Generation)
		if thread.ResolvedBy != "" {
			fmt.Fprintf(out, "resolved by %s: %s\n", thread.ResolvedBy, thread.ResolveNote)
		}

		messages, err := svc.Threads.Messages(ctx, threadID)
		if err != nil {
			return errs.Wrap(err, "load messages")
		}
		for _, m := range messages {
			fmt.Fprintf(out, "  %s %s <%s> %s\n",
				m.CreatedAt.Format(time.RFC3339), m.Kind, m.UserID, m.Content)
		}
		return nil
	}),
}

var threadsResolveCmd = &cobra.Command{
	Use:   "resolve <ref>",
	Short: "Mark a thread resolved",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		threadID, err := bridge.ParseThreadRef(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		by, _ := cmd.Flags().GetString("by")
		reason, _ := cmd.Flags().GetString("reason")

		if err := svc.Threads.Resolve(ctx, threads.ResolveInput{
			ThreadID:   threadID,
			ResolvedBy: by,
			Reason:     reason,
		}); err != nil {
			return errs.Wrap(err, "resolve thread")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "thread %s resolved\n", bridge.FormatThreadRef(threadID))
		return nil
	}),
}

var threadsArchiveCmd = &cobra.Command{
	Use:   "archive <ref>",
	Short: "Archive a resolved thread immediately",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		threadID, err := bridge.ParseThreadRef(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		if err := svc.Threads.Archive(ctx, threadID); err != nil {
			return errs.Wrap(err, "archive thread")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "thread %s archived\n", bridge.FormatThreadRef(threadID))
		return nil
	}),
}

var threadsSummaryCmd = &cobra.Command{
	Use:   "summary <ref>",
	Short: "Print a one-line summary of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		threadID, err := bridge.ParseThreadRef(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}
		summary, err := svc.Threads.Summary(ctx, threadID)
		if err != nil {
			return errs.Wrap(err, "summarize thread")
		}
		fmt.Fprintln(cmd.OutOrStdout(), summary)
		return nil
	}),
}

var threadsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive resolved threads older than the given age",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		maxAge, _ := cmd.Flags().GetDuration("max-age")
		n, err := svc.Threads.CleanupExpired(ctx, maxAge)
		if err != nil {
			return errs.Wrap(err, "cleanup threads")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d threads archived\n", n)
		return nil
	}),
}

func init() {
	threadsListCmd.Flags().String("room", "", "Only threads bridged into this room")
	threadsListCmd.Flags().String("participant", "", "Only threads this chat user took part in")
	threadsResolveCmd.Flags().String("by", "", "Who resolved the thread")
	threadsResolveCmd.Flags().String("reason", "", "Resolution note")
	threadsCleanupCmd.Flags().Duration("max-age", 720*time.Hour, "Resolved threads older than this get archived")

	threadsCmd.AddCommand(threadsListCmd, threadsShowCmd, threadsResolveCmd,
		threadsArchiveCmd, threadsSummaryCmd, threadsCleanupCmd)
	rootCmd.AddCommand(threadsCmd)
}
