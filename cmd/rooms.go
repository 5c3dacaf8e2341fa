package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
	"revbridge/internal/usecase/rooms"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Manage chat rooms and app bindings",
}

var roomsRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a room in the registry",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := cmd.Context()
		roomID, _ := cmd.Flags().GetString("room")
		name, _ := cmd.Flags().GetString("name")
		topic, _ := cmd.Flags().GetString("topic")

		room, err := svc.Rooms.RegisterRoom(ctx, rooms.RegisterRoomInput{
			RoomID: roomID,
			Name:   name,
			Topic:  topic,
		})
		if err != nil {
			return errs.Wrap(err, "register room")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room registered: %s (%s)\n", room.RoomID, room.Name)
		return nil
	}),
}

var roomsBindCmd = &cobra.Command{
	Use:   "bind",
	Short: "Bind an app to a room",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := cmd.Context()
		appID, _ := cmd.Flags().GetString("app")
		appName, _ := cmd.Flags().GetString("app-name")
		roomID, _ := cmd.Flags().GetString("room")
		roomType, _ := cmd.Flags().GetString("type")

		// Only flags the operator actually set become overrides; the rest
		// falls through to the default policy.
		overrides := &rooms.PolicyOverrides{}
		if cmd.Flags().Changed("forward") {
			v, _ := cmd.Flags().GetBool("forward")
			overrides.ForwardReviews = &v
		}
		if cmd.Flags().Changed("allow-replies") {
			v, _ := cmd.Flags().GetBool("allow-replies")
			overrides.AllowReplies = &v
		}
		if cmd.Flags().Changed("min-rating") {
			v, _ := cmd.Flags().GetInt("min-rating")
			overrides.MinRatingToForward = &v
		}
		if cmd.Flags().Changed("updates-only") {
			v, _ := cmd.Flags().GetBool("updates-only")
			overrides.UpdatesOnly = &v
		}

		mapping, err := svc.Rooms.BindAppToRoom(ctx, rooms.BindAppToRoomInput{
			AppID:     appID,
			AppName:   appName,
			RoomID:    roomID,
			RoomType:  roomType,
			Overrides: overrides,
		})
		if err != nil {
			return errs.Wrap(err, "bind app to room")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "bound app %s to room %s (%s)\n", mapping.AppID, mapping.RoomID, mapping.RoomType)
		return nil
	}),
}

var roomsUnbindCmd = &cobra.Command{
	Use:   "unbind",
	Short: "Remove all app bindings of a room",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := cmd.Context()
		roomID, _ := cmd.Flags().GetString("room")

		removed, err := svc.Rooms.Unbind(ctx, roomID)
		if err != nil {
			return errs.Wrap(err, "unbind room")
		}
		if removed {
			fmt.Fprintf(cmd.OutOrStdout(), "room %s unbound\n", roomID)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "room %s had no bindings\n", roomID)
		}
		return nil
	}),
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rooms and bindings",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := cmd.Context()

		roomList, err := svc.Rooms.ListRooms(ctx)
		if err != nil {
			return errs.Wrap(err, "list rooms")
		}
		mappings, err := svc.Rooms.ListMappings(ctx)
		if err != nil {
			return errs.Wrap(err, "list mappings")
		}

		out := cmd.OutOrStdout()
		if len(roomList) == 0 {
			fmt.Fprintln(out, "no rooms registered")
			return nil
		}
		for _, room := range roomList {
			joined := " "
			if room.Joined {
				joined = "*"
			}
			fmt.Fprintf(out, "%s %s  %s\n", joined, room.RoomID, room.Name)
			for _, mapping := range mappings {
				if mapping.RoomID != room.RoomID {
					continue
				}
				fmt.Fprintf(out, "    app=%s type=%s forward=%v replies=%v min_rating=%d\n",
					mapping.AppID, mapping.RoomType,
					mapping.Policy.ForwardReviews, mapping.Policy.AllowReplies, mapping.Policy.MinRatingToForward)
			}
		}
		return nil
	}),
}

var roomsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply an apps.toml seed file of apps and room bindings",
	RunE: withApp(func(cmd *cobra.Command, svc *services) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))
		file, _ := cmd.Flags().GetString("file")

		seed, err := rooms.LoadSeedFile(file)
		if err != nil {
			return errs.Wrap(err, "load seed file")
		}
		applied, err := svc.Rooms.ApplySeed(ctx, seed)
		if err != nil {
			return errs.Wrap(err, "apply seed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seed applied: %d bindings\n", applied)
		return nil
	}),
}

func init() {
	roomsRegisterCmd.Flags().String("room", "", "Room id")
	roomsRegisterCmd.Flags().String("name", "", "Room display name")
	roomsRegisterCmd.Flags().String("topic", "", "Room topic")
	_ = roomsRegisterCmd.MarkFlagRequired("room")

	roomsBindCmd.Flags().String("app", "", "App id")
	roomsBindCmd.Flags().String("app-name", "", "App display name")
	roomsBindCmd.Flags().String("room", "", "Room id")
	roomsBindCmd.Flags().String("type", "reviews", "Room type (reviews|admin|general)")
	roomsBindCmd.Flags().Bool("forward", true, "Forward new reviews into this room")
	roomsBindCmd.Flags().Bool("allow-replies", true, "Relay operator replies from this room")
	roomsBindCmd.Flags().Int("min-rating", 0, "Only forward reviews rated at least this")
	roomsBindCmd.Flags().Bool("updates-only", false, "Only forward edits of already-seen reviews")
	_ = roomsBindCmd.MarkFlagRequired("app")
	_ = roomsBindCmd.MarkFlagRequired("room")

	roomsUnbindCmd.Flags().String("room", "", "Room id")
	_ = roomsUnbindCmd.MarkFlagRequired("room")

	roomsSeedCmd.Flags().String("file", "configs/apps.toml", "Seed file path")

	roomsCmd.AddCommand(roomsRegisterCmd)
	roomsCmd.AddCommand(roomsBindCmd)
	roomsCmd.AddCommand(roomsUnbindCmd)
	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsSeedCmd)
	rootCmd.AddCommand(roomsCmd)
}
