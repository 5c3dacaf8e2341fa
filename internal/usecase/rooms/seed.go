package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/errs"
)

// SeedFile is the declarative apps.toml format: app↔room bindings with
// per-room policy overrides, applied idempotently at startup or via
// `revbridge rooms seed`.
type SeedFile struct {
	Apps []SeedApp `toml:"app"`
}

type SeedApp struct {
	ID    string     `toml:"id"`
	Name  string     `toml:"name"`
	Rooms []SeedRoom `toml:"room"`
}

type SeedRoom struct {
	ID                 string `toml:"id"`
	Type               string `toml:"type"`
	ForwardReviews     *bool  `toml:"forward_reviews"`
	AllowReplies       *bool  `toml:"allow_replies"`
	MinRatingToForward *int   `toml:"min_rating"`
	UpdatesOnly        *bool  `toml:"updates_only"`
}

func LoadSeedFile(path string) (SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, errs.Wrapf(err, "read seed file %q", path)
	}

	var seed SeedFile
	if err := toml.Unmarshal(raw, &seed); err != nil {
		return SeedFile{}, errs.Wrapf(err, "parse seed file %q", path)
	}

	for i, app := range seed.Apps {
		if strings.TrimSpace(app.ID) == "" {
			return SeedFile{}, fmt.Errorf("seed app #%d is missing id", i+1)
		}
		for j, room := range app.Rooms {
			if strings.TrimSpace(room.ID) == "" {
				return SeedFile{}, fmt.Errorf("seed app %q room #%d is missing id", app.ID, j+1)
			}
		}
	}
	return seed, nil
}

// ApplySeed binds every app/room pair in the seed. Re-applying the same
// file is a no-op update thanks to the upsert keyed by (app, room, type).
func (s *Service) ApplySeed(ctx context.Context, seed SeedFile) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	bound := 0
	for _, app := range seed.Apps {
		for _, room := range app.Rooms {
			overrides := &PolicyOverrides{
				ForwardReviews:     room.ForwardReviews,
				AllowReplies:       room.AllowReplies,
				MinRatingToForward: room.MinRatingToForward,
				UpdatesOnly:        room.UpdatesOnly,
			}
			if _, err := s.BindAppToRoom(ctx, BindAppToRoomInput{
				AppID:     app.ID,
				AppName:   app.Name,
				RoomID:    room.ID,
				RoomType:  room.Type,
				Overrides: overrides,
			}); err != nil {
				return bound, errs.Wrapf(err, "bind %s to %s", app.ID, room.ID)
			}
			bound++
		}
	}

	logging.Info(ctx, "room seed applied",
		slog.String("component", "rooms"),
		slog.Int("bindings", bound),
	)
	return bound, nil
}
