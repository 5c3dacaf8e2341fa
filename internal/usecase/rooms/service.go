package rooms

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/keymutex"
	"revbridge/internal/ports"
)

// Service is the room registry: app↔room bindings and the forwarding
// policy decisions derived from them. Policies are read fresh from the
// repository for every decision, never cached.
type Service struct {
	repo  ports.RoomRepository
	cache ports.Cache
	locks *keymutex.Sharded
	now   func() time.Time
}

func NewService(repo ports.RoomRepository, cache ports.Cache, locks *keymutex.Sharded) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		locks: locks,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type RegisterRoomInput struct {
	RoomID string
	Name   string
	Topic  string
}

// RegisterRoom upserts a room record. Non-empty inputs overwrite, absent
// inputs preserve existing values; last_active_at is always refreshed.
func (s *Service) RegisterRoom(ctx context.Context, input RegisterRoomInput) (bridge.ChatRoom, error) {
	if ctx == nil {
		return bridge.ChatRoom{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.ChatRoom{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.ChatRoom{}, errors.New("room repository is required")
	}

	roomID := strings.TrimSpace(input.RoomID)
	if roomID == "" {
		return bridge.ChatRoom{}, bridge.ErrRoomIDRequired
	}

	unlock := s.locks.Lock("room:" + roomID)
	defer unlock()

	now := s.now()

	room, found, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return bridge.ChatRoom{}, err
	}
	if !found {
		room = bridge.ChatRoom{
			RoomID:    roomID,
			CreatedAt: now,
		}
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		room.Name = name
	}
	if topic := strings.TrimSpace(input.Topic); topic != "" {
		room.Topic = topic
	}
	room.LastActiveAt = now

	if err := s.repo.UpsertRoom(ctx, room); err != nil {
		return bridge.ChatRoom{}, err
	}
	return room, nil
}

// MarkJoined flips the joined flag. Unknown rooms are registered first, so
// a join observed before any explicit mapping still self-heals.
func (s *Service) MarkJoined(ctx context.Context, roomID string) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	trimmed := strings.TrimSpace(roomID)
	if trimmed == "" {
		return bridge.ErrRoomIDRequired
	}

	unlock := s.locks.Lock("room:" + trimmed)
	defer unlock()

	now := s.now()

	room, found, err := s.repo.GetRoom(ctx, trimmed)
	if err != nil {
		return err
	}
	if !found {
		room = bridge.ChatRoom{
			RoomID:    trimmed,
			CreatedAt: now,
		}
	}

	room.Joined = true
	room.LastActiveAt = now

	if err := s.repo.UpsertRoom(ctx, room); err != nil {
		return err
	}

	logging.Info(ctx, "room marked joined",
		slog.String("component", "rooms"),
		slog.String("room_id", trimmed),
	)
	return nil
}

// PolicyOverrides selectively replaces default policy fields. Nil fields
// keep the default.
type PolicyOverrides struct {
	ForwardReviews     *bool
	AllowReplies       *bool
	MinRatingToForward *int
	UpdatesOnly        *bool
}

func (o *PolicyOverrides) apply(policy bridge.ForwardPolicy) bridge.ForwardPolicy {
	if o == nil {
		return policy
	}
	if o.ForwardReviews != nil {
		policy.ForwardReviews = *o.ForwardReviews
	}
	if o.AllowReplies != nil {
		policy.AllowReplies = *o.AllowReplies
	}
	if o.MinRatingToForward != nil {
		policy.MinRatingToForward = *o.MinRatingToForward
	}
	if o.UpdatesOnly != nil {
		policy.UpdatesOnly = *o.UpdatesOnly
	}
	return policy
}

type BindAppToRoomInput struct {
	AppID     string
	AppName   string
	RoomID    string
	RoomType  string
	Overrides *PolicyOverrides
}

// BindAppToRoom creates or updates the mapping keyed by (app, room, type).
func (s *Service) BindAppToRoom(ctx context.Context, input BindAppToRoomInput) (bridge.RoomMapping, error) {
	if ctx == nil {
		return bridge.RoomMapping{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.RoomMapping{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.RoomMapping{}, errors.New("room repository is required")
	}

	appID := strings.TrimSpace(input.AppID)
	if appID == "" {
		return bridge.RoomMapping{}, bridge.ErrAppIDRequired
	}
	roomID := strings.TrimSpace(input.RoomID)
	if roomID == "" {
		return bridge.RoomMapping{}, bridge.ErrRoomIDRequired
	}
	roomType, err := bridge.NormalizeRoomType(input.RoomType)
	if err != nil {
		return bridge.RoomMapping{}, err
	}

	unlock := s.locks.Lock("room:" + roomID)
	defer unlock()

	now := s.now()

	mapping := bridge.RoomMapping{
		AppID:     appID,
		RoomID:    roomID,
		AppName:   strings.TrimSpace(input.AppName),
		RoomType:  roomType,
		Policy:    input.Overrides.apply(bridge.DefaultForwardPolicy()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertRoomMapping(ctx, mapping); err != nil {
		return bridge.RoomMapping{}, err
	}

	// Keep a room record alongside the binding so the room shows up in
	// listings even before the first chat event is seen.
	room, found, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		return bridge.RoomMapping{}, err
	}
	if !found {
		room = bridge.ChatRoom{RoomID: roomID, CreatedAt: now}
	}
	room.LastActiveAt = now
	if err := s.repo.UpsertRoom(ctx, room); err != nil {
		return bridge.RoomMapping{}, err
	}

	s.setCacheBestEffort(ctx, shortcutKey(roomID), appID)

	logging.Info(ctx, "app bound to room",
		slog.String("component", "rooms"),
		slog.String("app_id", appID),
		slog.String("room_id", roomID),
		slog.String("room_type", roomType),
	)
	return mapping, nil
}

func (s *Service) MappingForRoom(ctx context.Context, roomID string) (bridge.RoomMapping, bool, error) {
	if ctx == nil {
		return bridge.RoomMapping{}, false, errors.New("context is required")
	}
	return s.repo.GetMappingForRoom(ctx, roomID)
}

func (s *Service) MappingsForApp(ctx context.Context, appID string) ([]bridge.RoomMapping, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListMappingsForApp(ctx, appID)
}

func (s *Service) ListRooms(ctx context.Context) ([]bridge.ChatRoom, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListRooms(ctx)
}

func (s *Service) ListMappings(ctx context.Context) ([]bridge.RoomMapping, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListRoomMappings(ctx)
}

// ShouldForward is the forwarding decision. Absence of a mapping means "do
// not forward", not an error. A zero rating skips the minimum-rating check.
func (s *Service) ShouldForward(ctx context.Context, appID string, roomID string, rating int) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}

	mapping, found, err := s.repo.GetMappingForRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return mapping.ShouldForward(strings.TrimSpace(appID), rating), nil
}

// CanReply reports whether the room's policy allows replying to reviews.
func (s *Service) CanReply(ctx context.Context, roomID string) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}

	mapping, found, err := s.repo.GetMappingForRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return mapping.Policy.AllowReplies, nil
}

// Unbind removes the room's mappings and the derived app↔room shortcut.
// Idempotent: unbinding a room with no mapping returns false, not an error.
func (s *Service) Unbind(ctx context.Context, roomID string) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(err, "check context")
	}

	trimmed := strings.TrimSpace(roomID)
	if trimmed == "" {
		return false, bridge.ErrRoomIDRequired
	}

	unlock := s.locks.Lock("room:" + trimmed)
	defer unlock()

	removed, err := s.repo.DeleteMappingsForRoom(ctx, trimmed)
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, shortcutKey(trimmed))
	}

	if removed > 0 {
		logging.Info(ctx, "room unbound",
			slog.String("component", "rooms"),
			slog.String("room_id", trimmed),
			slog.Int64("mappings_removed", removed),
		)
	}
	return removed > 0, nil
}

type Stats struct {
	Rooms    int64 `json:"rooms" yaml:"rooms"`
	Joined   int64 `json:"joined" yaml:"joined"`
	Mappings int64 `json:"mappings" yaml:"mappings"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}

	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		return Stats{}, err
	}
	mappings, err := s.repo.ListRoomMappings(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Rooms:    int64(len(rooms)),
		Mappings: int64(len(mappings)),
	}
	for _, room := range rooms {
		if room.Joined {
			stats.Joined++
		}
	}
	return stats, nil
}

func (s *Service) setCacheBestEffort(ctx context.Context, key string, value string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, value, 0)
}

func shortcutKey(roomID string) string {
	return "room_app:" + roomID
}
