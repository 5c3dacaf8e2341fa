package ports

import (
	"context"
	"time"

	"revbridge/internal/domain/bridge"
)

// Lookups across all repositories report absence as a false boolean, never
// as an error. Only malformed input or storage failures produce errors.

type IdentityRepository interface {
	UpsertIdentity(ctx context.Context, identity bridge.VirtualIdentity) error
	GetIdentity(ctx context.Context, identityKey string) (bridge.VirtualIdentity, bool, error)
	ListIdentities(ctx context.Context) ([]bridge.VirtualIdentity, error)
	// DeleteIdentitiesInactiveSince removes identity objects only; identity
	// mappings are the historical record and survive reaping.
	DeleteIdentitiesInactiveSince(ctx context.Context, cutoff time.Time) (int64, error)

	UpsertIdentityMapping(ctx context.Context, mapping bridge.IdentityMapping) error
	GetMappingByReview(ctx context.Context, reviewID string) (bridge.IdentityMapping, bool, error)
	GetMappingByIdentity(ctx context.Context, identityKey string) (bridge.IdentityMapping, bool, error)
	CountIdentities(ctx context.Context) (int64, error)
	CountIdentityMappings(ctx context.Context) (int64, error)
}

type RoomRepository interface {
	UpsertRoom(ctx context.Context, room bridge.ChatRoom) error
	GetRoom(ctx context.Context, roomID string) (bridge.ChatRoom, bool, error)
	ListRooms(ctx context.Context) ([]bridge.ChatRoom, error)

	UpsertRoomMapping(ctx context.Context, mapping bridge.RoomMapping) error
	GetMappingForRoom(ctx context.Context, roomID string) (bridge.RoomMapping, bool, error)
	ListMappingsForApp(ctx context.Context, appID string) ([]bridge.RoomMapping, error)
	ListRoomMappings(ctx context.Context) ([]bridge.RoomMapping, error)
	DeleteMappingsForRoom(ctx context.Context, roomID string) (int64, error)
}

type ConversationRepository interface {
	// CreateMessageMapping inserts unless a mapping for the same event id
	// already exists; the bool reports whether a row was actually inserted.
	CreateMessageMapping(ctx context.Context, mapping bridge.MessageMapping) (bool, error)
	GetMappingByEvent(ctx context.Context, eventID string) (bridge.MessageMapping, bool, error)
	// GetLatestMappingForReview returns the most recently created mapping
	// when several exist for one review.
	GetLatestMappingForReview(ctx context.Context, reviewID string) (bridge.MessageMapping, bool, error)
	ListMappingsForReview(ctx context.Context, reviewID string) ([]bridge.MessageMapping, error)
	CountMessageMappings(ctx context.Context) (int64, error)
	CountMessageMappingsByKind(ctx context.Context) (map[string]int64, error)
}

type ThreadRepository interface {
	CreateThread(ctx context.Context, thread bridge.Thread) (bridge.Thread, error)
	GetThread(ctx context.Context, threadID uint64) (bridge.Thread, bool, error)
	GetThreadByReview(ctx context.Context, reviewID string) (bridge.Thread, bool, error)
	GetThreadByEvent(ctx context.Context, eventID string) (bridge.Thread, bool, error)
	ListThreadsByRoom(ctx context.Context, roomID string) ([]bridge.Thread, error)
	ListThreadsByParticipant(ctx context.Context, userID string) ([]bridge.Thread, error)
	ListThreads(ctx context.Context) ([]bridge.Thread, error)
	UpdateThread(ctx context.Context, thread bridge.Thread) error

	AppendThreadMessage(ctx context.Context, message bridge.ThreadMessage) error
	ListThreadMessages(ctx context.Context, threadID uint64) ([]bridge.ThreadMessage, error)
	AddParticipant(ctx context.Context, threadID uint64, userID string) error

	ListExpiredThreads(ctx context.Context, cutoff time.Time) ([]bridge.Thread, error)
	// DeleteThread removes the thread row together with its messages and
	// participant entries, so no secondary index keeps a dangling reference.
	DeleteThread(ctx context.Context, threadID uint64) error
	CountThreadsByStatus(ctx context.Context) (map[string]int64, error)
}

type ReviewRepository interface {
	UpsertReview(ctx context.Context, review bridge.Review) error
	GetReview(ctx context.Context, reviewID string) (bridge.Review, bool, error)
	CountReviews(ctx context.Context) (int64, error)
}
