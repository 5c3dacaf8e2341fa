package ports

import (
	"context"

	"revbridge/internal/domain/bridge"
)

// RoomIntent abstracts the chat transport. Failures surface as opaque
// transport errors; the core never inspects them, it only guarantees that
// no registry mutation has been committed when a call fails.
type RoomIntent interface {
	// SendMessage delivers content into a room and returns the event id the
	// homeserver assigned.
	SendMessage(ctx context.Context, roomID string, content string) (string, error)
	// SendMessageAs sends on behalf of a virtual identity, provisioning it
	// on the homeserver first if needed.
	SendMessageAs(ctx context.Context, identity bridge.VirtualIdentity, roomID string, content string) (string, error)
	JoinRoom(ctx context.Context, roomID string) error
	GetProfile(ctx context.Context, identityKey string) (displayName string, avatarRef string, err error)
}

// ReviewSink accepts inbound reviews from whichever source delivers them.
type ReviewSink interface {
	HandleReview(ctx context.Context, review bridge.Review) error
}

// ReviewSource is a running delivery channel for store reviews. Start
// blocks until ctx is cancelled or the source fails.
type ReviewSource interface {
	Start(ctx context.Context, sink ReviewSink) error
}

// ReplySubmitter pushes a developer reply back to the external store.
type ReplySubmitter interface {
	SubmitReply(ctx context.Context, appID string, reviewID string, body string) error
}
