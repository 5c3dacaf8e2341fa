package bridge

import (
	"fmt"
	"strings"
	"time"
)

const (
	KindReview       = "review"
	KindReply        = "reply"
	KindNotification = "notification"
)

// MessageMapping records the 1:1 correspondence between one external
// review/reply and the chat event it produced. The event id side is unique:
// a second mapping for the same event means the transport re-delivered.
type MessageMapping struct {
	ReviewID  string
	EventID   string
	RoomID    string
	Kind      string
	AppID     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeKind validates a mapping kind label. Empty input defaults to
// the review kind.
func NormalizeKind(kind string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(kind))
	if trimmed == "" {
		return KindReview, nil
	}

	switch trimmed {
	case KindReview, KindReply, KindNotification:
		return trimmed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}
