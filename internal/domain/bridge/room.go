package bridge

import (
	"fmt"
	"strings"
	"time"
)

const (
	RoomTypeReviews = "reviews"
	RoomTypeAdmin   = "admin"
	RoomTypeGeneral = "general"
)

// ChatRoom is a chat-protocol room the bridge knows about.
type ChatRoom struct {
	RoomID       string
	Name         string
	Topic        string
	Joined       bool
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// ForwardPolicy decides whether and which reviews are relayed into a room.
// It is consulted fresh before every forward/reply decision, never cached.
type ForwardPolicy struct {
	ForwardReviews     bool
	AllowReplies       bool
	MinRatingToForward int
	UpdatesOnly        bool
}

// DefaultForwardPolicy returns the policy applied when a binding carries no
// overrides.
func DefaultForwardPolicy() ForwardPolicy {
	return ForwardPolicy{
		ForwardReviews:     true,
		AllowReplies:       true,
		MinRatingToForward: 0,
		UpdatesOnly:        false,
	}
}

// RoomMapping binds an external app to a chat room under a forward policy.
type RoomMapping struct {
	AppID     string
	RoomID    string
	AppName   string
	RoomType  string
	Policy    ForwardPolicy
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShouldForward applies the forwarding decision for a review against this
// mapping. Real ratings are 1..5 (ingest validation enforces this); a zero
// rating is only ever the sentinel for "no rating supplied" and skips the
// minimum-rating check instead of failing it.
func (m RoomMapping) ShouldForward(appID string, rating int) bool {
	if m.AppID != appID {
		return false
	}
	if !m.Policy.ForwardReviews {
		return false
	}
	if rating > 0 && m.Policy.MinRatingToForward > 0 && rating < m.Policy.MinRatingToForward {
		return false
	}
	return true
}

// NormalizeRoomType validates and canonicalises a room type label. Empty
// input defaults to the reviews type.
func NormalizeRoomType(roomType string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(roomType))
	if trimmed == "" {
		return RoomTypeReviews, nil
	}

	switch trimmed {
	case RoomTypeReviews, RoomTypeAdmin, RoomTypeGeneral:
		return trimmed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomType, roomType)
	}
}
