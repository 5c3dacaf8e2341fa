package bridge

import (
	"fmt"
	"strings"
	"time"
)

type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadResolved ThreadStatus = "resolved"
	ThreadArchived ThreadStatus = "archived"
)

// allowedThreadTransitions is the full lifecycle table. Archived is
// terminal; resolved reopens to active on new activity.
var allowedThreadTransitions = map[ThreadStatus]map[ThreadStatus]bool{
	ThreadActive: {
		ThreadResolved: true,
		ThreadArchived: true,
	},
	ThreadResolved: {
		ThreadActive:   true,
		ThreadArchived: true,
	},
	ThreadArchived: {},
}

// CanTransitionThread reports whether a status change is legal.
func CanTransitionThread(from ThreadStatus, to ThreadStatus) bool {
	targets, ok := allowedThreadTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Thread groups a review and all of its reply traffic into one ongoing
// conversation. Generation increments on every reopen so that a deferred
// archive scheduled against an older generation can detect it is stale.
type Thread struct {
	ThreadID     uint64
	ReviewID     string
	AppID        string
	RoomID       string
	RootEventID  string
	Status       ThreadStatus
	Generation   uint64
	MessageCount int
	Participants []string
	Tags         []string
	CreatedAt    time.Time
	LastActivity time.Time
	ResolvedBy   string
	ResolveNote  string
}

// ThreadMessage is one chat event appended to a thread.
type ThreadMessage struct {
	EventID          string
	ThreadID         uint64
	UserID           string
	Content          string
	Kind             string
	BridgeOriginated bool
	CreatedAt        time.Time
}

// DeriveThreadTags computes the room-side filter tags for a new thread from
// its originating review. Not correctness-critical; used for search only.
func DeriveThreadTags(review Review) []string {
	tags := make([]string, 0, 3)

	switch {
	case review.Rating >= 1 && review.Rating <= 2:
		tags = append(tags, "negative")
	case review.Rating >= 4:
		tags = append(tags, "positive")
	default:
		tags = append(tags, "neutral")
	}

	if strings.TrimSpace(review.Device) != "" {
		tags = append(tags, "device-info")
	}
	if version := strings.TrimSpace(review.AppVersion); version != "" {
		tags = append(tags, "version-"+strings.ReplaceAll(version, ".", "_"))
	}

	return tags
}

// FormatThreadRef renders a thread id the way operators reference it.
func FormatThreadRef(threadID uint64) string {
	return fmt.Sprintf("#%d", threadID)
}

// ParseThreadRef accepts "#12" or "12".
func ParseThreadRef(ref string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if trimmed == "" {
		return 0, fmt.Errorf("%w: thread ref is required", ErrInvalidOperation)
	}

	var id uint64
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: invalid thread ref %q", ErrInvalidOperation, ref)
		}
		id = id*10 + uint64(r-'0')
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: invalid thread ref %q", ErrInvalidOperation, ref)
	}
	return id, nil
}
