package bridge

import "time"

// Review is the canonical copy of an external store review or reply payload.
// It is produced by the ingest side and read-only to the bridge core.
type Review struct {
	ID         string
	AppID      string
	Author     string
	Body       string
	Rating     int
	Locale     string
	Device     string
	OSVersion  string
	AppVersion string
	CreatedAt  time.Time
	ModifiedAt time.Time
	HasReply   bool
	Reply      ReviewReply
}

// ReviewReply is the developer-side answer attached to a store review.
type ReviewReply struct {
	Body       string
	ModifiedAt time.Time
}

// Stars renders a 1..5 rating as filled/empty star runes. Out-of-range
// ratings render as all-empty.
func Stars(rating int) string {
	if rating < 1 || rating > 5 {
		return "☆☆☆☆☆"
	}

	out := make([]rune, 0, 5)
	for i := 1; i <= 5; i++ {
		if i <= rating {
			out = append(out, '★')
		} else {
			out = append(out, '☆')
		}
	}
	return string(out)
}
