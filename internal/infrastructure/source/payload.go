// Package source delivers store reviews into the bridge. Three transports
// are implemented: an authenticated HTTP poller against the store API, a
// drop-directory watcher for file-based hand-off, and a NATS subscriber
// for brokered delivery. All of them parse the same payload and hand
// bridge.Review values to a ports.ReviewSink.
package source

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"revbridge/internal/domain/bridge"
)

// ReviewPayload is the wire format a source delivers. One payload carries
// one review, optionally with the developer reply already attached.
type ReviewPayload struct {
	ID         string `json:"id"`
	AppID      string `json:"app_id"`
	Author     string `json:"author,omitempty"`
	Body       string `json:"body"`
	Rating     int    `json:"rating"`
	Locale     string `json:"locale,omitempty"`
	Device     string `json:"device,omitempty"`
	OSVersion  string `json:"os_version,omitempty"`
	AppVersion string `json:"app_version,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`

	Reply *ReplyPayload `json:"reply,omitempty"`
}

// ReplyPayload is the developer-side answer embedded in a review payload.
type ReplyPayload struct {
	Body       string `json:"body"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Validate checks the required fields and rating range.
func (p ReviewPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return bridge.ErrReviewIDRequired
	}
	if strings.TrimSpace(p.AppID) == "" {
		return bridge.ErrAppIDRequired
	}
	if p.Rating < 1 || p.Rating > 5 {
		return fmt.Errorf("%w: rating %d out of range", bridge.ErrInvalidOperation, p.Rating)
	}
	return nil
}

// ToReview converts the payload into the canonical domain form. Timestamps
// are RFC 3339; unparsable or absent ones fall back to now.
func (p ReviewPayload) ToReview(now time.Time) bridge.Review {
	review := bridge.Review{
		ID:         strings.TrimSpace(p.ID),
		AppID:      strings.TrimSpace(p.AppID),
		Author:     strings.TrimSpace(p.Author),
		Body:       p.Body,
		Rating:     p.Rating,
		Locale:     p.Locale,
		Device:     p.Device,
		OSVersion:  p.OSVersion,
		AppVersion: p.AppVersion,
		CreatedAt:  parseTime(p.CreatedAt, now),
		ModifiedAt: parseTime(p.ModifiedAt, now),
	}
	if p.Reply != nil && strings.TrimSpace(p.Reply.Body) != "" {
		review.HasReply = true
		review.Reply = bridge.ReviewReply{
			Body:       p.Reply.Body,
			ModifiedAt: parseTime(p.Reply.ModifiedAt, now),
		}
	}
	return review
}

// ParsePayload decodes and validates one JSON payload.
func ParsePayload(raw []byte) (ReviewPayload, error) {
	var payload ReviewPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ReviewPayload{}, fmt.Errorf("decode review payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return ReviewPayload{}, err
	}
	return payload, nil
}

func parseTime(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fallback
	}
	return t.UTC()
}
