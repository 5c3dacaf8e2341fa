package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/keymutex"
	"revbridge/internal/ports"
)

// Service is the conversation index: the 1:1 record of which chat event
// carries which review or reply, keyed both ways.
type Service struct {
	repo  ports.ConversationRepository
	locks *keymutex.Sharded
	now   func() time.Time
}

func NewService(repo ports.ConversationRepository, locks *keymutex.Sharded) *Service {
	return &Service{
		repo:  repo,
		locks: locks,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

type RecordMessageInput struct {
	ReviewID string
	EventID  string
	RoomID   string
	Kind     string
	AppID    string
}

// RecordMessage stores the review↔event correspondence. Recording the same
// event id twice is the one place duplication is a hard error: it means the
// transport re-delivered and accounting would otherwise double-count.
func (s *Service) RecordMessage(ctx context.Context, input RecordMessageInput) (bridge.MessageMapping, error) {
	if ctx == nil {
		return bridge.MessageMapping{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.MessageMapping{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.MessageMapping{}, errors.New("conversation repository is required")
	}

	reviewID := strings.TrimSpace(input.ReviewID)
	if reviewID == "" {
		return bridge.MessageMapping{}, bridge.ErrReviewIDRequired
	}
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return bridge.MessageMapping{}, bridge.ErrEventIDRequired
	}
	roomID := strings.TrimSpace(input.RoomID)
	if roomID == "" {
		return bridge.MessageMapping{}, bridge.ErrRoomIDRequired
	}
	kind, err := bridge.NormalizeKind(input.Kind)
	if err != nil {
		return bridge.MessageMapping{}, err
	}

	unlock := s.locks.Lock("event:" + eventID)
	defer unlock()

	now := s.now()
	mapping := bridge.MessageMapping{
		ReviewID:  reviewID,
		EventID:   eventID,
		RoomID:    roomID,
		Kind:      kind,
		AppID:     strings.TrimSpace(input.AppID),
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := s.repo.CreateMessageMapping(ctx, mapping)
	if err != nil {
		return bridge.MessageMapping{}, err
	}
	if !inserted {
		return bridge.MessageMapping{}, fmt.Errorf("%w: event %s", bridge.ErrDuplicateMapping, eventID)
	}

	logging.Info(ctx, "message mapping recorded",
		slog.String("component", "conversation"),
		slog.String("review_id", reviewID),
		slog.String("event_id", eventID),
		slog.String("kind", kind),
	)
	return mapping, nil
}

func (s *Service) FindByEvent(ctx context.Context, eventID string) (bridge.MessageMapping, bool, error) {
	if ctx == nil {
		return bridge.MessageMapping{}, false, errors.New("context is required")
	}
	return s.repo.GetMappingByEvent(ctx, eventID)
}

// FindByReview returns the current conversation pointer for a review: the
// most recently created mapping, so the latest reply supersedes the
// original review mapping.
func (s *Service) FindByReview(ctx context.Context, reviewID string) (bridge.MessageMapping, bool, error) {
	if ctx == nil {
		return bridge.MessageMapping{}, false, errors.New("context is required")
	}
	return s.repo.GetLatestMappingForReview(ctx, reviewID)
}

// ListAllForReview returns the full ordered mapping history for a review.
func (s *Service) ListAllForReview(ctx context.Context, reviewID string) ([]bridge.MessageMapping, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListMappingsForReview(ctx, reviewID)
}

// Stats is a reporting snapshot, not a transactional count; it must not
// drive business decisions.
type Stats struct {
	TotalMappings int64            `json:"total_mappings" yaml:"total_mappings"`
	ByKind        map[string]int64 `json:"by_kind" yaml:"by_kind"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}

	total, err := s.repo.CountMessageMappings(ctx)
	if err != nil {
		return Stats{}, err
	}
	byKind, err := s.repo.CountMessageMappingsByKind(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalMappings: total, ByKind: byKind}, nil
}
