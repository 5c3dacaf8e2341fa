package identity

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

// Service is the identity registry: the only authority for virtual
// identities and review↔identity mappings.
type Service struct {
	repo       ports.IdentityRepository
	locks      *keymutex.Sharded
	homeDomain string
	sourceName string
	now        func() time.Time
}

func NewService(repo ports.IdentityRepository, locks *keymutex.Sharded, homeDomain string, sourceName string) *Service {
	return &Service{
		repo:       repo,
		locks:      locks,
		homeDomain: strings.TrimSpace(homeDomain),
		sourceName: strings.TrimSpace(sourceName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type ResolveOrCreateInput struct {
	ReviewID    string
	AccountName string
}

// ResolveOrCreate derives the stable identity key for a review and inserts
// or refreshes exactly one virtual identity. Calling it twice with the same
// input returns the same identity; the second call only refreshes
// last_active_at (and the display name when a non-empty one is supplied).
func (s *Service) ResolveOrCreate(ctx context.Context, input ResolveOrCreateInput) (bridge.VirtualIdentity, error) {
	if ctx == nil {
		return bridge.VirtualIdentity{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.VirtualIdentity{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.VirtualIdentity{}, errors.New("identity repository is required")
	}

	key, err := bridge.DeriveIdentityKey(input.ReviewID, s.homeDomain)
	if err != nil {
		return bridge.VirtualIdentity{}, err
	}

	unlock := s.locks.Lock("identity:" + key)
	defer unlock()

	now := s.now()
	accountName := strings.TrimSpace(input.AccountName)

	existing, found, err := s.repo.GetIdentity(ctx, key)
	if err != nil {
		return bridge.VirtualIdentity{}, err
	}

	if found {
		existing.LastActiveAt = now
		if accountName != "" {
			existing.DisplayName = accountName
		}
		if err := s.repo.UpsertIdentity(ctx, existing); err != nil {
			return bridge.VirtualIdentity{}, err
		}
		return existing, nil
	}

	displayName := accountName
	if displayName == "" {
		displayName = bridge.PlaceholderDisplayName(s.sourceName, input.ReviewID)
	}

	created := bridge.VirtualIdentity{
		Key:          key,
		DisplayName:  displayName,
		Virtual:      true,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if err := s.repo.UpsertIdentity(ctx, created); err != nil {
		return bridge.VirtualIdentity{}, err
	}

	logging.Info(ctx, "virtual identity created",
		slog.String("component", "identity"),
		slog.String("identity_key", key),
	)
	return created, nil
}

// IsBridgeOwned reports whether the key lives in the bridge's identity
// namespace. Operations on non-owned keys must be rejected by callers.
func (s *Service) IsBridgeOwned(identityKey string) bool {
	return bridge.IsBridgeOwnedKey(identityKey)
}

type CreateAccountMappingInput struct {
	ReviewID    string
	IdentityKey string
	AccountName string
	AppID       string
}

// CreateAccountMapping records the review↔identity cross-reference.
// Idempotent by review id: re-invocation updates account name and app id on
// the existing record instead of creating a second one.
func (s *Service) CreateAccountMapping(ctx context.Context, input CreateAccountMappingInput) (bridge.IdentityMapping, error) {
	if ctx == nil {
		return bridge.IdentityMapping{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.IdentityMapping{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.IdentityMapping{}, errors.New("identity repository is required")
	}

	reviewID := strings.TrimSpace(input.ReviewID)
	if reviewID == "" {
		return bridge.IdentityMapping{}, bridge.ErrReviewIDRequired
	}
	identityKey := strings.TrimSpace(input.IdentityKey)
	if !bridge.IsBridgeOwnedKey(identityKey) {
		return bridge.IdentityMapping{}, fmt.Errorf("%w: %q", bridge.ErrIdentityKeyInvalid, identityKey)
	}

	unlock := s.locks.Lock("identity-mapping:" + reviewID)
	defer unlock()

	now := s.now()

	mapping := bridge.IdentityMapping{
		ReviewID:    reviewID,
		IdentityKey: identityKey,
		AccountName: strings.TrimSpace(input.AccountName),
		AppID:       strings.TrimSpace(input.AppID),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing, found, err := s.repo.GetMappingByReview(ctx, reviewID); err != nil {
		return bridge.IdentityMapping{}, err
	} else if found {
		mapping.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.UpsertIdentityMapping(ctx, mapping); err != nil {
		return bridge.IdentityMapping{}, err
	}
	return mapping, nil
}

func (s *Service) List(ctx context.Context) ([]bridge.VirtualIdentity, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListIdentities(ctx)
}

func (s *Service) FindMappingByReview(ctx context.Context, reviewID string) (bridge.IdentityMapping, bool, error) {
	if ctx == nil {
		return bridge.IdentityMapping{}, false, errors.New("context is required")
	}
	return s.repo.GetMappingByReview(ctx, reviewID)
}

func (s *Service) FindMappingByIdentity(ctx context.Context, identityKey string) (bridge.IdentityMapping, bool, error) {
	if ctx == nil {
		return bridge.IdentityMapping{}, false, errors.New("context is required")
	}
	return s.repo.GetMappingByIdentity(ctx, identityKey)
}

// ReapInactive removes virtual identities idle longer than maxAge. Identity
// mappings stay behind on purpose: they are the historical record.
func (s *Service) ReapInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	if maxAge <= 0 {
		return 0, fmt.Errorf("%w: reap max age must be positive", bridge.ErrInvalidOperation)
	}

	cutoff := s.now().Add(-maxAge)
	removed, err := s.repo.DeleteIdentitiesInactiveSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		logging.Info(ctx, "inactive identities reaped",
			slog.String("component", "identity"),
			slog.Int64("removed", removed),
		)
	}
	return removed, nil
}

type Stats struct {
	Identities int64 `json:"identities" yaml:"identities"`
	Mappings   int64 `json:"mappings" yaml:"mappings"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}

	identities, err := s.repo.CountIdentities(ctx)
	if err != nil {
		return Stats{}, err
	}
	mappings, err := s.repo.CountIdentityMappings(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Identities: identities, Mappings: mappings}, nil
}
