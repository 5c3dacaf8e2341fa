package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// identityLocalpartPrefix namespaces every bridge-owned identity. Any chat
// user whose localpart does not carry it is an organic user the bridge must
// never touch.
const identityLocalpartPrefix = "bridge_"

// VirtualIdentity is a synthesized chat-side identity standing in for an
// external reviewer.
type VirtualIdentity struct {
	Key          string
	DisplayName  string
	AvatarRef    string
	Virtual      bool
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// IdentityMapping cross-references an external review with the virtual
// identity minted for it. One mapping per distinct review id; it outlives
// the identity object itself so the historical record survives reaping.
type IdentityMapping struct {
	ReviewID    string
	IdentityKey string
	AccountName string
	AppID       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeriveIdentityKey maps (reviewID, homeDomain) to a stable chat user id of
// the form @bridge_<localpart>:<domain>. The derivation is a pure function:
// re-deriving for the same review always yields the same key and distinct
// reviews never collide. When sanitisation had to drop characters, a short
// digest of the raw id keeps the function injective.
func DeriveIdentityKey(reviewID string, homeDomain string) (string, error) {
	trimmed := strings.TrimSpace(reviewID)
	if trimmed == "" {
		return "", ErrReviewIDRequired
	}
	domain := strings.TrimSpace(homeDomain)
	if domain == "" {
		return "", fmt.Errorf("%w: home domain is required", ErrInvalidOperation)
	}

	localpart, lossy := sanitizeLocalpart(trimmed)
	if lossy {
		sum := sha256.Sum256([]byte(trimmed))
		localpart = localpart + "_" + hex.EncodeToString(sum[:4])
	}

	return "@" + identityLocalpartPrefix + localpart + ":" + domain, nil
}

// IsBridgeOwnedKey reports whether an identity key lives in the bridge's
// namespace. Operations targeting non-owned keys must be rejected upstream.
func IsBridgeOwnedKey(identityKey string) bool {
	return strings.HasPrefix(identityKey, "@"+identityLocalpartPrefix)
}

// PlaceholderDisplayName is the fallback shown when the store delivers a
// review without an account name.
func PlaceholderDisplayName(source string, reviewID string) string {
	src := strings.TrimSpace(source)
	if src == "" {
		src = "store"
	}
	return src + " user " + strings.TrimSpace(reviewID)
}

// sanitizeLocalpart lowercases the id and keeps only characters legal in a
// chat localpart. The second return reports whether anything was dropped.
func sanitizeLocalpart(raw string) (string, bool) {
	lowered := strings.ToLower(raw)

	var b strings.Builder
	b.Grow(len(lowered))
	lossy := lowered != raw

	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			lossy = true
		}
	}

	if b.Len() == 0 {
		return "id", true
	}
	return b.String(), lossy
}
