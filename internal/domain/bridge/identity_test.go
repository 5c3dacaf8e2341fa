package bridge

import (
	"errors"
	"strings"
	"testing"
)

func TestDeriveIdentityKeyDeterministic(t *testing.T) {
	first, err := DeriveIdentityKey("r1", "domain")
	if err != nil {
		t.Fatalf("DeriveIdentityKey() error = %v", err)
	}
	second, err := DeriveIdentityKey("r1", "domain")
	if err != nil {
		t.Fatalf("DeriveIdentityKey() second error = %v", err)
	}

	if first != second {
		t.Fatalf("derivation not stable: %q vs %q", first, second)
	}
	if first != "@bridge_r1:domain" {
		t.Fatalf("DeriveIdentityKey() = %q", first)
	}
}

func TestDeriveIdentityKeyDistinctReviews(t *testing.T) {
	a, err := DeriveIdentityKey("review-a", "example.org")
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, err := DeriveIdentityKey("review-b", "example.org")
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}
	if a == b {
		t.Fatalf("distinct reviews collided on %q", a)
	}
}

func TestDeriveIdentityKeyLossySanitisation(t *testing.T) {
	// Ids that sanitise to the same localpart must stay distinct.
	a, err := DeriveIdentityKey("id#1", "example.org")
	if err != nil {
		t.Fatalf("derive a: %v", err)
	}
	b, err := DeriveIdentityKey("id!1", "example.org")
	if err != nil {
		t.Fatalf("derive b: %v", err)
	}

	if a == b {
		t.Fatalf("lossy ids collided on %q", a)
	}
	if !strings.HasPrefix(a, "@bridge_id1_") {
		t.Fatalf("expected digest suffix, got %q", a)
	}
}

func TestDeriveIdentityKeyRejectsEmptyReview(t *testing.T) {
	if _, err := DeriveIdentityKey("  ", "example.org"); !errors.Is(err, ErrReviewIDRequired) {
		t.Fatalf("DeriveIdentityKey() error = %v", err)
	}
}

func TestIsBridgeOwnedKey(t *testing.T) {
	key, err := DeriveIdentityKey("r9", "example.org")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !IsBridgeOwnedKey(key) {
		t.Fatalf("derived key %q not recognised as bridge-owned", key)
	}
	if IsBridgeOwnedKey("@alice:example.org") {
		t.Fatal("organic user mistaken for bridge-owned")
	}
}

func TestPlaceholderDisplayName(t *testing.T) {
	if got := PlaceholderDisplayName("appstore", "r1"); got != "appstore user r1" {
		t.Fatalf("PlaceholderDisplayName() = %q", got)
	}
	if got := PlaceholderDisplayName("", "r1"); got != "store user r1" {
		t.Fatalf("PlaceholderDisplayName() default = %q", got)
	}
}
