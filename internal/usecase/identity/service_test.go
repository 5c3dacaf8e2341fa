package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "revbridge/internal/infrastructure/persistence/sqlite/repository"
	"revbridge/internal/keymutex"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.VirtualIdentity{}, &model.IdentityMapping{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return NewService(sqliterepo.NewIdentityRepository(db), keymutex.New(), "example.org", "appstore")
}

func TestResolveOrCreateIsIdempotent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.ResolveOrCreate(ctx, ResolveOrCreateInput{ReviewID: "r1", AccountName: "Alice"})
	if err != nil {
		t.Fatalf("first ResolveOrCreate() error = %v", err)
	}
	if first.Key != "@bridge_r1:example.org" {
		t.Fatalf("identity key = %q", first.Key)
	}
	if !first.Virtual {
		t.Fatal("identity not flagged virtual")
	}

	second, err := svc.ResolveOrCreate(ctx, ResolveOrCreateInput{ReviewID: "r1", AccountName: "Alice"})
	if err != nil {
		t.Fatalf("second ResolveOrCreate() error = %v", err)
	}
	if second.Key != first.Key {
		t.Fatalf("keys differ: %q vs %q", first.Key, second.Key)
	}

	identities, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(identities) != 1 {
		t.Fatalf("identity count = %d, want 1", len(identities))
	}
}

func TestResolveOrCreateRefreshesLastActive(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, err := svc.ResolveOrCreate(ctx, ResolveOrCreateInput{ReviewID: "r1"}); err != nil {
		t.Fatalf("first ResolveOrCreate() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(time.Hour) }
	refreshed, err := svc.ResolveOrCreate(ctx, ResolveOrCreateInput{ReviewID: "r1"})
	if err != nil {
		t.Fatalf("second ResolveOrCreate() error = %v", err)
	}
	if !refreshed.LastActiveAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("last active = %v, want refreshed", refreshed.LastActiveAt)
	}
	if !refreshed.CreatedAt.Equal(base) {
		t.Fatalf("created at = %v, want original", refreshed.CreatedAt)
	}
}

func TestResolveOrCreatePlaceholderName(t *testing.T) {
	svc := setupService(t)

	got, err := svc.ResolveOrCreate(context.Background(), ResolveOrCreateInput{ReviewID: "r7"})
	if err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if got.DisplayName != "appstore user r7" {
		t.Fatalf("display name = %q", got.DisplayName)
	}
}

func TestResolveOrCreateRejectsEmptyReview(t *testing.T) {
	svc := setupService(t)

	if _, err := svc.ResolveOrCreate(context.Background(), ResolveOrCreateInput{ReviewID: "  "}); !errors.Is(err, bridge.ErrReviewIDRequired) {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
}

func TestCreateAccountMappingIdempotentByReview(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.CreateAccountMapping(ctx, CreateAccountMappingInput{
		ReviewID:    "r1",
		IdentityKey: "@bridge_r1:example.org",
		AccountName: "Alice",
		AppID:       "app.example",
	})
	if err != nil {
		t.Fatalf("first CreateAccountMapping() error = %v", err)
	}

	second, err := svc.CreateAccountMapping(ctx, CreateAccountMappingInput{
		ReviewID:    "r1",
		IdentityKey: "@bridge_r1:example.org",
		AccountName: "Alice Renamed",
		AppID:       "app.other",
	})
	if err != nil {
		t.Fatalf("second CreateAccountMapping() error = %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created at changed on update: %v vs %v", first.CreatedAt, second.CreatedAt)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Mappings != 1 {
		t.Fatalf("mapping count = %d, want 1", stats.Mappings)
	}

	got, found, err := svc.FindMappingByReview(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("FindMappingByReview() = %v, %v", found, err)
	}
	if got.AccountName != "Alice Renamed" || got.AppID != "app.other" {
		t.Fatalf("mapping not updated: %+v", got)
	}
}

func TestCreateAccountMappingRejectsForeignKey(t *testing.T) {
	svc := setupService(t)

	_, err := svc.CreateAccountMapping(context.Background(), CreateAccountMappingInput{
		ReviewID:    "r1",
		IdentityKey: "@alice:example.org",
	})
	if !errors.Is(err, bridge.ErrIdentityKeyInvalid) {
		t.Fatalf("CreateAccountMapping() error = %v", err)
	}
}

func TestFindMappingNotFoundIsSoft(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, found, err := svc.FindMappingByReview(ctx, "absent"); err != nil || found {
		t.Fatalf("FindMappingByReview() = %v, %v", found, err)
	}
	if _, found, err := svc.FindMappingByIdentity(ctx, "@bridge_absent:example.org"); err != nil || found {
		t.Fatalf("FindMappingByIdentity() = %v, %v", found, err)
	}
}

func TestReapInactiveKeepsMappings(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if _, err := svc.ResolveOrCreate(ctx, ResolveOrCreateInput{ReviewID: "r1", AccountName: "Alice"}); err != nil {
		t.Fatalf("ResolveOrCreate() error = %v", err)
	}
	if _, err := svc.CreateAccountMapping(ctx, CreateAccountMappingInput{
		ReviewID:    "r1",
		IdentityKey: "@bridge_r1:example.org",
		AppID:       "app.example",
	}); err != nil {
		t.Fatalf("CreateAccountMapping() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(72 * time.Hour) }
	removed, err := svc.ReapInactive(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("ReapInactive() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Identities != 0 {
		t.Fatalf("identities after reap = %d, want 0", stats.Identities)
	}
	if stats.Mappings != 1 {
		t.Fatalf("mappings after reap = %d, want 1", stats.Mappings)
	}
}
