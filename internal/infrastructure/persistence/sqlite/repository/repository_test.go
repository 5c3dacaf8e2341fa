package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "bridge.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(
		&model.VirtualIdentity{},
		&model.IdentityMapping{},
		&model.ChatRoom{},
		&model.RoomMapping{},
		&model.MessageMapping{},
		&model.Thread{},
		&model.ThreadMessage{},
		&model.ThreadParticipant{},
		&model.Review{},
		&model.BridgeKV{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func TestUpsertIdentityRefreshesExisting(t *testing.T) {
	repo := NewIdentityRepository(setupDB(t))
	ctx := context.Background()
	created := time.Now().UTC().Truncate(time.Second)

	identity := bridge.VirtualIdentity{
		Key:          "@bridge_r1:example.org",
		DisplayName:  "Alice",
		Virtual:      true,
		CreatedAt:    created,
		LastActiveAt: created,
	}
	if err := repo.UpsertIdentity(ctx, identity); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	identity.DisplayName = "Alice Updated"
	identity.LastActiveAt = created.Add(time.Hour)
	if err := repo.UpsertIdentity(ctx, identity); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, found, err := repo.GetIdentity(ctx, "@bridge_r1:example.org")
	if err != nil {
		t.Fatalf("GetIdentity() error = %v", err)
	}
	if !found {
		t.Fatal("identity not found after upsert")
	}
	if got.DisplayName != "Alice Updated" {
		t.Fatalf("display name = %q", got.DisplayName)
	}

	count, err := repo.CountIdentities(ctx)
	if err != nil {
		t.Fatalf("CountIdentities() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("identity count = %d, want 1", count)
	}
}

func TestIdentityMappingIdempotentByReview(t *testing.T) {
	repo := NewIdentityRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	mapping := bridge.IdentityMapping{
		ReviewID:    "r1",
		IdentityKey: "@bridge_r1:example.org",
		AccountName: "Alice",
		AppID:       "app.example",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.UpsertIdentityMapping(ctx, mapping); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	mapping.AccountName = "Alice Renamed"
	if err := repo.UpsertIdentityMapping(ctx, mapping); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	count, err := repo.CountIdentityMappings(ctx)
	if err != nil {
		t.Fatalf("CountIdentityMappings() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("mapping count = %d, want 1", count)
	}

	got, found, err := repo.GetMappingByReview(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("GetMappingByReview() = %v, %v", found, err)
	}
	if got.AccountName != "Alice Renamed" {
		t.Fatalf("account name = %q", got.AccountName)
	}
}

func TestReapKeepsMappings(t *testing.T) {
	repo := NewIdentityRepository(setupDB(t))
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	if err := repo.UpsertIdentity(ctx, bridge.VirtualIdentity{
		Key:          "@bridge_r1:example.org",
		DisplayName:  "Alice",
		Virtual:      true,
		CreatedAt:    old,
		LastActiveAt: old,
	}); err != nil {
		t.Fatalf("upsert identity: %v", err)
	}
	if err := repo.UpsertIdentityMapping(ctx, bridge.IdentityMapping{
		ReviewID:    "r1",
		IdentityKey: "@bridge_r1:example.org",
		AppID:       "app.example",
		CreatedAt:   old,
		UpdatedAt:   old,
	}); err != nil {
		t.Fatalf("upsert mapping: %v", err)
	}

	removed, err := repo.DeleteIdentitiesInactiveSince(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteIdentitiesInactiveSince() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	// The historical mapping record must survive identity reaping.
	_, found, err := repo.GetMappingByReview(ctx, "r1")
	if err != nil {
		t.Fatalf("GetMappingByReview() error = %v", err)
	}
	if !found {
		t.Fatal("identity mapping was reaped together with the identity")
	}
}

func TestMessageMappingUniquePerEvent(t *testing.T) {
	repo := NewConversationRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	mapping := bridge.MessageMapping{
		ReviewID:  "r1",
		EventID:   "$e1:example.org",
		RoomID:    "!r:example.org",
		Kind:      bridge.KindReview,
		AppID:     "app.example",
		CreatedAt: now,
		UpdatedAt: now,
	}

	inserted, err := repo.CreateMessageMapping(ctx, mapping)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !inserted {
		t.Fatal("first create reported no insert")
	}

	inserted, err = repo.CreateMessageMapping(ctx, mapping)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if inserted {
		t.Fatal("duplicate event id was inserted")
	}
}

func TestLatestMappingWinsForReview(t *testing.T) {
	repo := NewConversationRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for _, eventID := range []string{"$e1:x", "$e2:x", "$e3:x"} {
		if _, err := repo.CreateMessageMapping(ctx, bridge.MessageMapping{
			ReviewID:  "r1",
			EventID:   eventID,
			RoomID:    "!r:x",
			Kind:      bridge.KindReply,
			AppID:     "app.example",
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			t.Fatalf("create %s: %v", eventID, err)
		}
	}

	latest, found, err := repo.GetLatestMappingForReview(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("GetLatestMappingForReview() = %v, %v", found, err)
	}
	if latest.EventID != "$e3:x" {
		t.Fatalf("latest event = %q, want $e3:x", latest.EventID)
	}

	history, err := repo.ListMappingsForReview(ctx, "r1")
	if err != nil {
		t.Fatalf("ListMappingsForReview() error = %v", err)
	}
	if len(history) != 3 || history[0].EventID != "$e1:x" {
		t.Fatalf("history = %+v", history)
	}
}

func TestDeleteThreadRemovesAllIndexEntries(t *testing.T) {
	repo := NewThreadRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	thread, err := repo.CreateThread(ctx, bridge.Thread{
		ReviewID:     "r1",
		AppID:        "app.example",
		RoomID:       "!r:x",
		RootEventID:  "$e1:x",
		Status:       bridge.ThreadResolved,
		MessageCount: 1,
		Tags:         []string{"negative"},
		CreatedAt:    now.Add(-72 * time.Hour),
		LastActivity: now.Add(-72 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	if err := repo.AppendThreadMessage(ctx, bridge.ThreadMessage{
		EventID:   "$e1:x",
		ThreadID:  thread.ThreadID,
		UserID:    "@bridge_r1:x",
		Kind:      bridge.KindReview,
		CreatedAt: now.Add(-72 * time.Hour),
	}); err != nil {
		t.Fatalf("AppendThreadMessage() error = %v", err)
	}
	if err := repo.AddParticipant(ctx, thread.ThreadID, "@bridge_r1:x"); err != nil {
		t.Fatalf("AddParticipant() error = %v", err)
	}

	expired, err := repo.ListExpiredThreads(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ListExpiredThreads() error = %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expired = %d, want 1", len(expired))
	}

	if err := repo.DeleteThread(ctx, thread.ThreadID); err != nil {
		t.Fatalf("DeleteThread() error = %v", err)
	}

	if _, found, _ := repo.GetThreadByEvent(ctx, "$e1:x"); found {
		t.Fatal("event index still references deleted thread")
	}
	byRoom, _ := repo.ListThreadsByRoom(ctx, "!r:x")
	if len(byRoom) != 0 {
		t.Fatal("room index still references deleted thread")
	}
	byUser, _ := repo.ListThreadsByParticipant(ctx, "@bridge_r1:x")
	if len(byUser) != 0 {
		t.Fatal("participant index still references deleted thread")
	}
}

func TestListExpiredThreadsNeverSweepsActive(t *testing.T) {
	repo := NewThreadRepository(setupDB(t))
	ctx := context.Background()
	old := time.Now().UTC().Add(-500 * time.Hour)

	if _, err := repo.CreateThread(ctx, bridge.Thread{
		ReviewID:     "r-old-active",
		AppID:        "app.example",
		RoomID:       "!r:x",
		RootEventID:  "$root:x",
		Status:       bridge.ThreadActive,
		CreatedAt:    old,
		LastActivity: old,
	}); err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}

	expired, err := repo.ListExpiredThreads(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ListExpiredThreads() error = %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("active thread selected for sweep: %+v", expired)
	}
}
