package threads

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "revbridge/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "revbridge/internal/infrastructure/persistence/sqlite/uow"
	"revbridge/internal/keymutex"
)

func setupService(t *testing.T, cfg Config) *Service {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Thread{}, &model.ThreadMessage{}, &model.ThreadParticipant{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	svc := NewService(
		sqliterepo.NewThreadRepository(db),
		sqliteuow.NewUnitOfWork(db),
		keymutex.New(),
		nil,
		cfg,
	)
	t.Cleanup(svc.Close)
	return svc
}

func sampleReview() bridge.Review {
	return bridge.Review{
		ID:        "r1",
		AppID:     "app.example",
		Author:    "Alice",
		Body:      "Crashes on startup",
		Rating:    1,
		Device:    "Pixel 9",
		CreatedAt: time.Now().UTC(),
	}
}

func mustCreate(t *testing.T, svc *Service) bridge.Thread {
	t.Helper()

	thread, err := svc.CreateThread(context.Background(), CreateThreadInput{
		Review:      sampleReview(),
		RoomID:      "!r:x",
		RootEventID: "$root:x",
		IdentityKey: "@bridge_r1:x",
	})
	if err != nil {
		t.Fatalf("CreateThread() error = %v", err)
	}
	return thread
}

func TestCreateThreadInitialState(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)

	if thread.Status != bridge.ThreadActive {
		t.Fatalf("status = %s, want active", thread.Status)
	}
	if thread.MessageCount != 1 {
		t.Fatalf("message count = %d, want 1", thread.MessageCount)
	}
	if len(thread.Participants) != 1 || thread.Participants[0] != "@bridge_r1:x" {
		t.Fatalf("participants = %v", thread.Participants)
	}

	hasTag := func(tag string) bool {
		for _, got := range thread.Tags {
			if got == tag {
				return true
			}
		}
		return false
	}
	if !hasTag("negative") || !hasTag("device-info") {
		t.Fatalf("tags = %v", thread.Tags)
	}
}

func TestCreateThreadTwiceIsLogicError(t *testing.T) {
	svc := setupService(t, Config{})
	mustCreate(t, svc)

	_, err := svc.CreateThread(context.Background(), CreateThreadInput{
		Review:      sampleReview(),
		RoomID:      "!r:x",
		RootEventID: "$other-root:x",
		IdentityKey: "@bridge_r1:x",
	})
	if !errors.Is(err, bridge.ErrThreadExists) {
		t.Fatalf("second CreateThread() error = %v, want ErrThreadExists", err)
	}
}

func TestRootEventIDImmutable(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$e2:x",
		UserID:   "@dev:x",
		Content:  "On it",
		Kind:     bridge.KindReply,
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	got, found, err := svc.Get(ctx, thread.ThreadID)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if got.RootEventID != "$root:x" {
		t.Fatalf("root event changed to %q", got.RootEventID)
	}
}

func TestAppendMessageReopensResolved(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if err := svc.Resolve(ctx, ResolveInput{ThreadID: thread.ThreadID, ResolvedBy: "@dev:x"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$e2:x",
		UserID:   "@user:x",
		Content:  "Still broken",
		Kind:     bridge.KindReply,
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	got, found, err := svc.Get(ctx, thread.ThreadID)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if got.Status != bridge.ThreadActive {
		t.Fatalf("status after reopen = %s, want active", got.Status)
	}
	if got.MessageCount != 2 {
		t.Fatalf("message count = %d, want 2", got.MessageCount)
	}
	if len(got.Participants) != 2 {
		t.Fatalf("participants = %v", got.Participants)
	}
}

func TestAppendToMissingThreadIsError(t *testing.T) {
	svc := setupService(t, Config{})

	_, err := svc.AppendMessage(context.Background(), AppendMessageInput{
		ThreadID: 999,
		EventID:  "$e:x",
		UserID:   "@user:x",
	})
	if !errors.Is(err, bridge.ErrInvalidOperation) {
		t.Fatalf("AppendMessage() error = %v, want ErrInvalidOperation", err)
	}
}

func TestArchiveIsTerminal(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if err := svc.Archive(ctx, thread.ThreadID); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	// Archiving again is a no-op, not an error.
	if err := svc.Archive(ctx, thread.ThreadID); err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}

	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$e2:x",
		UserID:   "@user:x",
	}); !errors.Is(err, bridge.ErrInvalidOperation) {
		t.Fatalf("append to archived error = %v, want ErrInvalidOperation", err)
	}
	if err := svc.Resolve(ctx, ResolveInput{ThreadID: thread.ThreadID}); !errors.Is(err, bridge.ErrInvalidOperation) {
		t.Fatalf("resolve archived error = %v, want ErrInvalidOperation", err)
	}
}

func TestLookupsByEventRoomParticipant(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$e2:x",
		UserID:   "@dev:x",
		Kind:     bridge.KindReply,
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	byEvent, found, err := svc.ByEvent(ctx, "$e2:x")
	if err != nil || !found {
		t.Fatalf("ByEvent() = %v, %v", found, err)
	}
	if byEvent.ThreadID != thread.ThreadID {
		t.Fatalf("ByEvent() thread = %d", byEvent.ThreadID)
	}

	byReview, found, err := svc.ByReview(ctx, "r1")
	if err != nil || !found || byReview.ThreadID != thread.ThreadID {
		t.Fatalf("ByReview() = %+v, %v, %v", byReview, found, err)
	}

	byRoom, err := svc.ByRoom(ctx, "!r:x")
	if err != nil || len(byRoom) != 1 {
		t.Fatalf("ByRoom() = %d threads, %v", len(byRoom), err)
	}

	byParticipant, err := svc.ByParticipant(ctx, "@dev:x")
	if err != nil || len(byParticipant) != 1 {
		t.Fatalf("ByParticipant() = %d threads, %v", len(byParticipant), err)
	}
}

func TestCleanupExpiredSparesActive(t *testing.T) {
	svc := setupService(t, Config{})
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	activeThread := mustCreate(t, svc)

	resolved, err := svc.CreateThread(ctx, CreateThreadInput{
		Review:      bridge.Review{ID: "r2", AppID: "app.example", Rating: 4},
		RoomID:      "!r:x",
		RootEventID: "$root2:x",
		IdentityKey: "@bridge_r2:x",
	})
	if err != nil {
		t.Fatalf("CreateThread(r2) error = %v", err)
	}
	if err := svc.Resolve(ctx, ResolveInput{ThreadID: resolved.ThreadID, ResolvedBy: "@dev:x"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	svc.now = func() time.Time { return base.Add(100 * time.Hour) }
	removed, err := svc.CleanupExpired(ctx, 48*time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if _, found, _ := svc.Get(ctx, activeThread.ThreadID); !found {
		t.Fatal("active thread was swept")
	}
	if _, found, _ := svc.Get(ctx, resolved.ThreadID); found {
		t.Fatal("resolved thread survived cleanup")
	}

	// No dangling index entries for the removed thread.
	if _, found, _ := svc.ByEvent(ctx, "$root2:x"); found {
		t.Fatal("event index still references removed thread")
	}
	byParticipant, _ := svc.ByParticipant(ctx, "@bridge_r2:x")
	if len(byParticipant) != 0 {
		t.Fatal("participant index still references removed thread")
	}
}

func TestSummaryComposition(t *testing.T) {
	svc := setupService(t, Config{})
	thread := mustCreate(t, svc)

	summary, err := svc.Summary(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	for _, want := range []string{"review r1", "app app.example", "!r:x", "status: active", "negative"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}
