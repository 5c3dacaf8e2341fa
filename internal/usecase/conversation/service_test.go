package conversation

import (
	"context"
	"errors"
	"testing"

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
	if err := db.AutoMigrate(&model.MessageMapping{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	return NewService(sqliterepo.NewConversationRepository(db), keymutex.New())
}

func TestRecordMessageDuplicateEventIsHardError(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	input := RecordMessageInput{
		ReviewID: "r1",
		EventID:  "$e1:example.org",
		RoomID:   "!r:example.org",
		Kind:     "review",
		AppID:    "app.example",
	}

	if _, err := svc.RecordMessage(ctx, input); err != nil {
		t.Fatalf("first RecordMessage() error = %v", err)
	}

	_, err := svc.RecordMessage(ctx, input)
	if !errors.Is(err, bridge.ErrDuplicateMapping) {
		t.Fatalf("second RecordMessage() error = %v, want ErrDuplicateMapping", err)
	}
}

func TestRecordMessageAllowsManyEventsPerReview(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, tc := range []struct{ eventID, kind string }{
		{"$e1:x", "review"},
		{"$e2:x", "reply"},
		{"$e3:x", "reply"},
	} {
		if _, err := svc.RecordMessage(ctx, RecordMessageInput{
			ReviewID: "r1",
			EventID:  tc.eventID,
			RoomID:   "!r:x",
			Kind:     tc.kind,
			AppID:    "app.example",
		}); err != nil {
			t.Fatalf("RecordMessage(%s) error = %v", tc.eventID, err)
		}
	}

	latest, found, err := svc.FindByReview(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("FindByReview() = %v, %v", found, err)
	}
	if latest.EventID != "$e3:x" {
		t.Fatalf("latest = %q, want $e3:x", latest.EventID)
	}

	history, err := svc.ListAllForReview(ctx, "r1")
	if err != nil {
		t.Fatalf("ListAllForReview() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	if history[0].EventID != "$e1:x" || history[2].EventID != "$e3:x" {
		t.Fatalf("history out of order: %+v", history)
	}
}

func TestRecordMessageValidatesInput(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.RecordMessage(ctx, RecordMessageInput{EventID: "$e:x", RoomID: "!r:x"}); !errors.Is(err, bridge.ErrReviewIDRequired) {
		t.Fatalf("missing review id error = %v", err)
	}
	if _, err := svc.RecordMessage(ctx, RecordMessageInput{ReviewID: "r1", RoomID: "!r:x"}); !errors.Is(err, bridge.ErrEventIDRequired) {
		t.Fatalf("missing event id error = %v", err)
	}
	if _, err := svc.RecordMessage(ctx, RecordMessageInput{ReviewID: "r1", EventID: "$e:x", RoomID: "!r:x", Kind: "banana"}); !errors.Is(err, bridge.ErrInvalidKind) {
		t.Fatalf("bad kind error = %v", err)
	}
}

func TestFindByEventNotFoundIsSoft(t *testing.T) {
	svc := setupService(t)

	_, found, err := svc.FindByEvent(context.Background(), "$absent:x")
	if err != nil {
		t.Fatalf("FindByEvent() error = %v", err)
	}
	if found {
		t.Fatal("FindByEvent() expected found=false")
	}
}

func TestStatsByKind(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for i, kind := range []string{"review", "reply", "reply", "notification"} {
		if _, err := svc.RecordMessage(ctx, RecordMessageInput{
			ReviewID: "r1",
			EventID:  "$e" + string(rune('0'+i)) + ":x",
			RoomID:   "!r:x",
			Kind:     kind,
			AppID:    "app.example",
		}); err != nil {
			t.Fatalf("RecordMessage(%s) error = %v", kind, err)
		}
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalMappings != 4 {
		t.Fatalf("total = %d, want 4", stats.TotalMappings)
	}
	if stats.ByKind["reply"] != 2 || stats.ByKind["review"] != 1 || stats.ByKind["notification"] != 1 {
		t.Fatalf("by kind = %v", stats.ByKind)
	}
}
