package threads

import (
	"context"
	"testing"
	"time"

	"revbridge/internal/domain/bridge"
)

// The deferred archive carries the generation it was scheduled for. These
// tests drive archiveIfGeneration directly instead of waiting on timers.

func TestStaleScheduledArchiveIsIgnoredAfterReopen(t *testing.T) {
	svc := setupService(t, Config{ArchiveResolved: true, AutoArchiveAfter: time.Hour})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if err := svc.Resolve(ctx, ResolveInput{ThreadID: thread.ThreadID, ResolvedBy: "@dev:x"}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	resolved, _, err := svc.Get(ctx, thread.ThreadID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	scheduledGeneration := resolved.Generation

	// A reply reopens the thread before the archive fires.
	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$reply:x",
		UserID:   "@user:x",
		Kind:     bridge.KindReply,
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	// The old timer fires anyway; it must be a no-op.
	if err := svc.archiveIfGeneration(ctx, thread.ThreadID, scheduledGeneration); err != nil {
		t.Fatalf("archiveIfGeneration() error = %v", err)
	}

	got, _, err := svc.Get(ctx, thread.ThreadID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != bridge.ThreadActive {
		t.Fatalf("status = %s, reopened thread was downgraded", got.Status)
	}
}

func TestScheduledArchiveHonoredWhenStillResolved(t *testing.T) {
	svc := setupService(t, Config{ArchiveResolved: true, AutoArchiveAfter: time.Hour})
	thread := mustCreate(t, svc)
	ctx := context.Background()

	if err := svc.Resolve(ctx, ResolveInput{ThreadID: thread.ThreadID}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	resolved, _, err := svc.Get(ctx, thread.ThreadID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if err := svc.archiveIfGeneration(ctx, thread.ThreadID, resolved.Generation); err != nil {
		t.Fatalf("archiveIfGeneration() error = %v", err)
	}

	got, _, err := svc.Get(ctx, thread.ThreadID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != bridge.ThreadArchived {
		t.Fatalf("status = %s, want archived", got.Status)
	}
}

func TestScheduledArchiveForRemovedThreadIsNoop(t *testing.T) {
	svc := setupService(t, Config{})

	if err := svc.archiveIfGeneration(context.Background(), 404, 0); err != nil {
		t.Fatalf("archiveIfGeneration() error = %v", err)
	}
}

func TestReopenResetsActivityClock(t *testing.T) {
	svc := setupService(t, Config{ArchiveResolved: true, AutoArchiveAfter: time.Hour})
	ctx := context.Background()

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return t0 }

	thread := mustCreate(t, svc)
	if err := svc.Resolve(ctx, ResolveInput{ThreadID: thread.ThreadID}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	resolved, _, _ := svc.Get(ctx, thread.ThreadID)
	scheduledGeneration := resolved.Generation

	// T0+30m: a reply arrives and reopens the thread.
	svc.now = func() time.Time { return t0.Add(30 * time.Minute) }
	if _, err := svc.AppendMessage(ctx, AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  "$late-reply:x",
		UserID:   "@user:x",
		Kind:     bridge.KindReply,
	}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	// T0+90m: past the original one-hour window, the stale archive fires
	// and the cleanup sweep runs. Neither may touch the reopened thread.
	svc.now = func() time.Time { return t0.Add(90 * time.Minute) }
	if err := svc.archiveIfGeneration(ctx, thread.ThreadID, scheduledGeneration); err != nil {
		t.Fatalf("archiveIfGeneration() error = %v", err)
	}
	if _, err := svc.CleanupExpired(ctx, time.Hour); err != nil {
		t.Fatalf("CleanupExpired() error = %v", err)
	}

	got, found, err := svc.Get(ctx, thread.ThreadID)
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if got.Status != bridge.ThreadActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
	if !got.LastActivity.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("last activity = %v, want reopen time", got.LastActivity)
	}
}
