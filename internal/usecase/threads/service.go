package threads

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

// Config controls resolve/archive behavior.
type Config struct {
	// ArchiveResolved schedules a deferred archive when a thread is
	// resolved.
	ArchiveResolved bool
	// AutoArchiveAfter is the delay before a resolved thread is archived.
	AutoArchiveAfter time.Duration
}

// Service is the thread engine: one conversation per review, with an
// active/resolved/archived lifecycle, participant tracking and scheduled
// cleanup. It derives from the other registries but never mutates them.
type Service struct {
	repo      ports.ThreadRepository
	uow       ports.UnitOfWork
	locks     *keymutex.Sharded
	intent    ports.RoomIntent
	scheduler *archiveScheduler
	cfg       Config
	now       func() time.Time
}

func NewService(repo ports.ThreadRepository, uow ports.UnitOfWork, locks *keymutex.Sharded, intent ports.RoomIntent, cfg Config) *Service {
	s := &Service{
		repo:   repo,
		uow:    uow,
		locks:  locks,
		intent: intent,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.scheduler = newArchiveScheduler(s)
	return s
}

// Close cancels any pending deferred archives. Called on process shutdown.
func (s *Service) Close() {
	s.scheduler.stop()
}

type CreateThreadInput struct {
	Review      bridge.Review
	RoomID      string
	RootEventID string
	IdentityKey string
}

// CreateThread opens the thread for a review. One thread per review id:
// calling again for the same review is a logic error the caller must avoid
// by checking ByReview first. The root event id, once chosen, anchors all
// future replies and must never be re-chosen, so there is no silent dedupe
// here.
func (s *Service) CreateThread(ctx context.Context, input CreateThreadInput) (bridge.Thread, error) {
	if ctx == nil {
		return bridge.Thread{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.Thread{}, errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return bridge.Thread{}, errors.New("thread repository is required")
	}
	if s.uow == nil {
		return bridge.Thread{}, errors.New("thread unit of work is required")
	}

	reviewID := strings.TrimSpace(input.Review.ID)
	if reviewID == "" {
		return bridge.Thread{}, bridge.ErrReviewIDRequired
	}
	roomID := strings.TrimSpace(input.RoomID)
	if roomID == "" {
		return bridge.Thread{}, bridge.ErrRoomIDRequired
	}
	rootEventID := strings.TrimSpace(input.RootEventID)
	if rootEventID == "" {
		return bridge.Thread{}, bridge.ErrEventIDRequired
	}
	identityKey := strings.TrimSpace(input.IdentityKey)
	if identityKey == "" {
		return bridge.Thread{}, fmt.Errorf("%w: identity key is required", bridge.ErrInvalidOperation)
	}

	unlock := s.locks.Lock("thread-review:" + reviewID)
	defer unlock()

	if _, found, err := s.repo.GetThreadByReview(ctx, reviewID); err != nil {
		return bridge.Thread{}, err
	} else if found {
		return bridge.Thread{}, fmt.Errorf("%w: review %s", bridge.ErrThreadExists, reviewID)
	}

	now := s.now()
	thread := bridge.Thread{
		ReviewID:     reviewID,
		AppID:        strings.TrimSpace(input.Review.AppID),
		RoomID:       roomID,
		RootEventID:  rootEventID,
		Status:       bridge.ThreadActive,
		Generation:   0,
		MessageCount: 1,
		Participants: []string{identityKey},
		Tags:         bridge.DeriveThreadTags(input.Review),
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		created, err := s.repo.CreateThread(txCtx, thread)
		if err != nil {
			return err
		}
		thread.ThreadID = created.ThreadID

		if err := s.repo.AppendThreadMessage(txCtx, bridge.ThreadMessage{
			EventID:          rootEventID,
			ThreadID:         created.ThreadID,
			UserID:           identityKey,
			Content:          input.Review.Body,
			Kind:             bridge.KindReview,
			BridgeOriginated: true,
			CreatedAt:        now,
		}); err != nil {
			return err
		}
		return s.repo.AddParticipant(txCtx, created.ThreadID, identityKey)
	}); err != nil {
		return bridge.Thread{}, err
	}

	logging.Info(ctx, "thread created",
		slog.String("component", "threads"),
		slog.Uint64("thread_id", thread.ThreadID),
		slog.String("review_id", reviewID),
		slog.String("room_id", roomID),
	)
	return thread, nil
}

type AppendMessageInput struct {
	ThreadID         uint64
	EventID          string
	UserID           string
	Content          string
	Kind             string
	BridgeOriginated bool
}

// AppendMessage adds a chat event to the thread: the sender joins the
// participant set, the message count and activity clock advance, and the
// status unconditionally resets to active. A thread is only resolved
// until someone speaks again. The generation bump invalidates any archive
// scheduled before this message.
func (s *Service) AppendMessage(ctx context.Context, input AppendMessageInput) (bridge.ThreadMessage, error) {
	if ctx == nil {
		return bridge.ThreadMessage{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return bridge.ThreadMessage{}, errs.Wrap(err, "check context")
	}

	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return bridge.ThreadMessage{}, bridge.ErrEventIDRequired
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return bridge.ThreadMessage{}, fmt.Errorf("%w: user id is required", bridge.ErrInvalidOperation)
	}
	kind, err := bridge.NormalizeKind(input.Kind)
	if err != nil {
		return bridge.ThreadMessage{}, err
	}

	unlock := s.locks.Lock(threadKey(input.ThreadID))
	defer unlock()

	thread, found, err := s.repo.GetThread(ctx, input.ThreadID)
	if err != nil {
		return bridge.ThreadMessage{}, err
	}
	if !found {
		return bridge.ThreadMessage{}, fmt.Errorf("%w: thread %d not found", bridge.ErrInvalidOperation, input.ThreadID)
	}
	if thread.Status == bridge.ThreadArchived {
		return bridge.ThreadMessage{}, fmt.Errorf("%w: thread %d is archived", bridge.ErrInvalidOperation, input.ThreadID)
	}

	now := s.now()
	message := bridge.ThreadMessage{
		EventID:          eventID,
		ThreadID:         thread.ThreadID,
		UserID:           userID,
		Content:          input.Content,
		Kind:             kind,
		BridgeOriginated: input.BridgeOriginated,
		CreatedAt:        now,
	}

	reopened := thread.Status == bridge.ThreadResolved

	thread.Status = bridge.ThreadActive
	thread.Generation++
	thread.MessageCount++
	thread.LastActivity = now
	thread.ResolvedBy = ""
	thread.ResolveNote = ""

	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.AppendThreadMessage(txCtx, message); err != nil {
			return err
		}
		if err := s.repo.AddParticipant(txCtx, thread.ThreadID, userID); err != nil {
			return err
		}
		return s.repo.UpdateThread(txCtx, thread)
	}); err != nil {
		return bridge.ThreadMessage{}, err
	}

	if reopened {
		s.scheduler.cancel(thread.ThreadID)
		logging.Info(ctx, "thread reopened by new activity",
			slog.String("component", "threads"),
			slog.Uint64("thread_id", thread.ThreadID),
		)
	}
	return message, nil
}

type ResolveInput struct {
	ThreadID   uint64
	ResolvedBy string
	Reason     string
}

// Resolve marks the thread resolved, posts a best-effort notice into its
// room, and when configured schedules the deferred archive carrying
// the thread's current generation.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	unlock := s.locks.Lock(threadKey(input.ThreadID))
	defer unlock()

	thread, found, err := s.repo.GetThread(ctx, input.ThreadID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: thread %d not found", bridge.ErrInvalidOperation, input.ThreadID)
	}
	if thread.Status == bridge.ThreadArchived {
		return fmt.Errorf("%w: thread %d is archived", bridge.ErrInvalidOperation, input.ThreadID)
	}
	if thread.Status == bridge.ThreadResolved {
		return nil
	}

	thread.Status = bridge.ThreadResolved
	thread.ResolvedBy = strings.TrimSpace(input.ResolvedBy)
	thread.ResolveNote = strings.TrimSpace(input.Reason)
	thread.LastActivity = s.now()

	if err := s.repo.UpdateThread(ctx, thread); err != nil {
		return err
	}

	s.sendNoticeBestEffort(ctx, thread.RoomID, resolveNotice(thread))

	if s.cfg.ArchiveResolved && s.cfg.AutoArchiveAfter > 0 {
		s.scheduler.schedule(thread.ThreadID, thread.Generation, s.cfg.AutoArchiveAfter)
	}

	logging.Info(ctx, "thread resolved",
		slog.String("component", "threads"),
		slog.Uint64("thread_id", thread.ThreadID),
		slog.String("resolved_by", thread.ResolvedBy),
	)
	return nil
}

// Archive moves the thread to its terminal state. Archiving an archived
// thread is a no-op, not an error.
func (s *Service) Archive(ctx context.Context, threadID uint64) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	unlock := s.locks.Lock(threadKey(threadID))
	defer unlock()

	return s.archiveLocked(ctx, threadID)
}

func (s *Service) archiveLocked(ctx context.Context, threadID uint64) error {
	thread, found, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: thread %d not found", bridge.ErrInvalidOperation, threadID)
	}
	if thread.Status == bridge.ThreadArchived {
		return nil
	}

	thread.Status = bridge.ThreadArchived
	if err := s.repo.UpdateThread(ctx, thread); err != nil {
		return err
	}

	logging.Info(ctx, "thread archived",
		slog.String("component", "threads"),
		slog.Uint64("thread_id", threadID),
	)
	return nil
}

// archiveIfGeneration honors a deferred archive only if the thread is
// still resolved and its generation has not advanced since the archive was
// scheduled. A stale timer firing after a reopen is a no-op.
func (s *Service) archiveIfGeneration(ctx context.Context, threadID uint64, generation uint64) error {
	unlock := s.locks.Lock(threadKey(threadID))
	defer unlock()

	thread, found, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if thread.Status != bridge.ThreadResolved || thread.Generation != generation {
		logging.Info(ctx, "stale scheduled archive ignored",
			slog.String("component", "threads"),
			slog.Uint64("thread_id", threadID),
			slog.Uint64("scheduled_generation", generation),
			slog.Uint64("current_generation", thread.Generation),
		)
		return nil
	}

	return s.archiveLocked(ctx, threadID)
}

func (s *Service) Get(ctx context.Context, threadID uint64) (bridge.Thread, bool, error) {
	if ctx == nil {
		return bridge.Thread{}, false, errors.New("context is required")
	}
	return s.repo.GetThread(ctx, threadID)
}

func (s *Service) ByReview(ctx context.Context, reviewID string) (bridge.Thread, bool, error) {
	if ctx == nil {
		return bridge.Thread{}, false, errors.New("context is required")
	}
	return s.repo.GetThreadByReview(ctx, reviewID)
}

func (s *Service) ByEvent(ctx context.Context, eventID string) (bridge.Thread, bool, error) {
	if ctx == nil {
		return bridge.Thread{}, false, errors.New("context is required")
	}
	return s.repo.GetThreadByEvent(ctx, eventID)
}

// ByRoom returns the room's threads sorted by last activity, newest first.
func (s *Service) ByRoom(ctx context.Context, roomID string) ([]bridge.Thread, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListThreadsByRoom(ctx, roomID)
}

func (s *Service) ByParticipant(ctx context.Context, userID string) ([]bridge.Thread, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListThreadsByParticipant(ctx, userID)
}

func (s *Service) List(ctx context.Context) ([]bridge.Thread, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListThreads(ctx)
}

func (s *Service) Messages(ctx context.Context, threadID uint64) ([]bridge.ThreadMessage, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	return s.repo.ListThreadMessages(ctx, threadID)
}

// CleanupExpired removes non-active threads whose activity predates the
// cutoff. An active thread, however old, is never swept. Each removal also
// clears the thread's messages and participant entries, so no secondary
// index keeps a dangling reference.
func (s *Service) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, errs.Wrap(err, "check context")
	}
	if maxAge <= 0 {
		return 0, fmt.Errorf("%w: cleanup max age must be positive", bridge.ErrInvalidOperation)
	}

	cutoff := s.now().Add(-maxAge)
	expired, err := s.repo.ListExpiredThreads(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, candidate := range expired {
		if err := func() error {
			unlock := s.locks.Lock(threadKey(candidate.ThreadID))
			defer unlock()

			// Re-check under the lock: the thread may have reopened
			// between listing and deletion.
			thread, found, err := s.repo.GetThread(ctx, candidate.ThreadID)
			if err != nil {
				return err
			}
			if !found || thread.Status == bridge.ThreadActive || !thread.LastActivity.Before(cutoff) {
				return nil
			}

			if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
				return s.repo.DeleteThread(txCtx, thread.ThreadID)
			}); err != nil {
				return err
			}

			s.scheduler.cancel(thread.ThreadID)
			removed++
			return nil
		}(); err != nil {
			return removed, err
		}
	}

	if removed > 0 {
		logging.Info(ctx, "expired threads cleaned up",
			slog.String("component", "threads"),
			slog.Int("removed", removed),
		)
	}
	return removed, nil
}

// Summary renders a report-only description of the thread from its own
// fields. No side effects.
func (s *Service) Summary(ctx context.Context, threadID uint64) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}

	thread, found, err := s.repo.GetThread(ctx, threadID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: thread %d not found", bridge.ErrInvalidOperation, threadID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Thread %s: review %s (app %s)\n", bridge.FormatThreadRef(thread.ThreadID), thread.ReviewID, thread.AppID)
	fmt.Fprintf(&b, "room: %s\n", thread.RoomID)
	fmt.Fprintf(&b, "status: %s, messages: %d, participants: %d\n", thread.Status, thread.MessageCount, len(thread.Participants))
	if len(thread.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(thread.Tags, ", "))
	}
	fmt.Fprintf(&b, "last activity: %s", thread.LastActivity.Format(time.RFC3339))
	if thread.Status == bridge.ThreadResolved && thread.ResolvedBy != "" {
		fmt.Fprintf(&b, "\nresolved by: %s", thread.ResolvedBy)
		if thread.ResolveNote != "" {
			fmt.Fprintf(&b, " (%s)", thread.ResolveNote)
		}
	}
	return b.String(), nil
}

type Stats struct {
	ByStatus map[string]int64 `json:"by_status" yaml:"by_status"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}

	byStatus, err := s.repo.CountThreadsByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ByStatus: byStatus}, nil
}

func (s *Service) sendNoticeBestEffort(ctx context.Context, roomID string, content string) {
	if s.intent == nil {
		return
	}
	if _, err := s.intent.SendMessage(ctx, roomID, content); err != nil {
		logging.Warn(ctx, "resolve notice failed",
			slog.String("component", "threads"),
			slog.String("room_id", roomID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func resolveNotice(thread bridge.Thread) string {
	notice := fmt.Sprintf("Thread %s for review %s marked resolved", bridge.FormatThreadRef(thread.ThreadID), thread.ReviewID)
	if thread.ResolvedBy != "" {
		notice += " by " + thread.ResolvedBy
	}
	if thread.ResolveNote != "" {
		notice += ": " + thread.ResolveNote
	}
	return notice
}

func threadKey(threadID uint64) string {
	return fmt.Sprintf("thread:%d", threadID)
}
