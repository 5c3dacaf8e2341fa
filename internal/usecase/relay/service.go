// Package relay orchestrates the two traffic directions of the bridge:
// inbound store reviews fanned out into chat rooms, and outbound operator
// replies pushed back to the store. It owns the ordering rule of the
// pipeline: the chat send happens first, registry writes happen only after
// the homeserver accepted the event, so a transport failure leaves no
// partial state behind.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/errs"
	"revbridge/internal/keymutex"
	"revbridge/internal/ports"
	"revbridge/internal/usecase/autoreply"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

// Config carries the relay-level knobs.
type Config struct {
	// AdminRoomID receives operational notices (duplicate deliveries,
	// rejected replies). Empty disables admin notices.
	AdminRoomID string
	// AppNames maps app ids to human names for the room message header.
	AppNames map[string]string
}

type Service struct {
	identities    *identity.Service
	rooms         *rooms.Service
	conversations *conversation.Service
	threads       *threads.Service
	reviews       ports.ReviewRepository
	intent        ports.RoomIntent
	submitter     ports.ReplySubmitter
	locks         *keymutex.Sharded
	cfg           Config

	events func(topic string, payload any)
}

// OnEvent installs a hook invoked after every successful bridge operation.
// Used to feed the admin event stream; nil disables it.
func (s *Service) OnEvent(fn func(topic string, payload any)) {
	s.events = fn
}

func (s *Service) emit(topic string, payload any) {
	if s.events != nil {
		s.events(topic, payload)
	}
}

var _ ports.ReviewSink = (*Service)(nil)

func NewService(
	identities *identity.Service,
	roomSvc *rooms.Service,
	conversations *conversation.Service,
	threadSvc *threads.Service,
	reviews ports.ReviewRepository,
	intent ports.RoomIntent,
	submitter ports.ReplySubmitter,
	locks *keymutex.Sharded,
	cfg Config,
) *Service {
	return &Service{
		identities:    identities,
		rooms:         roomSvc,
		conversations: conversations,
		threads:       threadSvc,
		reviews:       reviews,
		intent:        intent,
		submitter:     submitter,
		locks:         locks,
		cfg:           cfg,
	}
}

// HandleReview runs the inbound pipeline for one review delivery: persist
// the canonical copy, mint or refresh the virtual identity, then for every
// room bound to the app check the forwarding policy, send as the virtual
// user, and record the message mapping and thread only after the send
// succeeded. Re-delivery of an already-bridged review appends to the
// existing thread instead of opening a second one.
func (s *Service) HandleReview(ctx context.Context, review bridge.Review) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	review.ID = strings.TrimSpace(review.ID)
	if review.ID == "" {
		return bridge.ErrReviewIDRequired
	}
	if strings.TrimSpace(review.AppID) == "" {
		return bridge.ErrAppIDRequired
	}

	unlock := s.locks.Lock("relay:" + review.ID)
	defer unlock()

	ctx = logging.WithAttrs(ctx,
		slog.String("component", "relay"),
		slog.String("review_id", review.ID),
		slog.String("app_id", review.AppID))

	if err := s.reviews.UpsertReview(ctx, review); err != nil {
		return errs.Wrap(err, "store review")
	}

	virtual, err := s.identities.ResolveOrCreate(ctx, identity.ResolveOrCreateInput{
		ReviewID:    review.ID,
		AccountName: review.Author,
	})
	if err != nil {
		return errs.Wrap(err, "resolve identity")
	}
	if _, err := s.identities.CreateAccountMapping(ctx, identity.CreateAccountMappingInput{
		ReviewID:    review.ID,
		IdentityKey: virtual.Key,
		AccountName: review.Author,
		AppID:       review.AppID,
	}); err != nil {
		return errs.Wrap(err, "record identity mapping")
	}

	mappings, err := s.rooms.MappingsForApp(ctx, review.AppID)
	if err != nil {
		return errs.Wrap(err, "list room bindings")
	}
	if len(mappings) == 0 {
		logging.Info(ctx, "review has no bound room, skipping")
		return nil
	}

	var firstErr error
	for _, mapping := range mappings {
		if err := s.deliverToRoom(ctx, review, virtual, mapping); err != nil {
			logging.Error(ctx, "deliver review to room failed",
				slog.String("room_id", mapping.RoomID),
				slog.Any("err", errs.Loggable(err)))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) deliverToRoom(ctx context.Context, review bridge.Review, virtual bridge.VirtualIdentity, mapping bridge.RoomMapping) error {
	forward, err := s.rooms.ShouldForward(ctx, review.AppID, mapping.RoomID, review.Rating)
	if err != nil {
		return errs.Wrap(err, "policy check")
	}
	if !forward {
		logging.Info(ctx, "forwarding suppressed by room policy", slog.String("room_id", mapping.RoomID))
		return nil
	}

	existing, found, err := s.threads.ByReview(ctx, review.ID)
	if err != nil {
		return errs.Wrap(err, "lookup thread")
	}
	if found && existing.RoomID == mapping.RoomID {
		return s.appendUpdate(ctx, review, virtual, existing)
	}

	// An updates-only room carries follow-ups of reviews it already
	// threads; a first sighting never opens a thread there.
	if mapping.Policy.UpdatesOnly {
		logging.Info(ctx, "first delivery suppressed by updates-only policy", slog.String("room_id", mapping.RoomID))
		return nil
	}

	body := autoreply.FormatReviewMessage(review, s.appName(review.AppID))
	eventID, err := s.intent.SendMessageAs(ctx, virtual, mapping.RoomID, body)
	if err != nil {
		return errs.Wrapf(err, "send to %s", mapping.RoomID)
	}

	if _, err := s.conversations.RecordMessage(ctx, conversation.RecordMessageInput{
		ReviewID: review.ID,
		EventID:  eventID,
		RoomID:   mapping.RoomID,
		Kind:     bridge.KindReview,
		AppID:    review.AppID,
	}); err != nil {
		if errors.Is(err, bridge.ErrDuplicateMapping) {
			s.notifyAdmin(ctx, fmt.Sprintf("Duplicate delivery detected for review %s (event %s).", review.ID, eventID))
		}
		return errs.Wrap(err, "record message mapping")
	}

	if _, err := s.threads.CreateThread(ctx, threads.CreateThreadInput{
		Review:      review,
		RoomID:      mapping.RoomID,
		RootEventID: eventID,
		IdentityKey: virtual.Key,
	}); err != nil {
		// A concurrent delivery already opened the thread; the message
		// mapping above still records this event.
		if errors.Is(err, bridge.ErrThreadExists) {
			s.notifyAdmin(ctx, fmt.Sprintf("Thread already open for review %s, event %s recorded without a new thread.", review.ID, eventID))
			return nil
		}
		return errs.Wrap(err, "open thread")
	}

	s.emit("review.bridged", map[string]string{
		"review_id": review.ID,
		"app_id":    review.AppID,
		"room_id":   mapping.RoomID,
		"event_id":  eventID,
	})
	logging.Info(ctx, "review bridged",
		slog.String("room_id", mapping.RoomID),
		slog.String("event_id", eventID))
	return nil
}

// appendUpdate handles a re-delivered or edited review whose thread is
// already open: the new content lands as a follow-up in the same thread.
func (s *Service) appendUpdate(ctx context.Context, review bridge.Review, virtual bridge.VirtualIdentity, thread bridge.Thread) error {
	body := "Review updated:\n" + autoreply.FormatReviewMessage(review, s.appName(review.AppID))
	eventID, err := s.intent.SendMessageAs(ctx, virtual, thread.RoomID, body)
	if err != nil {
		return errs.Wrapf(err, "send update to %s", thread.RoomID)
	}

	if _, err := s.conversations.RecordMessage(ctx, conversation.RecordMessageInput{
		ReviewID: review.ID,
		EventID:  eventID,
		RoomID:   thread.RoomID,
		Kind:     bridge.KindNotification,
		AppID:    review.AppID,
	}); err != nil {
		if errors.Is(err, bridge.ErrDuplicateMapping) {
			s.notifyAdmin(ctx, fmt.Sprintf("Duplicate delivery detected for review %s (event %s).", review.ID, eventID))
		}
		return errs.Wrap(err, "record message mapping")
	}

	if _, err := s.threads.AppendMessage(ctx, threads.AppendMessageInput{
		ThreadID:         thread.ThreadID,
		EventID:          eventID,
		UserID:           virtual.Key,
		Content:          body,
		Kind:             bridge.KindNotification,
		BridgeOriginated: true,
	}); err != nil {
		return errs.Wrap(err, "append to thread")
	}

	logging.Info(ctx, "review update bridged",
		slog.String("room_id", thread.RoomID),
		slog.String("event_id", eventID))
	return nil
}

// HandleRoomReplyInput is one operator message observed in a bridged room.
type HandleRoomReplyInput struct {
	RoomID string
	// EventID is the chat event of the operator's message.
	EventID string
	// RelatesTo is the event the operator replied to; the thread is looked
	// up through it.
	RelatesTo string
	Sender    string
	Body      string
}

// HandleRoomReply runs the outbound path: locate the thread through the
// replied-to event, check the room's reply policy, submit the reply to the
// external store, then record the mapping and thread message. Messages from
// bridge-owned identities are ignored so the bridge never answers itself.
func (s *Service) HandleRoomReply(ctx context.Context, input HandleRoomReplyInput) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(input.EventID) == "" {
		return bridge.ErrEventIDRequired
	}
	if s.identities.IsBridgeOwned(input.Sender) {
		return nil
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return fmt.Errorf("%w: reply body is empty", bridge.ErrInvalidOperation)
	}

	thread, found, err := s.threads.ByEvent(ctx, input.RelatesTo)
	if err != nil {
		return errs.Wrap(err, "lookup thread")
	}
	if !found {
		return fmt.Errorf("%w: event %s belongs to no thread", bridge.ErrInvalidOperation, input.RelatesTo)
	}

	unlock := s.locks.Lock("relay:" + thread.ReviewID)
	defer unlock()

	ctx = logging.WithAttrs(ctx,
		slog.String("component", "relay"),
		slog.String("review_id", thread.ReviewID),
		slog.String("room_id", input.RoomID))

	canReply, err := s.rooms.CanReply(ctx, input.RoomID)
	if err != nil {
		return errs.Wrap(err, "reply policy check")
	}
	if !canReply {
		s.notifyAdmin(ctx, fmt.Sprintf("Reply from %s in %s dropped: replies are disabled for this room.", input.Sender, input.RoomID))
		return fmt.Errorf("%w: replies disabled for room %s", bridge.ErrInvalidOperation, input.RoomID)
	}

	if err := s.submitter.SubmitReply(ctx, thread.AppID, thread.ReviewID, body); err != nil {
		return errs.Wrap(err, "submit reply upstream")
	}

	if _, err := s.conversations.RecordMessage(ctx, conversation.RecordMessageInput{
		ReviewID: thread.ReviewID,
		EventID:  input.EventID,
		RoomID:   input.RoomID,
		Kind:     bridge.KindReply,
		AppID:    thread.AppID,
	}); err != nil {
		if errors.Is(err, bridge.ErrDuplicateMapping) {
			s.notifyAdmin(ctx, fmt.Sprintf("Duplicate reply event %s for review %s.", input.EventID, thread.ReviewID))
		}
		return errs.Wrap(err, "record reply mapping")
	}

	if _, err := s.threads.AppendMessage(ctx, threads.AppendMessageInput{
		ThreadID: thread.ThreadID,
		EventID:  input.EventID,
		UserID:   input.Sender,
		Content:  body,
		Kind:     bridge.KindReply,
	}); err != nil {
		return errs.Wrap(err, "append reply to thread")
	}

	s.notice(ctx, input.RoomID, autoreply.FormatReplyNotice(thread.ReviewID, body))
	s.emit("reply.bridged", map[string]string{
		"review_id": thread.ReviewID,
		"app_id":    thread.AppID,
		"room_id":   input.RoomID,
		"event_id":  input.EventID,
	})
	logging.Info(ctx, "reply bridged", slog.String("event_id", input.EventID))
	return nil
}

// Suggest returns an autoreply draft for the review a thread wraps. The
// draft is advisory; nothing is sent.
func (s *Service) Suggest(ctx context.Context, threadID uint64) (autoreply.Category, string, error) {
	thread, found, err := s.threads.Get(ctx, threadID)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", fmt.Errorf("%w: thread %s not found", bridge.ErrInvalidOperation, bridge.FormatThreadRef(threadID))
	}

	review, found, err := s.reviews.GetReview(ctx, thread.ReviewID)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", fmt.Errorf("%w: review %s not found", bridge.ErrInvalidOperation, thread.ReviewID)
	}

	category, draft := autoreply.SuggestReply(review)
	return category, draft, nil
}

func (s *Service) appName(appID string) string {
	if name, ok := s.cfg.AppNames[appID]; ok {
		return name
	}
	return appID
}

// notifyAdmin posts an operational notice into the admin room. Best effort;
// a missing or unreachable admin room never fails the pipeline.
func (s *Service) notifyAdmin(ctx context.Context, content string) {
	if s.cfg.AdminRoomID == "" {
		return
	}
	s.notice(ctx, s.cfg.AdminRoomID, content)
}

func (s *Service) notice(ctx context.Context, roomID string, content string) {
	if _, err := s.intent.SendMessage(ctx, roomID, content); err != nil {
		logging.Warn(ctx, "notice send failed",
			slog.String("room_id", roomID),
			slog.Any("err", errs.Loggable(err)))
	}
}
