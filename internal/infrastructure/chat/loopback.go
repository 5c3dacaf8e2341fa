package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/ports"
)

// SentMessage is one delivery recorded by the loopback transport.
type SentMessage struct {
	RoomID  string
	Sender  string
	Content string
	EventID string
}

// Loopback is an in-process RoomIntent. It mints homeserver-shaped event
// ids and keeps every delivery in memory. Used by the dry-run mode and by
// tests that need a transport without a homeserver.
type Loopback struct {
	domain string

	mu       sync.Mutex
	sent     []SentMessage
	joined   map[string]struct{}
	profiles map[string]bridge.VirtualIdentity
	failNext error
}

var _ ports.RoomIntent = (*Loopback)(nil)

func NewLoopback(domain string) *Loopback {
	return &Loopback{
		domain:   domain,
		joined:   make(map[string]struct{}),
		profiles: make(map[string]bridge.VirtualIdentity),
	}
}

func (l *Loopback) SendMessage(ctx context.Context, roomID string, content string) (string, error) {
	return l.record(ctx, "", roomID, content)
}

func (l *Loopback) SendMessageAs(ctx context.Context, identity bridge.VirtualIdentity, roomID string, content string) (string, error) {
	l.mu.Lock()
	l.profiles[identity.Key] = identity
	l.mu.Unlock()
	return l.record(ctx, identity.Key, roomID, content)
}

func (l *Loopback) JoinRoom(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.joined[roomID] = struct{}{}
	return nil
}

func (l *Loopback) GetProfile(ctx context.Context, identityKey string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	identity, ok := l.profiles[identityKey]
	if !ok {
		return "", "", fmt.Errorf("unknown profile %s", identityKey)
	}
	return identity.DisplayName, identity.AvatarRef, nil
}

// FailNext makes the next send return err instead of delivering. Test hook.
func (l *Loopback) FailNext(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext = err
}

// Sent returns a copy of everything delivered so far.
func (l *Loopback) Sent() []SentMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentMessage, len(l.sent))
	copy(out, l.sent)
	return out
}

// Joined reports whether the bot joined the room.
func (l *Loopback) Joined(roomID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.joined[roomID]
	return ok
}

func (l *Loopback) record(ctx context.Context, sender, roomID, content string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return "", err
	}

	eventID := "$" + uuid.NewString() + ":" + l.domain
	l.sent = append(l.sent, SentMessage{
		RoomID:  roomID,
		Sender:  sender,
		Content: content,
		EventID: eventID,
	})
	return eventID, nil
}
