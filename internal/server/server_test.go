package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"revbridge/internal/domain/bridge"
	"revbridge/internal/infrastructure/cache"
	"revbridge/internal/infrastructure/chat"
	"revbridge/internal/infrastructure/persistence/sqlite/model"
	"revbridge/internal/infrastructure/persistence/sqlite/repository"
	"revbridge/internal/infrastructure/persistence/sqlite/uow"
	"revbridge/internal/keymutex"
	"revbridge/internal/usecase/conversation"
	"revbridge/internal/usecase/identity"
	"revbridge/internal/usecase/rooms"
	"revbridge/internal/usecase/threads"
)

func setupServer(t *testing.T) (*Server, *threads.Service, *Broker) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "bridge.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
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

	locks := keymutex.New()
	loopback := chat.NewLoopback("example.org")
	identitySvc := identity.NewService(repository.NewIdentityRepository(db), locks, "example.org", "appstore")
	roomSvc := rooms.NewService(repository.NewRoomRepository(db), cache.NewSQLiteCache(db), locks)
	convSvc := conversation.NewService(repository.NewConversationRepository(db), locks)
	threadSvc := threads.NewService(repository.NewThreadRepository(db), uow.NewUnitOfWork(db), locks, loopback, threads.Config{})
	t.Cleanup(threadSvc.Close)

	broker := NewBroker()
	return New("127.0.0.1:0", identitySvc, roomSvc, convSvc, threadSvc, broker), threadSvc, broker
}

func seedThread(t *testing.T, threadSvc *threads.Service) bridge.Thread {
	t.Helper()
	thread, err := threadSvc.CreateThread(context.Background(), threads.CreateThreadInput{
		Review:      bridge.Review{ID: "r1", AppID: "app1", Body: "crashes", Rating: 1},
		RoomID:      "!room:example.org",
		RootEventID: "$root:example.org",
		IdentityKey: "@bridge_r1:example.org",
	})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	return thread
}

func TestHealthz(t *testing.T) {
	srv, _, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatsAggregatesEngines(t *testing.T) {
	srv, threadSvc, _ := setupServer(t)
	seedThread(t, threadSvc)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Threads.ByStatus["active"] != 1 {
		t.Fatalf("active threads = %d, want 1", resp.Threads.ByStatus["active"])
	}
}

func TestThreadDetailAndResolve(t *testing.T) {
	srv, threadSvc, _ := setupServer(t)
	thread := seedThread(t, threadSvc)

	ref := bridge.FormatThreadRef(thread.ThreadID)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads/"+strings.TrimPrefix(ref, "#"), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d, body %s", rec.Code, rec.Body)
	}
	var detail struct {
		Thread   bridge.Thread          `json:"thread"`
		Messages []bridge.ThreadMessage `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(detail.Messages))
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/threads/"+strings.TrimPrefix(ref, "#")+"/resolve",
		strings.NewReader(`{"resolved_by":"@dev:example.org","reason":"handled"}`))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body %s", rec.Code, rec.Body)
	}

	got, _, err := threadSvc.Get(context.Background(), thread.ThreadID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != bridge.ThreadResolved {
		t.Fatalf("status = %s, want resolved", got.Status)
	}
}

func TestThreadNotFound(t *testing.T) {
	srv, _, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestBadThreadRefIsBadRequest(t *testing.T) {
	srv, _, _ := setupServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threads/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStreamDeliversBrokerEvents(t *testing.T) {
	srv, _, broker := setupServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	broker.Publish("review.bridged", map[string]string{"review_id": "r1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Topic != "review.bridged" {
		t.Fatalf("topic = %q", event.Topic)
	}
}

func TestBrokerDropsSlowSubscribers(t *testing.T) {
	broker := NewBroker()
	_, cancel := broker.Subscribe()
	defer cancel()

	// Publishing more than the buffer never blocks.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish("tick", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}
