package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"revbridge/internal/domain/bridge"
)

type fakeHomeserver struct {
	mu        sync.Mutex
	registers []string
	sends     []map[string]any
	asUsers   []string
}

func (f *fakeHomeserver) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_matrix/client/v3/register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Username string `json:"username"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.registers = append(f.registers, body.Username)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"user_id": "@" + body.Username + ":test"})
	})
	mux.HandleFunc("PUT /_matrix/client/v3/profile/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sends = append(f.sends, body)
		f.asUsers = append(f.asUsers, r.URL.Query().Get("user_id"))
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]string{"event_id": "$evt1:test"})
	})
	mux.HandleFunc("POST /_matrix/client/v3/rooms/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	})
	mux.HandleFunc("GET /_matrix/client/v3/profile/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"displayname": "Reviewer One", "avatar_url": "mxc://test/a"})
	})
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeHomeserver) {
	t.Helper()
	hs := &fakeHomeserver{}
	srv := httptest.NewServer(hs.handler())
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, AccessToken: "as-token", BotUserID: "@bridge:test"}), hs
}

func TestSendMessageReturnsEventID(t *testing.T) {
	client, _ := newTestClient(t)

	eventID, err := client.SendMessage(context.Background(), "!room:test", "hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if eventID != "$evt1:test" {
		t.Fatalf("eventID = %q", eventID)
	}
}

func TestSendMessageAsRegistersOnce(t *testing.T) {
	client, hs := newTestClient(t)
	identity := bridge.VirtualIdentity{Key: "@bridge_r1:test", DisplayName: "Reviewer One", Virtual: true}

	for i := 0; i < 3; i++ {
		if _, err := client.SendMessageAs(context.Background(), identity, "!room:test", "msg"); err != nil {
			t.Fatalf("SendMessageAs #%d: %v", i, err)
		}
	}

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.registers) != 1 {
		t.Fatalf("registered %d times, want 1", len(hs.registers))
	}
	if hs.registers[0] != "bridge_r1" {
		t.Fatalf("registered localpart %q", hs.registers[0])
	}
	for _, asUser := range hs.asUsers {
		if asUser != "@bridge_r1:test" {
			t.Fatalf("impersonated %q", asUser)
		}
	}
}

func TestSendMessageAsRejectsForeignUser(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.SendMessageAs(context.Background(), bridge.VirtualIdentity{Key: "@alice:test"}, "!room:test", "msg")
	if err == nil || !strings.Contains(err.Error(), "cannot impersonate") {
		t.Fatalf("err = %v", err)
	}
}

func TestGetProfile(t *testing.T) {
	client, _ := newTestClient(t)

	name, avatar, err := client.GetProfile(context.Background(), "@bridge_r1:test")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if name != "Reviewer One" || avatar != "mxc://test/a" {
		t.Fatalf("profile = %q, %q", name, avatar)
	}
}

func TestErrorEnvelopeDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"no access"}`))
	}))
	defer srv.Close()
	client := NewClient(Config{BaseURL: srv.URL})

	err := client.JoinRoom(context.Background(), "!room:test")
	if err == nil || !strings.Contains(err.Error(), "M_FORBIDDEN") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoopbackRecordsAndFails(t *testing.T) {
	lb := NewLoopback("test")
	identity := bridge.VirtualIdentity{Key: "@bridge_r1:test", DisplayName: "Reviewer One"}

	eventID, err := lb.SendMessageAs(context.Background(), identity, "!room:test", "hi")
	if err != nil {
		t.Fatalf("SendMessageAs: %v", err)
	}
	if !strings.HasPrefix(eventID, "$") || !strings.HasSuffix(eventID, ":test") {
		t.Fatalf("eventID = %q", eventID)
	}

	sent := lb.Sent()
	if len(sent) != 1 || sent[0].Sender != identity.Key || sent[0].Content != "hi" {
		t.Fatalf("sent = %+v", sent)
	}

	lb.FailNext(context.DeadlineExceeded)
	if _, err := lb.SendMessage(context.Background(), "!room:test", "x"); err == nil {
		t.Fatal("expected injected failure")
	}
	if _, err := lb.SendMessage(context.Background(), "!room:test", "y"); err != nil {
		t.Fatalf("failure not one-shot: %v", err)
	}
}
