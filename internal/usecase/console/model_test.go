package console

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"revbridge/internal/domain/bridge"
)

func TestFilterThreadsByStatusAndOrder(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	items := []bridge.Thread{
		{ThreadID: 1, Status: bridge.ThreadActive, LastActivity: base},
		{ThreadID: 2, Status: bridge.ThreadResolved, LastActivity: base.Add(time.Hour)},
		{ThreadID: 3, Status: bridge.ThreadActive, LastActivity: base.Add(2 * time.Hour)},
	}

	filtered := filterThreads(items, "active")
	if len(filtered) != 2 {
		t.Fatalf("len(filtered) = %d, want 2", len(filtered))
	}
	if filtered[0].ThreadID != 3 || filtered[1].ThreadID != 1 {
		t.Fatalf("order = %d, %d; want most recent first", filtered[0].ThreadID, filtered[1].ThreadID)
	}
}

func TestFilterThreadsAllKeepsEverything(t *testing.T) {
	items := []bridge.Thread{
		{ThreadID: 1, Status: bridge.ThreadActive},
		{ThreadID: 2, Status: bridge.ThreadArchived},
	}
	if got := len(filterThreads(items, "all")); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	if got := len(filterThreads(items, "")); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
}

func TestUpdateThreadsLoadedClampsSelection(t *testing.T) {
	m := &consoleModel{ctx: context.Background(), selectedIndex: 5}

	updated, _ := m.Update(threadsLoadedMsg{items: []bridge.Thread{
		{ThreadID: 1, Status: bridge.ThreadActive},
		{ThreadID: 2, Status: bridge.ThreadActive},
	}})

	model := updated.(*consoleModel)
	if model.selectedIndex != 1 {
		t.Fatalf("selectedIndex = %d, want 1", model.selectedIndex)
	}
}

func TestUpdateQuitKey(t *testing.T) {
	m := &consoleModel{ctx: context.Background()}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if msg := cmd(); msg != tea.Quit() {
		t.Fatalf("msg = %v, want quit", msg)
	}
}

func TestViewRendersThreadList(t *testing.T) {
	m := &consoleModel{
		ctx:             context.Background(),
		refreshInterval: 5 * time.Second,
		items: []bridge.Thread{
			{
				ThreadID:     7,
				ReviewID:     "r1",
				AppID:        "app1",
				RoomID:       "!room:example.org",
				Status:       bridge.ThreadActive,
				MessageCount: 3,
				Tags:         []string{"negative"},
			},
		},
	}

	view := m.View()
	if !strings.Contains(view, "#7") {
		t.Errorf("missing thread ref: %q", view)
	}
	if !strings.Contains(view, "app=app1") {
		t.Errorf("missing app: %q", view)
	}
	if !strings.Contains(view, "tags=negative") {
		t.Errorf("missing tags: %q", view)
	}
}

func TestViewShowsDraftWhenPresent(t *testing.T) {
	m := &consoleModel{
		ctx:             context.Background(),
		refreshInterval: 5 * time.Second,
		draftCategory:   "crash",
		draft:           "Sorry about the crash.",
	}

	view := m.View()
	if !strings.Contains(view, "Reply Draft (crash)") {
		t.Errorf("missing draft section: %q", view)
	}
}
