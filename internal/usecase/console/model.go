// Package console is the terminal ops surface for bridged threads: a live
// list with per-thread detail, resolve/archive actions and reply drafts.
package console

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"revbridge/internal/bootstrap/logging"
	"revbridge/internal/domain/bridge"
	"revbridge/internal/usecase/relay"
	"revbridge/internal/usecase/threads"
)

const maxShownMessages = 4
const maxActionLines = 8

type Options struct {
	StatusFilter    string
	RoomFilter      string
	RefreshInterval time.Duration
}

type consoleModel struct {
	ctx             context.Context
	threads         *threads.Service
	relay           *relay.Service
	statusFilter    string
	roomFilter      string
	refreshInterval time.Duration

	items         []bridge.Thread
	selectedIndex int
	messages      []bridge.ThreadMessage
	hasDetail     bool
	draftCategory string
	draft         string
	status        string
	actionLog     []string
}

type threadsLoadedMsg struct {
	items []bridge.Thread
	err   error
}

type detailLoadedMsg struct {
	threadID uint64
	messages []bridge.ThreadMessage
	err      error
}

type draftLoadedMsg struct {
	threadID uint64
	category string
	draft    string
	err      error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action   string
	threadID uint64
	result   string
	err      error
}

func NewModel(ctx context.Context, threadSvc *threads.Service, relaySvc *relay.Service, options Options) tea.Model {
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &consoleModel{
		ctx:             ctx,
		threads:         threadSvc,
		relay:           relaySvc,
		statusFilter:    strings.TrimSpace(strings.ToLower(options.StatusFilter)),
		roomFilter:      strings.TrimSpace(options.RoomFilter),
		refreshInterval: interval,
		status:          "starting",
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(m.loadThreadsCmd(), m.tickCmd())
}

func (m *consoleModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadThreadsCmd(), m.tickCmd())
	case threadsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.items = msg.items
		if len(m.items) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "no threads"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.items) {
			m.selectedIndex = len(m.items) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d threads", len(m.items))
		return m, m.loadDetailCmd()
	case detailLoadedMsg:
		selected, ok := m.selectedThread()
		if !ok || selected.ThreadID != msg.threadID {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.status = "detail load failed: " + msg.err.Error()
			return m, nil
		}
		m.hasDetail = true
		m.messages = msg.messages
		return m, nil
	case draftLoadedMsg:
		selected, ok := m.selectedThread()
		if !ok || selected.ThreadID != msg.threadID {
			return m, nil
		}
		if msg.err != nil {
			m.status = "draft failed: " + msg.err.Error()
			return m, nil
		}
		m.draftCategory = msg.category
		m.draft = msg.draft
		m.status = "draft ready (" + msg.category + ")"
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendActionLog(msg.action, msg.threadID, "", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendActionLog(msg.action, msg.threadID, msg.result, nil)
		}
		return m, m.loadThreadsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadThreadsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.draft = ""
				return m, m.loadDetailCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.items)-1 {
				m.selectedIndex++
				m.draft = ""
				return m, m.loadDetailCmd()
			}
			return m, nil
		case "r":
			return m, m.resolveCmd()
		case "a":
			return m, m.archiveCmd()
		case "d":
			return m, m.draftCmd()
		}
	}
	return m, nil
}

func (m *consoleModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Review Bridge Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"status=%s room=%s refresh=%s",
		firstNonEmpty(m.statusFilter, "all"),
		firstNonEmpty(m.roomFilter, "-"),
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Threads"))
	builder.WriteString("\n")
	if len(m.items) == 0 {
		builder.WriteString(dimStyle.Render("- no threads"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.items {
			line := fmt.Sprintf(
				"%s [%s] app=%s room=%s msgs=%d tags=%s",
				bridge.FormatThreadRef(item.ThreadID),
				item.Status,
				item.AppID,
				item.RoomID,
				item.MessageCount,
				firstNonEmpty(strings.Join(item.Tags, ","), "-"),
			)
			if index == m.selectedIndex {
				builder.WriteString(selectedStyle.Render("> " + line))
			} else {
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	selected, ok := m.selectedThread()
	if !ok || !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		builder.WriteString(fmt.Sprintf("Thread: %s\n", bridge.FormatThreadRef(selected.ThreadID)))
		builder.WriteString(fmt.Sprintf("Review: %s (app %s)\n", selected.ReviewID, selected.AppID))
		builder.WriteString(fmt.Sprintf("Status: %s\n", selected.Status))
		builder.WriteString(fmt.Sprintf("Participants: %s\n", firstNonEmpty(strings.Join(selected.Participants, ","), "-")))
		builder.WriteString(fmt.Sprintf("LastActivity: %s\n", selected.LastActivity.UTC().Format(time.RFC3339)))
		builder.WriteString("\nRecent Messages:\n")
		if len(m.messages) == 0 {
			builder.WriteString("- none\n")
		} else {
			start := len(m.messages) - maxShownMessages
			if start < 0 {
				start = 0
			}
			for _, message := range m.messages[start:] {
				builder.WriteString(fmt.Sprintf("- [%s] %s: %s\n", message.Kind, message.UserID, firstNonEmptyLine(message.Content)))
			}
		}
		builder.WriteString("\n")
	}

	if m.draft != "" {
		builder.WriteString(sectionStyle.Render("Reply Draft (" + m.draftCategory + ")"))
		builder.WriteString("\n")
		builder.WriteString("- " + m.draft)
		builder.WriteString("\n\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Action Log"))
	builder.WriteString("\n")
	if len(m.actionLog) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.actionLog {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  r resolve  a archive  d draft reply  q quit"))
	return builder.String()
}

func (m *consoleModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *consoleModel) loadThreadsCmd() tea.Cmd {
	return func() tea.Msg {
		var (
			items []bridge.Thread
			err   error
		)
		if m.roomFilter != "" {
			items, err = m.threads.ByRoom(m.ctx, m.roomFilter)
		} else {
			items, err = m.threads.List(m.ctx)
		}
		if err != nil {
			return threadsLoadedMsg{err: err}
		}
		return threadsLoadedMsg{items: filterThreads(items, m.statusFilter)}
	}
}

func (m *consoleModel) loadDetailCmd() tea.Cmd {
	selected, ok := m.selectedThread()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		messages, err := m.threads.Messages(m.ctx, selected.ThreadID)
		if err != nil {
			return detailLoadedMsg{threadID: selected.ThreadID, err: err}
		}
		return detailLoadedMsg{threadID: selected.ThreadID, messages: messages}
	}
}

func (m *consoleModel) resolveCmd() tea.Cmd {
	selected, ok := m.selectedThread()
	if !ok {
		m.status = "no thread selected"
		return nil
	}
	m.status = "resolving"
	return func() tea.Msg {
		err := m.threads.Resolve(m.ctx, threads.ResolveInput{
			ThreadID:   selected.ThreadID,
			ResolvedBy: "console",
			Reason:     "resolved from console",
		})
		if err != nil {
			return actionDoneMsg{action: "resolve", threadID: selected.ThreadID, err: err}
		}
		return actionDoneMsg{action: "resolve", threadID: selected.ThreadID, result: "resolved"}
	}
}

func (m *consoleModel) archiveCmd() tea.Cmd {
	selected, ok := m.selectedThread()
	if !ok {
		m.status = "no thread selected"
		return nil
	}
	m.status = "archiving"
	return func() tea.Msg {
		if err := m.threads.Archive(m.ctx, selected.ThreadID); err != nil {
			return actionDoneMsg{action: "archive", threadID: selected.ThreadID, err: err}
		}
		return actionDoneMsg{action: "archive", threadID: selected.ThreadID, result: "archived"}
	}
}

func (m *consoleModel) draftCmd() tea.Cmd {
	selected, ok := m.selectedThread()
	if !ok {
		m.status = "no thread selected"
		return nil
	}
	if m.relay == nil {
		m.status = "drafts unavailable"
		return nil
	}
	m.status = "drafting"
	return func() tea.Msg {
		category, draft, err := m.relay.Suggest(m.ctx, selected.ThreadID)
		if err != nil {
			return draftLoadedMsg{threadID: selected.ThreadID, err: err}
		}
		return draftLoadedMsg{threadID: selected.ThreadID, category: string(category), draft: draft}
	}
}

func (m *consoleModel) selectedThread() (bridge.Thread, bool) {
	if len(m.items) == 0 {
		return bridge.Thread{}, false
	}
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.items) {
		return bridge.Thread{}, false
	}
	return m.items[m.selectedIndex], true
}

func (m *consoleModel) appendActionLog(action string, threadID uint64, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s thread=%s action=%s result=%s", timestamp, bridge.FormatThreadRef(threadID), action, outcome)
	m.actionLog = append([]string{line}, m.actionLog...)
	if len(m.actionLog) > maxActionLines {
		m.actionLog = m.actionLog[:maxActionLines]
	}

	logging.Info(m.ctx, "console action",
		slog.String("time", timestamp),
		slog.String("thread", bridge.FormatThreadRef(threadID)),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

func filterThreads(items []bridge.Thread, statusFilter string) []bridge.Thread {
	filtered := make([]bridge.Thread, 0, len(items))
	for _, item := range items {
		if statusFilter != "" && statusFilter != "all" && string(item.Status) != statusFilter {
			continue
		}
		filtered = append(filtered, item)
	}

	sort.SliceStable(filtered, func(i int, j int) bool {
		if filtered[i].LastActivity.Equal(filtered[j].LastActivity) {
			return filtered[i].ThreadID < filtered[j].ThreadID
		}
		return filtered[i].LastActivity.After(filtered[j].LastActivity)
	})
	return filtered
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}

func firstNonEmptyLine(body string) string {
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			return line
		}
	}
	return "empty"
}
