// Package main provides brokertop, a terminal dashboard that polls a
// running broker's admin HTTP endpoint, in the style of
// destiny-lucas/cmd/cli's bubbletea + lipgloss TUI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BE9FD"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#BD93F9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
)

const pollInterval = time.Second

type statusResponse struct {
	Status     string `json:"status"`
	ErrorCount int    `json:"error_count"`
	Services   int    `json:"services"`
	Workers    int    `json:"workers"`
	Requests   int    `json:"requests"`
	LastError  string `json:"last_error"`
	Metrics    struct {
		Assigned  uint64 `json:"assigned"`
		CacheHits uint64 `json:"cacheHits"`
		Dropped   uint64 `json:"dropped"`
		Requeued  uint64 `json:"requeued"`
		Rejected  uint64 `json:"rejected"`
	} `json:"metrics"`
}

type tickMsg time.Time

type fetchResultMsg struct {
	status statusResponse
	err    error
}

type model struct {
	adminURL string
	client   *http.Client
	status   statusResponse
	err      error
	quitting bool
}

func initialModel(adminURL string) model {
	return model{
		adminURL: adminURL,
		client:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) fetch() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(strings.TrimRight(m.adminURL, "/") + "/status")
		if err != nil {
			return fetchResultMsg{err: err}
		}
		defer resp.Body.Close()

		var status statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fetchResultMsg{err: err}
		}
		return fetchResultMsg{status: status}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())

	case fetchResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
		}
		return m, nil
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return "\n"
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("plantd broker") + "\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("unreachable: %v", m.err)) + "\n")
		return b.String()
	}

	statusRender := okStyle.Render(m.status.Status)
	if m.status.Status != "running" {
		statusRender = warnStyle.Render(m.status.Status)
	}

	b.WriteString(labelStyle.Render("status:    ") + statusRender + "\n")
	b.WriteString(labelStyle.Render("services:  ") + fmt.Sprintf("%d", m.status.Services) + "\n")
	b.WriteString(labelStyle.Render("workers:   ") + fmt.Sprintf("%d", m.status.Workers) + "\n")
	b.WriteString(labelStyle.Render("requests:  ") + fmt.Sprintf("%d", m.status.Requests) + "\n\n")

	b.WriteString(labelStyle.Render("assigned:  ") + fmt.Sprintf("%d", m.status.Metrics.Assigned) + "\n")
	b.WriteString(labelStyle.Render("cache hit: ") + fmt.Sprintf("%d", m.status.Metrics.CacheHits) + "\n")
	b.WriteString(labelStyle.Render("dropped:   ") + fmt.Sprintf("%d", m.status.Metrics.Dropped) + "\n")
	b.WriteString(labelStyle.Render("requeued:  ") + fmt.Sprintf("%d", m.status.Metrics.Requeued) + "\n")
	b.WriteString(labelStyle.Render("rejected:  ") + fmt.Sprintf("%d", m.status.Metrics.Rejected) + "\n")

	if m.status.ErrorCount > 0 {
		b.WriteString("\n" + errStyle.Render(fmt.Sprintf("errors: %d (%s)", m.status.ErrorCount, m.status.LastError)) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("press q to quit") + "\n")
	return b.String()
}

func main() {
	adminURL := flag.String("admin", "http://127.0.0.1:8420", "broker admin endpoint")
	flag.Parse()

	p := tea.NewProgram(initialModel(*adminURL), tea.WithAltScreen())
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Println("brokertop exited with error:", err)
	}
}
