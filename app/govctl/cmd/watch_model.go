package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/buildgovernor/governor/app/core/protocol"
)

// leasesViewportHeight is the fixed number of visible rows in the recent-
// leases scroll area; the list itself holds up to ten entries.
const leasesViewportHeight = 6

type watchModel struct {
	endpoint string

	connected      bool
	status         protocol.StatusResponse
	connErr        string
	leasesViewport viewport.Model

	width, height int
}

type statusMsg protocol.StatusResponse
type watchErrorMsg struct{ err error }
type tickMsg time.Time

func newWatchModel(endpoint string) watchModel {
	vp := viewport.New(0, leasesViewportHeight)
	return watchModel{endpoint: endpoint, leasesViewport: vp}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(fetchStatus(m.endpoint), tea.EnterAltScreen)
}

func fetchStatus(endpoint string) tea.Cmd {
	return func() tea.Msg {
		client, err := protocol.Dial(endpoint, 2*time.Second)
		if err != nil {
			return watchErrorMsg{err}
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return watchErrorMsg{err}
		}
		return statusMsg(status)
	}
}

func scheduleTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.leasesViewport.Width = msg.Width - 4

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.leasesViewport, cmd = m.leasesViewport.Update(msg)
		return m, cmd

	case statusMsg:
		m.connected = true
		m.connErr = ""
		m.status = protocol.StatusResponse(msg)
		m.leasesViewport.SetContent(renderLeaseRows(m.status.RecentLeases))
		return m, scheduleTick()

	case watchErrorMsg:
		m.connected = false
		m.connErr = msg.err.Error()
		return m, scheduleTick()

	case tickMsg:
		return m, fetchStatus(m.endpoint)
	}

	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("build governor — live status"))
	b.WriteString("\n\n")

	if !m.connected {
		msg := "connecting..."
		if m.connErr != "" {
			msg = "disconnected: " + m.connErr
		}
		b.WriteString(errorStyle.Render(msg))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("press q to quit"))
		return b.String()
	}

	s := m.status
	level := s.ThrottleLevel

	rows := []string{
		statRow("tokens", fmt.Sprintf("%d / %d available", s.AvailableTokens, s.TotalTokens)),
		statRow("active leases", fmt.Sprintf("%d", s.ActiveLeases)),
		statRow("expired leases", fmt.Sprintf("%d", s.ExpiredLeaseCount)),
		statRow("commit ratio", fmt.Sprintf("%.2f  %s", s.CommitRatio, throttleStyle(level).Render(level))),
		statRow("commit charge", fmt.Sprintf("%s / %s", humanBytes(s.CommitChargeBytes), humanBytes(s.CommitLimitBytes))),
		statRow("available memory", humanBytes(s.AvailableMemoryBytes)),
		statRow("recommended parallelism", fmt.Sprintf("%d", s.RecommendedParallelism)),
	}

	b.WriteString(panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	b.WriteString("\n")
	b.WriteString(statLabelStyle.Render("recent leases"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.leasesViewport.View()))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("press q to quit · refreshes every " + pollInterval.String()))

	return b.String()
}

func statRow(label, value string) string {
	return statLabelStyle.Render(fmt.Sprintf("%-24s", label)) + statValueStyle.Render(value)
}

// renderLeaseRows formats the status response's recent-leases list for the
// leases viewport, one lease per line.
func renderLeaseRows(leases []protocol.StatusLease) string {
	if len(leases) == 0 {
		return statLabelStyle.Render("(none yet)")
	}
	rows := make([]string, 0, len(leases))
	for _, l := range leases {
		rows = append(rows, fmt.Sprintf("%-14s %-10s %3d tok  %6.1fs", l.LeaseID, l.Tool, l.Tokens, l.DurationSeconds))
	}
	return strings.Join(rows, "\n")
}
