package presencewatch

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/service"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("27")).Padding(0, 1)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("27")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type statsMsg struct {
	stats domain.PresenceStats
	err   error
}

type refreshMsg time.Time

type watchModel struct {
	client    *apiClient
	tracker   *service.Tracker
	interval  time.Duration
	stats     domain.PresenceStats
	fetched   bool
	lastErr   error
	updatedAt time.Time
}

func newWatchModel(client *apiClient, tracker *service.Tracker, interval time.Duration) watchModel {
	return watchModel{client: client, tracker: tracker, interval: interval}
}

func (m watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stats, err := m.client.Stats(ctx)
		return statsMsg{stats: stats, err: err}
	}
}

func (m watchModel) Init() tea.Cmd { return m.fetch() }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.fetched = true
			m.updatedAt = time.Now()
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg { return refreshMsg(t) })
	case refreshMsg:
		return m, m.fetch()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		default:
			if m.tracker != nil {
				m.tracker.Activity()
			}
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	header := headerStyle.Render("presencewatch " + m.client.baseURL)

	var body string
	switch {
	case m.lastErr != nil && !m.fetched:
		body = errorStyle.Render("stats unavailable: " + m.lastErr.Error())
	case !m.fetched:
		body = labelStyle.Render("loading…")
	default:
		body = fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("online"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalOnline)),
			labelStyle.Render("signed in"), valueStyle.Render(fmt.Sprintf("%d", m.stats.AuthenticatedUsers)),
			labelStyle.Render("anonymous"), valueStyle.Render(fmt.Sprintf("%d", m.stats.AnonymousUsers)),
		)
		if m.lastErr != nil {
			body += "\n" + errorStyle.Render("last refresh failed: "+m.lastErr.Error())
		}
	}

	footer := footerStyle.Render("r refresh  q quit")
	if m.fetched {
		footer = footerStyle.Render(fmt.Sprintf("updated %s   r refresh  q quit", m.updatedAt.Format("15:04:05")))
	}

	return header + "\n" + panelStyle.Render(body) + "\n" + footer + "\n"
}
