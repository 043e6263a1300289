package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/config"
)

const dashboardRefresh = 2 * time.Second

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Live terminal view of a running agentboard server",
		Long:  `dashboard polls a running server's status endpoint and renders active agents, queue depth, completed count, and free memory, refreshing every few seconds.`,
		RunE:  runDashboard,
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	m := &dashboardModel{url: "http://" + cfg.ListenAddr + "/", styles: dashboardStyles(), spinner: sp, loading: true}

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		msg := m.fetch()
		status, ok := msg.(dashboardStatusMsg)
		if !ok || status.err != nil {
			return status.err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(status.status)
	}

	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

type dashboardStatus struct {
	Service        string                           `json:"service"`
	ConcurrencyCap int                              `json:"concurrencyCap"`
	Active         map[string]dashboardActiveAgent `json:"active"`
	Completed      int                              `json:"completed"`
	FreeMemoryMB   int                              `json:"freeMemoryMB"`
	LastPollError  string                           `json:"lastPollError,omitempty"`
	UptimeSeconds  float64                          `json:"uptimeSeconds"`
}

type dashboardActiveAgent struct {
	Agent     string `json:"agent"`
	PID       int    `json:"pid"`
	RuntimeMs int64  `json:"runtimeMs"`
}

type dashboardStyleset struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Error   lipgloss.Style
	Subtle  lipgloss.Style
}

func dashboardStyles() dashboardStyleset {
	return dashboardStyleset{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1),
		Label:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Subtle: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

type dashboardModel struct {
	url     string
	styles  dashboardStyleset
	spinner spinner.Model
	loading bool
	status  *dashboardStatus
	err     error
}

type dashboardTickMsg struct{}

type dashboardStatusMsg struct {
	status *dashboardStatus
	err    error
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.spinner.Tick, tickEvery(dashboardRefresh))
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return dashboardTickMsg{} })
}

func (m *dashboardModel) fetch() tea.Msg {
	resp, err := http.Get(m.url)
	if err != nil {
		return dashboardStatusMsg{err: err}
	}
	defer resp.Body.Close()

	var status dashboardStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return dashboardStatusMsg{err: err}
	}
	return dashboardStatusMsg{status: &status}
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case dashboardTickMsg:
		m.loading = true
		return m, tea.Batch(m.fetch, tickEvery(dashboardRefresh))
	case dashboardStatusMsg:
		m.loading = false
		m.status = msg.status
		m.err = msg.err
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	title := "agentboard dashboard"
	if m.loading {
		title += " " + m.spinner.View()
	}
	s := m.styles.Title.Render(title) + "\n"
	s += m.styles.Subtle.Render(m.url) + "\n\n"

	if m.err != nil {
		s += m.styles.Error.Render(fmt.Sprintf("unreachable: %v", m.err)) + "\n"
		return s + "\n" + m.styles.Subtle.Render("q to quit")
	}
	if m.status == nil {
		return s + m.spinner.View() + " loading...\n"
	}

	st := m.status
	s += m.styles.Label.Render(fmt.Sprintf("concurrency cap: %d    completed: %d    free memory: %dMB    uptime: %.0fs",
		st.ConcurrencyCap, st.Completed, st.FreeMemoryMB, st.UptimeSeconds)) + "\n\n"

	if len(st.Active) == 0 {
		s += m.styles.Subtle.Render("no active agents") + "\n"
	} else {
		s += m.styles.Label.Render("active agents:") + "\n"
		for taskID, a := range st.Active {
			s += fmt.Sprintf("  %s  %s (pid %d, %dms)\n", taskID, a.Agent, a.PID, a.RuntimeMs)
		}
	}

	if st.LastPollError != "" {
		s += "\n" + m.styles.Error.Render("last poll error: "+st.LastPollError) + "\n"
	}

	return s + "\n" + m.styles.Subtle.Render("q to quit")
}
