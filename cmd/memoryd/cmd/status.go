package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/amanmcp-labs/memoryd/internal/embedsvc"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

func newStatusCmd() *cobra.Command {
	var (
		watch      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show embedder and indexed-project status",
		Long: `status reports the embedder's readiness (spec.md §4.10), the
embedding queue's depth and throughput (spec.md §4.5), and every indexed
project's progress (spec.md §4.9).

Pass --watch for a live-updating dashboard instead of a one-shot snapshot.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, watch, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Live-updating dashboard")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// statusSnapshot is everything the status command renders, gathered in one
// pass so --watch and the one-shot form share a single code path.
type statusSnapshot struct {
	EmbedderStatus string                `json:"embedder_status"`
	Model          string                `json:"model"`
	Queue          equeue.Metrics        `json:"queue"`
	Projects       []*types.IndexStatus  `json:"projects"`
}

func collectStatus(ctx context.Context, a *app) (statusSnapshot, error) {
	status, _, _ := a.embedder.StatusSnapshot()
	projects, err := a.store.ListProjects(ctx)
	if err != nil {
		return statusSnapshot{}, fmt.Errorf("failed to list projects: %w", err)
	}
	return statusSnapshot{
		EmbedderStatus: embedderStatusString(status),
		Model:          a.cfg.Model,
		Queue:          a.queue.Metrics(),
		Projects:       projects,
	}, nil
}

func embedderStatusString(s embedsvc.Status) string {
	switch s {
	case embedsvc.StatusReady:
		return "ready"
	case embedsvc.StatusError:
		return "error"
	default:
		return "loading"
	}
}

func runStatus(ctx context.Context, cmd *cobra.Command, watch, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if watch {
		return runStatusDashboard(ctx, a)
	}

	snap, err := collectStatus(ctx, a)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	printSnapshot(cmd.OutOrStdout(), snap)
	return nil
}

func printSnapshot(w io.Writer, snap statusSnapshot) {
	fmt.Fprintf(w, "embedder: %s (%s)\n", snap.EmbedderStatus, snap.Model)
	fmt.Fprintf(w, "queue: depth=%d processed=%d failed=%d\n",
		snap.Queue.QueueDepth, snap.Queue.ProcessedTotal, snap.Queue.FailedTotal)
	if len(snap.Projects) == 0 {
		fmt.Fprintln(w, "no indexed projects")
		return
	}
	for _, p := range snap.Projects {
		fmt.Fprintf(w, "project %s: %s (%d files, %d chunks, %d symbols)\n",
			p.ProjectID, p.State, p.TotalFiles, p.TotalChunks, p.TotalSymbols)
	}
}

// --- bubbletea dashboard ---

var (
	dashHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dashLabelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	dashErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type tickMsg time.Time

type snapshotMsg struct {
	snap statusSnapshot
	err  error
}

type dashboardModel struct {
	ctx     context.Context
	a       *app
	snap    statusSnapshot
	err     error
	spinner spinner.Model
}

func runStatusDashboard(ctx context.Context, a *app) error {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &dashboardModel{ctx: ctx, a: a, spinner: s}
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

func (m *dashboardModel) Init() tea.Cmd {
	return tea.Batch(m.refresh(), tickCmd(), m.spinner.Tick)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *dashboardModel) refresh() tea.Cmd {
	return func() tea.Msg {
		snap, err := collectStatus(m.ctx, m.a)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m *dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.refresh(), tickCmd())
	case snapshotMsg:
		m.snap = msg.snap
		m.err = msg.err
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *dashboardModel) View() string {
	var b []byte
	b = append(b, dashHeaderStyle.Render("memoryd status")...)
	b = append(b, '\n')

	if m.err != nil {
		b = append(b, dashErrorStyle.Render(m.err.Error())...)
		b = append(b, '\n')
	}

	embedderLine := fmt.Sprintf("embedder: %s (%s)", m.snap.EmbedderStatus, m.snap.Model)
	if m.snap.EmbedderStatus == "loading" {
		embedderLine = fmt.Sprintf("%s %s", m.spinner.View(), embedderLine)
	}
	b = append(b, dashLabelStyle.Render(embedderLine)...)
	b = append(b, '\n')
	b = append(b, dashLabelStyle.Render(fmt.Sprintf("queue: depth=%d processed=%d failed=%d",
		m.snap.Queue.QueueDepth, m.snap.Queue.ProcessedTotal, m.snap.Queue.FailedTotal))...)
	b = append(b, '\n', '\n')

	if len(m.snap.Projects) == 0 {
		b = append(b, dashLabelStyle.Render("no indexed projects")...)
	} else {
		for _, p := range m.snap.Projects {
			line := fmt.Sprintf("%-18s %-18s files=%-6d chunks=%-6d symbols=%-6d",
				p.ProjectID, p.State, p.TotalFiles, p.TotalChunks, p.TotalSymbols)
			b = append(b, line...)
			b = append(b, '\n')
		}
	}

	b = append(b, '\n')
	b = append(b, dashLabelStyle.Render("q to quit")...)
	b = append(b, '\n')
	return string(b)
}
