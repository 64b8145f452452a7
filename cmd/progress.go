package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type Phase int

const (
	PhaseFetching Phase = iota
	PhaseComparing
	PhaseComplete
)

var (
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Margin(0, 2)

	stageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Margin(0, 2)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFAA00")).
				Bold(true).
				Margin(0, 2)

	progressInfoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Margin(0, 2)
)

// maxRecentResults is the number of finished tables listed under the bars.
const maxRecentResults = 5

type progressModel struct {
	phase           Phase
	tables          int
	fetched         int
	failedFetches   int
	compared        int
	fetchProgress   progress.Model
	compareProgress progress.Model
	spinner         spinner.Model
	results         []*reconcile.Report
	width           int
	startTime       time.Time
	cancel          context.CancelFunc
	done            bool
}

type tableFetchedMsg struct {
	table  string
	source int
	err    error
}

type tableComparedMsg struct {
	report *reconcile.Report
}

type comparisonDoneMsg struct{}

func newProgressModel(tables int, cancel context.CancelFunc) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return progressModel{
		phase:  PhaseFetching,
		tables: tables,
		fetchProgress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(60),
		),
		compareProgress: progress.New(
			progress.WithScaledGradient("#FF7CCB", "#FDFF8C"),
			progress.WithWidth(60),
		),
		spinner:   s,
		startTime: time.Now(),
		cancel:    cancel,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if m.cancel != nil {
				m.cancel()
			}
			m.done = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > 10 {
			m.fetchProgress.Width = msg.Width - 10
			m.compareProgress.Width = msg.Width - 10
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tableFetchedMsg:
		m.fetched++
		if msg.err != nil {
			m.failedFetches++
		}
		if m.fetched >= 2*m.tables {
			m.phase = PhaseComparing
		}
	case tableComparedMsg:
		m.phase = PhaseComparing
		m.compared++
		m.results = append(m.results, msg.report)
		if len(m.results) > maxRecentResults {
			m.results = m.results[len(m.results)-maxRecentResults:]
		}
	case comparisonDoneMsg:
		m.phase = PhaseComplete
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func fraction(n, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(n) / float64(total)
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}

	var sections []string
	sections = append(sections, "")
	sections = append(sections, tableHeaderStyle.Render(fmt.Sprintf("   🔍 Reconciling %d tables", m.tables)))
	sections = append(sections, "")

	fetchInfo := fmt.Sprintf("   Loaded: %d/%d snapshots", m.fetched, 2*m.tables)
	if m.failedFetches > 0 {
		fetchInfo += fmt.Sprintf(" (%d failed)", m.failedFetches)
	}
	sections = append(sections, progressInfoStyle.Render(fetchInfo))
	sections = append(sections, "   "+m.fetchProgress.ViewAs(fraction(m.fetched, 2*m.tables)))

	sections = append(sections, progressInfoStyle.Render(fmt.Sprintf("   Compared: %d/%d tables", m.compared, m.tables)))
	sections = append(sections, "   "+m.compareProgress.ViewAs(fraction(m.compared, m.tables)))
	sections = append(sections, "")

	stage := "Loading snapshots..."
	if m.phase == PhaseComparing {
		stage = "Comparing tables..."
	}
	elapsed := time.Since(m.startTime).Round(time.Second)
	sections = append(sections, stageStyle.Render(fmt.Sprintf("   %s %s (%s)", m.spinner.View(), stage, elapsed)))

	if len(m.results) > 0 {
		sections = append(sections, "")
		sections = append(sections, tableHeaderStyle.Render("   Recent Results"))
		for _, rep := range m.results {
			sections = append(sections, "   "+resultLine(rep))
		}
	}

	sections = append(sections, "")
	sections = append(sections, helpStyle.Render("   Press Ctrl+C or 'q' to quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func resultLine(rep *reconcile.Report) string {
	switch rep.Category() {
	case reconcile.CategoryIdentical:
		return fmt.Sprintf("✅ %s - identical", rep.Table)
	case reconcile.CategoryBlocked:
		return fmt.Sprintf("⛔ %s - %s", rep.Table, strings.ReplaceAll(rep.Outcome.String(), "_", " "))
	case reconcile.CategoryFailed:
		return fmt.Sprintf("❌ %s - %s", rep.Table, rep.Err)
	default:
		return fmt.Sprintf("⚠️  %s - %d changed cells", rep.Table, len(rep.Changes))
	}
}

// runWithProgress runs the reconciler behind the progress display. Quitting
// the display cancels the run.
func runWithProgress(ctx context.Context, r *Reconciler) (*reconcile.Run, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(len(r.Tables()), cancel), tea.WithOutput(os.Stderr))
	r.onFetched = func(table string, source int, err error) {
		p.Send(tableFetchedMsg{table: table, source: source, err: err})
	}
	r.onCompared = func(rep *reconcile.Report) {
		p.Send(tableComparedMsg{report: rep})
	}

	type result struct {
		run *reconcile.Run
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		run, err := r.Run(ctx)
		resultCh <- result{run: run, err: err}
		p.Send(comparisonDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-resultCh
		return nil, fmt.Errorf("progress display failed: %w", err)
	}

	res := <-resultCh
	return res.run, res.err
}
