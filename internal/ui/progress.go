// Package ui renders live build progress in the terminal.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"classbuilder/internal/buildpipeline"
)

// stageInfo is how a running stage is shown and how far along it counts.
type stageInfo struct {
	label  string
	weight float64
}

var stages = map[buildpipeline.Stage]stageInfo{
	buildpipeline.StageLoad:      {"loading", 0.1},
	buildpipeline.StageCompile:   {"compiling", 0.4},
	buildpipeline.StageSerialize: {"serializing", 0.7},
	buildpipeline.StageWrite:     {"writing", 0.9},
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

const statusWidth = 12

type recipeRow struct {
	path    string
	status  buildpipeline.Status
	stage   buildpipeline.Stage
	err     error
	started time.Time
	took    time.Duration
}

func (r *recipeRow) finished() bool {
	return r.status == buildpipeline.StatusDone || r.status == buildpipeline.StatusError
}

func (r *recipeRow) label() string {
	if r.status == buildpipeline.StatusWorking {
		return stageLabel(r.stage)
	}
	return string(r.status)
}

func (r *recipeRow) style() lipgloss.Style {
	switch r.status {
	case buildpipeline.StatusDone:
		return doneStyle
	case buildpipeline.StatusError:
		return failedStyle
	case buildpipeline.StatusWorking:
		return runningStyle
	}
	return queuedStyle
}

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	rows    []recipeRow
	index   map[string]int
	width   int
	done    bool
	now     func() time.Time
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel shows one row per recipe and quits when events is
// closed.
func NewProgressModel(title string, recipes []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(runningStyle))
	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(76)),
		rows:    make([]recipeRow, len(recipes)),
		index:   make(map[string]int, len(recipes)),
		width:   80,
		now:     time.Now,
	}
	for i, path := range recipes {
		m.rows[i] = recipeRow{path: path, status: buildpipeline.StatusQueued}
		m.index[path] = i
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		if ev, ok := <-m.events; ok {
			return eventMsg(ev)
		}
		return doneMsg{}
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.apply(buildpipeline.Event(msg)), m.next())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if !m.done {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = max(msg.Width-4, 10)
		}
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// apply folds an event into its row. Events for unknown recipes and
// build-wide events are ignored.
func (m *progressModel) apply(ev buildpipeline.Event) tea.Cmd {
	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	row := &m.rows[idx]
	if row.finished() {
		return nil
	}
	if ev.Status == buildpipeline.StatusWorking && row.started.IsZero() {
		row.started = m.now()
	}
	row.status, row.stage = ev.Status, ev.Stage
	if ev.Err != nil {
		row.err = ev.Err
	}
	if row.finished() && !row.started.IsZero() {
		row.took = m.now().Sub(row.started)
	}
	return m.bar.SetPercent(m.percent())
}

// percent counts finished recipes fully and running ones by stage weight.
func (m *progressModel) percent() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	total := 0.0
	for i := range m.rows {
		if m.rows[i].finished() {
			total++
		} else if m.rows[i].status == buildpipeline.StatusWorking {
			total += progressFromStage(m.rows[i].stage)
		}
	}
	return total / float64(len(m.rows))
}

func (m *progressModel) counts() (done, failed int) {
	for i := range m.rows {
		switch m.rows[i].status {
		case buildpipeline.StatusDone:
			done++
		case buildpipeline.StatusError:
			failed++
		}
	}
	return done, failed
}

func (m *progressModel) View() string {
	if len(m.rows) == 0 {
		return ""
	}
	done, failed := m.counts()
	header := fmt.Sprintf("%s %d/%d", m.title, done+failed, len(m.rows))
	if failed > 0 {
		header += fmt.Sprintf(", %d failed", failed)
	}
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-statusWidth-14, 20)
	for i := range m.rows {
		row := &m.rows[i]
		status := row.style().Render(fmt.Sprintf("%*s", statusWidth, row.label()))
		fmt.Fprintf(&b, "  %s %s", status, truncate(row.path, nameWidth))
		if row.took > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" %s", row.took.Round(time.Millisecond))))
		}
		b.WriteString("\n")
		if row.err != nil {
			indent := strings.Repeat(" ", statusWidth+3)
			b.WriteString(indent + failedStyle.Render(truncate(row.err.Error(), nameWidth)) + "\n")
		}
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.bar.ViewAs(1))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteString("\n")
	return b.String()
}

func progressFromStage(stage buildpipeline.Stage) float64 {
	return stages[stage].weight
}

func stageLabel(stage buildpipeline.Stage) string {
	return stages[stage].label
}

// truncate shortens value to width display columns.
func truncate(value string, width int) string {
	switch {
	case width <= 0 || runewidth.StringWidth(value) <= width:
		return value
	case width <= 3:
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
