package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/portly/internal/logger"
	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/portage"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
	"github.com/alexisbeaulieu97/portly/internal/tui/components"
)

const maxConsoleLines = 2000

// Runner starts and cancels pipelines. *sequencer.Sequencer satisfies it.
type Runner interface {
	Start(ctx context.Context, pipeline sequencer.Pipeline, initial task.Token, sink process.Sink, observer sequencer.Observer) (<-chan sequencer.Report, error)
	Cancel() bool
}

// Options wires the model to the engine.
type Options struct {
	Runner  Runner
	Builder *portage.Builder
	// Store persists the lists after each pipeline. Optional.
	Store    *snapshot.Store
	Snapshot snapshot.Snapshot
	// Warnings are shown above the lists, typically failed host checks.
	Warnings []string
	// RefreshOnStart runs the refresh pipeline from Init.
	RefreshOnStart bool
	Logger         *logger.Logger
}

// Model is the Bubbletea state of the package manager screen.
type Model struct {
	runner   Runner
	builder  *portage.Builder
	store    *snapshot.Store
	log      *logger.Logger
	warnings []string

	snap      snapshot.Snapshot
	tab       int
	cursor    int
	offset    int
	selected  map[string]bool
	filter    textinput.Model
	filtering bool

	viewMode ViewMode

	// Pipeline state
	run        int
	running    bool
	action     Action
	totalSteps int
	doneSteps  int
	steps      components.StepList
	msgs       chan tea.Msg
	done       chan struct{}
	closeOnce  *sync.Once

	// Confirmation state
	confirmAction   Action
	confirmAtoms    []string
	confirmCommand  string
	confirmMessage  string
	confirmPipeline sequencer.Pipeline

	// Dialog state
	errorTitle string
	errorMsg   string

	status  string
	console []string

	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	refreshOnStart bool
	width          int
	height         int
}

// NewModel creates the model.
func NewModel(opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	filter := textinput.New()
	filter.Placeholder = "filter"
	filter.Prompt = "/ "
	filter.CharLimit = 128

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	m := Model{
		runner:         opts.Runner,
		builder:        opts.Builder,
		store:          opts.Store,
		log:            log,
		warnings:       opts.Warnings,
		snap:           opts.Snapshot,
		selected:       make(map[string]bool),
		filter:         filter,
		viewMode:       ViewList,
		spinner:        s,
		progress:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		viewport:       viewport.New(80, 8),
		refreshOnStart: opts.RefreshOnStart,
		width:          80,
		height:         24,
		status:         "Ready",
		done:           make(chan struct{}),
		closeOnce:      &sync.Once{},
	}
	if m.builder == nil {
		m.builder = portage.NewBuilder(portage.DefaultTools(), nil, 0)
	}
	if opts.Snapshot.Empty() {
		m.status = "No cached package lists; press r to refresh"
	}
	return m
}

// Close releases engine goroutines still forwarding into the model. The
// program calls it on quit; embedders call it once the program has returned.
func (m Model) Close() {
	if m.closeOnce == nil {
		return
	}
	m.closeOnce.Do(func() { close(m.done) })
}

// Init starts the spinner and, when configured, the initial refresh.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.refreshOnStart {
		cmds = append(cmds, func() tea.Msg { return startRequestMsg{action: ActionRefresh} })
	}
	return tea.Batch(cmds...)
}

// startRequestMsg asks Update to start an action without confirmation.
type startRequestMsg struct {
	action Action
}

// Helper Methods

// List returns the list shown by the current tab.
func (m Model) List() snapshot.List {
	return snapshot.Lists[m.tab]
}

// Snapshot returns the lists currently displayed.
func (m Model) Snapshot() snapshot.Snapshot {
	return m.snap
}

// Running reports whether a pipeline is in progress.
func (m Model) Running() bool {
	return m.running
}

// Status returns the status line text.
func (m Model) Status() string {
	return m.status
}

// ViewMode returns the current view mode.
func (m Model) ViewMode() ViewMode {
	return m.viewMode
}

// Console returns the console lines.
func (m Model) Console() []string {
	return m.console
}

// visibleItems applies the filter to the current tab.
func (m Model) visibleItems() []string {
	return parsers.Filter(m.snap.Items(m.List()), m.filter.Value())
}

// selectedItems returns the marked items of the current tab, or the item
// under the cursor when nothing is marked.
func (m Model) selectedItems() []string {
	items := m.visibleItems()
	var out []string
	for _, item := range m.snap.Items(m.List()) {
		if m.selected[m.selectionKey(item)] {
			out = append(out, item)
		}
	}
	if len(out) == 0 && m.cursor >= 0 && m.cursor < len(items) {
		out = append(out, items[m.cursor])
	}
	return out
}

func (m Model) selectionKey(item string) string {
	return string(m.List()) + "\x00" + item
}

func (m Model) selectionCount() int {
	count := 0
	for _, item := range m.snap.Items(m.List()) {
		if m.selected[m.selectionKey(item)] {
			count++
		}
	}
	return count
}

func (m *Model) clampCursor() {
	n := len(m.visibleItems())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	rows := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) listHeight() int {
	rows := m.height - m.viewport.Height - 12 - len(m.warnings)
	if rows < 3 {
		rows = 3
	}
	return rows
}

func (m *Model) appendConsole(lines ...string) {
	for _, line := range lines {
		m.console = append(m.console, strings.Split(parsers.StripANSI(line), "\n")...)
	}
	if over := len(m.console) - maxConsoleLines; over > 0 {
		m.console = append([]string(nil), m.console[over:]...)
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.console, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 2
	m.viewport.Height = height / 4
	if m.viewport.Height < 4 {
		m.viewport.Height = 4
	}
	m.progress.Width = width / 3
	m.clampCursor()
}

func (m *Model) showError(title, message string) {
	m.errorTitle = title
	m.errorMsg = message
	m.viewMode = ViewError
}

func tabLabel(list snapshot.List, count int, loaded bool) string {
	name := strings.ToUpper(string(list[:1])) + string(list[1:])
	if !loaded {
		return fmt.Sprintf("%s (-)", name)
	}
	return fmt.Sprintf("%s (%d)", name, count)
}
