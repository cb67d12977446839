// Package model implements the lodestar top dashboard.
package model

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lodestar-sh/lodestar/pkg/buffer"
	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/downsample"
	"github.com/lodestar-sh/lodestar/pkg/stream"
	"github.com/lodestar-sh/lodestar/pkg/transport/uds"
)

// Pane identifies which dashboard pane is focused.
type Pane int

const (
	PaneSources Pane = iota
	PaneChart
	PaneLogs
)

// chartKinds is the cycle order for the chart pane.
var chartKinds = []string{core.KindCPUPercent, core.KindMemoryPercent, core.KindMemoryBytes}

// seriesTarget bounds how many live points each chart series retains.
const seriesTarget = 300

// activityCap and activityAge bound the recent-event feed.
const (
	activityCap = 200
	activityAge = 10 * time.Minute
)

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool
	events     chan uds.Message

	// State
	sources     []stream.ConnState
	selectedIdx int
	kindIdx     int
	series      map[string]*downsample.Streaming
	activity    *buffer.Window[string]
	logEntries  []core.LogEntry

	// UI
	activePane Pane
	filter     textinput.Model
	filtering  bool
	width      int
	height     int
	statusMsg  string
}

// New creates the dashboard model.
func New(socketPath string) App {
	fi := textinput.New()
	fi.Placeholder = "log filter (regex)..."
	fi.CharLimit = 64

	return App{
		socketPath: socketPath,
		events:     make(chan uds.Message, 64),
		series:     make(map[string]*downsample.Streaming),
		activity:   buffer.NewWindow[string](activityCap, activityAge),
		filter:     fi,
		activePane: PaneSources,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("Lodestar"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct{ client *uds.Client }

// sourcesMsg carries updated connection states from the daemon.
type sourcesMsg struct{ sources []stream.ConnState }

// logsMsg carries the selected source's log tail.
type logsMsg struct {
	sessionID string
	entries   []core.LogEntry
}

// evtMsg carries a broadcast event.
type evtMsg uds.Message

// errorMsg carries an error to display.
type errorMsg struct{ err error }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEventCmd delivers the next broadcast event as a message.
func waitEventCmd(events chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		return evtMsg(<-events)
	}
}

func fetchSourcesCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodSources, nil)
		if err != nil {
			return errorMsg{err}
		}
		var out uds.SourcesResponse
		if err := resp.UnmarshalData(&out); err != nil {
			return errorMsg{err}
		}
		return sourcesMsg{sources: out.Sources}
	}
}

func fetchLogsCmd(client *uds.Client, sessionID, filter string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		resp, err := client.Request(ctx, uds.MethodLogsQuery, uds.LogsQueryRequest{
			SessionID: sessionID,
			Tail:      200,
			Filter:    filter,
		})
		if err != nil {
			return errorMsg{err}
		}
		var out uds.LogsQueryResponse
		if err := resp.UnmarshalData(&out); err != nil {
			return errorMsg{err}
		}
		return logsMsg{sessionID: out.SessionID, entries: out.Entries}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"
		events := a.events
		a.client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			default: // drop when the UI lags
			}
		})
		return a, tea.Batch(tickCmd(), fetchSourcesCmd(a.client), waitEventCmd(a.events))

	case tickMsg:
		if a.client == nil {
			return a, tickCmd()
		}
		cmds := []tea.Cmd{tickCmd(), fetchSourcesCmd(a.client)}
		if src := a.selectedSource(); src != nil {
			cmds = append(cmds, fetchLogsCmd(a.client, src.SourceID, a.filter.Value()))
		}
		return a, tea.Batch(cmds...)

	case sourcesMsg:
		a.sources = msg.sources
		if a.selectedIdx >= len(a.sources) {
			a.selectedIdx = max(0, len(a.sources)-1)
		}
		return a, nil

	case logsMsg:
		if src := a.selectedSource(); src != nil && src.SourceID == msg.sessionID {
			a.logEntries = msg.entries
		}
		return a, nil

	case evtMsg:
		a.consumeEvent(uds.Message(msg))
		return a, waitEventCmd(a.events)

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// consumeEvent folds a broadcast event into the live series and the
// activity feed.
func (a *App) consumeEvent(msg uds.Message) {
	switch msg.Method {
	case uds.EventMetricsSample:
		var evt uds.SampleEvent
		if err := msg.UnmarshalData(&evt); err != nil {
			return
		}
		p := evt.Point
		key := core.SeriesKey(p.SourceID, p.Kind)
		s, ok := a.series[key]
		if !ok {
			s = downsample.NewStreaming(seriesTarget)
			a.series[key] = s
		}
		s.Add(downsample.Point{X: float64(p.TsUnixMs), Y: p.Value})

	case uds.EventSourceState:
		var evt uds.SourceStateEvent
		if err := msg.UnmarshalData(&evt); err != nil {
			return
		}
		st := evt.State
		a.activity.Add(fmt.Sprintf("%s %s (%s)", st.SourceID, st.State, st.Transport))
		for i, s := range a.sources {
			if s.SourceID == st.SourceID {
				a.sources[i] = st
			}
		}
	}
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.filtering {
		switch msg.String() {
		case "esc":
			a.filtering = false
			a.filter.SetValue("")
			a.filter.Blur()
			return a, nil
		case "enter":
			a.filtering = false
			a.filter.Blur()
			if a.client != nil {
				if src := a.selectedSource(); src != nil {
					return a, fetchLogsCmd(a.client, src.SourceID, a.filter.Value())
				}
			}
			return a, nil
		default:
			var cmd tea.Cmd
			a.filter, cmd = a.filter.Update(msg)
			return a, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneSources && len(a.sources) > 0 {
			a.selectedIdx = min(a.selectedIdx+1, len(a.sources)-1)
			a.logEntries = nil
		}
	case "k", "up":
		if a.activePane == PaneSources && a.selectedIdx > 0 {
			a.selectedIdx--
			a.logEntries = nil
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 3

	case "m":
		a.kindIdx = (a.kindIdx + 1) % len(chartKinds)

	case "/":
		a.activePane = PaneLogs
		a.filtering = true
		a.filter.Focus()
		return a, textinput.Blink
	}

	return a, nil
}

func (a App) selectedSource() *stream.ConnState {
	if a.selectedIdx < len(a.sources) {
		return &a.sources[a.selectedIdx]
	}
	return nil
}

func (a App) chartKind() string {
	return chartKinds[a.kindIdx]
}

// chartPoints returns the live series for the selected source and
// kind, downsampled to the pane width.
func (a App) chartPoints(width int) []downsample.Point {
	src := a.selectedSource()
	if src == nil {
		return nil
	}
	s, ok := a.series[core.SeriesKey(src.SourceID, a.chartKind())]
	if !ok {
		return nil
	}
	return downsample.Adaptive(s.Points(), float64(width), 1, width)
}
