package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/downsample"
	"github.com/lodestar-sh/lodestar/pkg/stream"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	stateConnected    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	stateReconnecting = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	stateFailed       = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	activePaneStyle = paneStyle.
			BorderForeground(lipgloss.Color("205"))

	chartStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// View renders the dashboard.
func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	statusBarH := 2
	logPaneH := max(a.height/4, 5)
	mainH := a.height - logPaneH - statusBarH - 2
	listW := a.width*2/5 - 2
	chartW := a.width - listW - 4

	sources := a.renderSources(listW, mainH)
	sourcesPane := a.paneBox(PaneSources, " Sources ", sources, listW, mainH)

	chart := a.renderChart(chartW-2, mainH)
	chartPane := a.paneBox(PaneChart, fmt.Sprintf(" %s ", kindLabel(a.chartKind())), chart, chartW, mainH)

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, sourcesPane, chartPane)

	logs := a.renderLogs(a.width-4, logPaneH)
	logPane := a.paneBox(PaneLogs, " Logs ", logs, a.width-4, logPaneH)

	statusBar := a.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logPane, statusBar)
}

func (a App) paneBox(pane Pane, title, content string, w, h int) string {
	style := paneStyle
	if a.activePane == pane {
		style = activePaneStyle
	}
	return style.Width(w).Height(h).Render(
		titleStyle.Render(title) + "\n" + content,
	)
}

func (a App) renderSources(w, h int) string {
	if len(a.sources) == 0 {
		return dimStyle.Render("no sources")
	}

	var b strings.Builder
	maxVisible := h - 2
	start := 0
	if a.selectedIdx >= maxVisible {
		start = a.selectedIdx - maxVisible + 1
	}

	for i := start; i < len(a.sources) && i-start < maxVisible; i++ {
		src := a.sources[i]
		indicator := stateIndicator(src.State)
		id := truncate(src.SourceID, w-16)
		line := fmt.Sprintf(" %s %-*s %s", indicator, w-16, id, dimStyle.Render(string(src.Transport)))

		if i == a.selectedIdx {
			line = selectedStyle.Width(w).Render(line)
		}
		b.WriteString(line + "\n")
	}

	return b.String()
}

// renderChart draws the selected series as a sparkline plus a detail
// block for the source's connection.
func (a App) renderChart(w, h int) string {
	src := a.selectedSource()
	if src == nil {
		return dimStyle.Render("select a source")
	}

	var b strings.Builder
	points := a.chartPoints(w)
	if len(points) == 0 {
		b.WriteString(dimStyle.Render("waiting for samples...") + "\n")
	} else {
		b.WriteString(chartStyle.Render(sparkline(points, w)) + "\n")
		lo, hi := bounds(points)
		last := points[len(points)-1].Y
		fmt.Fprintf(&b, "%s\n",
			dimStyle.Render(fmt.Sprintf("min %.1f  max %.1f  last %.1f  (%d pts)", lo, hi, last, len(points))))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Source:     %s\n", src.SourceID)
	fmt.Fprintf(&b, "State:      %s\n", colorState(src.State))
	fmt.Fprintf(&b, "Transport:  %s\n", src.Transport)
	if src.Attempts > 0 {
		fmt.Fprintf(&b, "Attempts:   %d\n", src.Attempts)
	}
	if src.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", stateFailed.Render(truncate(src.LastError, w-12)))
	}
	if src.ConnectedAtMs > 0 {
		since := time.Since(time.UnixMilli(src.ConnectedAtMs)).Truncate(time.Second)
		fmt.Fprintf(&b, "Connected:  %s ago\n", since)
	}

	if recent := a.activity.Values(); len(recent) > 0 {
		if n := max(h-12, 0); len(recent) > n {
			recent = recent[len(recent)-n:]
		}
		b.WriteString("\n" + dimStyle.Render("Recent:") + "\n")
		for _, line := range recent {
			b.WriteString(dimStyle.Render("  "+truncate(line, w-2)) + "\n")
		}
	}

	return b.String()
}

func (a App) renderLogs(w, h int) string {
	var b strings.Builder
	if a.filtering || a.filter.Value() != "" {
		b.WriteString(a.filter.View() + "\n")
		h--
	}

	if len(a.logEntries) == 0 {
		b.WriteString(dimStyle.Render("no log output"))
		return b.String()
	}

	start := 0
	if len(a.logEntries) > h-1 {
		start = len(a.logEntries) - h + 1
	}
	for i := start; i < len(a.logEntries); i++ {
		e := a.logEntries[i]
		ts := time.UnixMilli(e.TsUnixMs).Format("15:04:05")
		line := fmt.Sprintf("%s %s %s", dimStyle.Render(ts), dimStyle.Render(e.Type), e.Data)
		b.WriteString(truncate(line, w) + "\n")
	}
	return b.String()
}

func (a App) renderStatusBar() string {
	left := a.statusMsg
	if !a.connected {
		left = "connecting to " + a.socketPath
	}
	right := "j/k:nav tab:pane m:metric /:filter q:quit"
	if a.filtering {
		right = "enter:apply esc:clear"
	}

	gap := a.width - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return helpStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// sparkline maps the series onto one row of block runes.
func sparkline(points []downsample.Point, w int) string {
	if len(points) == 0 {
		return ""
	}
	lo, hi := bounds(points)
	span := hi - lo
	out := make([]rune, 0, min(len(points), w))
	for i, p := range points {
		if i >= w {
			break
		}
		idx := 0
		if span > 0 {
			idx = int((p.Y - lo) / span * float64(len(sparkRunes)-1))
		}
		out = append(out, sparkRunes[idx])
	}
	return string(out)
}

func bounds(points []downsample.Point) (lo, hi float64) {
	lo, hi = points[0].Y, points[0].Y
	for _, p := range points[1:] {
		if p.Y < lo {
			lo = p.Y
		}
		if p.Y > hi {
			hi = p.Y
		}
	}
	return lo, hi
}

func kindLabel(kind string) string {
	switch kind {
	case core.KindCPUPercent:
		return "CPU %"
	case core.KindMemoryPercent:
		return "Memory %"
	case core.KindMemoryBytes:
		return "Memory bytes"
	case core.KindNetworkRx:
		return "Network rx"
	case core.KindNetworkTx:
		return "Network tx"
	default:
		return kind
	}
}

func stateIndicator(state stream.State) string {
	switch state {
	case stream.StateConnected:
		return stateConnected.Render("●")
	case stream.StateConnecting, stream.StateReconnecting:
		return stateReconnecting.Render("↻")
	case stream.StateFailed:
		return stateFailed.Render("✖")
	default:
		return dimStyle.Render("○")
	}
}

func colorState(state stream.State) string {
	switch state {
	case stream.StateConnected:
		return stateConnected.Render(string(state))
	case stream.StateConnecting, stream.StateReconnecting:
		return stateReconnecting.Render(string(state))
	case stream.StateFailed:
		return stateFailed.Render(string(state))
	default:
		return dimStyle.Render(string(state))
	}
}

func truncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
