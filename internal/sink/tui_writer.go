package sink

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"droneops-ground/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"

	maxLogLines         = 1000
	maxSectionHeightPct = 0.25
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a snapshot log line for the main viewport.
type logMsg struct{ line string }

type snapshotMsg struct{ SnapshotRow }

// commandMsg carries a command log line and row data.
type commandMsg struct {
	line string
	row  CommandRow
}

type linkMsg struct{ LinkRow }

// adminMsg reports admin API status.
type adminMsg struct{ active bool }

// Header shows static session information in the console.
type Header struct {
	SessionID string
	Target    string
	Endpoints string
}

// TUIWriter renders station output in a bubbletea console.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. Quitting
// the console interrupts the process.
func NewTUIWriter(h Header) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(h, time.Now), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteSnapshot implements SnapshotWriter.
func (w *TUIWriter) WriteSnapshot(row SnapshotRow) error {
	v := telemetry.Value
	line := fmt.Sprintf("%s[%s]%s %st=%dms%s %spos=(%.2f,%.2f,%.2f)%s %svel=(%.2f,%.2f,%.2f)%s %syaw=%.1f°%s",
		colorGray, row.ReceivedAt.Format(time.RFC3339), colorReset,
		colorBlue, row.TimeBootMs, colorReset,
		colorGreen, v(row.X), v(row.Y), v(row.Z), colorReset,
		colorYellow, v(row.VX), v(row.VY), v(row.VZ), colorReset,
		colorCyan, v(row.Yaw)*180/math.Pi, colorReset)
	w.program.Send(logMsg{line: line})
	w.program.Send(snapshotMsg{row})
	return nil
}

// WriteCommand implements StatusWriter.
func (w *TUIWriter) WriteCommand(row CommandRow) error {
	line := fmt.Sprintf("%s[%s]%s %sCMD%s %s%s%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorMagenta, colorReset,
		colorYellow, row.Status, colorReset)
	w.program.Send(commandMsg{line: line, row: row})
	return nil
}

// WriteLink implements StatusWriter.
func (w *TUIWriter) WriteLink(row LinkRow) error {
	w.program.Send(linkMsg{row})
	return nil
}

// SetAdminStatus updates the admin API indicator.
func (w *TUIWriter) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the TUI program and waits for cleanup.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	info         Header
	now          func() time.Time
	started      time.Time
	table        table.Model
	vp           viewport.Model
	cmdVP        viewport.Model
	logs         []string
	cmdLogs      []string
	link         LinkRow
	linkSince    time.Time
	haveLink     bool
	last         SnapshotRow
	snapshots    int64
	commands     int64
	admin        bool
	wrap         bool
	autoscroll   bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(h Header, now func() time.Time) tuiModel {
	cols := []table.Column{
		{Title: "Station", Width: 14},
		{Title: "Value", Width: 24},
		{Title: "Vehicle", Width: 14},
		{Title: "Value", Width: 24},
	}
	m := tuiModel{
		info:       h,
		now:        now,
		started:    now(),
		vp:         viewport.New(0, 0),
		cmdVP:      viewport.New(0, 0),
		autoscroll: true,
	}
	m.table = table.New(table.WithColumns(cols), table.WithRows(m.tableRows()), table.WithHeight(6))
	m.refreshHeader()
	return m
}

func (m tuiModel) tableRows() []table.Row {
	linkState := "waiting"
	linkAge := "-"
	if m.haveLink {
		linkState = m.link.State
		linkAge = humanize.RelTime(m.linkSince, m.now(), "ago", "from now")
	}
	lastCmd := "none"
	if m.commands > 0 {
		lastCmd = humanize.Comma(m.commands) + " issued"
	}
	v := telemetry.Value
	return []table.Row{
		{"Session", shortID(m.info.SessionID), "Link", linkState},
		{"Target", m.info.Target, "Since", linkAge},
		{"Endpoints", m.info.Endpoints, "Position", fmt.Sprintf("%.1f, %.1f, %.1f", v(m.last.X), v(m.last.Y), v(m.last.Z))},
		{"Uptime", humanize.RelTime(m.started, m.now(), "", ""), "Snapshots", humanize.Comma(m.snapshots)},
		{"Commands", lastCmd, "Missed", fmt.Sprintf("%d", m.link.Missed)},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.cmdVP.Width = msg.Width
		m.height = msg.Height
		m.refreshHeader()
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshCommands()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			m.refreshCommands()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.cmdVP.GotoBottom()
			}
			return m, nil
		case "h", "?":
			m.help = true
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = appendCapped(m.logs, msg.line)
		m.refreshViewport()
	case snapshotMsg:
		m.last = msg.SnapshotRow
		m.snapshots++
		m.refreshHeader()
	case commandMsg:
		m.cmdLogs = appendCapped(m.cmdLogs, msg.line)
		m.commands++
		m.refreshHeader()
		m.updateViewportHeight()
		m.refreshCommands()
	case linkMsg:
		if !m.haveLink || m.link.State != msg.State {
			m.linkSince = msg.Timestamp
		}
		m.link = msg.LinkRow
		m.haveLink = true
		m.refreshHeader()
	case adminMsg:
		m.admin = msg.active
	}
	return m, nil
}

func appendCapped(lines []string, line string) []string {
	lines = append(lines, line)
	if len(lines) > maxLogLines {
		lines = lines[len(lines)-maxLogLines:]
	}
	return lines
}

func (m *tuiModel) refreshHeader() {
	m.table.SetRows(m.tableRows())
	m.header = m.table.View()
	m.headerHeight = lipgloss.Height(m.header)
}

func (m *tuiModel) updateViewportHeight() {
	maxLines := int(float64(m.height) * maxSectionHeightPct)
	if maxLines < 1 {
		maxLines = 1
	}
	cmdLines := len(m.cmdLogs)
	if cmdLines == 0 {
		cmdLines = 1
	}
	if cmdLines > maxLines {
		cmdLines = maxLines
	}
	m.cmdVP.Height = cmdLines

	bottomHeight := lipgloss.Height(m.renderBottom())
	h := m.height - m.headerHeight - bottomHeight - m.cmdVP.Height - 4
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
		m.cmdVP.GotoBottom()
	}
}

func (m *tuiModel) wrapLines(lines []string, width int) string {
	if !m.wrap || width <= 0 {
		return strings.Join(lines, "\n")
	}
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, wordwrap.String(l, width))
	}
	return strings.Join(out, "\n")
}

func (m *tuiModel) refreshViewport() {
	m.vp.SetContent(m.wrapLines(m.logs, m.vp.Width))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshCommands() {
	content := "none"
	if len(m.cmdLogs) > 0 {
		content = m.wrapLines(m.cmdLogs, m.cmdVP.Width)
	}
	m.cmdVP.SetContent(content)
	if m.autoscroll {
		m.cmdVP.GotoBottom()
	}
}

func indicator(on bool) string {
	c := lipgloss.Color("9")
	if on {
		c = lipgloss.Color("10")
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m tuiModel) renderBottom() string {
	linkColor := colorRed
	if m.link.State == "connected" {
		linkColor = colorGreen
	}
	state := fmt.Sprintf("%sLINK%s %s%s%s", colorBlue, colorReset, linkColor, m.link.State, colorReset)
	return fmt.Sprintf("%s | Admin API %s | Wrap %s | Scroll %s | h help",
		state, indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Commands:",
		m.cmdVP.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}
