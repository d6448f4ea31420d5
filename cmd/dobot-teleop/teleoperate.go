package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/dobot-teleop/pkg/config"
	"github.com/gwillem/dobot-teleop/pkg/logging"
	"github.com/gwillem/dobot-teleop/pkg/robot"
	"github.com/gwillem/dobot-teleop/pkg/teleop"
)

type TeleoperateCommand struct {
	Hz        int  `long:"hz" description:"Control loop frequency (default from config)"`
	JointMode bool `long:"joint-mode" description:"Servo in joint space through the controller's inverse kinematics"`
	Headless  bool `long:"headless" description:"No terminal UI; stop with Ctrl-C"`
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyControlFlags(cfg, c.Hz, c.JointMode)

	var feed *logging.Feed
	if !c.Headless {
		feed = logging.NewFeed(100)
	}
	logger := newLogger(feed)
	defer logger.Sync()

	r, err := openRig(context.Background(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer r.close()

	ctrl := teleop.NewController(cfg.Teleop(), r.deps)
	return run(ctrl, feed, "Dobot Teleoperate", c.Headless)
}

// applyControlFlags overrides configured loop settings with command flags.
func applyControlFlags(cfg *config.Config, hz int, jointMode bool) {
	if hz > 0 {
		cfg.Control.Hz = hz
	}
	if jointMode {
		cfg.Control.ServoMode = teleop.ServoJoint
	}
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Axis colors - distinct colors for each plotted coordinate
var axisColors = map[string]string{
	"x": "196", // red
	"y": "46",  // green
	"z": "51",  // cyan
}

var plotted = []string{"x", "y", "z"}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

type teleopModel struct {
	ctrl       *teleop.Controller
	feed       *logging.Feed
	cancel     context.CancelFunc
	res        *runResult
	title      string
	chart      *streamlinechart.Model
	width      int      // terminal width
	height     int      // terminal height
	logs       []string // last N log messages
	state      teleop.State
	stopping   bool
	lastAction *robot.Pose // previous commanded pose, to detect movement
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement reports whether the commanded position changed since the last state
func (m *teleopModel) hasMovement(action robot.Pose) bool {
	if m.lastAction == nil {
		return true // first reading, consider it movement
	}
	return action.X() != m.lastAction.X() || action.Y() != m.lastAction.Y() || action.Z() != m.lastAction.Z()
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string
type doneMsg struct{}

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(feed *logging.Feed) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-feed.Lines())
	}
}

func waitForDone(res *runResult) tea.Cmd {
	return func() tea.Msg {
		<-res.done
		return doneMsg{}
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newTeleopModel(ctrl *teleop.Controller, feed *logging.Feed, cancel context.CancelFunc, res *runResult, title string) teleopModel {
	// Covers the default workspace on every axis.
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-350, 800),
	)

	for _, name := range plotted {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return teleopModel{
		ctrl:   ctrl,
		feed:   feed,
		cancel: cancel,
		res:    res,
		title:  title,
		chart:  &chart,
	}
}

func runTUI(m teleopModel) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m teleopModel) Init() tea.Cmd {
	// Start listening for state, log and completion updates
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.feed),
		waitForDone(m.res),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			// The controller drains and disconnects before the UI exits.
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
			return m, nil
		}

	case stateMsg:
		m.state = teleop.State(msg)
		if m.state.Phase == teleop.PhaseActive && m.hasMovement(m.state.Action) {
			action := m.state.Action
			m.chart.PushDataSet("x", action.X())
			m.chart.PushDataSet("y", action.Y())
			m.chart.PushDataSet("z", action.Z())
			m.chart.DrawAll()
			m.lastAction = &action
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.feed)

	case doneMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m teleopModel) View() string {
	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	sb.WriteString(statusStyle.Render(m.status()))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	switch {
	case m.stopping && m.state.Phase != teleop.PhaseTerminated && len(m.logs) == 0:
		logLines = warnStyle.Render("Stopping...")
	case len(m.logs) == 0:
		logLines = statusStyle.Render("Press 'q' to stop")
	default:
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m teleopModel) status() string {
	s := m.state
	gripper := "off"
	if s.Gripper == robot.GripperOn {
		gripper = "on"
	}
	status := fmt.Sprintf("  [%s] tick %d  t=%.1fs  gripper %s", s.Phase, s.Tick, s.Timestamp.Seconds(), gripper)
	if s.Observed == nil && s.Phase == teleop.PhaseActive {
		status += "  pose unknown"
	}
	if s.Pending > 0 {
		status += fmt.Sprintf("  queued %d", s.Pending)
	}
	return status
}

func renderLegend() string {
	var items []string
	for _, name := range plotted {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[name])).Bold(true)
		item := colorStyle.Render("━━") + " " + name
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}
