package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/samber/lo"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/gwillem/dobot-teleop/pkg/config"
	"github.com/gwillem/dobot-teleop/pkg/gamepad"
	"github.com/gwillem/dobot-teleop/pkg/gripper"
	"github.com/gwillem/dobot-teleop/pkg/robot"
)

var (
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Dobot Teleop Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := config.Default()
	if existing, err := config.LoadConfigFrom(opts.Config); err == nil {
		cfg = existing
		fmt.Println(dimStyle.Render("Editing " + opts.Config))
		fmt.Println()
	}

	// Step 1: Controller
	fmt.Println(subHeaderStyle.Render("━━━ Controller ━━━"))
	setupController(cfg)

	// Step 2: Gamepad
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Gamepad ━━━"))
	setupGamepad(cfg)

	// Step 3: Cameras
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Cameras ━━━"))
	setupCameras(cfg)

	// Step 4: Gripper
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Gripper ━━━"))
	if err := setupGripper(cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration not saved: %w", err)
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start teleoperation with: " + headerStyle.Render("dobot-teleop teleoperate"))
	fmt.Println("Record an episode with:   " + headerStyle.Render("dobot-teleop record --task \"...\""))
	return nil
}

// ask runs a single-group form. Aborting the wizard exits without saving.
func ask(fields ...huh.Field) {
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

func setupController(cfg *config.Config) {
	for {
		ask(huh.NewInput().
			Title("Controller address").
			Description("IP address of the Dobot controller").
			Value(&cfg.Robot.Host).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("address is required")
				}
				return nil
			}))

		mode, err := probeController(cfg.Robot)
		if err == nil {
			fmt.Println(successStyle.Render(fmt.Sprintf("  Controller answered, mode %s", mode)))
			return
		}
		fmt.Println(errorStyle.Render("  " + err.Error()))

		retry := true
		ask(huh.NewConfirm().
			Title("Controller not reachable").
			Affirmative("Try another address").
			Negative("Keep it").
			Value(&retry))
		if !retry {
			return
		}
	}
}

// probeController reads the robot mode without enabling the arm.
func probeController(rc robot.Config) (robot.Mode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dash, err := robot.DialDashboard(ctx, rc.Addr(rc.DashboardPort), 2*time.Second)
	if err != nil {
		return robot.ModeUnknown, err
	}
	defer dash.Close()
	return dash.RobotMode(ctx)
}

func setupGamepad(cfg *config.Config) {
	pads, _ := gamepad.List()
	if len(pads) == 0 {
		fmt.Println("No gamepad found. Teleoperation will hold the arm still until one is configured.")
		return
	}

	options := make([]huh.Option[string], 0, len(pads))
	for _, p := range pads {
		options = append(options, huh.NewOption(p, p))
	}
	if !lo.Contains(pads, cfg.Gamepad.Device) {
		cfg.Gamepad.Device = pads[0]
	}
	ask(huh.NewSelect[string]().
		Title("Which gamepad?").
		Options(options...).
		Value(&cfg.Gamepad.Device))

	pad, err := gamepad.Open(cfg.Gamepad.Device, zap.NewNop().Sugar())
	if err != nil {
		fmt.Println(errorStyle.Render("  " + err.Error()))
		return
	}
	defer pad.Close()

	// Identify buttons by pressing them
	if b, ok := waitForPress(pad, "Press the button that toggles the gripper"); ok {
		cfg.Gamepad.Mapping.Gripper = b
	}
	if b, ok := waitForPress(pad, "Press the button that stops the session"); ok {
		cfg.Gamepad.Mapping.Stop = b
	}
}

func waitForPress(pad *gamepad.Joystick, prompt string) (int, bool) {
	fmt.Printf("  %s (10s)... ", prompt)
	pad.Presses() // discard earlier presses
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if p := pad.Presses(); len(p) > 0 {
			fmt.Println(successStyle.Render("button " + strconv.Itoa(p[0])))
			return p[0], true
		}
		time.Sleep(20 * time.Millisecond)
	}
	fmt.Println(dimStyle.Render("kept default"))
	return 0, false
}

func setupCameras(cfg *config.Config) {
	devices, _ := filepath.Glob("/dev/video*")
	sort.Strings(devices)
	if len(devices) == 0 {
		fmt.Println("No cameras found. Recording needs a top and a wrist camera.")
		return
	}

	options := make([]huh.Option[string], 0, len(devices))
	for _, d := range devices {
		options = append(options, huh.NewOption(d, d))
	}
	ask(
		huh.NewSelect[string]().
			Title("Top camera").
			Options(options...).
			Value(&cfg.Cameras.Top.Device),
		huh.NewSelect[string]().
			Title("Wrist camera").
			Options(options...).
			Value(&cfg.Cameras.Wrist.Device),
	)
	if cfg.Cameras.Top.Device == cfg.Cameras.Wrist.Device {
		fmt.Println(errorStyle.Render("  Top and wrist use the same device"))
	}
}

func setupGripper(cfg *config.Config) error {
	kind := string(cfg.Gripper.Kind)
	ask(huh.NewSelect[string]().
		Title("Gripper").
		Options(
			huh.NewOption("Suction cup on the tool outputs", string(gripper.KindSuction)),
			huh.NewOption("Feetech servo jaw", string(gripper.KindServo)),
			huh.NewOption("None", string(gripper.KindNone)),
		).
		Value(&kind))
	cfg.Gripper.Kind = gripper.Kind(kind)

	if cfg.Gripper.Kind != gripper.KindServo {
		return nil
	}
	return setupServoGripper(&cfg.Gripper.Servo)
}

func setupServoGripper(sc *gripper.ServoConfig) error {
	fmt.Printf("Scanning for servo %d...\n", sc.ID)
	ports := findServoPorts(sc.ID)
	if len(ports) == 0 {
		return fmt.Errorf("no Feetech servo with id %d found on any serial port", sc.ID)
	}
	sc.Port = ports[0]
	if len(ports) > 1 {
		options := make([]huh.Option[string], 0, len(ports))
		for _, p := range ports {
			options = append(options, huh.NewOption(p, p))
		}
		ask(huh.NewSelect[string]().
			Title("Which port is the gripper on?").
			Options(options...).
			Value(&sc.Port))
	}
	fmt.Printf("  Gripper servo on %s\n\n", sc.Port)

	cal, err := calibrateServo(sc.Port, sc.ID)
	if err != nil {
		return err
	}
	sc.Calibration = cal

	closedAtMin := true
	ask(huh.NewConfirm().
		Title("Is the jaw closed at the minimum position?").
		Value(&closedAtMin))
	sc.Open, sc.Closed = 100, -100
	if !closedAtMin {
		sc.Open, sc.Closed = -100, 100
	}
	return nil
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

func findServoPorts(id int) []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		bus, err := openBus(port)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, id, id)
		cancel()
		bus.Close()
		if err == nil && len(servos) > 0 {
			found = append(found, port)
		}
	}
	return found
}

func calibrateServo(port string, id int) (gripper.MotorCalibration, error) {
	bus, err := openBus(port)
	if err != nil {
		return gripper.MotorCalibration{}, err
	}
	defer bus.Close()

	ctx := context.Background()
	servos, err := bus.Scan(ctx, id, id)
	if err != nil || len(servos) == 0 {
		return gripper.MotorCalibration{}, fmt.Errorf("servo %d not responding on %s", id, port)
	}
	servo := feetech.NewServo(bus, servos[0].ID, servos[0].Model)

	// Disable torque so the jaw can be moved by hand
	servo.Disable(ctx)

	pos, err := servo.Position(ctx)
	if err != nil {
		return gripper.MotorCalibration{}, fmt.Errorf("read servo position: %w", err)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Open and close the jaw fully by hand.")
	fmt.Println()

	p := tea.NewProgram(calibrationModel{servo: servo, cur: pos, min: pos, max: pos})
	final, err := p.Run()
	if err != nil {
		return gripper.MotorCalibration{}, fmt.Errorf("run calibration: %w", err)
	}
	cm := final.(calibrationModel)
	if cm.max-cm.min < 100 {
		return gripper.MotorCalibration{}, fmt.Errorf("recorded range %d is too small", cm.max-cm.min)
	}
	return gripper.MotorCalibration{ID: id, RangeMin: cm.min, RangeMax: cm.max}, nil
}

// Calibration TUI model
type calibrationModel struct {
	servo         *feetech.Servo
	cur, min, max int
	quitting      bool
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if pos, err := m.servo.Position(context.Background()); err == nil {
			m.cur = pos
			m.min = min(m.min, pos)
			m.max = max(m.max, pos)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	rangeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	if m.max-m.min > 500 {
		rangeStyle = rangeStyle.Foreground(lipgloss.Color("10"))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Current", "Min", "Max", "Range").
		Row(strconv.Itoa(m.cur), strconv.Itoa(m.min), strconv.Itoa(m.max), strconv.Itoa(m.max-m.min)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 3 {
				return rangeStyle
			}
			return cellStyle
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done")
}
