// Command dobot-info scans the machine for the hardware a teleop rig uses:
// the Dobot controller, gamepads, cameras and Feetech gripper servos.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/jessevdk/go-flags"
	"go.bug.st/serial"

	"github.com/gwillem/dobot-teleop/pkg/config"
	"github.com/gwillem/dobot-teleop/pkg/gamepad"
	"github.com/gwillem/dobot-teleop/pkg/robot"
)

var opts struct {
	Host   string `long:"host" description:"Controller address (default from config or 192.168.5.11)"`
	Config string `short:"c" long:"config" description:"Config file to read the controller address from (default dobot.json)"`
	MaxID  int    `long:"max-id" default:"12" description:"Highest servo id to scan for"`
	Wiggle bool   `short:"w" long:"wiggle" description:"Wiggle each servo found so it can be identified"`
}

func main() {
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	fmt.Println("Dobot Hardware Scanner")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	scanController()
	scanGamepads()
	scanCameras()
	scanServos()
}

func controllerHost() string {
	if opts.Host != "" {
		return opts.Host
	}
	path := opts.Config
	if path == "" {
		path = config.DefaultConfigFile
	}
	if cfg, err := config.LoadConfigFrom(path); err == nil {
		return cfg.Robot.Host
	}
	return robot.DefaultConfig().Host
}

func scanController() {
	rc := robot.DefaultConfig()
	rc.Host = controllerHost()
	addr := rc.Addr(rc.DashboardPort)
	fmt.Printf("Controller %s\n", addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dash, err := robot.DialDashboard(ctx, addr, 2*time.Second)
	if err != nil {
		fmt.Printf("  ✗ %v\n\n", err)
		return
	}
	defer dash.Close()

	mode, err := dash.RobotMode(ctx)
	if err != nil {
		fmt.Printf("  ✗ %v\n\n", err)
		return
	}
	fmt.Printf("  ✓ mode %s\n\n", mode)
}

func scanGamepads() {
	pads, _ := gamepad.List()
	fmt.Printf("Gamepads (%d)\n", len(pads))
	for _, p := range pads {
		fmt.Printf("  %s\n", p)
	}
	fmt.Println()
}

func scanCameras() {
	devices, _ := filepath.Glob("/dev/video*")
	sort.Strings(devices)
	fmt.Printf("Cameras (%d)\n", len(devices))
	for _, d := range devices {
		fmt.Printf("  %s\n", d)
	}
	fmt.Println()
}

func scanServos() {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return
	}

	fmt.Println("Feetech servos")
	found := 0
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		servos, err := bus.Scan(ctx, 1, opts.MaxID)
		cancel()
		if err != nil || len(servos) == 0 {
			bus.Close()
			continue
		}

		for _, s := range servos {
			fmt.Printf("  %s  id %d  model %v\n", port, s.ID, s.Model)
			found++
		}
		if opts.Wiggle {
			for _, s := range servos {
				wiggle(bus, port, s)
			}
		}
		bus.Close()
	}
	if found == 0 {
		fmt.Println("  none")
	}
}

func wiggle(bus *feetech.Bus, port string, s feetech.FoundServo) {
	ctx := context.Background()
	servo := feetech.NewServo(bus, s.ID, s.Model)

	pos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return
	}

	fmt.Printf("\n  ⟳ Wiggling servo %d on %s...\n", s.ID, port)
	for i := 0; i < 3; i++ {
		servo.SetPosition(ctx, pos+100)
		time.Sleep(150 * time.Millisecond)
		servo.SetPosition(ctx, pos-100)
		time.Sleep(150 * time.Millisecond)
	}
	servo.SetPosition(ctx, pos)
	time.Sleep(100 * time.Millisecond)
	servo.Disable(ctx)

	next := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Servo %d on %s wiggled", s.ID, port)).
			Affirmative("Next").
			Negative("Stop").
			Value(&next),
	))
	if err := form.Run(); err != nil || !next {
		os.Exit(0)
	}
}
