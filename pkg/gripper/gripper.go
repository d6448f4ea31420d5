// Package gripper drives the end effector: the controller's suction cup
// through tool digital outputs, or a Feetech bus servo jaw.
package gripper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// Kind selects the gripper hardware.
type Kind string

// Gripper kinds.
const (
	KindNone    Kind = "none"
	KindSuction Kind = "suction"
	KindServo   Kind = "servo"
)

// Config selects and configures the gripper.
type Config struct {
	Kind  Kind        `json:"kind"`
	Servo ServoConfig `json:"servo"`
}

// DefaultConfig uses the suction cup on the tool flange.
func DefaultConfig() Config {
	return Config{
		Kind: KindSuction,
		Servo: ServoConfig{
			ID:     6,
			Open:   100,
			Closed: -100,
		},
	}
}

// Validate checks the configuration for the selected kind.
func (c Config) Validate() error {
	switch c.Kind {
	case KindNone, KindSuction:
		return nil
	case KindServo:
		if c.Servo.Port == "" {
			return errors.New("servo gripper needs a serial port")
		}
		if !c.Servo.Calibration.Valid() {
			return errors.New("servo gripper is not calibrated, run setup")
		}
		return nil
	default:
		return fmt.Errorf("unknown gripper kind %q", c.Kind)
	}
}

// Tool digital outputs wired to the suction valves.
const (
	suctionPin = 1
	releasePin = 2
)

// DigitalOutput sets tool digital outputs.
type DigitalOutput interface {
	ToolDOExecute(ctx context.Context, index, status int) error
}

// Suction drives a vacuum cup through two tool outputs: one opens the
// vacuum, the other the release valve.
type Suction struct {
	do DigitalOutput
}

// NewSuction returns a suction gripper on do, usually the dashboard.
func NewSuction(do DigitalOutput) *Suction {
	return &Suction{do: do}
}

// Set switches the vacuum on or off. The opposing valve is always closed
// first.
func (s *Suction) Set(ctx context.Context, on bool) error {
	steps := [][2]int{{releasePin, 0}, {suctionPin, 1}}
	if !on {
		steps = [][2]int{{suctionPin, 0}, {releasePin, 1}}
	}
	for _, st := range steps {
		if err := s.do.ToolDOExecute(ctx, st[0], st[1]); err != nil {
			return fmt.Errorf("suction %s: %w", onOff(on), err)
		}
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// ServoConfig describes a jaw driven by one Feetech servo.
type ServoConfig struct {
	Port        string           `json:"port"`
	ID          int              `json:"id"`
	Calibration MotorCalibration `json:"calibration"`
	Open        float64          `json:"open"`   // normalized position
	Closed      float64          `json:"closed"` // normalized position
}

// positioner is the part of a servo group the jaw uses.
type positioner interface {
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
	DisableAll(ctx context.Context) error
}

// Servo is a jaw gripper on a Feetech bus.
type Servo struct {
	cfg   ServoConfig
	bus   *feetech.Bus
	group positioner
}

// OpenServo opens the bus, checks the servo answers and enables torque.
func OpenServo(ctx context.Context, cfg ServoConfig) (*Servo, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, &robot.ConnectionError{Target: "gripper", Addr: cfg.Port, Err: err}
	}

	found, err := bus.Scan(ctx, cfg.ID, cfg.ID)
	if err != nil || len(found) == 0 {
		bus.Close()
		if err == nil {
			err = fmt.Errorf("no servo with id %d", cfg.ID)
		}
		return nil, &robot.ConnectionError{Target: "gripper", Addr: cfg.Port, Err: err}
	}

	group := feetech.NewServoGroupByIDs(bus, cfg.ID)
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable gripper torque: %w", err)
	}
	return &Servo{cfg: cfg, bus: bus, group: group}, nil
}

// Set closes the jaw when on is true and opens it otherwise.
func (s *Servo) Set(ctx context.Context, on bool) error {
	target := s.cfg.Open
	if on {
		target = s.cfg.Closed
	}
	raw := s.cfg.Calibration.Denormalize(target)
	if err := s.group.SetPositions(ctx, feetech.PositionMap{s.cfg.ID: raw}); err != nil {
		return fmt.Errorf("move gripper: %w", err)
	}
	return nil
}

// Close releases torque and the bus.
func (s *Servo) Close() error {
	err := s.group.DisableAll(context.Background())
	if s.bus != nil {
		err = errors.Join(err, s.bus.Close())
	}
	return err
}
