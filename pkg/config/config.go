// Package config loads and saves the teleoperation settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/dobot-teleop/pkg/camera"
	"github.com/gwillem/dobot-teleop/pkg/gripper"
	"github.com/gwillem/dobot-teleop/pkg/record"
	"github.com/gwillem/dobot-teleop/pkg/robot"
	"github.com/gwillem/dobot-teleop/pkg/teleop"
)

const DefaultConfigFile = "dobot.json"

// Config holds every setting of a teleoperation cell.
type Config struct {
	Robot     robot.Config   `json:"robot"`
	Control   ControlConfig  `json:"control"`
	Gamepad   GamepadConfig  `json:"gamepad"`
	Workspace teleop.Bounds  `json:"workspace"`
	Cameras   CamerasConfig  `json:"cameras"`
	Recording RecordConfig   `json:"recording"`
	Gripper   gripper.Config `json:"gripper"`
}

// ControlConfig holds loop settings.
type ControlConfig struct {
	Hz        int              `json:"hz"`
	ServoMode teleop.ServoMode `json:"servo_mode"`
}

// GamepadConfig holds the input device and its mapping.
type GamepadConfig struct {
	Device       string         `json:"device"`
	Deadzone     float64        `json:"deadzone"`
	Step         float64        `json:"step_mm"`
	RotationStep float64        `json:"rotation_step_deg"`
	Mapping      teleop.Mapping `json:"mapping"`
}

// CamerasConfig holds both capture devices.
type CamerasConfig struct {
	Top    camera.Config `json:"top"`
	Wrist  camera.Config `json:"wrist"`
	WaitMS int           `json:"wait_ms"` // capture window per frame
}

// RecordConfig holds where and how episodes are stored.
type RecordConfig struct {
	Dir         string           `json:"dir"`
	Format      record.LogFormat `json:"format"`
	Task        string           `json:"task,omitempty"`
	VideoWidth  int              `json:"video_width"`
	VideoHeight int              `json:"video_height"`
}

// Default returns the configuration of the reference cell.
func Default() *Config {
	m := teleop.DefaultMapper()
	return &Config{
		Robot:   robot.DefaultConfig(),
		Control: ControlConfig{Hz: 15, ServoMode: teleop.ServoPose},
		Gamepad: GamepadConfig{
			Device:       "/dev/input/js0",
			Deadzone:     m.Deadzone,
			Step:         m.Step,
			RotationStep: m.RotationStep,
			Mapping:      teleop.DefaultMapping(),
		},
		Workspace: teleop.DefaultBounds(),
		Cameras: CamerasConfig{
			Top:    camera.Config{Device: "/dev/video0", Width: 640, Height: 480, FPS: 30},
			Wrist:  camera.Config{Device: "/dev/video2", Width: 640, Height: 480, FPS: 30},
			WaitMS: 1000,
		},
		Recording: RecordConfig{
			Dir:         "data",
			Format:      record.FormatCSV,
			VideoWidth:  640,
			VideoHeight: 480,
		},
		Gripper: gripper.DefaultConfig(),
	}
}

// LoadConfigFrom loads configuration from a specific file. Settings missing
// from the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error
	errs = multierr.Append(errs, c.Robot.Validate())
	errs = multierr.Append(errs, c.Gripper.Validate())

	if c.Control.Hz < 1 || c.Control.Hz > 125 {
		errs = multierr.Append(errs, fmt.Errorf("control rate %d Hz out of range 1..125", c.Control.Hz))
	}
	switch c.Control.ServoMode {
	case teleop.ServoPose, teleop.ServoJoint:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown servo mode %q", c.Control.ServoMode))
	}
	if c.Gamepad.Deadzone < 0 || c.Gamepad.Deadzone >= 1 {
		errs = multierr.Append(errs, errors.New("gamepad deadzone must be in [0, 1)"))
	}
	if c.Gamepad.Step <= 0 {
		errs = multierr.Append(errs, errors.New("gamepad step must be positive"))
	}
	for name, r := range map[string]teleop.Range{
		"x": c.Workspace.X, "y": c.Workspace.Y, "z": c.Workspace.Z, "rotation": c.Workspace.Rotation,
	} {
		if r.Min > r.Max {
			errs = multierr.Append(errs, fmt.Errorf("workspace %s: min %.1f above max %.1f", name, r.Min, r.Max))
		}
	}
	switch c.Recording.Format {
	case record.FormatCSV, record.FormatSQLite:
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown recording format %q", c.Recording.Format))
	}
	return errs
}

// Teleop returns the control loop settings.
func (c *Config) Teleop() teleop.Config {
	return teleop.Config{
		Hz:        c.Control.Hz,
		ServoMode: c.Control.ServoMode,
		Mapper: teleop.Mapper{
			Deadzone:     c.Gamepad.Deadzone,
			Step:         c.Gamepad.Step,
			RotationStep: c.Gamepad.RotationStep,
			Bounds:       c.Workspace,
		},
		Mapping: c.Gamepad.Mapping,
	}
}

// CameraConfigs returns the top and wrist capture settings.
func (c *Config) CameraConfigs() (top, wrist camera.Config) {
	wait := time.Duration(c.Cameras.WaitMS) * time.Millisecond
	top, wrist = c.Cameras.Top, c.Cameras.Wrist
	top.Wait, wrist.Wait = wait, wait
	return top, wrist
}

// Episode returns the sink settings for episode number n.
func (c *Config) Episode(n int) record.EpisodeConfig {
	return record.EpisodeConfig{
		Dir:    c.Recording.Dir,
		ID:     fmt.Sprintf("%04d", n),
		Task:   c.Recording.Task,
		FPS:    float64(c.Control.Hz),
		Format: c.Recording.Format,
		Width:  c.Recording.VideoWidth,
		Height: c.Recording.VideoHeight,
	}
}
