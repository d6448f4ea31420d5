// Package dobotteleop drives a Dobot arm from a gamepad in real time and
// records demonstration episodes for imitation learning.
//
// # Installation
//
//	go install github.com/gwillem/dobot-teleop/cmd/dobot-teleop@latest
//
// # Usage
//
// First, run setup to point at the controller and pick the gamepad, cameras
// and gripper:
//
//	dobot-teleop setup
//
// Then drive the arm:
//
//	dobot-teleop teleoperate
//
// or record an episode with both cameras:
//
//	dobot-teleop record --task "pick up the red block"
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/dobot-teleop: CLI with setup, teleoperate, record and info commands
//   - cmd/dobot-info: hardware scanner for controllers, gamepads, cameras and servos
//   - pkg/robot: Dobot TCP protocol, enable handshake and motion session
//   - pkg/teleop: input mapping and the fixed-rate control loop
//   - pkg/gamepad: Linux joystick reader
//   - pkg/camera: ffmpeg frame sources and paired capture
//   - pkg/gripper: suction and servo grippers, servo calibration
//   - pkg/record: asynchronous episode recording to video, CSV and SQLite
//   - pkg/config: the dobot.json configuration file
//   - pkg/logging: zap loggers for console, file and the terminal UI
package dobotteleop
