// Package robot talks to a Dobot controller over its TCP line protocol.
//
// A Session owns one connection per controller subsystem: the dashboard
// (status and control requests), the motion port (streaming servo commands)
// and an optional feedback port. Sessions are not safe for concurrent use;
// the control loop is the only caller.
package robot

import "strconv"

// Pose is a Cartesian tool pose: x, y, z in mm and rx, ry, rz in degrees.
type Pose [6]float64

// Joints holds the six joint angles j1..j6 in degrees.
type Joints [6]float64

// X returns the x coordinate.
func (p Pose) X() float64 { return p[0] }

// Y returns the y coordinate.
func (p Pose) Y() float64 { return p[1] }

// Z returns the z coordinate.
func (p Pose) Z() float64 { return p[2] }

// State is the robot state read once per tick. A nil field means the
// corresponding reply could not be parsed this tick.
type State struct {
	Position *Pose
	Joints   *Joints
}

// PoseAxes returns the pose component names in order.
func PoseAxes() []string {
	return []string{"x", "y", "z", "rx", "ry", "rz"}
}

// JointNames returns the joint names in order (matching j1..j6).
func JointNames() []string {
	return []string{"j1", "j2", "j3", "j4", "j5", "j6"}
}

// Mode is the value of the controller's robot mode register.
type Mode int

// Robot modes reported by RobotMode().
const (
	ModeUnknown Mode = -1
	ModeError   Mode = 4
	ModeEnabled Mode = 5
	ModeRunning Mode = 7
)

func (m Mode) String() string {
	switch m {
	case ModeError:
		return "error"
	case ModeEnabled:
		return "enabled"
	case ModeRunning:
		return "running"
	case ModeUnknown:
		return "unknown"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// GripperState is the binary state of the end effector.
type GripperState int

// Gripper states.
const (
	GripperOff GripperState = 0
	GripperOn  GripperState = 1
)

// Toggle returns the opposite state.
func (g GripperState) Toggle() GripperState {
	if g == GripperOn {
		return GripperOff
	}
	return GripperOn
}
