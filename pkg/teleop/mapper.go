package teleop

import (
	"math"

	"github.com/samber/lo"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Clamp limits v to the range.
func (r Range) Clamp(v float64) float64 {
	return lo.Clamp(v, r.Min, r.Max)
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Bounds is the workspace a commanded pose is clamped to.
type Bounds struct {
	X        Range `json:"x"`
	Y        Range `json:"y"`
	Z        Range `json:"z"`
	Rotation Range `json:"rotation"`
}

// DefaultBounds returns the workspace of the reference cell.
func DefaultBounds() Bounds {
	return Bounds{
		X:        Range{240, 750},
		Y:        Range{-330, 550},
		Z:        Range{-20, 500},
		Rotation: Range{-180, 180},
	}
}

// Clamp returns p with every component inside the bounds.
func (b Bounds) Clamp(p robot.Pose) robot.Pose {
	p[0] = b.X.Clamp(p[0])
	p[1] = b.Y.Clamp(p[1])
	p[2] = b.Z.Clamp(p[2])
	for i := 3; i < 6; i++ {
		p[i] = b.Rotation.Clamp(p[i])
	}
	return p
}

// Contains reports whether p lies inside the bounds.
func (b Bounds) Contains(p robot.Pose) bool {
	if !b.X.Contains(p[0]) || !b.Y.Contains(p[1]) || !b.Z.Contains(p[2]) {
		return false
	}
	for i := 3; i < 6; i++ {
		if !b.Rotation.Contains(p[i]) {
			return false
		}
	}
	return true
}

// Input is the operator intent sampled for one tick.
type Input struct {
	X, Y, Z float64 // stick deflection in [-1, 1]

	// Held rotation buttons, -1, 0 or +1 per axis.
	RX, RY, RZ int
}

// Mapper turns operator input into a pose increment.
type Mapper struct {
	Deadzone     float64
	Step         float64 // mm per tick at full deflection
	RotationStep float64 // degrees per tick while a rotation button is held
	Bounds       Bounds
}

// DefaultMapper returns the mapping tuned for 15 Hz control.
func DefaultMapper() Mapper {
	return Mapper{
		Deadzone:     0.1,
		Step:         6,
		RotationStep: 5,
		Bounds:       DefaultBounds(),
	}
}

// Map applies in to prev and clamps the result into the workspace.
// Stick axes subtract from the pose so pushing forward moves the arm away
// from the operator.
func (m Mapper) Map(prev robot.Pose, in Input) robot.Pose {
	next := prev
	next[0] -= m.filter(in.X) * m.Step
	next[1] -= m.filter(in.Y) * m.Step
	next[2] -= m.filter(in.Z) * m.Step
	next[3] += float64(in.RX) * m.RotationStep
	next[4] += float64(in.RY) * m.RotationStep
	next[5] += float64(in.RZ) * m.RotationStep
	return m.Bounds.Clamp(next)
}

func (m Mapper) filter(v float64) float64 {
	if math.Abs(v) < m.Deadzone {
		return 0
	}
	return v
}

// Mapping assigns gamepad axes and buttons to controls.
type Mapping struct {
	AxisX int `json:"axis_x"`
	AxisY int `json:"axis_y"`
	AxisZ int `json:"axis_z"`

	RXMinus int `json:"rx_minus"`
	RXPlus  int `json:"rx_plus"`
	RYMinus int `json:"ry_minus"`
	RYPlus  int `json:"ry_plus"`
	RZMinus int `json:"rz_minus"`
	RZPlus  int `json:"rz_plus"`

	Gripper int `json:"gripper"`
	Stop    int `json:"stop"`
}

// DefaultMapping returns the layout of a standard dual-stick pad.
func DefaultMapping() Mapping {
	return Mapping{
		AxisX:   1,
		AxisY:   0,
		AxisZ:   3,
		RXMinus: 3,
		RXPlus:  1,
		RYMinus: 0,
		RYPlus:  4,
		RZMinus: 6,
		RZPlus:  7,
		Gripper: 8,
		Stop:    11,
	}
}

// Device is a polled gamepad.
type Device interface {
	Axis(i int) float64
	Button(i int) bool
	// Presses returns the buttons pressed since the previous call, in order.
	Presses() []int
}

// ReadInput samples the held controls of dev.
func ReadInput(dev Device, m Mapping) Input {
	return Input{
		X:  dev.Axis(m.AxisX),
		Y:  dev.Axis(m.AxisY),
		Z:  dev.Axis(m.AxisZ),
		RX: held(dev, m.RXPlus) - held(dev, m.RXMinus),
		RY: held(dev, m.RYPlus) - held(dev, m.RYMinus),
		RZ: held(dev, m.RZPlus) - held(dev, m.RZMinus),
	}
}

func held(dev Device, button int) int {
	if dev.Button(button) {
		return 1
	}
	return 0
}
