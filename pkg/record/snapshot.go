// Package record persists teleoperation snapshots without blocking the
// control loop.
//
// A Recorder owns an unbounded FIFO and a single consumer goroutine that
// writes each Snapshot to a Sink. Closing the Recorder is the stop signal:
// the consumer drains everything enqueued before it, then closes the sink.
package record

import (
	"image"
	"time"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// Snapshot is the observation and action of one control tick. It is handed
// to the recorder by value and never touched by the producer afterwards.
type Snapshot struct {
	Seq       int
	Timestamp time.Duration // cumulative tick time since the loop started

	Top   image.Image // nil marks a capture miss
	Wrist image.Image

	State   robot.State // observed before the action
	Gripper robot.GripperState

	Action        robot.Pose
	ActionJoints  *robot.Joints // set when servoing in joint space
	ActionGripper robot.GripperState
}

// columns returns the structured log columns in order.
func columns() []string {
	cols := []string{"timestamp"}
	cols = append(cols, robot.PoseAxes()...)
	cols = append(cols, robot.JointNames()...)
	cols = append(cols, "gripper")
	for _, a := range robot.PoseAxes() {
		cols = append(cols, "action_"+a)
	}
	for _, j := range robot.JointNames() {
		cols = append(cols, "action_"+j)
	}
	cols = append(cols, "action_gripper", "top_frame", "wrist_frame")
	return cols
}

// values returns one log row matching columns. Missing data is nil.
func (s Snapshot) values() []any {
	row := make([]any, 0, len(columns()))
	row = append(row, s.Timestamp.Seconds())

	if s.State.Position != nil {
		for _, v := range s.State.Position {
			row = append(row, v)
		}
	} else {
		row = appendNil(row, 6)
	}
	if s.State.Joints != nil {
		for _, v := range s.State.Joints {
			row = append(row, v)
		}
	} else {
		row = appendNil(row, 6)
	}
	row = append(row, int(s.Gripper))

	for _, v := range s.Action {
		row = append(row, v)
	}
	if s.ActionJoints != nil {
		for _, v := range s.ActionJoints {
			row = append(row, v)
		}
	} else {
		row = appendNil(row, 6)
	}
	row = append(row, int(s.ActionGripper), present(s.Top), present(s.Wrist))
	return row
}

func appendNil(row []any, n int) []any {
	for i := 0; i < n; i++ {
		row = append(row, nil)
	}
	return row
}

func present(img image.Image) int {
	if img == nil {
		return 0
	}
	return 1
}
