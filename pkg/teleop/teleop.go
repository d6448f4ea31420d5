// Package teleop runs the fixed-rate control loop that turns gamepad input
// into Cartesian servo commands for a Dobot arm.
//
// Each tick reads the arm state, captures both cameras, maps operator input
// to a target pose, dispatches it and hands a snapshot to the recorder.
// The loop never waits on persistence.
package teleop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/dobot-teleop/pkg/record"
	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// Phase is the lifecycle stage of a Controller.
type Phase int32

// Controller phases, in order.
const (
	PhaseInit Phase = iota
	PhaseActive
	PhaseDraining
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseActive:
		return "active"
	case PhaseDraining:
		return "draining"
	case PhaseTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// ServoMode selects how targets are sent to the arm.
type ServoMode string

// Servo modes.
const (
	ServoPose  ServoMode = "pose"
	ServoJoint ServoMode = "joint"
)

// Arm is the robot session used by the loop.
type Arm interface {
	Start(ctx context.Context) error
	State(ctx context.Context) robot.State
	ServoP(ctx context.Context, p robot.Pose) error
	ServoJ(ctx context.Context, j robot.Joints) error
	InverseSolution(ctx context.Context, p robot.Pose) (robot.Joints, error)
	Close(ctx context.Context) error
}

// Cameras captures one frame per camera. A nil frame is a miss.
type Cameras interface {
	Capture(ctx context.Context) (top, wrist image.Image)
}

// Gripper actuates the end effector.
type Gripper interface {
	Set(ctx context.Context, on bool) error
}

// Recorder accepts snapshots without blocking.
type Recorder interface {
	Start() error
	Enqueue(record.Snapshot) error
	Len() int
	Close() error
}

// State is a per-tick summary for display.
type State struct {
	Tick      int
	Timestamp time.Duration
	Phase     Phase
	Observed  *robot.Pose
	Action    robot.Pose
	Gripper   robot.GripperState
	Pending   int // snapshots waiting for the recorder
	Work      time.Duration
}

// Config holds loop settings.
type Config struct {
	Hz        int
	ServoMode ServoMode
	Mapper    Mapper
	Mapping   Mapping
}

// Deps are the collaborators of a Controller. Only Arm is required.
type Deps struct {
	Arm      Arm
	Cameras  Cameras
	Input    Device
	Gripper  Gripper
	Recorder Recorder
	Logger   *zap.SugaredLogger
	Clock    clock.Clock
}

// Controller manages the teleoperation control loop.
type Controller struct {
	cfg    Config
	period time.Duration
	deps   Deps
	logger *zap.SugaredLogger
	clock  clock.Clock

	phase   atomic.Int32
	stateCh chan State

	// Loop-owned.
	command robot.Pose
	gripper robot.GripperState
	tick    int
	elapsed time.Duration
	timing  tickStats
}

// NewController creates a controller. Nothing is connected until Run.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.Hz <= 0 {
		cfg.Hz = 15
	}
	if cfg.ServoMode == "" {
		cfg.ServoMode = ServoPose
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	return &Controller{
		cfg:     cfg,
		period:  time.Second / time.Duration(cfg.Hz),
		deps:    deps,
		logger:  deps.Logger,
		clock:   deps.Clock,
		stateCh: make(chan State, 1),
	}
}

// States returns a channel that receives the latest tick summary.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.cfg.Hz
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Controller) setPhase(p Phase) {
	c.phase.Store(int32(p))
	c.logger.Debugw("Phase changed", "phase", p)
}

// Run connects the arm, loops until ctx is cancelled, the stop button is
// pressed or a dispatch fails, then drains the recorder and disconnects.
//
// Cancelling ctx only requests a stop. It is checked once per tick and the
// teardown runs to completion regardless.
func (c *Controller) Run(ctx context.Context) error {
	if c.Phase() != PhaseInit {
		return errors.New("controller already ran")
	}
	ioCtx := context.WithoutCancel(ctx)

	if err := c.init(ioCtx); err != nil {
		c.setPhase(PhaseTerminated)
		return err
	}

	c.setPhase(PhaseActive)
	c.logger.Infof("Teleoperation started at %d Hz", c.cfg.Hz)
	err := c.loop(ctx, ioCtx)

	c.setPhase(PhaseDraining)
	c.sendState(c.summary(nil, c.command, 0))
	err = multierr.Append(err, c.drain())

	if cerr := c.deps.Arm.Close(ioCtx); cerr != nil {
		c.logger.Warnw("Disconnect failed", "error", cerr)
		err = multierr.Append(err, fmt.Errorf("disconnect: %w", cerr))
	}
	c.setPhase(PhaseTerminated)
	c.sendState(c.summary(nil, c.command, 0))
	c.logger.Info("Teleoperation stopped")
	return err
}

func (c *Controller) init(ctx context.Context) error {
	if err := c.deps.Arm.Start(ctx); err != nil {
		return fmt.Errorf("start robot: %w", err)
	}

	// The seed pose is read before the recorder starts so a failed INIT
	// leaves no empty episode behind.
	st := c.deps.Arm.State(ctx)
	if st.Position == nil {
		return multierr.Append(
			errors.New("read initial pose"),
			c.deps.Arm.Close(ctx))
	}
	c.command = *st.Position

	if c.deps.Recorder != nil {
		if err := c.deps.Recorder.Start(); err != nil {
			return multierr.Append(err, c.deps.Arm.Close(ctx))
		}
	}
	if c.deps.Input == nil {
		c.logger.Warn("No gamepad, holding pose")
	}
	return nil
}

func (c *Controller) loop(ctx, ioCtx context.Context) error {
	for {
		stop, err := c.step(ioCtx)
		if err != nil {
			c.logger.Errorw("Motion dispatch failed, stopping", "error", err)
			return err
		}
		if stop {
			c.logger.Info("Stop button pressed")
			return nil
		}
		select {
		case <-ctx.Done():
			c.logger.Info("Stop requested")
			return nil
		default:
		}
	}
}

// step runs one tick: observe, capture, map, dispatch, record, pace.
func (c *Controller) step(ctx context.Context) (stop bool, err error) {
	start := c.clock.Now()

	state := c.deps.Arm.State(ctx)
	observed := c.gripper

	var top, wrist image.Image
	if c.deps.Cameras != nil {
		top, wrist = c.deps.Cameras.Capture(ctx)
	}

	stop = c.handlePresses(ctx)

	prev := c.command
	if state.Position != nil {
		prev = *state.Position
	}
	action := prev
	if c.deps.Input != nil {
		action = c.cfg.Mapper.Map(prev, ReadInput(c.deps.Input, c.cfg.Mapping))
	}

	joints, err := c.dispatch(ctx, action)
	if err == nil {
		c.command = action
	}

	// The tick is recorded even when its dispatch failed.
	c.enqueue(record.Snapshot{
		Seq:           c.tick,
		Timestamp:     c.elapsed,
		Top:           top,
		Wrist:         wrist,
		State:         state,
		Gripper:       observed,
		Action:        action,
		ActionJoints:  joints,
		ActionGripper: c.gripper,
	})

	work := c.clock.Since(start)
	c.sendState(c.summary(state.Position, action, work))
	c.timing.add(work)
	if d := sleepFor(c.period, work); d > 0 {
		c.clock.Sleep(d)
	}
	c.elapsed += c.clock.Since(start)
	c.tick++
	return stop, err
}

func (c *Controller) dispatch(ctx context.Context, action robot.Pose) (*robot.Joints, error) {
	if c.cfg.ServoMode == ServoJoint {
		joints, err := c.deps.Arm.InverseSolution(ctx, action)
		if robot.IsTransport(err) {
			return nil, fmt.Errorf("dispatch: %w", err)
		}
		if err != nil {
			c.logger.Warnw("No joint solution, skipping tick", "pose", action, "error", err)
			return nil, nil
		}
		if err := c.deps.Arm.ServoJ(ctx, joints); err != nil {
			return &joints, fmt.Errorf("dispatch: %w", err)
		}
		return &joints, nil
	}
	if err := c.deps.Arm.ServoP(ctx, action); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	return nil, nil
}

// handlePresses acts on button edges. It reports whether stop was pressed.
func (c *Controller) handlePresses(ctx context.Context) bool {
	if c.deps.Input == nil {
		return false
	}
	stop := false
	for _, b := range c.deps.Input.Presses() {
		switch b {
		case c.cfg.Mapping.Gripper:
			c.toggleGripper(ctx)
		case c.cfg.Mapping.Stop:
			stop = true
		}
	}
	return stop
}

func (c *Controller) toggleGripper(ctx context.Context) {
	next := c.gripper.Toggle()
	if c.deps.Gripper != nil {
		if err := c.deps.Gripper.Set(ctx, next == robot.GripperOn); err != nil {
			c.logger.Warnw("Gripper actuation failed", "error", err)
			return
		}
	}
	c.gripper = next
	c.logger.Infow("Gripper toggled", "on", next == robot.GripperOn)
}

func (c *Controller) enqueue(s record.Snapshot) {
	if c.deps.Recorder == nil {
		return
	}
	if err := c.deps.Recorder.Enqueue(s); err != nil {
		c.logger.Warnw("Snapshot dropped", "seq", s.Seq, "error", err)
	}
}

func (c *Controller) drain() error {
	c.timing.log(c.logger, c.period)
	if c.deps.Recorder == nil {
		return nil
	}
	c.logger.Infow("Waiting for recorder", "pending", c.deps.Recorder.Len())
	if err := c.deps.Recorder.Close(); err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	return nil
}

func (c *Controller) summary(observed *robot.Pose, action robot.Pose, work time.Duration) State {
	s := State{
		Tick:      c.tick,
		Timestamp: c.elapsed,
		Phase:     c.Phase(),
		Observed:  observed,
		Action:    action,
		Gripper:   c.gripper,
		Work:      work,
	}
	if c.deps.Recorder != nil {
		s.Pending = c.deps.Recorder.Len()
	}
	return s
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		select {
		case c.stateCh <- s:
		default:
		}
	}
}

// sleepFor returns how long to sleep after work to hold period. Overruns
// are not compensated.
func sleepFor(period, work time.Duration) time.Duration {
	if work >= period {
		return 0
	}
	return period - work
}
