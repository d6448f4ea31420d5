package robot

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Session is one connected controller: dashboard, motion and (optionally)
// feedback connections. It is owned by a single goroutine.
type Session struct {
	cfg    Config
	logger *zap.SugaredLogger
	clock  clock.Clock

	dash     *Dashboard
	motion   *Motion
	feedback net.Conn
}

// NewSession creates a session. No I/O happens until Start.
func NewSession(cfg Config, logger *zap.SugaredLogger, clk clock.Clock) *Session {
	if clk == nil {
		clk = clock.New()
	}
	return &Session{
		cfg:    cfg.withDefaults(),
		logger: logger,
		clock:  clk,
	}
}

// Start connects every port, runs the enable handshake and applies speed,
// acceleration and tool settings. On failure every opened connection is
// closed again, so a failed Start never leaves a partial session.
func (s *Session) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	if err := s.enable(ctx); err != nil {
		s.closeConns()
		return fmt.Errorf("enable robot: %w", err)
	}
	if err := s.configure(ctx); err != nil {
		s.closeConns()
		return fmt.Errorf("configure robot: %w", err)
	}
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	s.logger.Infow("Connecting to robot", "host", s.cfg.Host)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
	defer cancel()

	dash, err := DialDashboard(dialCtx, s.cfg.Addr(s.cfg.DashboardPort), s.cfg.ReplyTimeout)
	if err != nil {
		return err
	}
	s.dash = dash

	moveAddr := s.cfg.Addr(s.cfg.MovePort)
	s.motion = NewMotion(TCPDialer(moveAddr), s.logger)
	if err := s.motion.Connect(dialCtx); err != nil {
		s.closeConns()
		return &ConnectionError{Target: "motion", Addr: moveAddr, Err: err}
	}

	if s.cfg.Feedback {
		feedbackAddr := s.cfg.Addr(s.cfg.FeedbackPort)
		conn, err := TCPDialer(feedbackAddr)(dialCtx)
		if err != nil {
			s.closeConns()
			return &ConnectionError{Target: "feedback", Addr: feedbackAddr, Err: err}
		}
		s.feedback = conn
	}
	return nil
}

func (s *Session) configure(ctx context.Context) error {
	if err := s.dash.SpeedFactor(ctx, s.cfg.SpeedFactor); err != nil {
		return err
	}
	s.clock.Sleep(s.cfg.Enable.Settle)

	if err := s.dash.AccJ(ctx, s.cfg.AccJ); err != nil {
		return err
	}
	s.clock.Sleep(s.cfg.Enable.Settle)

	if s.cfg.Tool != nil {
		if err := s.dash.Tool(ctx, *s.cfg.Tool); err != nil {
			return err
		}
		s.clock.Sleep(s.cfg.Enable.ToolSettle)
	}
	s.logger.Infow("Robot configured", "speed", s.cfg.SpeedFactor, "acc_j", s.cfg.AccJ)
	return nil
}

// State reads pose and joint angles. A field that cannot be read or parsed
// is left nil and logged; there is no retry.
func (s *Session) State(ctx context.Context) State {
	var st State

	pose, err := s.dash.GetPose(ctx)
	if err != nil {
		s.logger.Warnw("Could not read pose", "error", err)
	} else {
		st.Position = &pose
	}

	joints, err := s.dash.GetAngle(ctx)
	if err != nil {
		s.logger.Warnw("Could not read joint angles", "error", err)
	} else {
		st.Joints = &joints
	}
	return st
}

// ServoP streams a Cartesian target on the motion port.
func (s *Session) ServoP(ctx context.Context, p Pose) error {
	return s.motion.ServoP(ctx, p)
}

// ServoJ streams a joint target on the motion port.
func (s *Session) ServoJ(ctx context.Context, j Joints) error {
	return s.motion.ServoJ(ctx, j)
}

// InverseSolution resolves p to joint angles in the configured tool frame.
func (s *Session) InverseSolution(ctx context.Context, p Pose) (Joints, error) {
	tool := 0
	if s.cfg.Tool != nil {
		tool = *s.cfg.Tool
	}
	return s.dash.InverseSolution(ctx, p, 0, tool)
}

// ToolDOExecute sets a tool digital output. It fails until Start succeeds.
func (s *Session) ToolDOExecute(ctx context.Context, index, status int) error {
	if s.dash == nil {
		return errNotStarted
	}
	return s.dash.ToolDOExecute(ctx, index, status)
}

// Dashboard returns the dashboard client. It must only be used from the
// goroutine that owns the session.
func (s *Session) Dashboard() *Dashboard {
	return s.dash
}

// Close disables the robot and closes every connection. Connections are
// closed even when the disable sequence fails.
func (s *Session) Close(ctx context.Context) error {
	var err error
	if s.dash != nil {
		err = multierr.Combine(
			s.dash.ClearError(ctx),
			s.dash.Continue(ctx),
			s.dash.DisableRobot(ctx),
		)
	}
	err = multierr.Append(err, s.closeConns())
	if err == nil {
		s.logger.Info("Robot disconnected")
	}
	return err
}

func (s *Session) closeConns() error {
	var err error
	if s.motion != nil {
		err = multierr.Append(err, s.motion.Close())
		s.motion = nil
	}
	if s.feedback != nil {
		err = multierr.Append(err, ignoreClosed(s.feedback.Close()))
		s.feedback = nil
	}
	if s.dash != nil {
		err = multierr.Append(err, ignoreClosed(s.dash.Close()))
		s.dash = nil
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
