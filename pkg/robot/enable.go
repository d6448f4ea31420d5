package robot

import (
	"context"
	"time"
)

// enable runs the enable handshake: clear error, resume, enable, then poll
// the mode register until it reads enabled. An error mode triggers another
// clear/resume/enable round. Running out of budget returns ErrEnableTimeout.
func (s *Session) enable(ctx context.Context) error {
	t := s.cfg.Enable

	if err := s.resetAndEnable(ctx, 0); err != nil {
		return err
	}
	s.logger.Info("Robot enable command sent")
	s.clock.Sleep(t.Delay)

	start := s.clock.Now()
	for s.clock.Since(start) < t.Timeout {
		mode, err := s.dash.RobotMode(ctx)
		switch {
		case IsTransport(err):
			return err
		case err != nil:
			s.logger.Warnw("Could not read robot mode", "error", err)
		case mode == ModeEnabled:
			s.logger.Info("Robot is enabled")
			return nil
		case mode == ModeError:
			s.logger.Warn("Robot is in error state, clearing error and re-enabling")
			if err := s.resetAndEnable(ctx, t.RetryPause); err != nil {
				return err
			}
		default:
			s.logger.Infow("Waiting for robot to enable", "mode", mode)
		}
		s.clock.Sleep(t.Poll)
	}
	return ErrEnableTimeout
}

// resetAndEnable sends ClearError, Continue and EnableRobot. Rejected
// commands are expected while the controller is in error and are only
// logged; transport failures abort.
func (s *Session) resetAndEnable(ctx context.Context, pause time.Duration) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"ClearError", s.dash.ClearError},
		{"Continue", s.dash.Continue},
		{"EnableRobot", s.dash.EnableRobot},
	}
	for _, step := range steps {
		if step.name == "EnableRobot" && pause > 0 {
			s.clock.Sleep(pause)
		}
		if err := step.fn(ctx); err != nil {
			if IsTransport(err) {
				return err
			}
			s.logger.Debugw("Controller rejected command", "command", step.name, "error", err)
		}
	}
	return nil
}
