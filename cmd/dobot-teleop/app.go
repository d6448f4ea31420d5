package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/dobot-teleop/pkg/camera"
	"github.com/gwillem/dobot-teleop/pkg/config"
	"github.com/gwillem/dobot-teleop/pkg/gamepad"
	"github.com/gwillem/dobot-teleop/pkg/gripper"
	"github.com/gwillem/dobot-teleop/pkg/logging"
	"github.com/gwillem/dobot-teleop/pkg/robot"
	"github.com/gwillem/dobot-teleop/pkg/teleop"
)

// loadConfig reads and validates the file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigFrom(opts.Config)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no configuration at %s, run 'dobot-teleop setup' first", opts.Config)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// newLogger logs to the feed when a UI is shown and to stderr otherwise.
func newLogger(feed *logging.Feed) *zap.SugaredLogger {
	o := logging.Options{Level: zapcore.InfoLevel, File: opts.LogFile, Feed: feed}
	if opts.Verbose {
		o.Level = zapcore.DebugLevel
	}
	if feed == nil {
		o.Console = os.Stderr
	}
	l := logging.New(o)
	logging.CaptureStdLog(l)
	return l.Sugar()
}

// rig is the hardware behind one teleoperation run.
type rig struct {
	session *robot.Session
	pad     *gamepad.Joystick
	cameras *camera.Pair
	servo   *gripper.Servo
	deps    teleop.Deps
}

// openRig opens the gamepad, cameras and gripper. The robot session is
// created but not started; the controller does that.
func openRig(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, withCameras bool) (*rig, error) {
	r := &rig{session: robot.NewSession(cfg.Robot, logger, clock.New())}
	r.deps = teleop.Deps{Arm: r.session, Logger: logger, Clock: clock.New()}

	if pad, err := gamepad.Open(cfg.Gamepad.Device, logger); err != nil {
		logger.Warnw("Gamepad unavailable", "error", err)
	} else {
		r.pad = pad
		r.deps.Input = pad
	}

	if withCameras {
		top, wrist := cfg.CameraConfigs()
		cams, err := camera.OpenPair(top, wrist, logger)
		if err != nil {
			r.close()
			return nil, err
		}
		r.cameras = cams
		r.deps.Cameras = cams
	}

	switch cfg.Gripper.Kind {
	case gripper.KindSuction:
		r.deps.Gripper = gripper.NewSuction(r.session)
	case gripper.KindServo:
		servo, err := gripper.OpenServo(ctx, cfg.Gripper.Servo)
		if err != nil {
			r.close()
			return nil, err
		}
		r.servo = servo
		r.deps.Gripper = servo
	}
	return r, nil
}

func (r *rig) close() error {
	var err error
	if r.pad != nil {
		err = multierr.Append(err, r.pad.Close())
	}
	if r.cameras != nil {
		err = multierr.Append(err, r.cameras.Close())
	}
	if r.servo != nil {
		err = multierr.Append(err, r.servo.Close())
	}
	return err
}

// run drives ctrl until it stops, with the terminal UI or headless.
// Headless runs stop on SIGINT or SIGTERM.
func run(ctrl *teleop.Controller, feed *logging.Feed, title string, headless bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := &runResult{done: make(chan struct{})}
	go func() {
		res.err = ctrl.Run(ctx)
		close(res.done)
	}()

	if headless {
		sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		select {
		case <-sigCtx.Done():
			cancel()
		case <-res.done:
		}
		<-res.done
		return res.err
	}

	uiErr := runTUI(newTeleopModel(ctrl, feed, cancel, res, title))
	// The loop always finishes its teardown, even if the UI failed.
	cancel()
	<-res.done
	return multierr.Append(res.err, uiErr)
}

type runResult struct {
	done chan struct{}
	err  error
}
