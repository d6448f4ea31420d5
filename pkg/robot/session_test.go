package robot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// fakeController serves the dashboard and motion ports on loopback.
type fakeController struct {
	dash net.Listener
	move net.Listener

	mu        sync.Mutex
	modes     []Mode
	pose      string
	angle     string
	dashboard []string
	motion    []string
	dashDone  chan struct{}
}

func newFakeController(t *testing.T) *fakeController {
	t.Helper()
	dash, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	move, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeController{
		dash:     dash,
		move:     move,
		modes:    []Mode{ModeEnabled},
		pose:     "0,{350.0,10.0,200.0,180.0,0.0,90.0},GetPose();",
		angle:    "0,{10.0,20.0,30.0,40.0,50.0,60.0},GetAngle();",
		dashDone: make(chan struct{}),
	}
	go f.accept(dash, f.serveDashboard)
	go f.accept(move, f.serveMotion)
	t.Cleanup(func() {
		dash.Close()
		move.Close()
	})
	return f
}

func (f *fakeController) accept(l net.Listener, serve func(net.Conn)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go serve(conn)
	}
}

func (f *fakeController) serveDashboard(conn net.Conn) {
	defer close(f.dashDone)
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		cmd := sc.Text()
		f.mu.Lock()
		f.dashboard = append(f.dashboard, cmd)
		reply := f.reply(cmd)
		f.mu.Unlock()
		if _, err := fmt.Fprint(conn, reply); err != nil {
			return
		}
	}
}

func (f *fakeController) reply(cmd string) string {
	name, _, _ := strings.Cut(cmd, "(")
	switch name {
	case "RobotMode":
		mode := f.modes[0]
		if len(f.modes) > 1 {
			f.modes = f.modes[1:]
		}
		return fmt.Sprintf("0,{%d},RobotMode();", mode)
	case "GetPose":
		return f.pose
	case "GetAngle":
		return f.angle
	case "InverseSolution":
		return "0,{1.5,2.5,3.5,4.5,5.5,6.5}," + cmd + ";"
	default:
		return "0,{}," + cmd + ";"
	}
}

func (f *fakeController) serveMotion(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		f.mu.Lock()
		f.motion = append(f.motion, sc.Text())
		f.mu.Unlock()
	}
}

func (f *fakeController) setModes(modes ...Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = modes
}

func (f *fakeController) setPose(reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pose = reply
}

func (f *fakeController) dashboardCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dashboard...)
}

func (f *fakeController) motionCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.motion...)
}

func (f *fakeController) config() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.DashboardPort = f.dash.Addr().(*net.TCPAddr).Port
	cfg.MovePort = f.move.Addr().(*net.TCPAddr).Port
	cfg.DialTimeout = time.Second
	cfg.Enable = EnableTiming{
		Delay:      time.Millisecond,
		Poll:       time.Millisecond,
		Timeout:    time.Second,
		RetryPause: time.Millisecond,
		Settle:     time.Millisecond,
		ToolSettle: time.Millisecond,
	}
	return cfg
}

func count(cmds []string, want string) int {
	n := 0
	for _, c := range cmds {
		if c == want {
			n++
		}
	}
	return n
}

func TestSessionStartRecoversFromErrorMode(t *testing.T) {
	f := newFakeController(t)
	f.setModes(ModeError, ModeError, ModeEnabled)

	s := NewSession(f.config(), zaptest.NewLogger(t).Sugar(), clock.New())
	require.NoError(t, s.Start(context.Background()))
	defer s.Close(context.Background())

	cmds := f.dashboardCommands()
	// One initial enable plus one re-enable per error reading.
	assert.Equal(t, 3, count(cmds, "EnableRobot()"))
	assert.Equal(t, 3, count(cmds, "RobotMode()"))
	assert.Equal(t, []string{"SpeedFactor(100)", "AccJ(20)", "Tool(1)"}, cmds[len(cmds)-3:])
}

func TestSessionStartTimesOut(t *testing.T) {
	f := newFakeController(t)
	f.setModes(Mode(3))

	cfg := f.config()
	cfg.Enable.Timeout = 30 * time.Millisecond
	s := NewSession(cfg, zaptest.NewLogger(t).Sugar(), clock.New())

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnableTimeout))

	// A failed start leaves nothing connected.
	select {
	case <-f.dashDone:
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard connection was not closed after failed start")
	}
	assert.Nil(t, s.Dashboard())
}

func TestSessionStartMotionRefused(t *testing.T) {
	f := newFakeController(t)
	cfg := f.config()
	f.move.Close()

	s := NewSession(cfg, zaptest.NewLogger(t).Sugar(), clock.New())
	err := s.Start(context.Background())

	var ce *ConnectionError
	require.True(t, errors.As(err, &ce), "want *ConnectionError, got %v", err)
	assert.Equal(t, "motion", ce.Target)

	select {
	case <-f.dashDone:
	case <-time.After(2 * time.Second):
		t.Fatal("dashboard connection leaked after motion connect failure")
	}
}

func TestSessionStateMalformedPose(t *testing.T) {
	f := newFakeController(t)
	f.setPose("-1,{},GetPose();")

	core, logs := observer.New(zapcore.WarnLevel)
	s := NewSession(f.config(), zap.New(core).Sugar(), clock.New())
	require.NoError(t, s.Start(context.Background()))
	defer s.Close(context.Background())

	st := s.State(context.Background())

	assert.Nil(t, st.Position)
	require.NotNil(t, st.Joints)
	assert.Equal(t, Joints{10, 20, 30, 40, 50, 60}, *st.Joints)
	assert.Equal(t, 1, logs.FilterMessage("Could not read pose").Len())
}

func TestSessionServoAndInverseSolution(t *testing.T) {
	f := newFakeController(t)
	s := NewSession(f.config(), zaptest.NewLogger(t).Sugar(), clock.New())
	require.NoError(t, s.Start(context.Background()))

	ctx := context.Background()
	require.NoError(t, s.ServoP(ctx, Pose{300, 0, 100, 180, 0, 0}))
	joints, err := s.InverseSolution(ctx, Pose{300, 0, 100, 180, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, Joints{1.5, 2.5, 3.5, 4.5, 5.5, 6.5}, joints)
	require.NoError(t, s.ServoJ(ctx, joints))

	require.NoError(t, s.Close(ctx))

	assert.Eventually(t, func() bool {
		return len(f.motionCommands()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, FormatServoP(Pose{300, 0, 100, 180, 0, 0}), f.motionCommands()[0])
	assert.Equal(t, FormatServoJ(joints), f.motionCommands()[1])

	cmds := f.dashboardCommands()
	assert.Contains(t, cmds, "InverseSolution(300,0,100,180,0,0,0,1)")
	assert.Equal(t, []string{"ClearError()", "Continue()", "DisableRobot()"}, cmds[len(cmds)-3:])
}
