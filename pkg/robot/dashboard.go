package robot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultReplyTimeout bounds a single dashboard request/response exchange.
const DefaultReplyTimeout = 2 * time.Second

// Dashboard is a request/response client for the controller's dashboard
// port. Every command is answered with one `;`-terminated reply.
type Dashboard struct {
	conn    net.Conn
	r       *bufio.Reader
	timeout time.Duration

	partial string // start of a reply cut off by a read timeout
	owed    int    // replies still due for requests that timed out
}

// DialDashboard connects to the dashboard port at addr.
func DialDashboard(ctx context.Context, addr string, timeout time.Duration) (*Dashboard, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Target: "dashboard", Addr: addr, Err: err}
	}
	return NewDashboard(conn, timeout), nil
}

// NewDashboard wraps an established connection.
func NewDashboard(conn net.Conn, timeout time.Duration) *Dashboard {
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Dashboard{conn: conn, r: bufio.NewReader(conn), timeout: timeout}
}

// Close closes the dashboard connection.
func (d *Dashboard) Close() error {
	return d.conn.Close()
}

// Exec sends cmd and returns the raw reply. Replies that arrive late for
// requests that already timed out are discarded, so every reply returned
// answers cmd.
func (d *Dashboard) Exec(ctx context.Context, cmd string) (string, error) {
	deadline := time.Now().Add(d.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.conn.SetDeadline(deadline); err != nil {
		return "", &TransportError{Op: "dashboard", Command: cmd, Err: err}
	}

	if _, err := io.WriteString(d.conn, cmd+"\n"); err != nil {
		return "", &TransportError{Op: "dashboard write", Command: cmd, Err: err}
	}

	for {
		reply, err := d.readReply()
		if err != nil {
			d.owed++
			return "", &TransportError{Op: "dashboard read", Command: cmd, Err: err}
		}
		if d.owed > 0 {
			d.owed--
			continue
		}
		if name := replyCommand(reply); name != "" && name != commandName(cmd) {
			continue
		}
		if !utf8.ValidString(reply) {
			return "", &TransportError{Op: "dashboard read", Command: cmd, Err: errors.New("reply is not valid utf-8")}
		}
		return strings.TrimSpace(reply), nil
	}
}

// readReply reads one `;`-terminated reply. A reply interrupted by the
// deadline is kept and completed by the next read.
func (d *Dashboard) readReply() (string, error) {
	s, err := d.r.ReadString(';')
	s = d.partial + s
	if err != nil {
		d.partial = s
		return "", err
	}
	d.partial = ""
	return s, nil
}

// replyCommand returns the command a reply echoes after its payload, or ""
// when the reply carries no echo.
func replyCommand(reply string) string {
	i := strings.LastIndex(reply, "}")
	if i < 0 {
		return ""
	}
	tail := strings.TrimLeft(reply[i+1:], ", ")
	name, _, ok := strings.Cut(tail, "(")
	if !ok {
		return ""
	}
	return strings.TrimSpace(name)
}

func commandName(cmd string) string {
	name, _, _ := strings.Cut(cmd, "(")
	return strings.TrimSpace(name)
}

// call executes cmd and fails with a *CommandError when the controller
// answers with a non-zero error id.
func (d *Dashboard) call(ctx context.Context, cmd string) (string, error) {
	reply, err := d.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	id, err := ParseErrorID(reply)
	if err != nil {
		return reply, err
	}
	if id != 0 {
		return reply, &CommandError{Command: cmd, ErrorID: id}
	}
	return reply, nil
}

// ClearError clears controller alarms.
func (d *Dashboard) ClearError(ctx context.Context) error {
	_, err := d.call(ctx, "ClearError()")
	return err
}

// Continue resumes the controller after an alarm.
func (d *Dashboard) Continue(ctx context.Context) error {
	_, err := d.call(ctx, "Continue()")
	return err
}

// EnableRobot requests servo power.
func (d *Dashboard) EnableRobot(ctx context.Context) error {
	_, err := d.call(ctx, "EnableRobot()")
	return err
}

// DisableRobot removes servo power.
func (d *Dashboard) DisableRobot(ctx context.Context) error {
	_, err := d.call(ctx, "DisableRobot()")
	return err
}

// RobotMode reads the mode register.
func (d *Dashboard) RobotMode(ctx context.Context) (Mode, error) {
	reply, err := d.Exec(ctx, "RobotMode()")
	if err != nil {
		return ModeUnknown, err
	}
	return ParseMode(reply)
}

// GetPose reads the current Cartesian pose.
func (d *Dashboard) GetPose(ctx context.Context) (Pose, error) {
	reply, err := d.Exec(ctx, "GetPose()")
	if err != nil {
		return Pose{}, err
	}
	return ParsePose(reply)
}

// GetAngle reads the current joint angles.
func (d *Dashboard) GetAngle(ctx context.Context) (Joints, error) {
	reply, err := d.Exec(ctx, "GetAngle()")
	if err != nil {
		return Joints{}, err
	}
	return ParseJoints("GetAngle", reply)
}

// SpeedFactor sets the global speed ratio in percent.
func (d *Dashboard) SpeedFactor(ctx context.Context, ratio int) error {
	_, err := d.call(ctx, formatCall("SpeedFactor", ratio))
	return err
}

// AccJ sets the joint acceleration ratio in percent.
func (d *Dashboard) AccJ(ctx context.Context, ratio int) error {
	_, err := d.call(ctx, formatCall("AccJ", ratio))
	return err
}

// Tool selects the active tool coordinate system.
func (d *Dashboard) Tool(ctx context.Context, index int) error {
	_, err := d.call(ctx, formatCall("Tool", index))
	return err
}

// ToolDOExecute sets a tool digital output immediately.
func (d *Dashboard) ToolDOExecute(ctx context.Context, pin, value int) error {
	_, err := d.call(ctx, formatCall("ToolDOExecute", pin, value))
	return err
}

// InverseSolution asks the controller for the joint angles reaching p with
// the given user and tool frames.
func (d *Dashboard) InverseSolution(ctx context.Context, p Pose, user, tool int) (Joints, error) {
	cmd := formatCall("InverseSolution", p[0], p[1], p[2], p[3], p[4], p[5], user, tool)
	reply, err := d.Exec(ctx, cmd)
	if err != nil {
		return Joints{}, err
	}
	j, err := ParseJoints("InverseSolution", reply)
	if err != nil {
		return j, fmt.Errorf("inverse solution: %w", err)
	}
	return j, nil
}
