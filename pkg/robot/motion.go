package robot

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DialFunc opens a fresh connection to one controller port.
type DialFunc func(ctx context.Context) (net.Conn, error)

// TCPDialer returns a DialFunc for addr.
func TCPDialer(addr string) DialFunc {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}
}

const motionWriteTimeout = 500 * time.Millisecond

var (
	errNotConnected = errors.New("not connected")
	errDecode       = errors.New("reply is not valid utf-8")
)

// Motion streams servo commands on the motion port. On a transport failure
// it replaces the connection once and resends the same command; a second
// failure is returned to the caller.
type Motion struct {
	dial   DialFunc
	conn   net.Conn
	logger *zap.SugaredLogger
	buf    []byte
}

// NewMotion creates an unconnected dispatcher.
func NewMotion(dial DialFunc, logger *zap.SugaredLogger) *Motion {
	return &Motion{
		dial:   dial,
		logger: logger,
		buf:    make([]byte, 1024),
	}
}

// Connect opens the motion connection.
func (m *Motion) Connect(ctx context.Context) error {
	conn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	m.conn = conn
	return nil
}

// Close closes the motion connection.
func (m *Motion) Close() error {
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServoP streams a Cartesian target.
func (m *Motion) ServoP(ctx context.Context, p Pose) error {
	return m.Send(ctx, FormatServoP(p))
}

// ServoJ streams a joint-space target.
func (m *Motion) ServoJ(ctx context.Context, j Joints) error {
	return m.Send(ctx, FormatServoJ(j))
}

// Send writes cmd, reconnecting and retrying exactly once on failure.
func (m *Motion) Send(ctx context.Context, cmd string) error {
	err := m.write(cmd)
	if err == nil {
		return nil
	}
	m.logger.Warnw("Motion connection failed, reconnecting", "command", cmd, "error", err)

	if err := m.Close(); err != nil {
		m.logger.Debugw("Closing broken motion connection", "error", err)
	}
	if err := m.Connect(ctx); err != nil {
		m.logger.Errorw("Motion reconnect failed", "error", err)
		return &TransportError{Op: "motion reconnect", Command: cmd, Retried: true, Err: err}
	}
	if err := m.write(cmd); err != nil {
		m.logger.Errorw("Motion command failed after reconnect", "command", cmd, "error", err)
		return &TransportError{Op: "motion write", Command: cmd, Retried: true, Err: err}
	}
	m.logger.Infow("Reconnected motion port and resent command", "command", cmd)
	return nil
}

func (m *Motion) write(cmd string) error {
	if m.conn == nil {
		return errNotConnected
	}
	if err := m.conn.SetWriteDeadline(time.Now().Add(motionWriteTimeout)); err != nil {
		return err
	}
	if _, err := io.WriteString(m.conn, cmd+"\n"); err != nil {
		return err
	}
	return m.drainReplies()
}

// drainReplies consumes whatever acknowledgements have already arrived so
// the receive buffer never fills. It does not wait for a reply.
func (m *Motion) drainReplies() error {
	if err := m.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return err
	}
	n, err := m.conn.Read(m.buf)
	if n > 0 && !utf8.Valid(m.buf[:n]) {
		return errDecode
	}
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	}
	return nil
}
