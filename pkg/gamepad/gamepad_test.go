package gamepad

import (
	"encoding/binary"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type device struct {
	t *testing.T
	w *io.PipeWriter
	j *Joystick
}

func newDevice(t *testing.T) *device {
	r, w := io.Pipe()
	j := newJoystick("test", r, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() { j.Close() })
	return &device{t: t, w: w, j: j}
}

func (d *device) send(typ uint8, number uint8, value int16) {
	d.t.Helper()
	ev := event{Time: 1, Value: value, Type: typ, Number: number}
	require.NoError(d.t, binary.Write(d.w, binary.LittleEndian, ev))
}

// finish ends the stream and waits until every event is applied.
func (d *device) finish() {
	d.w.Close()
	<-d.j.done
}

func TestJoystickAxes(t *testing.T) {
	d := newDevice(t)
	d.send(eventAxis, 1, -32767)
	d.send(eventAxis, 3, 16384)
	d.send(eventAxis, 0, -32768)

	d.finish()

	assert.Equal(t, -1.0, d.j.Axis(1))
	assert.InDelta(t, 0.5, d.j.Axis(3), 0.001)
	assert.Equal(t, -1.0, d.j.Axis(0), "clamped to -1")
	assert.Zero(t, d.j.Axis(5))
}

func TestJoystickPressesAreEdges(t *testing.T) {
	d := newDevice(t)
	// Initial state of a button already held at open.
	d.send(eventButton|eventInit, 8, 1)
	d.send(eventButton, 8, 0)
	d.send(eventButton, 8, 1)
	d.send(eventButton, 8, 1) // repeated report while held
	d.send(eventButton, 11, 1)
	d.send(eventButton, 11, 0)

	d.finish()

	assert.True(t, d.j.Button(8))
	assert.False(t, d.j.Button(11))
	assert.Equal(t, []int{8, 11}, d.j.Presses())
	assert.Empty(t, d.j.Presses(), "presses are consumed")
}

func TestJoystickClose(t *testing.T) {
	d := newDevice(t)
	d.w.CloseWithError(io.ErrClosedPipe)
	require.Eventually(t, func() bool { return d.j.Err() != nil }, time.Second, time.Millisecond)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "js7"), zaptest.NewLogger(t).Sugar())
	assert.ErrorContains(t, err, "gamepad")
}
