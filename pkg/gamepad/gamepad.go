// Package gamepad reads a Linux joystick device (/dev/input/js*).
//
// A background goroutine decodes events into the current axis and button
// state. Button presses are also queued as edges so a toggle bound to a
// button fires once per press however long it is held.
package gamepad

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// Linux joystick event types.
const (
	eventButton = 0x01
	eventAxis   = 0x02
	eventInit   = 0x80
)

// event mirrors struct js_event.
type event struct {
	Time   uint32
	Value  int16
	Type   uint8
	Number uint8
}

// Joystick is an open joystick device.
type Joystick struct {
	path   string
	r      io.ReadCloser
	logger *zap.SugaredLogger
	done   chan struct{}

	mu      sync.Mutex
	axes    map[int]float64
	buttons map[int]bool
	presses []int
	err     error
}

// Open opens the joystick at path and starts decoding its events.
func Open(path string, logger *zap.SugaredLogger) (*Joystick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &robot.ConnectionError{Target: "gamepad", Addr: path, Err: err}
	}
	j := newJoystick(path, f, logger)
	logger.Infow("Gamepad connected", "device", path)
	return j, nil
}

func newJoystick(path string, r io.ReadCloser, logger *zap.SugaredLogger) *Joystick {
	j := &Joystick{
		path:    path,
		r:       r,
		logger:  logger,
		done:    make(chan struct{}),
		axes:    make(map[int]float64),
		buttons: make(map[int]bool),
	}
	go j.read()
	return j
}

func (j *Joystick) read() {
	defer close(j.done)
	for {
		var ev event
		if err := binary.Read(j.r, binary.LittleEndian, &ev); err != nil {
			j.mu.Lock()
			j.err = err
			j.mu.Unlock()
			if !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				j.logger.Warnw("Gamepad disconnected", "device", j.path, "error", err)
			}
			return
		}
		j.apply(ev)
	}
}

func (j *Joystick) apply(ev event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := int(ev.Number)
	switch ev.Type &^ eventInit {
	case eventAxis:
		j.axes[n] = float64(ev.Value) / 32767
	case eventButton:
		down := ev.Value != 0
		// Initial state events describe, they do not press.
		if down && !j.buttons[n] && ev.Type&eventInit == 0 {
			j.presses = append(j.presses, n)
		}
		j.buttons[n] = down
	}
}

// Axis returns the deflection of axis i in [-1, 1].
func (j *Joystick) Axis(i int) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	v := j.axes[i]
	if v < -1 {
		v = -1
	}
	return v
}

// Button reports whether button i is held.
func (j *Joystick) Button(i int) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.buttons[i]
}

// Presses returns the buttons pressed since the last call, oldest first.
func (j *Joystick) Presses() []int {
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.presses
	j.presses = nil
	return p
}

// Err returns the read error that stopped the device, if any.
func (j *Joystick) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Close closes the device and waits for the reader to exit.
func (j *Joystick) Close() error {
	err := j.r.Close()
	<-j.done
	return err
}

// List returns the joystick devices present on the system.
func List() ([]string, error) {
	paths, err := filepath.Glob("/dev/input/js*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
