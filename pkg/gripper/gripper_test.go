package gripper

import (
	"context"
	"errors"
	"testing"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doCall struct{ index, status int }

type fakeDO struct {
	calls  []doCall
	failAt int
}

func (f *fakeDO) ToolDOExecute(_ context.Context, index, status int) error {
	f.calls = append(f.calls, doCall{index, status})
	if len(f.calls) == f.failAt {
		return errors.New("controller rejected ToolDOExecute")
	}
	return nil
}

func TestSuctionSequence(t *testing.T) {
	do := &fakeDO{}
	s := NewSuction(do)

	require.NoError(t, s.Set(context.Background(), true))
	require.NoError(t, s.Set(context.Background(), false))

	assert.Equal(t, []doCall{
		{2, 0}, {1, 1}, // release closed, vacuum on
		{1, 0}, {2, 1}, // vacuum off, release open
	}, do.calls)
}

func TestSuctionStopsOnFailure(t *testing.T) {
	do := &fakeDO{failAt: 1}
	err := NewSuction(do).Set(context.Background(), true)

	assert.ErrorContains(t, err, "suction on")
	assert.Len(t, do.calls, 1)
}

type fakeGroup struct {
	written  []feetech.PositionMap
	disabled bool
}

func (g *fakeGroup) SetPositions(_ context.Context, p feetech.PositionMap) error {
	g.written = append(g.written, p)
	return nil
}

func (g *fakeGroup) DisableAll(context.Context) error {
	g.disabled = true
	return nil
}

func TestServoSet(t *testing.T) {
	g := &fakeGroup{}
	s := &Servo{
		cfg: ServoConfig{
			ID:          6,
			Calibration: MotorCalibration{ID: 6, RangeMin: 2000, RangeMax: 3000},
			Open:        100,
			Closed:      -100,
		},
		group: g,
	}

	require.NoError(t, s.Set(context.Background(), true))
	require.NoError(t, s.Set(context.Background(), false))
	require.NoError(t, s.Close())

	assert.Equal(t, []feetech.PositionMap{{6: 2000}, {6: 3000}}, g.written)
	assert.True(t, g.disabled)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Kind = KindServo
	assert.ErrorContains(t, cfg.Validate(), "serial port")

	cfg.Servo.Port = "/dev/ttyACM0"
	assert.ErrorContains(t, cfg.Validate(), "not calibrated")

	cfg.Servo.Calibration = MotorCalibration{ID: 6, RangeMin: 1, RangeMax: 2}
	assert.NoError(t, cfg.Validate())

	cfg.Kind = "magnet"
	assert.Error(t, cfg.Validate())
}
