package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/dobot-teleop/pkg/record"
	"github.com/gwillem/dobot-teleop/pkg/teleop"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	cfg := Default()
	cfg.Robot.Host = "10.0.0.7"
	cfg.Control.ServoMode = teleop.ServoJoint
	cfg.Workspace.Z.Min = 0

	require.NoError(t, cfg.SaveTo(path))
	got, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", got.Robot.Host)
	assert.Equal(t, teleop.ServoJoint, got.Control.ServoMode)
	assert.Equal(t, 0.0, got.Workspace.Z.Min)
	assert.Equal(t, *cfg.Robot.Tool, *got.Robot.Tool)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"control": {"hz": 30}, "workspace": {"z": {"min": -20, "max": 300}}}`), 0o644))

	cfg, err := LoadConfigFrom(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Control.Hz)
	assert.Equal(t, teleop.ServoPose, cfg.Control.ServoMode)
	assert.Equal(t, 300.0, cfg.Workspace.Z.Max)
	assert.Equal(t, 750.0, cfg.Workspace.X.Max)
	assert.Equal(t, 29999, cfg.Robot.DashboardPort)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Control.Hz = 0
	cfg.Control.ServoMode = "cartesian"
	cfg.Workspace.X = teleop.Range{Min: 800, Max: 200}
	cfg.Recording.Format = "parquet"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"control rate", "servo mode", "workspace x", "recording format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestDerivedSettings(t *testing.T) {
	cfg := Default()
	cfg.Cameras.WaitMS = 250

	tc := cfg.Teleop()
	assert.Equal(t, 15, tc.Hz)
	assert.Equal(t, 6.0, tc.Mapper.Step)
	assert.Equal(t, cfg.Workspace, tc.Mapper.Bounds)

	top, wrist := cfg.CameraConfigs()
	assert.Equal(t, 250*time.Millisecond, top.Wait)
	assert.Equal(t, "/dev/video2", wrist.Device)

	ep := cfg.Episode(20)
	assert.Equal(t, "0020", ep.ID)
	assert.Equal(t, 15.0, ep.FPS)
	assert.Equal(t, record.FormatCSV, ep.Format)
}
