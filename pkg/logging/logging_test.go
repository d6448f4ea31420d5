package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFeedReceivesFormattedLines(t *testing.T) {
	feed := NewFeed(4)
	logger := New(Options{Feed: feed}).Sugar()

	logger.Infow("Gripper toggled", "on", true)
	logger.Debug("not shown")

	line := <-feed.Lines()
	assert.Regexp(t, `^\[\d\d:\d\d:\d\d\] INFO Gripper toggled \{"on": true\}$`, line)
	assert.Empty(t, feed.Lines())
}

func TestFeedDropsWhenFull(t *testing.T) {
	feed := NewFeed(1)
	logger := New(Options{Feed: feed}).Sugar()

	logger.Info("first")
	logger.Info("second")

	assert.Len(t, feed.Lines(), 1)
	assert.Contains(t, <-feed.Lines(), "first")
}

func TestConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "teleop.log")
	logger := New(Options{Level: zapcore.WarnLevel, Console: &console, File: path})

	logger.Info("file only")
	logger.Warn("both")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, console.String(), "file only")
	assert.Contains(t, console.String(), "both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"msg":"file only"`)
}

func TestNoOutputs(t *testing.T) {
	logger := New(Options{})
	logger.Info("dropped")
	assert.NotNil(t, logger)
}

func TestCaptureStdLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := CaptureStdLog(zap.New(core))
	defer restore()

	log.Printf("compiled command: ffmpeg -i /dev/video0 pipe:")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Contains(t, entry.Message, "compiled command: ffmpeg")
}

func TestCaptureStdLogKeepsFeedClean(t *testing.T) {
	feed := NewFeed(4)
	restore := CaptureStdLog(New(Options{Feed: feed}))
	defer restore()

	log.Printf("compiled command: ffmpeg -i /dev/video0 pipe:")

	assert.Empty(t, feed.Lines())
}
