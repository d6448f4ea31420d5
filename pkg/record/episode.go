package record

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// LogFormat selects the structured log backend of an episode.
type LogFormat string

// Supported log formats.
const (
	FormatCSV    LogFormat = "csv"
	FormatSQLite LogFormat = "sqlite"
)

// SQLiteFile is the dataset database shared by all episodes in a directory.
const SQLiteFile = "robot_log.sqlite"

// FrameWriter appends frames to one video stream. A nil frame is a capture
// miss and must still occupy a slot so the video stays aligned with the log.
type FrameWriter interface {
	WriteFrame(image.Image) error
	Close() error
}

// VideoFactory creates the frame writer for path.
type VideoFactory func(path string, width, height int, fps float64) (FrameWriter, error)

// EpisodeConfig describes one recorded episode.
type EpisodeConfig struct {
	Dir    string
	ID     string // zero padded episode number, e.g. "0020"
	Task   string
	FPS    float64
	Format LogFormat
	Width  int
	Height int

	// NewVideo overrides the ffmpeg encoder.
	NewVideo VideoFactory
}

// Metadata is written next to the episode files when the episode closes.
type Metadata struct {
	RunID      string    `json:"run_id"`
	Episode    string    `json:"episode"`
	Task       string    `json:"task,omitempty"`
	FPS        float64   `json:"fps"`
	Format     LogFormat `json:"log_format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	StartedAt  time.Time `json:"started_at"`
	Ticks      int       `json:"ticks"`
	DurationS  float64   `json:"duration_s"`
	TopGaps    int       `json:"top_gaps"`
	WristGaps  int       `json:"wrist_gaps"`
	WriteFails int       `json:"write_failures"`
}

type logWriter interface {
	Write(Snapshot) error
	Close() error
}

// Episode is a Sink writing a structured log and two videos.
type Episode struct {
	cfg    EpisodeConfig
	logger *zap.SugaredLogger

	log   logWriter
	top   FrameWriter
	wrist FrameWriter
	meta  Metadata
}

// NewEpisode returns an unopened episode sink.
func NewEpisode(cfg EpisodeConfig, logger *zap.SugaredLogger) *Episode {
	if cfg.Format == "" {
		cfg.Format = FormatCSV
	}
	if cfg.NewVideo == nil {
		cfg.NewVideo = func(path string, w, h int, fps float64) (FrameWriter, error) {
			return NewVideoWriter(path, w, h, fps)
		}
	}
	return &Episode{
		cfg:    cfg,
		logger: logger,
		meta: Metadata{
			RunID:   uuid.NewString(),
			Episode: cfg.ID,
			Task:    cfg.Task,
			FPS:     cfg.FPS,
			Format:  cfg.Format,
			Width:   cfg.Width,
			Height:  cfg.Height,
		},
	}
}

// Path returns the path of an episode artifact such as "top_video.mp4".
func (e *Episode) Path(name string) string {
	return filepath.Join(e.cfg.Dir, fmt.Sprintf("episode_%s_%s", e.cfg.ID, name))
}

// Open creates the output directory, the log and both videos.
func (e *Episode) Open() error {
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", e.cfg.Dir, err)
	}

	var err error
	switch e.cfg.Format {
	case FormatCSV:
		e.log, err = newCSVLog(e.Path("robot_log.csv"))
	case FormatSQLite:
		e.log, err = newSQLiteLog(filepath.Join(e.cfg.Dir, SQLiteFile), e.meta)
	default:
		err = fmt.Errorf("unknown log format %q", e.cfg.Format)
	}
	if err != nil {
		return err
	}

	if e.top, err = e.cfg.NewVideo(e.Path("top_video.mp4"), e.cfg.Width, e.cfg.Height, e.cfg.FPS); err != nil {
		return multierr.Append(fmt.Errorf("top video: %w", err), e.log.Close())
	}
	if e.wrist, err = e.cfg.NewVideo(e.Path("wrist_video.mp4"), e.cfg.Width, e.cfg.Height, e.cfg.FPS); err != nil {
		return multierr.Combine(fmt.Errorf("wrist video: %w", err), e.top.Close(), e.log.Close())
	}

	e.meta.StartedAt = time.Now().UTC()
	e.logger.Infow("Recording episode", "episode", e.cfg.ID, "dir", e.cfg.Dir, "format", e.cfg.Format)
	return nil
}

// Write appends one snapshot to the log and both videos.
func (e *Episode) Write(s Snapshot) error {
	e.meta.Ticks++
	e.meta.DurationS = s.Timestamp.Seconds()
	if s.Top == nil {
		e.meta.TopGaps++
	}
	if s.Wrist == nil {
		e.meta.WristGaps++
	}

	err := multierr.Combine(
		e.log.Write(s),
		e.top.WriteFrame(s.Top),
		e.wrist.WriteFrame(s.Wrist),
	)
	if err != nil {
		e.meta.WriteFails++
	}
	return err
}

// Close flushes and closes every artifact and writes the metadata file.
func (e *Episode) Close() error {
	err := multierr.Combine(e.top.Close(), e.wrist.Close(), e.log.Close())

	data, merr := json.MarshalIndent(e.meta, "", "  ")
	if merr == nil {
		merr = os.WriteFile(e.Path("meta.json"), data, 0o644)
	}
	err = multierr.Append(err, merr)

	e.logger.Infow("Episode saved",
		"episode", e.cfg.ID,
		"ticks", e.meta.Ticks,
		"top_gaps", e.meta.TopGaps,
		"wrist_gaps", e.meta.WristGaps)
	return err
}

// Meta returns the metadata collected so far.
func (e *Episode) Meta() Metadata {
	return e.meta
}
