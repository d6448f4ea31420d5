// Package camera grabs frames from the top and wrist cameras.
//
// Each camera runs an ffmpeg process that decodes the device to raw RGB on
// a pipe. A reader goroutine keeps only the newest frame, so a slow
// consumer never sees stale backlog.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

// ErrCaptureMiss is returned when no frame arrived in time.
var ErrCaptureMiss = errors.New("no frame within capture window")

// Source produces frames.
type Source interface {
	// Next returns a frame newer than the last one returned.
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Config describes one V4L2 style capture device.
type Config struct {
	Device string        `json:"device"`
	Format string        `json:"format"` // ffmpeg input format, "v4l2" by default
	Width  int           `json:"width"`
	Height int           `json:"height"`
	FPS    int           `json:"fps"`
	Wait   time.Duration `json:"-"` // capture window per frame
	Start  time.Duration `json:"-"` // window for the first frame after starting
}

func (c Config) withDefaults() Config {
	if c.Format == "" {
		c.Format = "v4l2"
	}
	if c.Width == 0 || c.Height == 0 {
		c.Width, c.Height = 640, 480
	}
	if c.FPS == 0 {
		c.FPS = 30
	}
	if c.Wait == 0 {
		c.Wait = time.Second
	}
	if c.Start == 0 {
		c.Start = 5 * time.Second
	}
	return c
}

// FFmpegSource reads frames from an ffmpeg child process.
type FFmpegSource struct {
	name   string
	cfg    Config
	logger *zap.SugaredLogger

	frames chan image.Image
	first  chan struct{}
	once   sync.Once
	done   chan struct{}
	cancel func()
	wg     sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewFFmpegSource starts capturing from cfg.Device and waits for the first
// frame. A device that exists but does not stream is a *robot.ConnectionError.
func NewFFmpegSource(name string, cfg Config, logger *zap.SugaredLogger) (*FFmpegSource, error) {
	cfg = cfg.withDefaults()
	if _, err := os.Stat(cfg.Device); err != nil {
		return nil, &robot.ConnectionError{Target: name + " camera", Addr: cfg.Device, Err: err}
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &FFmpegSource{
		name:   name,
		cfg:    cfg,
		logger: logger,
		frames: make(chan image.Image, 1),
		first:  make(chan struct{}),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	in, out := io.Pipe()
	size := fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		stream := ffmpeg.Input(cfg.Device, ffmpeg.KwArgs{
			"f":          cfg.Format,
			"video_size": size,
			"framerate":  cfg.FPS,
		}).Output("pipe:", ffmpeg.KwArgs{
			"f":       "rawvideo",
			"pix_fmt": "rgb24",
			"s":       size,
		})
		stream.Context = ctx
		err := stream.WithOutput(out).Run()
		if err == nil {
			err = io.EOF
		}
		out.CloseWithError(err)
	}()
	go func() {
		defer s.wg.Done()
		defer close(s.done)
		s.read(in)
	}()

	if err := s.awaitFirstFrame(); err != nil {
		s.Close()
		return nil, &robot.ConnectionError{Target: name + " camera", Addr: cfg.Device, Err: err}
	}
	logger.Infow("Camera started", "camera", name, "device", cfg.Device, "size", size)
	return s, nil
}

func (s *FFmpegSource) awaitFirstFrame() error {
	timer := time.NewTimer(s.cfg.Start)
	defer timer.Stop()
	select {
	case <-s.first:
		return nil
	case <-s.done:
		return fmt.Errorf("capture stopped before the first frame: %w", s.Err())
	case <-timer.C:
		return fmt.Errorf("no frame within %s", s.cfg.Start)
	}
}

func (s *FFmpegSource) read(r io.Reader) {
	buf := make([]byte, s.cfg.Width*s.cfg.Height*3)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			s.setErr(err)
			return
		}
		s.publish(rgbToImage(buf, s.cfg.Width, s.cfg.Height))
		s.once.Do(func() { close(s.first) })
	}
}

// publish replaces any frame not yet taken.
func (s *FFmpegSource) publish(img image.Image) {
	select {
	case s.frames <- img:
	default:
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- img:
		default:
		}
	}
}

func (s *FFmpegSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns why capturing stopped, if it did.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Next waits up to the capture window for a fresh frame.
func (s *FFmpegSource) Next(ctx context.Context) (image.Image, error) {
	timer := time.NewTimer(s.cfg.Wait)
	defer timer.Stop()
	select {
	case img := <-s.frames:
		return img, nil
	case <-s.done:
		return nil, fmt.Errorf("%s camera stopped: %w", s.name, s.Err())
	case <-timer.C:
		return nil, ErrCaptureMiss
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops ffmpeg and waits for the reader.
func (s *FFmpegSource) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func rgbToImage(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, j := 0, 0; i+2 < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
