package record

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"

	ffmpeg "github.com/u2takey/ffmpeg-go"
	"golang.org/x/image/draw"
)

var errEncoderExited = errors.New("ffmpeg encoder exited")

// VideoWriter encodes RGBA frames to a video file through an ffmpeg
// process reading rawvideo from a pipe.
type VideoWriter struct {
	path   string
	frame  *image.RGBA
	pipe   *io.PipeWriter
	done   chan error
	frames int
}

// NewVideoWriter starts an encoder for a width x height stream at fps.
// Frames of another size are scaled to fit.
func NewVideoWriter(path string, width, height int, fps float64) (*VideoWriter, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid video size %dx%d", width, height)
	}

	in, out := io.Pipe()
	stream := ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": "rgba",
		"s":       fmt.Sprintf("%dx%d", width, height),
		"r":       fps,
	}).Output(path, ffmpeg.KwArgs{
		"vcodec":  "libx264",
		"pix_fmt": "yuv420p",
	}).OverWriteOutput().WithInput(in)

	w := &VideoWriter{
		path:  path,
		frame: image.NewRGBA(image.Rect(0, 0, width, height)),
		pipe:  out,
		done:  make(chan error, 1),
	}
	go func() {
		err := stream.Run()
		// Unblock a writer if ffmpeg died early.
		in.CloseWithError(errEncoderExited)
		w.done <- err
	}()
	return w, nil
}

// WriteFrame encodes img. A nil image is written as a black frame.
func (w *VideoWriter) WriteFrame(img image.Image) error {
	if img == nil {
		clear(w.frame.Pix)
	} else if img.Bounds().Size() == w.frame.Bounds().Size() {
		draw.Draw(w.frame, w.frame.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(w.frame, w.frame.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	if _, err := w.pipe.Write(w.frame.Pix); err != nil {
		return fmt.Errorf("encode frame %d of %s: %w", w.frames, w.path, err)
	}
	w.frames++
	return nil
}

// Close ends the stream and waits for ffmpeg to finish the file.
func (w *VideoWriter) Close() error {
	w.pipe.Close()
	if err := <-w.done; err != nil {
		return fmt.Errorf("encode %s: %w", w.path, err)
	}
	return nil
}

// Frames returns the number of frames written.
func (w *VideoWriter) Frames() int {
	return w.frames
}
