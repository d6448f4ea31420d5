package camera

import (
	"context"
	"image"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pair captures the top and wrist cameras together.
type Pair struct {
	Top    Source
	Wrist  Source
	Logger *zap.SugaredLogger
}

// OpenPair starts both cameras. If the second fails the first is closed.
func OpenPair(top, wrist Config, logger *zap.SugaredLogger) (*Pair, error) {
	t, err := NewFFmpegSource("top", top, logger)
	if err != nil {
		return nil, err
	}
	w, err := NewFFmpegSource("wrist", wrist, logger)
	if err != nil {
		t.Close()
		return nil, err
	}
	return &Pair{Top: t, Wrist: w, Logger: logger}, nil
}

// Capture grabs one frame from each camera concurrently. A camera that
// misses its window yields nil; the other frame is still returned.
func (p *Pair) Capture(ctx context.Context) (top, wrist image.Image) {
	var g errgroup.Group
	g.Go(func() error {
		top = p.grab(ctx, "top", p.Top)
		return nil
	})
	g.Go(func() error {
		wrist = p.grab(ctx, "wrist", p.Wrist)
		return nil
	})
	_ = g.Wait()
	return top, wrist
}

func (p *Pair) grab(ctx context.Context, name string, src Source) image.Image {
	if src == nil {
		return nil
	}
	img, err := src.Next(ctx)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warnw("Camera capture missed", "camera", name, "error", err)
		}
		return nil
	}
	return img
}

// Close stops both cameras.
func (p *Pair) Close() error {
	var err error
	if p.Top != nil {
		err = multierr.Append(err, p.Top.Close())
	}
	if p.Wrist != nil {
		err = multierr.Append(err, p.Wrist.Close())
	}
	return err
}
