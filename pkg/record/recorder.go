package record

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink persists snapshots. Open is called before the first Write and Close
// after the last one, all from the recorder's consumer side.
type Sink interface {
	Open() error
	Write(Snapshot) error
	Close() error
}

// Recorder hands snapshots from the control loop to a Sink on a dedicated
// goroutine.
type Recorder struct {
	sink   Sink
	logger *zap.SugaredLogger
	q      *queue

	mu      sync.Mutex
	started bool
	done    chan struct{}
	err     error

	closeOnce sync.Once
	closeErr  error
}

// NewRecorder creates a recorder for sink. Nothing is opened until Start.
func NewRecorder(sink Sink, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		sink:   sink,
		logger: logger,
		q:      newQueue(),
		done:   make(chan struct{}),
	}
}

// Start opens the sink and starts the consumer.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("recorder already started")
	}
	if err := r.sink.Open(); err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	r.started = true
	go r.consume()
	r.logger.Info("Recorder started")
	return nil
}

// Enqueue queues s for writing. It never waits for I/O.
func (r *Recorder) Enqueue(s Snapshot) error {
	return r.q.push(s)
}

// Len returns the number of snapshots waiting to be written.
func (r *Recorder) Len() int {
	return r.q.len()
}

// Close stops intake and blocks until every snapshot enqueued before it has
// been written and the sink is closed. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		r.q.close()
		r.mu.Lock()
		started := r.started
		r.mu.Unlock()
		if !started {
			return
		}
		<-r.done
		r.closeErr = r.err
	})
	return r.closeErr
}

func (r *Recorder) consume() {
	defer close(r.done)

	var (
		written int
		failed  int
		errs    error
	)
	for {
		s, ok := r.q.pop()
		if !ok {
			break
		}
		if err := r.sink.Write(s); err != nil {
			// Keep draining; later snapshots may still be writable.
			if failed == 0 {
				r.logger.Errorw("Recording write failed", "seq", s.Seq, "error", err)
			}
			failed++
			errs = multierr.Append(errs, err)
			continue
		}
		written++
	}

	if err := r.sink.Close(); err != nil {
		r.logger.Errorw("Closing recording failed", "error", err)
		errs = multierr.Append(errs, err)
	}
	if failed > 0 {
		r.logger.Warnw("Some snapshots were not recorded", "failed", failed)
	}
	r.logger.Infow("Recorder stopped", "written", written)
	r.err = errs
}
