package teleop

import (
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// tickStats accumulates per-tick work durations in milliseconds.
type tickStats struct {
	work stats.Float64Data
}

func (t *tickStats) add(work time.Duration) {
	t.work = append(t.work, float64(work)/float64(time.Millisecond))
}

// Summary of tick work durations, in milliseconds.
type Summary struct {
	Ticks    int
	Mean     float64
	P95      float64
	Max      float64
	Overruns int
}

func (t *tickStats) summary(period time.Duration) Summary {
	s := Summary{Ticks: len(t.work)}
	if s.Ticks == 0 {
		return s
	}
	limit := float64(period) / float64(time.Millisecond)
	for _, w := range t.work {
		if w > limit {
			s.Overruns++
		}
	}
	s.Mean, _ = t.work.Mean()
	s.P95, _ = t.work.Percentile(95)
	s.Max, _ = t.work.Max()
	return s
}

func (t *tickStats) log(logger *zap.SugaredLogger, period time.Duration) {
	s := t.summary(period)
	if s.Ticks == 0 {
		return
	}
	logger.Infow("Tick timing",
		"ticks", s.Ticks,
		"mean_ms", s.Mean,
		"p95_ms", s.P95,
		"max_ms", s.Max,
		"overruns", s.Overruns)
	if s.Overruns > 0 {
		logger.Warnf("%d of %d ticks overran the %s period", s.Overruns, s.Ticks, period)
	}
}
