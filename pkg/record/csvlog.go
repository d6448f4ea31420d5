package record

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/multierr"
)

type csvLog struct {
	f *os.File
	w *csv.Writer
}

func newCSVLog(path string) (*csvLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log: %w", err)
	}
	l := &csvLog{f: f, w: csv.NewWriter(f)}
	if err := l.w.Write(columns()); err != nil {
		f.Close()
		return nil, fmt.Errorf("write log header: %w", err)
	}
	return l, nil
}

func (l *csvLog) Write(s Snapshot) error {
	vals := s.values()
	rec := make([]string, len(vals))
	for i, v := range vals {
		rec[i] = formatValue(v)
	}
	if err := l.w.Write(rec); err != nil {
		return fmt.Errorf("write log row %d: %w", s.Seq, err)
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *csvLog) Close() error {
	l.w.Flush()
	return multierr.Combine(l.w.Error(), l.f.Sync(), l.f.Close())
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprint(v)
	}
}
