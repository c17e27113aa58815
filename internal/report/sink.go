package report

import (
	"github.com/san-kum/numlab/internal/dynamo"
)

// Recorder keeps every emitted tuple in memory, grouped by series in the
// order the series first appeared.
type Recorder struct {
	order  []string
	rows   map[string][][]float64
	closed bool
}

func NewRecorder() *Recorder {
	return &Recorder{rows: make(map[string][][]float64)}
}

func (r *Recorder) Emit(series string, values ...float64) error {
	if _, ok := r.rows[series]; !ok {
		r.order = append(r.order, series)
	}
	r.rows[series] = append(r.rows[series], append([]float64(nil), values...))
	return nil
}

func (r *Recorder) Close() error {
	r.closed = true
	return nil
}

func (r *Recorder) Closed() bool { return r.closed }

func (r *Recorder) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Recorder) Rows(series string) [][]float64 {
	return r.rows[series]
}

// Column extracts component i of every tuple of series.
func (r *Recorder) Column(series string, i int) []float64 {
	return Column(r.rows[series], i)
}

// Column extracts component i of every row; short rows yield 0.
func Column(rows [][]float64, i int) []float64 {
	out := make([]float64, len(rows))
	for k, row := range rows {
		if i < len(row) {
			out[k] = row[i]
		}
	}
	return out
}

type multiSink []dynamo.Sink

// Multi fans every tuple out to all sinks. Close closes each of them and
// returns the first error.
func Multi(sinks ...dynamo.Sink) dynamo.Sink {
	return multiSink(sinks)
}

func (m multiSink) Emit(series string, values ...float64) error {
	for _, s := range m {
		if err := s.Emit(series, values...); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
