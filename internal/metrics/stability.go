package metrics

import (
	"math"

	"github.com/san-kum/numlab/internal/dynamo"
)

// Stability is the fraction of samples that pass the numeric guard with
// every component at or below limit. It also keeps the largest magnitude
// seen and where the first bad sample appeared.
type Stability struct {
	limit float64

	samples  int
	unstable int
	peak     float64
	firstAt  float64
	flagged  bool
}

// NewStability flags samples above limit. A non-positive or invalid limit
// falls back to dynamo.MaxMagnitude, so only guard failures count.
func NewStability(limit float64) *Stability {
	if !(limit > 0) || !dynamo.IsValid(limit) {
		limit = dynamo.MaxMagnitude
	}
	return &Stability{limit: limit}
}

func (s *Stability) Name() string { return "stability" }

func (s *Stability) Limit() float64 { return s.limit }

func (s *Stability) Observe(x dynamo.State, t float64) {
	s.samples++
	ok := x.IsValid()
	for _, v := range x {
		a := math.Abs(v)
		if a > s.limit {
			ok = false
		}
		if dynamo.IsValid(v) && a > s.peak {
			s.peak = a
		}
	}
	if ok {
		return
	}
	s.unstable++
	if !s.flagged {
		s.flagged = true
		s.firstAt = t
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.unstable)/float64(s.samples)
}

// Peak is the largest finite component magnitude observed.
func (s *Stability) Peak() float64 { return s.peak }

// FirstUnstable returns the time of the first flagged sample.
func (s *Stability) FirstUnstable() (float64, bool) { return s.firstAt, s.flagged }

func (s *Stability) Reset() {
	s.samples = 0
	s.unstable = 0
	s.peak = 0
	s.firstAt = 0
	s.flagged = false
}
