package driver

import (
	"fmt"
	"strings"
	"time"

	"github.com/itchio/headway/united"
	"github.com/itchio/rstream/source"
)

// Span tracks the total, minimum and maximum of a per-step quantity.
type Span struct {
	Total int64
	Min   int64
	Max   int64
}

func (s *Span) record(n int, first bool) {
	v := int64(n)
	if first || v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	s.Total += v
}

// Statistics describes how one or more jobs were driven. The same
// Statistics can be passed to several runs, counters accumulate.
type Statistics struct {
	Iterations int64
	StartTime  time.Time
	EndTime    time.Time

	InputConsumed    Span
	InputNotConsumed Span
	OutputProduced   Span

	// filled by a source wrapped with source.WithStats
	Seeks source.Stats

	// BLAKE3 of everything written, when Params.HashOutput is set
	OutputHash []byte
}

func (s *Statistics) begin() {
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}
}

func (s *Statistics) end() {
	s.EndTime = time.Now()
}

func (s *Statistics) record(consumed int, notConsumed int, produced int) {
	first := s.Iterations == 0
	s.Iterations++
	s.InputConsumed.record(consumed, first)
	s.InputNotConsumed.record(notConsumed, first)
	s.OutputProduced.record(produced, first)
}

// Duration is the time between the first step and the end of the
// last run.
func (s *Statistics) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

func (s *Statistics) String() string {
	var lines []string
	line := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	span := func(name string, sp Span) {
		line("%s: %s total, %s min, %s max", name,
			united.FormatBytes(sp.Total), united.FormatBytes(sp.Min), united.FormatBytes(sp.Max))
		if s.Iterations > 0 {
			line("%s: %s on average", name, united.FormatBytes(sp.Total/s.Iterations))
		}
	}

	line("%d iterations in %s", s.Iterations, s.Duration())
	span("input consumed", s.InputConsumed)
	span("input not consumed", s.InputNotConsumed)
	span("output produced", s.OutputProduced)
	line("base: %s", s.Seeks.String())
	if len(s.OutputHash) > 0 {
		line("output blake3: %x", s.OutputHash)
	}
	return strings.Join(lines, "\n")
}
