package source

import (
	"fmt"
	"math"

	"github.com/itchio/headway/state"
	"github.com/itchio/headway/united"
	"github.com/itchio/rstream/cursor"
)

// Stats describes the fetches made against a base.
type Stats struct {
	Seeks    int64
	TotalLen int64
	MinLen   int64
	MaxLen   int64
}

func (s *Stats) record(length int) {
	l := int64(length)
	if s.Seeks == 0 || l < s.MinLen {
		s.MinLen = l
	}
	if l > s.MaxLen {
		s.MaxLen = l
	}
	s.Seeks++
	s.TotalLen += l
}

// AverageLen returns the mean requested length, or 0 without seeks.
func (s *Stats) AverageLen() float64 {
	if s.Seeks == 0 {
		return 0
	}
	return math.Round(float64(s.TotalLen) / float64(s.Seeks))
}

func (s *Stats) String() string {
	if s.Seeks == 0 {
		return "no seeks"
	}
	return fmt.Sprintf("%d seeks for %s (min %s, max %s)",
		s.Seeks,
		united.FormatBytes(s.TotalLen),
		united.FormatBytes(s.MinLen),
		united.FormatBytes(s.MaxLen),
	)
}

type statsSource struct {
	src      Source
	stats    *Stats
	consumer *state.Consumer
}

// WithStats records every fetch made through src into stats, and logs
// it at debug level.
func WithStats(src Source, stats *Stats, consumer *state.Consumer) Source {
	if consumer == nil {
		consumer = &state.Consumer{}
	}
	return &statsSource{src: src, stats: stats, consumer: consumer}
}

func (ss *statsSource) Fetch(pos int64, length int) (cursor.Cursor, error) {
	ss.stats.record(length)
	ss.consumer.Debugf("Seeking %d bytes from base at %d", length, pos)
	return ss.src.Fetch(pos, length)
}
