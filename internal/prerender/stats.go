package prerender

import (
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"jawafdehi/internal/bytesize"
)

type pageStats struct {
	pages      atomic.Uint64
	totalBytes atomic.Uint64
	minBytes   atomic.Uint64
	maxBytes   atomic.Uint64
}

func newPageStats() *pageStats {
	s := &pageStats{}
	s.minBytes.Store(math.MaxUint64)
	return s
}

func (s *pageStats) Observe(n int) {
	if n < 0 {
		n = 0
	}
	v := uint64(n)

	s.pages.Add(1)
	s.totalBytes.Add(v)

	for {
		cur := s.minBytes.Load()
		if v >= cur || s.minBytes.CompareAndSwap(cur, v) {
			break
		}
	}
	for {
		cur := s.maxBytes.Load()
		if v <= cur || s.maxBytes.CompareAndSwap(cur, v) {
			break
		}
	}
}

// Stats summarizes the size of written pages.
type Stats struct {
	Pages      uint64
	TotalBytes uint64
	MinBytes   uint64
	MaxBytes   uint64
	AvgBytes   uint64
}

func (s *pageStats) Snapshot() Stats {
	count := s.pages.Load()
	if count == 0 {
		return Stats{}
	}
	total := s.totalBytes.Load()
	return Stats{
		Pages:      count,
		TotalBytes: total,
		MinBytes:   s.minBytes.Load(),
		MaxBytes:   s.maxBytes.Load(),
		AvgBytes:   total / count,
	}
}

func (s Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"pages": s.Pages,
		"total": bytesize.Format(s.TotalBytes),
		"min":   bytesize.Format(s.MinBytes),
		"avg":   bytesize.Format(s.AvgBytes),
		"max":   bytesize.Format(s.MaxBytes),
	}
}
