package server

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rateLimitedLogger emits at most one error per interval. Dropped lines are
// counted and reported with the next one that gets through.
type rateLimitedLogger struct {
	mu         sync.Mutex
	lastAt     time.Time
	interval   time.Duration
	suppressed int
	log        logrus.FieldLogger
}

func newRateLimitedLogger(log logrus.FieldLogger, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{log: log, interval: interval}
}

// Error reports whether the line was written.
func (l *rateLimitedLogger) Error(fields logrus.Fields, msg string) bool {
	l.mu.Lock()
	now := time.Now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		l.suppressed++
		l.mu.Unlock()
		return false
	}
	l.lastAt = now
	dropped := l.suppressed
	l.suppressed = 0
	l.mu.Unlock()

	entry := l.log.WithFields(fields)
	if dropped > 0 {
		entry = entry.WithField("suppressed", dropped)
	}
	entry.Error(msg)
	return true
}
