package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Forever disables staleness for entries created with it.
const Forever time.Duration = -1

// ErrNoData is returned by Decode for entries that did not succeed.
var ErrNoData = errors.New("query: entry has no data")

// Fetcher loads the value for one query. The cache treats the value as opaque.
type Fetcher func(ctx context.Context) (any, error)

// Entry is a point-in-time copy of a cached query result.
type Entry struct {
	Key       Key
	Status    Status
	Value     any
	Err       error
	UpdatedAt time.Time
	StaleTime time.Duration
}

// Stale reports whether the entry is old enough to be refetched. A stale
// entry is still readable.
func (e Entry) Stale(now time.Time) bool {
	if e.StaleTime < 0 {
		return false
	}
	return now.Sub(e.UpdatedAt) >= e.StaleTime
}

func (e Entry) settled() bool {
	return e.Status == StatusSuccess || e.Status == StatusError
}

// Decode returns the entry value as T. Values stored by a fetcher are
// returned as-is when they already have type T; hydrated values arrive as raw
// JSON and are unmarshalled.
func Decode[T any](e Entry) (T, error) {
	var zero T
	switch e.Status {
	case StatusSuccess:
	case StatusError:
		if e.Err != nil {
			return zero, e.Err
		}
		return zero, ErrNoData
	default:
		return zero, ErrNoData
	}

	if v, ok := e.Value.(T); ok {
		return v, nil
	}

	var raw []byte
	switch v := e.Value.(type) {
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("query: decode %s: %w", e.Key, err)
		}
		raw = b
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("query: decode %s: %w", e.Key, err)
	}
	return out, nil
}
