package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrPrematureSnapshot is matched by the error Snapshot returns while warms
// are still outstanding.
var ErrPrematureSnapshot = errors.New("query: snapshot requested while warms are in flight")

// PrematureSnapshotError reports how many warms were outstanding.
type PrematureSnapshotError struct {
	Outstanding int
}

func (e *PrematureSnapshotError) Error() string {
	return fmt.Sprintf("%s (%d outstanding)", ErrPrematureSnapshot, e.Outstanding)
}

func (e *PrematureSnapshotError) Unwrap() error { return ErrPrematureSnapshot }

// Snapshot is the serializable projection of a cache. The JSON layout is the
// one the browser bootstrap hydrates from.
type Snapshot struct {
	Queries []DehydratedQuery `json:"queries"`
}

type DehydratedQuery struct {
	QueryKey  Key        `json:"queryKey"`
	QueryHash string     `json:"queryHash"`
	State     QueryState `json:"state"`
}

type QueryState struct {
	Status        Status          `json:"status"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         *string         `json:"error"`
	DataUpdatedAt int64           `json:"dataUpdatedAt"`
}

// Snapshot returns every entry with its value converted to JSON. Keys that
// were only read come out pending with no data. It fails while any Warm is
// unresolved, and when a value cannot be encoded.
func (c *Cache) Snapshot() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight > 0 {
		return Snapshot{}, &PrematureSnapshotError{Outstanding: c.inflight}
	}

	hashes := make([]string, 0, len(c.entries))
	for h := range c.entries {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	out := Snapshot{Queries: make([]DehydratedQuery, 0, len(hashes))}
	for _, h := range hashes {
		e := c.entries[h]
		q := DehydratedQuery{
			QueryKey:  e.Key,
			QueryHash: h,
			State: QueryState{
				Status: e.Status,
			},
		}
		if !e.UpdatedAt.IsZero() {
			q.State.DataUpdatedAt = e.UpdatedAt.UnixMilli()
		}
		switch e.Status {
		case StatusSuccess:
			raw, err := encodeValue(e.Value)
			if err != nil {
				return Snapshot{}, fmt.Errorf("query: snapshot %s: %w", h, err)
			}
			q.State.Data = raw
		case StatusError:
			msg := "unknown error"
			if e.Err != nil {
				msg = e.Err.Error()
			}
			q.State.Error = &msg
		}
		out.Queries = append(out.Queries, q)
	}
	return out, nil
}

// Hydrate loads a snapshot. Restored entries count as fresh for the staleness
// window measured from now, so reads and warms of their keys never fetch.
func (c *Cache) Hydrate(s Snapshot) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, q := range s.Queries {
		e := &Entry{
			Key:       q.QueryKey,
			Status:    q.State.Status,
			UpdatedAt: now,
			StaleTime: c.staleTime,
		}
		switch q.State.Status {
		case StatusSuccess:
			data := q.State.Data
			if len(data) == 0 {
				data = json.RawMessage("null")
			}
			e.Value = data
		case StatusError:
			msg := "unknown error"
			if q.State.Error != nil {
				msg = *q.State.Error
			}
			e.Err = errors.New(msg)
		default:
			continue
		}
		c.entries[q.QueryKey.Hash()] = e
	}
}

func encodeValue(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid raw JSON value")
		}
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
