// Package archive records upstream API responses and replays them, so a
// prerender run can be reproduced without network access.
package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

var ErrNotArchived = errors.New("archive: response not archived")

// Entry is one archived response.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt int64 // unix seconds
	Hash     uint64
}

func NewEntry(status int, header http.Header, body []byte) Entry {
	return Entry{
		Status:   status,
		Header:   header.Clone(),
		Body:     body,
		StoredAt: time.Now().Unix(),
		Hash:     xxhash.Sum64(body),
	}
}

// Valid reports whether the body still matches the hash taken when it was
// stored.
func (e Entry) Valid() bool { return xxhash.Sum64(e.Body) == e.Hash }

type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, ent Entry) error
	Close() error
}

type Mode string

const (
	ModeOff    Mode = "off"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeOff:
		return ModeOff, nil
	case ModeRecord, ModeReplay:
		return m, nil
	default:
		return "", fmt.Errorf("archive: unknown mode %q", s)
	}
}

// Key identifies a request in the archive.
func Key(r *http.Request) string {
	return r.Method + " " + r.URL.String()
}
