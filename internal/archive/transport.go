package archive

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Transport records upstream GET responses into a Store or replays them from
// it. Other methods always go to Next.
type Transport struct {
	Mode  Mode
	Store Store
	Next  http.RoundTripper
	Log   logrus.FieldLogger
	// MaxBody caps the bytes buffered for recording. Larger responses pass
	// through unrecorded.
	MaxBody int64
}

const defaultMaxBody = 8 * 1024 * 1024

func NewTransport(mode Mode, store Store, next http.RoundTripper, log logrus.FieldLogger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Transport{Mode: mode, Store: store, Next: next, Log: log}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Mode == ModeOff || t.Store == nil || req.Method != http.MethodGet {
		return t.Next.RoundTrip(req)
	}
	key := Key(req)

	if t.Mode == ModeReplay {
		ent, ok, err := t.Store.Get(req.Context(), key)
		if err != nil {
			return nil, fmt.Errorf("archive lookup %s: %w", key, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotArchived, key)
		}
		if !ent.Valid() {
			return nil, fmt.Errorf("archive: entry for %s fails its checksum", key)
		}
		t.Log.WithField("key", key).Debug("archive replay")
		return responseFor(req, ent), nil
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	limit := t.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	if int64(len(body)) > limit {
		t.Log.WithFields(logrus.Fields{"key": key, "limit": limit}).Warn("archive record skipped: response too large")
		resp.Body = &replayedBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		return resp, nil
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := t.Store.Put(req.Context(), key, NewEntry(resp.StatusCode, resp.Header, body)); err != nil {
			t.Log.WithError(err).WithField("key", key).Warn("archive record failed")
		} else {
			t.Log.WithFields(logrus.Fields{"key": key, "bytes": len(body)}).Debug("archive record")
		}
	}
	return resp, nil
}

// replayedBody hands back the bytes already read ahead of the rest of the
// original body.
type replayedBody struct {
	io.Reader
	io.Closer
}

func responseFor(req *http.Request, ent Entry) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", ent.Status, http.StatusText(ent.Status)),
		StatusCode:    ent.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        ent.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(ent.Body)),
		ContentLength: int64(len(ent.Body)),
		Request:       req,
	}
}
