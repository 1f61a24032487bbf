package archive

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var errClosed = errors.New("archive: store closed")

type diskMeta struct {
	Size       int64
	LastAccess int64 // unix seconds
}

type diskOp struct {
	key   string
	ent   *Entry
	errc  chan error
	touch bool
}

// LevelDB keeps entries under "e:<key>" and a size/access index under
// "m:<key>". All writes go through a single writer goroutine. When the total
// exceeds maxBytes the least recently used tenth of the keys is evicted.
type LevelDB struct {
	maxBytes int64

	db *leveldb.DB

	mu        sync.Mutex
	index     map[string]diskMeta
	totalSize int64

	closeMu sync.RWMutex
	closed  bool
	ops     chan diskOp
	done    chan struct{}
}

// OpenLevelDB opens or creates the archive at path. maxBytes <= 0 disables
// eviction.
func OpenLevelDB(path string, maxBytes int64) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	d := &LevelDB{
		maxBytes: maxBytes,
		db:       db,
		index:    map[string]diskMeta{},
		ops:      make(chan diskOp, 1024),
		done:     make(chan struct{}),
	}
	if err := d.loadIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	go d.writerLoop()
	return d, nil
}

func (d *LevelDB) Close() error {
	d.closeMu.Lock()
	if d.closed {
		d.closeMu.Unlock()
		return nil
	}
	d.closed = true
	close(d.ops)
	d.closeMu.Unlock()

	<-d.done
	return d.db.Close()
}

func (d *LevelDB) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalSize
}

func (d *LevelDB) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.index))
	for k := range d.index {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (d *LevelDB) loadIndex() error {
	it := d.db.NewIterator(util.BytesPrefix([]byte("m:")), nil)
	defer it.Release()

	var total int64
	idx := map[string]diskMeta{}
	for it.Next() {
		key := string(bytes.TrimPrefix(it.Key(), []byte("m:")))
		var meta diskMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		idx[key] = meta
		total += meta.Size
	}
	if err := it.Error(); err != nil {
		return err
	}
	d.mu.Lock()
	d.index = idx
	d.totalSize = total
	d.mu.Unlock()
	return nil
}

func (d *LevelDB) Get(_ context.Context, key string) (Entry, bool, error) {
	b, err := d.db.Get([]byte("e:"+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var ent Entry
	if err := decodeGob(b, &ent); err != nil {
		return Entry{}, false, err
	}

	d.mu.Lock()
	meta, exists := d.index[key]
	if exists {
		meta.LastAccess = time.Now().Unix()
		d.index[key] = meta
	}
	d.mu.Unlock()
	if exists {
		_ = d.send(diskOp{key: key, touch: true}, false)
	}
	return ent, true, nil
}

// Put blocks until the writer has stored the entry or ctx ends.
func (d *LevelDB) Put(ctx context.Context, key string, ent Entry) error {
	clone := ent
	errc := make(chan error, 1)
	if err := d.send(diskOp{key: key, ent: &clone, errc: errc}, true); err != nil {
		return err
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *LevelDB) send(op diskOp, wait bool) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()
	if d.closed {
		return errClosed
	}
	if wait {
		d.ops <- op
		return nil
	}
	// touches are best effort
	select {
	case d.ops <- op:
	default:
	}
	return nil
}

func (d *LevelDB) writerLoop() {
	defer close(d.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for op := range d.ops {
		var err error
		if op.touch {
			d.applyTouch(op.key)
		} else {
			err = d.applyPut(op.key, op.ent)
		}
		if op.errc != nil {
			op.errc <- err
		}
	}
}

func (d *LevelDB) applyPut(key string, ent *Entry) error {
	b, err := encodeGob(*ent)
	if err != nil {
		return err
	}
	size := int64(len(b))
	meta := diskMeta{Size: size, LastAccess: time.Now().Unix()}
	mb, err := encodeGob(meta)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte("e:"+key), b)
	batch.Put([]byte("m:"+key), mb)
	if err := d.db.Write(batch, nil); err != nil {
		return err
	}

	d.mu.Lock()
	if old, ok := d.index[key]; ok {
		d.totalSize -= old.Size
	}
	d.index[key] = meta
	d.totalSize += size
	over := d.maxBytes > 0 && d.totalSize > d.maxBytes
	d.mu.Unlock()

	if over {
		d.evictSome(key)
	}
	return nil
}

func (d *LevelDB) applyTouch(key string) {
	d.mu.Lock()
	meta, ok := d.index[key]
	d.mu.Unlock()
	if !ok {
		return
	}
	mb, err := encodeGob(meta)
	if err != nil {
		return
	}
	_ = d.db.Put([]byte("m:"+key), mb, nil)
}

func (d *LevelDB) applyDelete(key string) {
	batch := new(leveldb.Batch)
	batch.Delete([]byte("e:" + key))
	batch.Delete([]byte("m:" + key))
	_ = d.db.Write(batch, nil)

	d.mu.Lock()
	if meta, ok := d.index[key]; ok {
		d.totalSize -= meta.Size
		delete(d.index, key)
	}
	d.mu.Unlock()
}

// evictSome drops the oldest tenth of the keys, never the one just written.
func (d *LevelDB) evictSome(keep string) {
	type item struct {
		key string
		m   diskMeta
	}
	d.mu.Lock()
	items := make([]item, 0, len(d.index))
	for k, m := range d.index {
		if k == keep {
			continue
		}
		items = append(items, item{k, m})
	}
	d.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].m.LastAccess == items[j].m.LastAccess {
			return items[i].key < items[j].key
		}
		return items[i].m.LastAccess < items[j].m.LastAccess
	})

	n := len(items) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(items); i++ {
		d.applyDelete(items[i].key)
	}
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
