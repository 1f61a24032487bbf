package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
}

func TestNewKey_RejectsNonPrimitive(t *testing.T) {
	_, err := NewKey("cases", map[string]int{"page": 1})
	require.ErrorIs(t, err, ErrInvalidKey)

	k, err := NewKey("cases", 1, "corruption", true, nil, 2.5)
	require.NoError(t, err)
	assert.Equal(t, `["cases",1,"corruption",true,null,2.5]`, k.Hash())
}

func TestWarm_FetchesOnceAndCachesWhileFresh(t *testing.T) {
	clock := newClock()
	c := New(WithStaleTime(time.Minute), WithClock(clock.Now))
	key := MustKey("statistics")

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return map[string]int{"published_cases": 12}, nil
	}

	e := c.Warm(context.Background(), key, fetch)
	require.Equal(t, StatusSuccess, e.Status)
	c.Warm(context.Background(), key, fetch)
	assert.EqualValues(t, 1, calls.Load())

	clock.Advance(time.Minute)
	c.Warm(context.Background(), key, fetch)
	assert.EqualValues(t, 2, calls.Load(), "stale entry should be refetched")
}

func TestWarm_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := New()
	key := MustKey("case", 42)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "case 42", nil
	}

	results := make([]Entry, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.Warm(context.Background(), key, fetch)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = c.Warm(context.Background(), key, fetch)
	}()

	require.Eventually(t, func() bool {
		_, err := c.Snapshot()
		var pe *PrematureSnapshotError
		return errors.As(err, &pe) && pe.Outstanding == 2
	}, time.Second, time.Millisecond)

	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, "case 42", results[0].Value)
	assert.Equal(t, results[0].Value, results[1].Value)
	assert.Equal(t, results[0].Status, results[1].Status)
}

func TestWarm_ConcurrentCallersShareOneError(t *testing.T) {
	c := New()
	key := MustKey("case", 7)
	boom := errors.New("upstream down")

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return nil, boom
	}

	var wg sync.WaitGroup
	results := make([]Entry, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Warm(context.Background(), key, fetch)
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, r := range results {
		assert.Equal(t, StatusError, r.Status)
		assert.ErrorIs(t, r.Err, boom)
	}
}

func TestWarm_ErrorIsStoredAndNotRetried(t *testing.T) {
	c := New()
	key := MustKey("sources")

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("503")
	}

	e := c.Warm(context.Background(), key, fetch)
	require.Equal(t, StatusError, e.Status)
	c.Warm(context.Background(), key, fetch)
	assert.EqualValues(t, 1, calls.Load())

	c.Invalidate(key)
	c.Warm(context.Background(), key, fetch)
	assert.EqualValues(t, 2, calls.Load())
}

func TestWarm_RecoversFetcherPanic(t *testing.T) {
	c := New()
	e := c.Warm(context.Background(), MustKey("entity", "x"), func(ctx context.Context) (any, error) {
		panic("nil map")
	})
	require.Equal(t, StatusError, e.Status)
	assert.Contains(t, e.Err.Error(), "nil map")
}

func TestRead_Absent(t *testing.T) {
	c := New()
	_, ok := c.Read(MustKey("nope"))
	assert.False(t, ok)

	e, ok := c.Read(MustKey("nope"))
	assert.True(t, ok)
	assert.Equal(t, StatusPending, e.Status)
	assert.Equal(t, 1, c.Len())

	calls := 0
	e = c.Warm(context.Background(), MustKey("nope"), func(context.Context) (any, error) {
		calls++
		return "found", nil
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusSuccess, e.Status)
}

func TestEntry_StaleForever(t *testing.T) {
	e := Entry{UpdatedAt: time.Unix(0, 0), StaleTime: Forever}
	assert.False(t, e.Stale(time.Now()))
}

func TestDecode(t *testing.T) {
	type stats struct {
		PublishedCases int `json:"published_cases"`
	}

	typed := Entry{Status: StatusSuccess, Value: stats{PublishedCases: 3}}
	got, err := Decode[stats](typed)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PublishedCases)

	raw := Entry{Status: StatusSuccess, Value: []byte(`{"published_cases":9}`)}
	_, err = Decode[stats](raw)
	require.Error(t, err, "a byte slice is not raw JSON")

	failed := Entry{Status: StatusError, Err: errors.New("boom")}
	_, err = Decode[stats](failed)
	require.EqualError(t, err, "boom")

	_, err = Decode[stats](Entry{Status: StatusPending})
	require.ErrorIs(t, err, ErrNoData)
}
