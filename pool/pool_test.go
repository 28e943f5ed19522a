package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	id    int
	valid bool
}

type fakeFactory struct {
	mu        sync.Mutex
	next      int
	created   int
	destroyed []int
	createErr error

	// When block is set, Create signals entered and waits for block to close.
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeFactory) gate() {
	f.block = make(chan struct{})
	f.entered = make(chan struct{}, 4)
}

func (f *fakeFactory) Create(ctx context.Context) (*resource, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.next++
	f.created++
	return &resource{id: f.next, valid: true}, nil
}

func (f *fakeFactory) Destroy(r *resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, r.id)
	return nil
}

func (f *fakeFactory) Validate(ctx context.Context, r *resource) error {
	if !r.valid {
		return errors.New("invalid")
	}
	return nil
}

func (f *fakeFactory) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created, len(f.destroyed)
}

func newPool(t *testing.T, opts Options) (*Pool[*resource], *fakeFactory) {
	t.Helper()
	f := &fakeFactory{}
	p, err := New[*resource](f, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		// Items left checked out by a test only delay the drain.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_ = p.Drain(ctx)
	})
	return p, f
}

func TestNewValidatesOptions(t *testing.T) {
	f := &fakeFactory{}
	_, err := New[*resource](f, Options{Max: 0})
	require.Error(t, err)
	_, err = New[*resource](f, Options{Min: 4, Max: 3})
	require.Error(t, err)
	_, err = New[*resource](nil, Options{Max: 1})
	require.Error(t, err)
}

func TestAcquireReusesReleasedItem(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 3})

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	require.NoError(t, p.Release(a))
	require.NoError(t, p.Release(b))
	assert.Equal(t, Stats{Size: 2, Idle: 2}, p.Stats())

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, b, again, "most recently released item is reused first")

	created, _ := f.counts()
	assert.Equal(t, 2, created)
	require.ErrorIs(t, p.Release(&resource{}), ErrUnknownItem)
}

func TestAcquireNeverExceedsMax(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 2})

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	_, err = p.Acquire(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *resource)
	go func() {
		r, err := p.Acquire(context.Background())
		if err == nil {
			got <- r
		}
		close(got)
	}()
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, p.Release(a))
	assert.Same(t, a, <-got)

	created, _ := f.counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, p.Stats().InUse)
}

func TestAcquireHonoursContext(t *testing.T) {
	p, _ := newPool(t, Options{Max: 1})
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, ErrResourceExhausted)
	require.ErrorIs(t, err, context.Canceled)

	timed, _ := newPool(t, Options{Max: 1, AcquireTimeout: 10 * time.Millisecond})
	_, err = timed.Acquire(context.Background())
	require.NoError(t, err)
	_, err = timed.Acquire(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateFailureReleasesSlot(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 1})
	f.createErr = errors.New("refused")

	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, f.createErr)

	f.createErr = nil
	_, err = p.Acquire(ctx)
	require.NoError(t, err)
}

func TestDestroyFreesCapacity(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 1})

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Destroy(a))
	require.ErrorIs(t, p.Destroy(a), ErrUnknownItem)

	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	_, destroyed := f.counts()
	assert.Equal(t, 1, destroyed)
}

func TestTestOnBorrowDiscardsInvalidItems(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 2, TestOnBorrow: true})

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(a))
	a.valid = false

	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	created, destroyed := f.counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, destroyed)
}

func TestStartPrefillsMin(t *testing.T) {
	p, f := newPool(t, Options{Min: 2, Max: 3})
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))

	created, _ := f.counts()
	assert.Equal(t, 2, created)
	assert.Equal(t, Stats{Size: 2, Idle: 2}, p.Stats())
}

func TestStartCountsItemsBeingCreated(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Min: 1, Max: 1})
	f.gate()

	acquired := make(chan *resource, 1)
	go func() {
		r, err := p.Acquire(ctx)
		assert.NoError(t, err)
		acquired <- r
	}()
	<-f.entered

	require.NoError(t, p.Start(ctx))
	assert.Equal(t, 1, p.Stats().Size)

	close(f.block)
	r := <-acquired
	require.NoError(t, p.Release(r))
	require.NoError(t, p.Start(ctx))

	created, _ := f.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, Stats{Size: 1, Idle: 1}, p.Stats())
}

func TestEvictKeepsMin(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Min: 1, Max: 3, IdleTimeout: time.Minute})

	var items []*resource
	for range 3 {
		r, err := p.Acquire(ctx)
		require.NoError(t, err)
		items = append(items, r)
	}
	for _, r := range items {
		require.NoError(t, p.Release(r))
	}

	assert.Zero(t, p.evict(time.Now()), "nothing is idle long enough yet")
	assert.Equal(t, 2, p.evict(time.Now().Add(2*time.Minute)))
	assert.Equal(t, Stats{Size: 1, Idle: 1}, p.Stats())

	f.mu.Lock()
	assert.Equal(t, []int{1, 2}, f.destroyed, "oldest idle items go first")
	f.mu.Unlock()

	p.mu.Lock()
	for _, it := range p.idle[len(p.idle):cap(p.idle)] {
		assert.Nil(t, it.item, "evicted items are not retained by the idle slice")
	}
	p.mu.Unlock()
}

func TestEvictionLoop(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 1, IdleTimeout: time.Millisecond, EvictionInterval: 5 * time.Millisecond})

	r, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(r))

	require.Eventually(t, func() bool {
		_, destroyed := f.counts()
		return destroyed == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Stats().Size)
}

func TestDrainWaitsForCheckedOutItems(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 2})

	idle, err := p.Acquire(ctx)
	require.NoError(t, err)
	busy, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Release(idle))

	done := make(chan error, 1)
	go func() { done <- p.Drain(ctx) }()

	select {
	case <-done:
		t.Fatal("drain returned while an item was checked out")
	case <-time.After(20 * time.Millisecond):
	}

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, p.Release(busy))
	require.NoError(t, <-done)

	created, destroyed := f.counts()
	assert.Equal(t, created, destroyed)
	assert.Equal(t, Stats{}, p.Stats())
}

func TestDrainWaitsForItemsBeingCreated(t *testing.T) {
	ctx := context.Background()
	p, f := newPool(t, Options{Max: 1})
	f.gate()

	acquired := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		acquired <- err
	}()
	<-f.entered

	done := make(chan error, 1)
	go func() { done <- p.Drain(ctx) }()

	select {
	case <-done:
		t.Fatal("drain returned while an item was being created")
	case <-time.After(20 * time.Millisecond):
	}
	require.Eventually(t, p.isClosed, time.Second, time.Millisecond)

	close(f.block)
	require.ErrorIs(t, <-acquired, ErrClosed)
	require.NoError(t, <-done)

	created, destroyed := f.counts()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, Stats{}, p.Stats())
}

func TestDrainTimesOut(t *testing.T) {
	p, _ := newPool(t, Options{Max: 1})
	r, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.Drain(ctx), context.DeadlineExceeded)
	require.NoError(t, p.Destroy(r))
}
