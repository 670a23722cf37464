package mapview

import (
	"context"
	"sync"
	"time"

	"github.com/halalchain/halalmap/internal/core/domain"
)

// DefaultDebounce is the quiet period before a filter change is fetched.
const DefaultDebounce = 300 * time.Millisecond

// Source supplies the entity snapshot for a filter.
type Source interface {
	Query(ctx context.Context, f domain.Filter) ([]domain.Restaurant, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, f domain.Filter) ([]domain.Restaurant, error)

func (fn SourceFunc) Query(ctx context.Context, f domain.Filter) ([]domain.Restaurant, error) {
	return fn(ctx, f)
}

// FetchResult is delivered on Loader.Results once a request completes.
type FetchResult struct {
	Seq         uint64
	Filter      domain.Filter
	Restaurants []domain.Restaurant
	Err         error
}

// Loader issues entity fetches tagged with increasing sequence numbers.
// Only the latest request is current; earlier in-flight requests have their
// context cancelled and, should they still complete, are reported with a
// stale sequence number so the consumer can discard them.
type Loader struct {
	source   Source
	debounce time.Duration
	timeout  time.Duration
	results  chan FetchResult
	done     chan struct{}

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

// NewLoader creates a loader. A non-positive debounce selects DefaultDebounce.
func NewLoader(source Source, debounce, timeout time.Duration) *Loader {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{
		source:   source,
		debounce: debounce,
		timeout:  timeout,
		results:  make(chan FetchResult, 4),
		done:     make(chan struct{}),
	}
}

// Results returns the channel completed fetches are delivered on.
func (l *Loader) Results() <-chan FetchResult {
	return l.results
}

// Request schedules a fetch for f after the debounce period. Calls made
// before the period elapses replace the pending filter.
func (l *Loader) Request(f domain.Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(l.debounce, func() { l.Issue(f) })
}

// Issue starts a fetch for f immediately and returns its sequence number.
func (l *Loader) Issue(f domain.Filter) uint64 {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0
	}
	if l.cancel != nil {
		l.cancel()
	}
	l.seq++
	seq := l.seq
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	l.cancel = cancel
	l.mu.Unlock()

	go l.run(ctx, cancel, seq, f)
	return seq
}

func (l *Loader) run(ctx context.Context, cancel context.CancelFunc, seq uint64, f domain.Filter) {
	defer cancel()

	rs, err := l.source.Query(ctx, f)
	if ctx.Err() == context.Canceled {
		// Superseded or closed.
		return
	}

	select {
	case l.results <- FetchResult{Seq: seq, Filter: f, Restaurants: rs, Err: err}:
	case <-l.done:
	}
}

// Latest returns the sequence number of the most recently issued request.
func (l *Loader) Latest() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// IsCurrent reports whether seq belongs to the most recent request.
func (l *Loader) IsCurrent(seq uint64) bool {
	return seq != 0 && seq == l.Latest()
}

// Close stops any pending timer, cancels the in-flight request and releases
// blocked deliveries. It is safe to call more than once.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.timer != nil {
		l.timer.Stop()
	}
	if l.cancel != nil {
		l.cancel()
	}
	close(l.done)
}
