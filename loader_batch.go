package deepzoom

import (
	"context"

	"github.com/gogpu/deepzoom/internal/imageio"
	"github.com/gogpu/deepzoom/tilecache"
)

// DefaultBatchSize is the number of requests a loader executes per
// LoadAll round before yielding back to the host thread.
const DefaultBatchSize = 6

// BatchLoader executes tile loads in-process, a bounded batch per round.
//
// The pending queue is ordered farthest-to-nearest from the interaction
// focus (the grid appends in that order), and the loader consumes from
// the end, so the nearest tiles load first. Remaining work after a batch
// stays queued; the controller's Update pumps the next round.
//
// BatchLoader is confined to the controller goroutine.
type BatchLoader struct {
	cache     *tilecache.Cache
	fetch     Fetcher
	complete  CompletionFunc
	batchSize int

	pending   []TileRequest
	scheduled map[string]struct{}
	destroyed bool
}

// BatchOption configures a BatchLoader.
type BatchOption func(*BatchLoader)

// WithBatchSize bounds the number of requests per LoadAll round.
func WithBatchSize(n int) BatchOption {
	return func(l *BatchLoader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// NewBatchLoader creates an in-process loader. Results are delivered to
// complete synchronously from LoadOne/LoadAll.
func NewBatchLoader(cache *tilecache.Cache, fetch Fetcher, complete CompletionFunc, opts ...BatchOption) *BatchLoader {
	l := &BatchLoader{
		cache:     cache,
		fetch:     fetch,
		complete:  complete,
		batchSize: DefaultBatchSize,
		scheduled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Schedule queues a tile. Returns false if the loader is destroyed, the
// url is already queued, or the url is already loaded in the live cache.
func (l *BatchLoader) Schedule(url string, col, row int) bool {
	if l.destroyed {
		return false
	}
	if _, ok := l.scheduled[url]; ok {
		return false
	}
	if _, ok := l.cache.Lookup(url); ok {
		return false
	}
	l.scheduled[url] = struct{}{}
	l.pending = append(l.pending, TileRequest{URL: url, Col: col, Row: row})
	return true
}

// LoadOne executes the single nearest pending request.
func (l *BatchLoader) LoadOne() {
	if l.destroyed || len(l.pending) == 0 {
		return
	}
	req := l.pending[len(l.pending)-1]
	l.pending = l.pending[:len(l.pending)-1]
	l.process(req)
}

// LoadAll executes up to the batch bound of pending requests, nearest
// first, re-queuing the remainder.
func (l *BatchLoader) LoadAll() {
	for i := 0; i < l.batchSize; i++ {
		if l.destroyed || len(l.pending) == 0 {
			return
		}
		l.LoadOne()
	}
}

// process resolves one request: reuse a live resource, rescue a warm or
// late one, or issue new fetch/decode work.
func (l *BatchLoader) process(req TileRequest) {
	delete(l.scheduled, req.URL)

	if s, ok := l.cache.Lookup(req.URL); ok {
		l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Surface: s})
		return
	}
	if s, ok := l.cache.TakeWarm(req.URL); ok {
		l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Surface: s})
		return
	}

	buf, err := l.fetch(context.Background(), req.URL)
	if err != nil {
		l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Err: err})
		return
	}
	img, err := imageio.Decode(buf)
	if err != nil {
		l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Err: err})
		return
	}
	l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Image: img})
}

// Cancel clears the pending queue. There is no in-flight work to spare:
// the batch loader completes synchronously.
func (l *BatchLoader) Cancel() {
	for _, req := range l.pending {
		delete(l.scheduled, req.URL)
	}
	l.pending = l.pending[:0]
}

// Destroy cancels pending work and renders the loader permanently inert.
func (l *BatchLoader) Destroy() {
	l.Cancel()
	l.destroyed = true
}

// Pending returns the number of queued requests.
func (l *BatchLoader) Pending() int { return len(l.pending) }
