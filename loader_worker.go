package deepzoom

import (
	"context"
	"image"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gogpu/deepzoom/internal/imageio"
	"github.com/gogpu/deepzoom/tilecache"
)

// Background loader message commands.
const (
	commandLoad  = "load"
	commandAbort = "abort"
)

// loadCommand is the message sent to the background workers.
type loadCommand struct {
	Command string
	Tiles   []loadTile
}

// loadTile is one (col, row, url) triple of a load command.
type loadTile struct {
	Col int
	Row int
	URL string
}

// loadResultMsg is the message coming back from the background workers.
type loadResultMsg struct {
	Success bool
	URL     string
	Col     int
	Row     int
	Buffer  []byte

	img *image.RGBA
	err error
}

// WorkerLoader offloads tile fetch and decode to background goroutines.
//
// Requests go out as load commands over a channel; a dispatch goroutine
// fans them out to a bounded errgroup of workers. Concurrent fetches of
// the same url are collapsed through singleflight. Results come back
// over a channel that the controller drains on its own goroutine every
// Update, so no cache or grid state is ever mutated from a background
// context.
//
// Destroy sends an abort instruction; results that race the abort are
// delivered with Late set and end up parked in the cache's late table.
type WorkerLoader struct {
	cache     *tilecache.Cache
	fetch     Fetcher
	complete  CompletionFunc
	batchSize int

	pending   []TileRequest
	scheduled map[string]struct{}

	commands chan loadCommand
	results  chan loadResultMsg

	cancel    context.CancelFunc
	sf        singleflight.Group
	destroyed atomic.Bool
}

// WorkerOption configures a WorkerLoader.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	workers   int
	batchSize int
	queueSize int
}

// WithWorkers sets the number of concurrent fetch/decode workers.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithWorkerBatchSize bounds the number of requests issued per LoadAll
// round.
func WithWorkerBatchSize(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// NewWorkerLoader creates a background loader. Results are buffered
// until the controller drains them via Update.
func NewWorkerLoader(cache *tilecache.Cache, fetch Fetcher, complete CompletionFunc, opts ...WorkerOption) *WorkerLoader {
	cfg := workerConfig{
		workers:   runtime.GOMAXPROCS(0),
		batchSize: DefaultBatchSize,
		queueSize: 64,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &WorkerLoader{
		cache:     cache,
		fetch:     fetch,
		complete:  complete,
		batchSize: cfg.batchSize,
		scheduled: make(map[string]struct{}),
		commands:  make(chan loadCommand, cfg.queueSize),
		results:   make(chan loadResultMsg, cfg.queueSize),
		cancel:    cancel,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.workers)
	go l.dispatch(gctx, group)
	return l
}

// dispatch is the background command loop: it fans load commands out to
// the worker group and terminates on abort.
func (l *WorkerLoader) dispatch(ctx context.Context, group *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.commands:
			if cmd.Command == commandAbort {
				l.cancel()
				return
			}
			for _, tile := range cmd.Tiles {
				t := tile
				group.Go(func() error {
					l.load(ctx, t)
					return nil
				})
			}
		}
	}
}

// load runs on a worker goroutine: fetch (deduplicated) and decode one
// tile, then post the result. Posts are dropped once the context is
// cancelled so workers never block on a dead results channel.
func (l *WorkerLoader) load(ctx context.Context, t loadTile) {
	var msg loadResultMsg
	msg.URL = t.URL
	msg.Col = t.Col
	msg.Row = t.Row

	v, err, _ := l.sf.Do(t.URL, func() (any, error) {
		return l.fetch(ctx, t.URL)
	})
	if err != nil {
		msg.err = err
	} else {
		msg.Buffer = v.([]byte)
		img, derr := imageio.Decode(msg.Buffer)
		if derr != nil {
			msg.err = derr
		} else {
			msg.Success = true
			msg.img = img
		}
	}

	select {
	case l.results <- msg:
	case <-ctx.Done():
	}
}

// Schedule queues a tile. Returns false if the loader is destroyed, the
// url is already queued or in flight, or the url is already loaded in
// the live cache.
func (l *WorkerLoader) Schedule(url string, col, row int) bool {
	if l.destroyed.Load() {
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

// LoadOne issues the single nearest pending request.
func (l *WorkerLoader) LoadOne() {
	l.issue(1)
}

// LoadAll issues pending requests up to the batch bound, nearest first.
func (l *WorkerLoader) LoadAll() {
	l.issue(l.batchSize)
}

// issue resolves up to n requests from the near end of the queue:
// reusable resources complete immediately, the rest go out as one load
// command.
func (l *WorkerLoader) issue(n int) {
	if l.destroyed.Load() {
		return
	}

	var tiles []loadTile
	for len(tiles) < n && len(l.pending) > 0 {
		req := l.pending[len(l.pending)-1]
		l.pending = l.pending[:len(l.pending)-1]

		if s, ok := l.cache.Lookup(req.URL); ok {
			delete(l.scheduled, req.URL)
			l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Surface: s})
			continue
		}
		if s, ok := l.cache.TakeWarm(req.URL); ok {
			delete(l.scheduled, req.URL)
			l.complete(LoadResult{URL: req.URL, Col: req.Col, Row: req.Row, Surface: s})
			continue
		}
		tiles = append(tiles, loadTile{Col: req.Col, Row: req.Row, URL: req.URL})
	}
	if len(tiles) == 0 {
		return
	}

	select {
	case l.commands <- loadCommand{Command: commandLoad, Tiles: tiles}:
	default:
		// Command queue full; put the work back for the next round.
		for _, t := range tiles {
			l.pending = append(l.pending, TileRequest{URL: t.URL, Col: t.Col, Row: t.Row})
		}
	}
}

// Drain delivers up to max buffered results to the completion callback.
// Runs on the controller goroutine. max <= 0 drains everything
// currently available.
func (l *WorkerLoader) Drain(max int) int {
	late := l.destroyed.Load()
	delivered := 0
	for max <= 0 || delivered < max {
		select {
		case msg := <-l.results:
			delete(l.scheduled, msg.URL)
			res := LoadResult{URL: msg.URL, Col: msg.Col, Row: msg.Row, Late: late}
			if msg.Success {
				res.Image = msg.img
			} else {
				res.Err = msg.err
			}
			l.complete(res)
			delivered++
		default:
			return delivered
		}
	}
	return delivered
}

// Cancel clears the pending queue without affecting in-flight work;
// results of work already issued are still delivered normally.
func (l *WorkerLoader) Cancel() {
	for _, req := range l.pending {
		delete(l.scheduled, req.URL)
	}
	l.pending = l.pending[:0]
}

// Destroy sends the abort instruction and renders the loader inert.
// Buffered results are drained immediately as Late so the cache can
// absorb them; stragglers blocked behind the abort are dropped by the
// workers themselves.
func (l *WorkerLoader) Destroy() {
	if l.destroyed.Swap(true) {
		return
	}
	l.Cancel()

	select {
	case l.commands <- loadCommand{Command: commandAbort}:
	default:
		l.cancel()
	}

	l.Drain(0)
}

// Pending returns the number of queued (not yet issued) requests.
func (l *WorkerLoader) Pending() int { return len(l.pending) }
