package deepzoom

import (
	"image"

	"github.com/gogpu/deepzoom/surface"
)

// TileRequest is one tile load request handed to a Loader. Col and Row
// are grid-local coordinates; URL is the identity of the tile.
type TileRequest struct {
	URL string
	Col int
	Row int
}

// LoadResult is the outcome of one tile load, delivered on the
// controller goroutine.
//
// Exactly one of Surface, Image, or Err is set on a normal completion:
// Surface when an existing resource was reused from the live tile set or
// the warm pool, Image when fresh pixels were fetched and decoded, Err
// when the fetch or decode failed.
type LoadResult struct {
	URL string
	Col int
	Row int

	// Surface is a reused, already cache-owned surface.
	Surface surface.Surface

	// Image holds freshly decoded pixels not yet bound to a surface.
	Image *image.RGBA

	// Err is the fetch/decode failure, if any.
	Err error

	// Late marks a result that arrived after the loader was destroyed.
	// Late results must be absorbed (parked in the cache's late table),
	// never applied to a grid.
	Late bool
}

// CompletionFunc receives load results. Implementations run on the
// controller goroutine and must not block.
type CompletionFunc func(LoadResult)

// Loader schedules, deduplicates, and executes tile loads for one level
// grid.
//
// Two implementations are provided: BatchLoader runs fetches in-process
// a bounded batch at a time, WorkerLoader offloads fetch and decode to
// background goroutines and marshals results back through Drain.
type Loader interface {
	// Schedule queues a tile. It returns false, and queues nothing, if
	// the url is already loaded or in flight; the caller must not
	// re-request it.
	Schedule(url string, col, row int) bool

	// LoadOne executes the single nearest pending request.
	LoadOne()

	// LoadAll executes pending requests, nearest first, up to the
	// loader's batch bound. Remaining work stays queued for the next
	// round so the host thread is not starved.
	LoadAll()

	// Cancel clears the pending queue without affecting in-flight work.
	Cancel()

	// Destroy is terminal: it cancels pending work, aborts background
	// work, and renders the loader permanently inert. Results that race
	// the abort are delivered with Late set.
	Destroy()

	// Pending returns the number of queued (not yet issued) requests.
	Pending() int
}

// resultDrainer is implemented by loaders that complete work on
// background goroutines; the controller drains them every Update.
type resultDrainer interface {
	// Drain delivers up to max completed results to the completion
	// callback and returns how many were delivered. max <= 0 drains
	// everything currently available.
	Drain(max int) int
}
