package deepzoom

// TransformEvent is one pan/zoom/rotate update from the external
// gesture/interaction layer. Events arrive tens of times per second
// during a continuous gesture.
type TransformEvent struct {
	// Scale is the target zoom factor relative to native resolution.
	// Valid only when HasScale is true; a pan-only event leaves the
	// current scale untouched.
	Scale float64

	// HasScale reports whether Scale carries a value.
	HasScale bool

	// About is the pivot point of the gesture in world space. It doubles
	// as the interaction focus for load prioritization: tiles nearest to
	// it load first.
	About Point

	// Fast marks a mid-gesture event. While Fast events stream in, tile
	// load dispatch is throttled to one attempt per three events so the
	// network is not saturated during a continuous gesture. A non-fast
	// (settled) event resets the throttle and triggers a full
	// re-evaluation.
	Fast bool
}
