package segment

import "github.com/MrWong99/zentra/pkg/audio"

// Ring is the pre-roll window: the most recent frames seen before speech
// was confirmed. Its total sample count never exceeds the budget; the oldest
// frames are evicted first and a single oversized frame keeps only its
// newest samples.
type Ring struct {
	frames  []audio.Frame
	samples int
	budget  int
}

// NewRing creates a ring holding at most budget samples.
func NewRing(budget int) *Ring {
	return &Ring{budget: max(0, budget)}
}

// SetBudget changes the capacity, evicting immediately if needed.
func (r *Ring) SetBudget(budget int) {
	r.budget = max(0, budget)
	r.evict()
}

// Budget returns the capacity in samples.
func (r *Ring) Budget() int { return r.budget }

// Samples returns the number of buffered samples.
func (r *Ring) Samples() int { return r.samples }

// Len returns the number of buffered frames.
func (r *Ring) Len() int { return len(r.frames) }

// Push appends f and evicts the oldest audio beyond the budget.
func (r *Ring) Push(f audio.Frame) {
	if len(f.Samples) == 0 {
		return
	}
	r.frames = append(r.frames, f)
	r.samples += len(f.Samples)
	r.evict()
}

func (r *Ring) evict() {
	for r.samples > r.budget && len(r.frames) > 0 {
		head := r.frames[0]
		excess := r.samples - r.budget
		if excess >= len(head.Samples) {
			r.frames[0] = audio.Frame{}
			r.frames = r.frames[1:]
			r.samples -= len(head.Samples)
			continue
		}
		head.Timestamp += audio.SamplesDuration(excess, head.SampleRate)
		head.Samples = head.Samples[excess:]
		r.frames[0] = head
		r.samples -= excess
	}
}

// Drain returns the buffered frames oldest first and empties the ring.
func (r *Ring) Drain() []audio.Frame {
	out := r.frames
	r.frames = nil
	r.samples = 0
	return out
}

// Reset discards all buffered frames.
func (r *Ring) Reset() {
	r.frames = nil
	r.samples = 0
}
