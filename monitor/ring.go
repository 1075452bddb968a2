package monitor

import "time"

// point is one timestamped sample.
type point struct {
	value float64
	at    time.Time
}

// ring is a fixed-capacity buffer that drops the oldest sample when full.
// Not goroutine-safe; the owner locks.
type ring struct {
	points []point
	head   int
	count  int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{points: make([]point, capacity)}
}

func (r *ring) add(p point) {
	idx := (r.head + r.count) % len(r.points)
	r.points[idx] = p
	if r.count < len(r.points) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.points)
	}
}

// snapshot returns samples oldest-first.
func (r *ring) snapshot() []point {
	out := make([]point, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.points[(r.head+i)%len(r.points)])
	}
	return out
}

// values returns sample values recorded at or after the cutoff.
func (r *ring) values(cutoff time.Time) []float64 {
	var out []float64
	for i := 0; i < r.count; i++ {
		p := r.points[(r.head+i)%len(r.points)]
		if !p.at.Before(cutoff) {
			out = append(out, p.value)
		}
	}
	return out
}

func (r *ring) len() int { return r.count }
