package geo

import "math"

// Interpolation is the result of projecting elapsed travel time onto a
// route.
type Interpolation struct {
	Position Position
	// Speed is the instantaneous speed in km/h of the current segment.
	Speed float64
	// Passed lists the breakpoints completed since the previous call, for
	// distance and emission accounting.
	Passed []Breakpoint
	// Remaining starts at the segment currently being traversed. Nil when
	// the route is finished.
	Remaining []Breakpoint
}

// Done reports whether the route has been fully traversed.
func (i Interpolation) Done() bool { return len(i.Remaining) == 0 }

// Interpolate returns the position along the remaining breakpoints of a
// route started at startedMs, observed at nowMs. A start stamp in the
// future (a clock reset) yields the first point unmoved. Past the final
// breakpoint it yields that point with speed 0 and no remaining points.
func Interpolate(startedMs, nowMs int64, remaining []Breakpoint) Interpolation {
	if len(remaining) == 0 {
		return Interpolation{}
	}
	if startedMs > nowMs {
		return Interpolation{
			Position:  remaining[0].Position,
			Speed:     0,
			Remaining: remaining,
		}
	}
	elapsed := float64(nowMs-startedMs) / 1000

	idx := -1
	for i, p := range remaining {
		if p.Passed+p.Duration > elapsed {
			idx = i
			break
		}
	}
	last := remaining[len(remaining)-1]
	if idx == -1 || idx == len(remaining)-1 {
		// Reached the end of the route.
		passed := remaining
		if idx == len(remaining)-1 {
			passed = remaining[:idx]
		}
		return Interpolation{Position: last.Position, Speed: 0, Passed: passed}
	}

	current, next := remaining[idx], remaining[idx+1]
	progress := 0.0
	if current.Duration > 0 {
		progress = (elapsed - current.Passed) / current.Duration
	}
	speed := 0.0
	if current.Duration > 0 {
		speed = math.Round(current.Meters / 1000 / (current.Duration / 60 / 60))
	}
	pos := Position{
		Lon: current.Position.Lon + (next.Position.Lon-current.Position.Lon)*progress,
		Lat: current.Position.Lat + (next.Position.Lat-current.Position.Lat)*progress,
	}
	return Interpolation{
		Position:  pos,
		Speed:     speed,
		Passed:    remaining[:idx],
		Remaining: remaining[idx:],
	}
}
