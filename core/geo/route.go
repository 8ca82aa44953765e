package geo

// Route is a timed polyline as returned by the routing collaborator.
// Durations and Distances annotate the segment leaving each coordinate;
// the final coordinate carries no segment.
type Route struct {
	Coordinates []Position
	// Durations holds seconds per segment, Distances meters per segment.
	Durations []float64
	Distances []float64
	// Duration is the total travel time in seconds.
	Duration float64
}

// Breakpoint is one coordinate of a route annotated with the cumulative
// time and distance needed to reach it.
type Breakpoint struct {
	Position Position
	// Meters and Duration describe the segment leaving this point.
	Meters   float64
	Duration float64
	// Passed and Distance are cumulative at this point.
	Passed   float64
	Distance float64
}

// speedFactor compresses travel times uniformly. The road network data
// underestimates achievable speeds, which otherwise starves vehicles that
// must reach a first stop on time.
const speedFactor = 1.4

// Breakpoints expands a route into interpolation breakpoints with
// cumulative duration and distance.
func Breakpoints(r *Route) []Breakpoint {
	if r == nil || len(r.Coordinates) == 0 {
		return nil
	}
	points := make([]Breakpoint, len(r.Coordinates))
	var passed, distance float64
	for i, pos := range r.Coordinates {
		var meters, duration float64
		if i < len(r.Durations) {
			duration = r.Durations[i] / speedFactor
		}
		if i < len(r.Distances) {
			meters = r.Distances[i]
		}
		points[i] = Breakpoint{
			Position: pos,
			Meters:   meters,
			Duration: duration,
			Passed:   passed,
			Distance: distance,
		}
		passed += duration
		distance += meters
	}
	return points
}
