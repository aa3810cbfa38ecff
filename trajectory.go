package telearm

import (
	"math"

	"github.com/golang/geo/r3"
)

// epsMotion is the translation/orientation threshold below which a move
// is treated as degenerate.
const epsMotion = 1e-6

// GenerateLinear produces the ordered waypoint sequence for a straight
// Cartesian move from start to end. stepSize is the translation spacing
// in meters, orientationStep the angular spacing in radians used when
// the move is orientation-only. The sequence is finite and immutable;
// re-planning means calling GenerateLinear again.
//
// An empty sequence means start and end coincide and the caller should
// treat the request as a no-op, not an error.
//
// Roll and pitch are blended per-axis linearly rather than through a
// rotation-aware interpolation. The wrist ranges stay small enough in
// practice that the error is negligible.
//
// The planner performs no feasibility checks; gating every waypoint
// through ValidateWaypoints is the caller's responsibility.
func GenerateLinear(start, end CartesianPose, stepSize, orientationStep float64) []CartesianPose {
	delta := r3.Vector{X: end.X - start.X, Y: end.Y - start.Y, Z: end.Z - start.Z}
	dist := delta.Norm()

	var n int
	if dist < epsMotion {
		maxOrient := math.Max(math.Abs(end.Roll-start.Roll), math.Abs(end.Pitch-start.Pitch))
		if maxOrient < epsMotion {
			return nil
		}
		n = stepCount(maxOrient, orientationStep)
	} else {
		n = stepCount(dist, stepSize)
	}

	waypoints := make([]CartesianPose, 0, n)
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		waypoints = append(waypoints, CartesianPose{
			X:     start.X + (end.X-start.X)*t,
			Y:     start.Y + (end.Y-start.Y)*t,
			Z:     start.Z + (end.Z-start.Z)*t,
			Roll:  start.Roll + (end.Roll-start.Roll)*t,
			Pitch: start.Pitch + (end.Pitch-start.Pitch)*t,
		})
	}
	return waypoints
}

func stepCount(span, step float64) int {
	n := int(math.Ceil(span / step))
	if n < 2 {
		n = 2
	}
	return n
}
