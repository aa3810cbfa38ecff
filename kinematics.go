package telearm

import (
	"math"

	"github.com/pkg/errors"
)

// planarReduction collapses the 5-DOF problem to a 2-link planar one.
// a is the horizontal distance from the shoulder axis to the wrist
// center, b the vertical distance, and d the cosine-law argument for
// the elbow angle. |d| <= 1 iff the wrist center lies inside the
// annulus reachable by the upper arm and forearm.
func planarReduction(p CartesianPose) (a, b, d float64) {
	a = math.Hypot(p.X, p.Y) - LinkWrist*math.Cos(p.Pitch)
	b = p.Z - LinkWrist*math.Sin(p.Pitch) - LinkBaseHeight
	d = (a*a + b*b - LinkUpperArm*LinkUpperArm - LinkForearm*LinkForearm) /
		(2 * LinkUpperArm * LinkForearm)
	return a, b, d
}

// Inverse maps an end-effector pose to joint angles in degrees.
//
// The cosine-law argument is clamped to [-1, 1] before the inverse-trig
// step, so poses barely past the workspace boundary solve to the nearest
// boundary configuration instead of producing NaN. Reachable remains the
// authoritative feasibility gate; callers must not rely on the clamp to
// reject targets.
//
// Only the elbow-down branch is produced: q3 is fixed non-positive, so
// a given pose always yields the same configuration.
func Inverse(p CartesianPose) JointAngles {
	q1 := math.Atan2(p.Y, p.X)
	q5 := p.Roll

	a, b, d := planarReduction(p)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}

	q3 := -math.Atan2(math.Sqrt(1-d*d), d)
	q2 := math.Atan2(b, a) - math.Atan2(LinkForearm*math.Sin(q3), LinkUpperArm+LinkForearm*math.Cos(q3))
	// Close the chain so the commanded pitch is met exactly.
	q4 := p.Pitch - q2 - q3

	return JointAngles{
		radToDeg(q1),
		radToDeg(q2),
		radToDeg(q3),
		radToDeg(q4),
		radToDeg(q5),
	}
}

// Reachable reports whether the pose lies inside the arm's workspace.
// This is the single source of truth for feasibility: strict, with no
// clamping, and must pass before a target or planned waypoint is
// accepted. Poses exactly on the workspace boundary (|d| == 1) are
// reachable.
func Reachable(p CartesianPose) bool {
	_, _, d := planarReduction(p)
	return math.Abs(d) <= 1
}

// WithinLimits reports whether derived joint angles fall inside the
// per-joint travel limits. A reachable pose near the workspace rim can
// still push a joint past its travel; callers treat this as advisory.
func WithinLimits(angles JointAngles) bool {
	for i, a := range angles {
		if a < jointLimitsDeg[i][0] || a > jointLimitsDeg[i][1] {
			return false
		}
	}
	return true
}

// ValidateWaypoints checks every waypoint of a planned trajectory and
// fails on the first infeasible one. Trajectories are accepted or
// rejected wholesale; a partial trajectory is never started.
func ValidateWaypoints(waypoints []CartesianPose) error {
	for i, wp := range waypoints {
		if !Reachable(wp) {
			return errors.Errorf("waypoint %d of %d is out of reach: (%.3f, %.3f, %.3f)",
				i+1, len(waypoints), wp.X, wp.Y, wp.Z)
		}
	}
	return nil
}
