package telearm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReachable(t *testing.T) {
	tests := []struct {
		name string
		pose CartesianPose
		want bool
	}{
		{
			name: "known in-workspace pose",
			pose: CartesianPose{X: 0.15, Y: 0, Z: 0.35},
			want: true,
		},
		{
			name: "far below base",
			pose: CartesianPose{X: 0, Y: 0, Z: -5},
			want: false,
		},
		{
			name: "beyond full extension",
			pose: CartesianPose{X: 1.0, Y: 0, Z: 0.2},
			want: false,
		},
		{
			name: "presets are all reachable",
			pose: PresetPoses["rest"],
			want: true,
		},
		{
			name: "off-axis reachable pose",
			pose: CartesianPose{X: 0.1, Y: 0.1, Z: 0.3},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reachable(tt.pose))
		})
	}
}

func TestReachableBoundary(t *testing.T) {
	// Full extension straight up: wrist center at the rim of the
	// workspace annulus, so d sits at 1. Built a hair inside the rim
	// so float rounding cannot tip d past the strict gate.
	p := CartesianPose{
		X:     0,
		Y:     0,
		Z:     LinkBaseHeight + LinkUpperArm + LinkForearm + LinkWrist - 1e-9,
		Pitch: math.Pi / 2,
	}

	_, _, d := planarReduction(p)
	assert.InDelta(t, 1.0, d, 1e-6)
	assert.True(t, Reachable(p))

	// A hair beyond the rim fails the gate even though Inverse would
	// clamp and still produce angles.
	p.Z += 0.001
	assert.False(t, Reachable(p))
	for _, q := range Inverse(p) {
		assert.False(t, math.IsNaN(q))
	}
}

func TestInverseProducesFiniteAngles(t *testing.T) {
	poses := []CartesianPose{
		{X: 0.15, Y: 0, Z: 0.35},
		{X: 0.2, Y: 0.1, Z: 0.25, Roll: 0.3, Pitch: -0.4},
		{X: 0.1, Y: -0.15, Z: 0.2, Pitch: -math.Pi / 2},
		PresetPoses["home"],
		PresetPoses["rest"],
		PresetPoses["extended"],
	}

	for _, p := range poses {
		require.True(t, Reachable(p), "test pose must be reachable: %+v", p)
		angles := Inverse(p)
		for i, q := range angles {
			assert.False(t, math.IsNaN(q), "joint %d is NaN for pose %+v", i+1, p)
			assert.False(t, math.IsInf(q, 0), "joint %d is Inf for pose %+v", i+1, p)
		}
	}
}

func TestInverseGeometry(t *testing.T) {
	p := CartesianPose{X: 0.12, Y: 0.09, Z: 0.3, Roll: 0.25, Pitch: -0.5}
	require.True(t, Reachable(p))
	angles := Inverse(p)

	t.Run("base yaw follows atan2", func(t *testing.T) {
		assert.InDelta(t, radToDeg(math.Atan2(p.Y, p.X)), angles[0], 1e-9)
	})

	t.Run("wrist roll passes through", func(t *testing.T) {
		assert.InDelta(t, radToDeg(p.Roll), angles[4], 1e-9)
	})

	t.Run("elbow stays on the elbow-down branch", func(t *testing.T) {
		assert.LessOrEqual(t, angles[2], 0.0)
	})

	t.Run("chain closes to the commanded pitch", func(t *testing.T) {
		// q2 + q3 + q4 must equal pitch exactly by construction.
		sum := degToRad(angles[1]) + degToRad(angles[2]) + degToRad(angles[3])
		assert.InDelta(t, p.Pitch, sum, 1e-9)
	})
}

func TestInverseDeterministic(t *testing.T) {
	p := CartesianPose{X: 0.18, Y: -0.05, Z: 0.28, Pitch: 0.2}
	assert.Equal(t, Inverse(p), Inverse(p))
}

func TestValidateWaypoints(t *testing.T) {
	good := []CartesianPose{
		{X: 0.15, Y: 0, Z: 0.35},
		{X: 0.16, Y: 0, Z: 0.34},
	}
	assert.NoError(t, ValidateWaypoints(good))
	assert.NoError(t, ValidateWaypoints(nil))

	bad := append(append([]CartesianPose{}, good...), CartesianPose{X: 0, Y: 0, Z: -5})
	err := ValidateWaypoints(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "waypoint 3 of 3")
}

func TestWithinLimits(t *testing.T) {
	assert.True(t, WithinLimits(JointAngles{0, 45, -90, 30, 120}))
	assert.False(t, WithinLimits(JointAngles{0, 95, -90, 30, 0}), "shoulder past travel")
	assert.False(t, WithinLimits(JointAngles{0, 45, 10, 30, 0}), "elbow above the elbow-down branch")
}
