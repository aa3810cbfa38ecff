package telearm

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func newTestExecutor(t *testing.T, rateHz int, stepSize float64) (*Executor, *PoseModel) {
	t.Helper()
	model := NewPoseModel(PresetPoses["home"])
	return NewExecutor(model, rateHz, stepSize, degToRad(5), logging.NewTestLogger(t)), model
}

func TestExecutorRejectsUnreachableTarget(t *testing.T) {
	ex, model := newTestExecutor(t, 50, 0.01)
	seed := model.Pose()

	var applied atomic.Int64
	model.Subscribe(func(CartesianPose, JointAngles, Source) { applied.Add(1) })

	err := ex.Start(CartesianPose{X: 0, Y: 0, Z: -5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of reach")

	// Validation happens before any state change: nothing moved.
	assert.Equal(t, StateIdle, ex.State())
	assert.Equal(t, seed, model.Pose())
	assert.Zero(t, applied.Load())
}

func TestExecutorSatisfiedTargetIsNoOp(t *testing.T) {
	ex, model := newTestExecutor(t, 50, 0.01)

	require.NoError(t, ex.Start(model.Pose()))
	assert.Equal(t, StateIdle, ex.State())
}

func TestExecutorRunsToCompletion(t *testing.T) {
	ex, model := newTestExecutor(t, 50, 0.05)
	target := PresetPoses["extended"]

	require.NoError(t, ex.Start(target))
	assert.Equal(t, StateExecuting, ex.State())

	require.Eventually(t, func() bool {
		return ex.State() == StateIdle
	}, 2*time.Second, 5*time.Millisecond)

	// The final waypoint is exactly the target.
	assert.Equal(t, target, model.Pose())

	hist := ex.History()
	require.NotEmpty(t, hist)
	assert.Equal(t, target, hist[len(hist)-1])
}

func TestExecutorCancelStopsPlayback(t *testing.T) {
	ex, model := newTestExecutor(t, 50, 0.002)
	target := PresetPoses["extended"]

	var applied atomic.Int64
	model.Subscribe(func(CartesianPose, JointAngles, Source) { applied.Add(1) })

	require.NoError(t, ex.Start(target))
	require.Eventually(t, func() bool {
		return applied.Load() >= 2
	}, 2*time.Second, time.Millisecond)

	ex.Cancel()
	assert.Equal(t, StateIdle, ex.State())

	// Once Cancel returns no further waypoint applies.
	count := applied.Load()
	pose := model.Pose()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, count, applied.Load())
	assert.Equal(t, pose, model.Pose())
	assert.NotEqual(t, target, model.Pose())
}

func TestExecutorCancelWhileIdleIsNoOp(t *testing.T) {
	ex, _ := newTestExecutor(t, 50, 0.01)
	ex.Cancel()
	assert.Equal(t, StateIdle, ex.State())
}

func TestExecutorRestartSupersedesRunningPlayback(t *testing.T) {
	ex, model := newTestExecutor(t, 50, 0.002)
	first := PresetPoses["extended"]
	second := PresetPoses["rest"]

	require.NoError(t, ex.Start(first))
	require.Eventually(t, func() bool {
		idx, _ := ex.Progress()
		return idx >= 2
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, ex.Start(second))

	require.Eventually(t, func() bool {
		return ex.State() == StateIdle
	}, 10*time.Second, 5*time.Millisecond)
	assert.Equal(t, second, model.Pose())
}

func TestExecutorProgressWhileIdle(t *testing.T) {
	ex, _ := newTestExecutor(t, 50, 0.01)
	idx, total := ex.Progress()
	assert.Zero(t, idx)
	assert.Zero(t, total)
}
