package telearm

import (
	"sync"

	"github.com/pkg/errors"
)

// CartesianPose describes the end effector in the arm's base frame.
// X, Y, Z are meters; Roll and Pitch are radians. Degrees appear only
// at the wire/UI boundary and are converted explicitly there.
type CartesianPose struct {
	X     float64
	Y     float64
	Z     float64
	Roll  float64
	Pitch float64
}

// JointAngles holds the five arm joint values in degrees, servo order.
// Joint angles are always derived from a CartesianPose by the solver,
// never authored directly.
type JointAngles [NumJoints]float64

// Source identifies which authority wrote a pose into the model.
type Source int

const (
	SourceUser Source = iota
	SourcePreset
	SourceRemote
	SourceExecutor
)

func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourcePreset:
		return "preset"
	case SourceRemote:
		return "remote"
	case SourceExecutor:
		return "executor"
	default:
		return "unknown"
	}
}

// PoseObserver is notified synchronously after every accepted pose write.
type PoseObserver func(pose CartesianPose, angles JointAngles, src Source)

// PoseModel is the single mutable pose/joint-angle state for one arm.
// Writes are serialized by an internal mutex; at any instant there is
// exactly one writer. Interactive edits during trajectory playback are
// additionally gated by the caller, since the executor owns the model
// while Executing.
type PoseModel struct {
	mu        sync.Mutex
	pose      CartesianPose
	angles    JointAngles
	observers map[int]PoseObserver
	nextID    int
}

// NewPoseModel creates a pose model seeded with the given pose. The
// seed is applied through the solver so angles start consistent.
func NewPoseModel(seed CartesianPose) *PoseModel {
	m := &PoseModel{observers: make(map[int]PoseObserver)}
	m.pose = seed
	m.angles = Inverse(seed)
	return m
}

// Pose returns the current end-effector pose.
func (m *PoseModel) Pose() CartesianPose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pose
}

// Angles returns the current derived joint angles in degrees.
func (m *PoseModel) Angles() JointAngles {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.angles
}

// Set writes a new pose, recomputes joint angles through the solver and
// notifies observers synchronously. Callers that accept external input
// must gate with Reachable (or use SetChecked) before writing.
func (m *PoseModel) Set(pose CartesianPose, src Source) {
	m.mu.Lock()
	m.pose = pose
	m.angles = Inverse(pose)
	angles := m.angles
	obs := make([]PoseObserver, 0, len(m.observers))
	for _, fn := range m.observers {
		obs = append(obs, fn)
	}
	m.mu.Unlock()

	for _, fn := range obs {
		fn(pose, angles, src)
	}
}

// SetChecked is the gated variant of Set used by direct (uninterpolated)
// moves. It applies the same reachability policy as the planned path:
// unreachable targets are rejected before any mutation.
func (m *PoseModel) SetChecked(pose CartesianPose, src Source) error {
	if !Reachable(pose) {
		return errors.Errorf("pose (%.3f, %.3f, %.3f) is out of reach", pose.X, pose.Y, pose.Z)
	}
	m.Set(pose, src)
	return nil
}

// Subscribe registers an observer and returns its id for Unsubscribe.
func (m *PoseModel) Subscribe(fn PoseObserver) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	return id
}

// Unsubscribe removes a previously registered observer.
func (m *PoseModel) Unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.observers, id)
}
