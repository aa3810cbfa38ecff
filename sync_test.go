package telearm

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

// fakeTransport records every envelope handed to it.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []Envelope
	connected bool
}

func (f *fakeTransport) Send(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) byType(kind string) []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Envelope
	for _, env := range f.sent {
		if env.Type == kind {
			out = append(out, env)
		}
	}
	return out
}

type fakeSink struct {
	mu    sync.Mutex
	kinds []string
	vals  []float64
}

func (f *fakeSink) HandleCommand(kind string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	f.vals = append(f.vals, value)
}

func newTestChannel(t *testing.T, window time.Duration) (*SyncChannel, *PoseModel, *fakeTransport, *fakeSink) {
	t.Helper()
	model := NewPoseModel(PresetPoses["home"])
	tr := &fakeTransport{connected: true}
	sink := &fakeSink{}
	ch := NewSyncChannel(model, tr, sink, window, logging.NewTestLogger(t))
	t.Cleanup(ch.Close)
	return ch, model, tr, sink
}

func TestSyncChannelSendsJointAnglesImmediately(t *testing.T) {
	_, model, tr, _ := newTestChannel(t, 50*time.Millisecond)
	target := PresetPoses["extended"]

	model.Set(target, SourceUser)

	envs := tr.byType(MsgJointAngles)
	require.Len(t, envs, 1)

	var msg JointAnglesMessage
	require.NoError(t, json.Unmarshal(envs[0].Data, &msg))
	require.Len(t, msg.Joints, NumJoints)
	want := Inverse(target)
	for i, joint := range msg.Joints {
		assert.InDelta(t, want[i], joint, 1e-9)
	}
}

func TestSyncChannelDebouncesOutboundPose(t *testing.T) {
	_, model, tr, _ := newTestChannel(t, 20*time.Millisecond)

	// A burst of edits inside the window coalesces to one pose send
	// carrying the last value.
	model.Set(CartesianPose{X: 0.14, Z: 0.34}, SourceUser)
	model.Set(CartesianPose{X: 0.15, Z: 0.33}, SourceUser)
	last := CartesianPose{X: 0.16, Z: 0.32, Pitch: degToRad(10)}
	model.Set(last, SourceUser)

	require.Eventually(t, func() bool {
		return len(tr.byType(MsgPose)) > 0
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	envs := tr.byType(MsgPose)
	require.Len(t, envs, 1)

	var msg PoseMessage
	require.NoError(t, json.Unmarshal(envs[0].Data, &msg))
	assert.InDelta(t, last.X, msg.X, 1e-9)
	assert.InDelta(t, last.Z, msg.Z, 1e-9)
	// Degrees on the wire.
	assert.InDelta(t, 10.0, msg.Pitch, 1e-9)

	// Joint angles are not debounced: one per edit.
	assert.Len(t, tr.byType(MsgJointAngles), 3)
}

func TestSyncChannelSuppressesRemoteEcho(t *testing.T) {
	ch, model, tr, _ := newTestChannel(t, 10*time.Millisecond)
	ch.SetRemoteAuthority(true)

	remote := PoseMessage{X: 0.18, Y: 0.02, Z: 0.3, Roll: 0, Pitch: 5}
	data, err := json.Marshal(remote)
	require.NoError(t, err)
	ch.HandleInbound(Envelope{Type: MsgPose, Data: data})

	// The remote pose landed in the model.
	got := model.Pose()
	assert.InDelta(t, 0.18, got.X, 1e-9)
	assert.InDelta(t, degToRad(5), got.Pitch, 1e-9)

	// Joint angles still went out, but the pose never echoed back.
	assert.NotEmpty(t, tr.byType(MsgJointAngles))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, tr.byType(MsgPose))
}

func TestSyncChannelIgnoresInboundPoseWithoutAuthority(t *testing.T) {
	ch, model, _, _ := newTestChannel(t, 10*time.Millisecond)
	require.False(t, ch.RemoteAuthority())
	seed := model.Pose()

	data, err := json.Marshal(PoseMessage{X: 0.18, Z: 0.3})
	require.NoError(t, err)
	ch.HandleInbound(Envelope{Type: MsgPose, Data: data})

	assert.Equal(t, seed, model.Pose())
}

func TestSyncChannelDropsUnreachableRemotePose(t *testing.T) {
	ch, model, _, _ := newTestChannel(t, 10*time.Millisecond)
	ch.SetRemoteAuthority(true)
	seed := model.Pose()

	data, err := json.Marshal(PoseMessage{X: 0, Y: 0, Z: -5})
	require.NoError(t, err)
	ch.HandleInbound(Envelope{Type: MsgPose, Data: data})

	assert.Equal(t, seed, model.Pose())
}

func TestSyncChannelDropsMalformedEnvelopes(t *testing.T) {
	ch, model, _, sink := newTestChannel(t, 10*time.Millisecond)
	ch.SetRemoteAuthority(true)
	seed := model.Pose()

	ch.HandleInbound(Envelope{Type: MsgPose, Data: json.RawMessage(`{"x": "nope"}`)})
	ch.HandleInbound(Envelope{Type: MsgGripper, Data: json.RawMessage(`not json`)})
	ch.HandleInbound(Envelope{Type: "telemetry", Data: json.RawMessage(`{}`)})

	assert.Equal(t, seed, model.Pose())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Empty(t, sink.kinds)
}

func TestSyncChannelActuatorPassthrough(t *testing.T) {
	ch, _, _, sink := newTestChannel(t, 10*time.Millisecond)

	for _, kind := range []string{MsgGripper, MsgCameraPan, MsgCameraTilt, MsgLinearActuator} {
		data, err := json.Marshal(ActuatorMessage{Value: 1})
		require.NoError(t, err)
		ch.HandleInbound(Envelope{Type: kind, Data: data})
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{MsgGripper, MsgCameraPan, MsgCameraTilt, MsgLinearActuator}, sink.kinds)
	assert.Equal(t, []float64{1, 1, 1, 1}, sink.vals)
}

func TestSyncChannelDropsWhileDisconnected(t *testing.T) {
	model := NewPoseModel(PresetPoses["home"])
	tr := &fakeTransport{connected: false}
	ch := NewSyncChannel(model, tr, nil, 10*time.Millisecond, logging.NewTestLogger(t))
	defer ch.Close()

	model.Set(PresetPoses["extended"], SourceUser)
	time.Sleep(50 * time.Millisecond)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Empty(t, tr.sent)
}
