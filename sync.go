package telearm

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.viam.com/rdk/logging"
)

// Envelope is the typed message frame exchanged with the dashboard
// transport. Data is left raw so unknown kinds pass through untouched.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message kinds the motion core knows about. Actuator kinds are opaque
// press/release pass-throughs: nonzero value on press, zero on release.
const (
	MsgPose           = "pose"
	MsgJointAngles    = "joint_angles"
	MsgGripper        = "gripper"
	MsgCameraPan      = "camera_pan"
	MsgCameraTilt     = "camera_tilt"
	MsgLinearActuator = "linear_actuator"
)

// PoseMessage is the wire form of a CartesianPose. Roll and pitch are
// degrees on the wire; conversion to the core's radians happens here
// and nowhere else.
type PoseMessage struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

func poseToMessage(p CartesianPose) PoseMessage {
	return PoseMessage{X: p.X, Y: p.Y, Z: p.Z, Roll: radToDeg(p.Roll), Pitch: radToDeg(p.Pitch)}
}

func (m PoseMessage) toPose() CartesianPose {
	return CartesianPose{X: m.X, Y: m.Y, Z: m.Z, Roll: degToRad(m.Roll), Pitch: degToRad(m.Pitch)}
}

// JointAnglesMessage carries the derived joint angles in degrees.
type JointAnglesMessage struct {
	Joints []float64 `json:"joints"`
}

// ActuatorMessage is the opaque press/release payload for gripper,
// camera servo and linear actuator commands.
type ActuatorMessage struct {
	Value float64 `json:"value"`
}

// Transport is the persistent bidirectional connection the channel
// writes to. Delivery is best-effort, at-most-once: implementations
// drop sends while disconnected and never retry. Reconnection policy
// belongs to the transport owner, not the core.
type Transport interface {
	Send(env Envelope) error
	Connected() bool
}

// CommandSink receives inbound actuator envelopes the channel does not
// consume itself.
type CommandSink interface {
	HandleCommand(kind string, value float64)
}

// SyncChannel bridges the pose model to the transport without feedback
// loops: locally authored pose changes go out debounced, remotely
// authored ones come in under an authorship toggle and are suppressed
// from echoing back out.
type SyncChannel struct {
	model     *PoseModel
	transport Transport
	sink      CommandSink
	logger    logging.Logger

	debounced func(func())

	mu          sync.Mutex
	remoteAuth  bool
	suppressing bool
	pendingPose CartesianPose
	subID       int
}

// NewSyncChannel wires the channel into the model's observer list.
// window is the trailing-edge debounce for outbound pose sends; sink
// may be nil when no actuator backend is attached.
func NewSyncChannel(model *PoseModel, transport Transport, sink CommandSink, window time.Duration, logger logging.Logger) *SyncChannel {
	c := &SyncChannel{
		model:     model,
		transport: transport,
		sink:      sink,
		logger:    logger,
		debounced: debounce.New(window),
	}
	c.subID = model.Subscribe(c.onPoseUpdate)
	return c
}

// Close detaches the channel from the model. Pending debounced sends
// may still fire once; the transport drops them if it is gone too.
func (c *SyncChannel) Close() {
	c.model.Unsubscribe(c.subID)
}

// SetRemoteAuthority toggles whether inbound pose messages overwrite
// the local pose. Other inbound kinds are unaffected by the toggle.
func (c *SyncChannel) SetRemoteAuthority(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAuth = enabled
}

// RemoteAuthority reports the current authorship toggle.
func (c *SyncChannel) RemoteAuthority() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAuth
}

// onPoseUpdate runs synchronously for every accepted model write.
// Joint angles go out on every recompute, unconditionally: they are
// idempotent low-cost telemetry. The pose goes out debounced, and only
// for locally authored updates; a remote-induced update is suppressed
// so it does not echo back to its author.
func (c *SyncChannel) onPoseUpdate(pose CartesianPose, angles JointAngles, src Source) {
	c.sendJointAngles(angles)

	c.mu.Lock()
	suppressed := c.suppressing || src == SourceRemote
	if !suppressed {
		c.pendingPose = pose
	}
	c.mu.Unlock()

	if suppressed {
		return
	}
	c.debounced(c.flushPose)
}

// flushPose emits the latest coalesced pose after the debounce window.
func (c *SyncChannel) flushPose() {
	c.mu.Lock()
	pose := c.pendingPose
	c.mu.Unlock()
	c.send(MsgPose, poseToMessage(pose))
}

func (c *SyncChannel) sendJointAngles(angles JointAngles) {
	c.send(MsgJointAngles, JointAnglesMessage{Joints: angles[:]})
}

// send marshals and hands the envelope to the transport. Failures are
// drops, not errors: delivery is at-most-once.
func (c *SyncChannel) send(kind string, payload interface{}) {
	if !c.transport.Connected() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Debugf("dropping outbound %s: %v", kind, err)
		return
	}
	if err := c.transport.Send(Envelope{Type: kind, Data: data}); err != nil {
		c.logger.Debugf("dropping outbound %s: %v", kind, err)
	}
}

// HandleInbound processes one envelope from the transport. Malformed
// payloads are dropped without disturbing channel or executor state.
func (c *SyncChannel) HandleInbound(env Envelope) {
	switch env.Type {
	case MsgPose:
		c.handleInboundPose(env.Data)
	case MsgGripper, MsgCameraPan, MsgCameraTilt, MsgLinearActuator:
		var msg ActuatorMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			c.logger.Debugf("dropping malformed %s envelope: %v", env.Type, err)
			return
		}
		if c.sink != nil {
			c.sink.HandleCommand(env.Type, msg.Value)
		}
	default:
		c.logger.Debugf("ignoring envelope of unknown type %q", env.Type)
	}
}

func (c *SyncChannel) handleInboundPose(data json.RawMessage) {
	c.mu.Lock()
	if !c.remoteAuth {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	var msg PoseMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debugf("dropping malformed pose envelope: %v", err)
		return
	}

	pose := msg.toPose()
	if !Reachable(pose) {
		c.logger.Debugf("dropping unreachable remote pose (%.3f, %.3f, %.3f)", pose.X, pose.Y, pose.Z)
		return
	}

	// Hold the suppression flag for exactly the induced update: model
	// notification is synchronous, so by the time Set returns every
	// observer has seen it and the flag can clear.
	c.mu.Lock()
	c.suppressing = true
	c.mu.Unlock()

	c.model.Set(pose, SourceRemote)

	c.mu.Lock()
	c.suppressing = false
	c.mu.Unlock()
}
