package telearm

import "math"

// Link lengths for the 5-DOF arm, in meters, measured from the base frame.
const (
	LinkBaseHeight = 0.12 // L1: base column, floor to shoulder axis
	LinkUpperArm   = 0.15 // L2: shoulder to elbow
	LinkForearm    = 0.15 // L3: elbow to wrist
	LinkWrist      = 0.10 // L4: wrist to end-effector tip
)

// NumJoints is the number of controlled arm joints.
const NumJoints = 5

// JointNames in servo ID order (1-5). The gripper is not an arm joint.
var JointNames = []string{
	"base_yaw",
	"shoulder",
	"elbow",
	"wrist_pitch",
	"wrist_roll",
}

// jointLimitsDeg are the semantic per-joint bounds in degrees. Derived
// joint angles outside these ranges indicate a pose the hardware cannot
// hold even when the planar reduction is solvable.
var jointLimitsDeg = [NumJoints][2]float64{
	{-180, 180}, // base yaw
	{-90, 90},   // shoulder
	{-150, 0},   // elbow (elbow-down branch only)
	{-95, 95},   // wrist pitch
	{-180, 180}, // wrist roll
}

// Preset poses selectable from the dashboard or DoCommand.
var PresetPoses = map[string]CartesianPose{
	"home":     {X: 0.15, Y: 0, Z: 0.35, Roll: 0, Pitch: 0},
	"rest":     {X: 0.10, Y: 0, Z: 0.18, Roll: 0, Pitch: -math.Pi / 2},
	"extended": {X: 0.32, Y: 0, Z: 0.22, Roll: 0, Pitch: 0},
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }

func radToDeg(r float64) float64 { return r * 180 / math.Pi }
