package telearm

import (
	"encoding/json"
	"fmt"
	"os"

	"go.viam.com/rdk/logging"
)

// MotorCalibration maps one servo's raw tick range onto degrees.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// servoResolution is the tick count per revolution for STS3215-class servos.
const servoResolution = 4096

// Validate checks that the calibration values are usable.
func (c *MotorCalibration) Validate() error {
	if c.ID < 1 {
		return fmt.Errorf("servo id must be positive, got %d", c.ID)
	}
	if c.RangeMax <= c.RangeMin {
		return fmt.Errorf("range_max (%d) must exceed range_min (%d)", c.RangeMax, c.RangeMin)
	}
	return nil
}

// Normalize converts a raw servo position to degrees about the range center.
func (c *MotorCalibration) Normalize(raw int) float64 {
	center := float64(c.RangeMin+c.RangeMax) / 2.0
	deg := (float64(raw+c.HomingOffset) - center) * 360.0 / servoResolution
	if c.DriveMode != 0 {
		deg = -deg
	}
	return deg
}

// Denormalize converts degrees back to a raw servo position, clamped to
// the calibrated range.
func (c *MotorCalibration) Denormalize(deg float64) int {
	if c.DriveMode != 0 {
		deg = -deg
	}
	center := float64(c.RangeMin+c.RangeMax) / 2.0
	raw := int(deg*servoResolution/360.0+center) - c.HomingOffset
	if raw < c.RangeMin {
		raw = c.RangeMin
	} else if raw > c.RangeMax {
		raw = c.RangeMax
	}
	return raw
}

// FullCalibration holds the calibration of every joint servo plus the
// gripper, keyed by joint name in the file format.
type FullCalibration struct {
	BaseYaw    *MotorCalibration `json:"base_yaw"`
	Shoulder   *MotorCalibration `json:"shoulder"`
	Elbow      *MotorCalibration `json:"elbow"`
	WristPitch *MotorCalibration `json:"wrist_pitch"`
	WristRoll  *MotorCalibration `json:"wrist_roll"`
	Gripper    *MotorCalibration `json:"gripper"`
}

// DefaultFullCalibration covers an uncalibrated arm: full travel,
// centered, no homing offset.
var DefaultFullCalibration = FullCalibration{
	BaseYaw:    &MotorCalibration{ID: 1, RangeMin: 500, RangeMax: 3500},
	Shoulder:   &MotorCalibration{ID: 2, RangeMin: 500, RangeMax: 3500},
	Elbow:      &MotorCalibration{ID: 3, RangeMin: 500, RangeMax: 3500},
	WristPitch: &MotorCalibration{ID: 4, RangeMin: 500, RangeMax: 3500},
	WristRoll:  &MotorCalibration{ID: 5, RangeMin: 500, RangeMax: 3500},
	Gripper:    &MotorCalibration{ID: 6, RangeMin: 500, RangeMax: 3500},
}

type namedCalibration struct {
	name string
	cfg  *MotorCalibration
}

// joints returns name/calibration pairs in servo order.
func (cal FullCalibration) joints() []namedCalibration {
	return []namedCalibration{
		{"base_yaw", cal.BaseYaw},
		{"shoulder", cal.Shoulder},
		{"elbow", cal.Elbow},
		{"wrist_pitch", cal.WristPitch},
		{"wrist_roll", cal.WristRoll},
		{"gripper", cal.Gripper},
	}
}

// ByID returns the calibration for a servo ID, or nil.
func (cal FullCalibration) ByID(servoID int) *MotorCalibration {
	for _, j := range cal.joints() {
		if j.cfg != nil && j.cfg.ID == servoID {
			return j.cfg
		}
	}
	return nil
}

// ArmCalibrations returns the five arm joint calibrations in servo
// order, excluding the gripper.
func (cal FullCalibration) ArmCalibrations() [NumJoints]*MotorCalibration {
	return [NumJoints]*MotorCalibration{
		cal.BaseYaw, cal.Shoulder, cal.Elbow, cal.WristPitch, cal.WristRoll,
	}
}

// Validate checks every joint's calibration.
func (cal FullCalibration) Validate(logger logging.Logger) error {
	for _, j := range cal.joints() {
		if j.cfg == nil {
			return fmt.Errorf("joint %s: calibration is nil", j.name)
		}
		if err := j.cfg.Validate(); err != nil {
			return fmt.Errorf("joint %s: %w", j.name, err)
		}
	}
	if logger != nil {
		logger.Debug("calibration validation passed")
	}
	return nil
}

// Equal reports whether two calibrations match field for field.
func (cal FullCalibration) Equal(other FullCalibration) bool {
	a, b := cal.joints(), other.joints()
	for i := range a {
		if !motorCalibrationsEqual(a[i].cfg, b[i].cfg) {
			return false
		}
	}
	return true
}

func motorCalibrationsEqual(a, b *MotorCalibration) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// LoadCalibrationFile reads and validates a calibration JSON file.
// Joints missing from the file fall back to the defaults.
func LoadCalibrationFile(path string, logger logging.Logger) (FullCalibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FullCalibration{}, fmt.Errorf("failed to read calibration file: %w", err)
	}

	var cal FullCalibration
	if err := json.Unmarshal(data, &cal); err != nil {
		return FullCalibration{}, fmt.Errorf("failed to parse calibration JSON: %w", err)
	}

	orDefault := func(c, def *MotorCalibration) *MotorCalibration {
		if c != nil {
			return c
		}
		return def
	}
	cal.BaseYaw = orDefault(cal.BaseYaw, DefaultFullCalibration.BaseYaw)
	cal.Shoulder = orDefault(cal.Shoulder, DefaultFullCalibration.Shoulder)
	cal.Elbow = orDefault(cal.Elbow, DefaultFullCalibration.Elbow)
	cal.WristPitch = orDefault(cal.WristPitch, DefaultFullCalibration.WristPitch)
	cal.WristRoll = orDefault(cal.WristRoll, DefaultFullCalibration.WristRoll)
	cal.Gripper = orDefault(cal.Gripper, DefaultFullCalibration.Gripper)

	if err := cal.Validate(logger); err != nil {
		return FullCalibration{}, fmt.Errorf("calibration validation failed: %w", err)
	}
	return cal, nil
}

// SaveCalibrationFile writes the calibration as indented JSON.
func SaveCalibrationFile(path string, cal FullCalibration) error {
	data, err := json.MarshalIndent(cal, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
