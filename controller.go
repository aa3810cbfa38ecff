package telearm

import (
	"context"
	"sync"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// ServoController drives the arm and gripper servos over one Feetech
// serial bus. All methods are safe for concurrent use; the bus itself
// is shared through the controller registry, never opened twice.
type ServoController struct {
	mu          sync.Mutex
	bus         *feetech.Bus
	armGroup    *feetech.ServoGroup
	gripper     *feetech.ServoGroup
	servoIDs    []int
	calibration FullCalibration
	logger      logging.Logger
}

// gripperServoID is the conventional bus ID of the gripper servo.
const gripperServoID = 6

// NewServoController opens the serial bus and prepares servo groups for
// the five arm joints and the gripper.
func NewServoController(port string, baudrate int, servoIDs []int, cal FullCalibration, logger logging.Logger) (*ServoController, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: baudrate,
		Protocol: feetech.ProtocolSTS,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open servo bus on %s", port)
	}

	c := &ServoController{
		bus:         bus,
		armGroup:    feetech.NewServoGroupByIDs(bus, servoIDs...),
		gripper:     feetech.NewServoGroupByIDs(bus, gripperServoID),
		servoIDs:    append([]int(nil), servoIDs...),
		calibration: cal,
		logger:      logger,
	}

	logger.Infof("servo bus open on %s at %d baud, servo IDs %v", port, baudrate, servoIDs)
	return c, nil
}

// SetTorqueEnable enables or disables torque on the arm servos.
func (c *ServoController) SetTorqueEnable(ctx context.Context, enable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enable {
		return c.armGroup.EnableAll(ctx)
	}
	return c.armGroup.DisableAll(ctx)
}

// MoveToJointAngles writes the five joint angles (degrees) to the arm
// servos in one sync write.
func (c *ServoController) MoveToJointAngles(ctx context.Context, angles JointAngles) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := make(feetech.PositionMap, NumJoints)
	cals := c.calibration.ArmCalibrations()
	for i, id := range c.servoIDs {
		cal := cals[i]
		if cal == nil {
			return errors.Errorf("no calibration for %s (servo %d)", JointNames[i], id)
		}
		targets[id] = cal.Denormalize(angles[i])
	}

	if err := c.armGroup.SetPositions(ctx, targets); err != nil {
		return errors.Wrap(err, "failed to write joint positions")
	}
	return nil
}

// ReadJointAngles reads the current joint angles (degrees) back from
// the arm servos.
func (c *ServoController) ReadJointAngles(ctx context.Context) (JointAngles, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := c.armGroup.Positions(ctx)
	if err != nil {
		return JointAngles{}, errors.Wrap(err, "failed to read joint positions")
	}

	var angles JointAngles
	cals := c.calibration.ArmCalibrations()
	for i, id := range c.servoIDs {
		pos, ok := raw[id]
		if !ok {
			return JointAngles{}, errors.Errorf("no position reading for servo %d", id)
		}
		angles[i] = cals[i].Normalize(pos)
	}
	return angles, nil
}

// MoveGripper sets the gripper opening. value is the opaque dashboard
// command value: nonzero opens toward the calibrated max, zero releases
// to the calibrated min.
func (c *ServoController) MoveGripper(ctx context.Context, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cal := c.calibration.Gripper
	if cal == nil {
		return errors.New("no gripper calibration")
	}
	target := cal.RangeMin
	if value != 0 {
		target = cal.RangeMax
	}
	return c.gripper.SetPositions(ctx, feetech.PositionMap{gripperServoID: target})
}

// Ping verifies each arm servo responds on the bus.
func (c *ServoController) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.servoIDs {
		servo := feetech.NewServo(c.bus, id, &feetech.ModelSTS3215)
		if _, err := servo.Ping(ctx); err != nil {
			return errors.Wrapf(err, "servo %d did not respond", id)
		}
	}
	return nil
}

// Stop disables torque so the arm holds no load.
func (c *ServoController) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armGroup.DisableAll(ctx)
}

// Close releases the serial bus.
func (c *ServoController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bus.Close()
}
