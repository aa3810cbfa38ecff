package telearm

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/utils/rpc"
)

//go:embed telearm.json
var telearmModelJson []byte

// TelearmModel identifies the teleoperated arm component.
var TelearmModel = resource.NewModel("telearm", "arm", "teleop")

func init() {
	resource.RegisterComponent(arm.API, TelearmModel,
		resource.Registration[arm.Arm, *Config]{
			Constructor: newTeleopArm,
		},
	)
}

// createKinematicModel parses the embedded kinematics description.
func createKinematicModel() (referenceframe.Model, error) {
	if len(telearmModelJson) == 0 {
		return nil, fmt.Errorf("no embedded telearm.json kinematic model found")
	}
	m := &referenceframe.ModelConfigJSON{
		OriginalFile: &referenceframe.ModelFile{
			Bytes:     telearmModelJson,
			Extension: "json",
		},
	}
	if err := json.Unmarshal(telearmModelJson, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal kinematic model json")
	}
	return m.ParseConfig("telearm")
}

// teleopArm is the Viam-facing adapter around the motion core: the pose
// model, the trajectory executor, the sync channel and the shared servo
// controller.
type teleopArm struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	cfg    *Config
	model  referenceframe.Model

	poseModel  *PoseModel
	executor   *Executor
	channel    *SyncChannel
	transport  Transport
	controller *ServoController // nil when running without hardware

	cancelCtx  context.Context
	cancelFunc func()
}

func newTeleopArm(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (arm.Arm, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger
	return NewTeleopArm(ctx, rawConf.ResourceName(), conf, logger)
}

// NewTeleopArm builds the component from an already validated config.
func NewTeleopArm(ctx context.Context, name resource.Name, conf *Config, logger logging.Logger) (arm.Arm, error) {
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	model, err := createKinematicModel()
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create kinematic model: %w", err)
	}

	s := &teleopArm{
		name:       name,
		logger:     logger,
		cfg:        conf,
		model:      model,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}

	calibration, _ := conf.LoadCalibration(logger)

	if conf.Port != "" {
		controller, err := sharedRegistry.GetController(conf.Port, conf, calibration)
		if err != nil {
			cancelFunc()
			return nil, fmt.Errorf("failed to initialize servo controller: %w", err)
		}
		s.controller = controller

		if err := controller.SetTorqueEnable(ctx, true); err != nil {
			logger.Warnf("failed to enable torque: %v", err)
		}
	} else {
		logger.Info("no serial port configured, running without servo backend")
	}

	s.poseModel = NewPoseModel(PresetPoses["home"])
	s.executor = NewExecutor(s.poseModel, conf.TickRateHz, conf.StepSizeM, conf.OrientationStep(), logger)

	// Every accepted pose write drives the servos, regardless of which
	// authority wrote it.
	if s.controller != nil {
		s.poseModel.Subscribe(func(_ CartesianPose, angles JointAngles, _ Source) {
			if err := s.controller.MoveToJointAngles(s.cancelCtx, angles); err != nil {
				logger.Debugf("servo write failed: %v", err)
			}
		})
	}

	s.transport = disconnectedTransport{}
	if conf.DashboardAddr != "" {
		ws, err := DialDashboard(conf.DashboardAddr, logger)
		if err != nil {
			// Degrade to drop-all-sends; recovery is external.
			logger.Warnf("dashboard unavailable, pose sync disabled: %v", err)
		} else {
			s.transport = ws
		}
	}

	s.channel = NewSyncChannel(s.poseModel, s.transport, s, conf.DebounceWindow(), logger)
	if ws, ok := s.transport.(*WebSocketTransport); ok {
		go ws.ReadLoop(cancelCtx, s.channel.HandleInbound)
	}

	logger.Infof("teleop arm initialized (port=%q, tick=%d Hz, dashboard=%q)",
		conf.Port, conf.TickRateHz, conf.DashboardAddr)
	return s, nil
}

// HandleCommand routes opaque actuator envelopes from the dashboard.
// Only the gripper lives on the arm's bus; the chassis actuators are
// owned elsewhere and are logged through for visibility.
func (s *teleopArm) HandleCommand(kind string, value float64) {
	switch kind {
	case MsgGripper:
		if s.controller == nil {
			return
		}
		ctx, cancel := context.WithTimeout(s.cancelCtx, time.Second)
		defer cancel()
		if err := s.controller.MoveGripper(ctx, value); err != nil {
			s.logger.Debugf("gripper command failed: %v", err)
		}
	default:
		s.logger.Debugf("pass-through actuator command %s=%v (not handled by arm)", kind, value)
	}
}

func (s *teleopArm) Name() resource.Name {
	return s.name
}

func (s *teleopArm) NewClientFromConn(ctx context.Context, conn rpc.ClientConn, remoteName string, name resource.Name, logger logging.Logger) (arm.Arm, error) {
	return nil, errors.New("remote client not implemented")
}

func (s *teleopArm) EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error) {
	p := s.poseModel.Pose()
	// Core units are meters/radians; rdk poses are millimeters.
	return spatialmath.NewPose(
		r3.Vector{X: p.X * 1000, Y: p.Y * 1000, Z: p.Z * 1000},
		&spatialmath.EulerAngles{Roll: p.Roll, Pitch: p.Pitch},
	), nil
}

// MoveToPosition runs the full pipeline: gate, plan, validate, execute.
func (s *teleopArm) MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error {
	pt := pose.Point()
	euler := pose.Orientation().EulerAngles()
	target := CartesianPose{
		X:     pt.X / 1000,
		Y:     pt.Y / 1000,
		Z:     pt.Z / 1000,
		Roll:  euler.Roll,
		Pitch: euler.Pitch,
	}
	return s.executor.Start(target)
}

// MoveToJointPositions is unsupported: joint angles in this controller
// are always derived from a Cartesian pose by the solver, never
// authored directly. Use MoveToPosition or DoCommand go_to_pose.
func (s *teleopArm) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	return errors.New("joint-space moves are not supported; command a Cartesian pose instead")
}

func (s *teleopArm) MoveThroughJointPositions(ctx context.Context, positions [][]referenceframe.Input, options *arm.MoveOptions, extra map[string]interface{}) error {
	return errors.New("joint-space moves are not supported; command a Cartesian pose instead")
}

func (s *teleopArm) JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error) {
	angles := s.poseModel.Angles()
	positions := make([]referenceframe.Input, NumJoints)
	for i, deg := range angles {
		positions[i] = referenceframe.Input{Value: degToRad(deg)}
	}
	return positions, nil
}

func (s *teleopArm) Stop(ctx context.Context, extra map[string]interface{}) error {
	s.executor.Cancel()
	if s.controller != nil {
		return s.controller.Stop(ctx)
	}
	return nil
}

func (s *teleopArm) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	return s.model, nil
}

func (s *teleopArm) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return s.JointPositions(ctx, nil)
}

func (s *teleopArm) GoToInputs(ctx context.Context, inputSteps ...[]referenceframe.Input) error {
	return errors.New("joint-space moves are not supported; command a Cartesian pose instead")
}

func (s *teleopArm) IsMoving(ctx context.Context) (bool, error) {
	return s.executor.State() == StateExecuting, nil
}

func (s *teleopArm) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	inputs, err := s.CurrentInputs(ctx)
	if err != nil {
		return nil, err
	}
	gif, err := s.model.Geometries(inputs)
	if err != nil {
		return nil, err
	}
	return gif.Geometries(), nil
}

func (s *teleopArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "go_to_pose":
		target, err := poseFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		if err := s.executor.Start(target); err != nil {
			return nil, err
		}
		index, total := s.executor.Progress()
		return map[string]interface{}{"state": s.executor.State().String(), "index": index, "total": total}, nil

	case "direct_move":
		// Direct (uninterpolated) moves apply the same reachability
		// gate as planned trajectories, and are refused during
		// playback: the executor is the pose writer while Executing.
		if s.executor.State() == StateExecuting {
			return nil, errors.New("cannot edit pose while a trajectory is executing")
		}
		target, err := poseFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		if err := s.poseModel.SetChecked(target, SourceUser); err != nil {
			return nil, err
		}
		return map[string]interface{}{"success": true}, nil

	case "cancel":
		s.executor.Cancel()
		return map[string]interface{}{"state": s.executor.State().String()}, nil

	case "preset":
		name, ok := cmd["name"].(string)
		if !ok {
			return nil, errors.New("preset command requires 'name' string parameter")
		}
		target, ok := PresetPoses[name]
		if !ok {
			return nil, errors.Errorf("unknown preset %q", name)
		}
		if err := s.executor.Start(target); err != nil {
			return nil, err
		}
		return map[string]interface{}{"preset": name, "state": s.executor.State().String()}, nil

	case "is_reachable":
		target, err := poseFromCommand(cmd)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"reachable": Reachable(target)}, nil

	case "set_remote_authority":
		enabled, ok := cmd["enabled"].(bool)
		if !ok {
			return nil, errors.New("set_remote_authority command requires 'enabled' boolean parameter")
		}
		s.channel.SetRemoteAuthority(enabled)
		return map[string]interface{}{"remote_authority": enabled}, nil

	case "gripper":
		value, ok := cmd["value"].(float64)
		if !ok {
			return nil, errors.New("gripper command requires 'value' number parameter")
		}
		s.HandleCommand(MsgGripper, value)
		return map[string]interface{}{"success": true}, nil

	case "ping_servos":
		if s.controller == nil {
			return nil, errors.New("no servo backend configured")
		}
		err := s.controller.Ping(ctx)
		return map[string]interface{}{"success": err == nil}, err

	case "status":
		p := s.poseModel.Pose()
		index, total := s.executor.Progress()
		controllers := map[string]interface{}{}
		for port, refs := range sharedRegistry.Status() {
			controllers[port] = refs
		}
		return map[string]interface{}{
			"state": s.executor.State().String(),
			"index": index,
			"total": total,
			"pose": map[string]interface{}{
				"x": p.X, "y": p.Y, "z": p.Z,
				"roll": radToDeg(p.Roll), "pitch": radToDeg(p.Pitch),
			},
			"remote_authority": s.channel.RemoteAuthority(),
			"within_limits":    WithinLimits(s.poseModel.Angles()),
			"connected":        s.transport.Connected(),
			"controllers":      controllers,
		}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *teleopArm) Close(context.Context) error {
	s.logger.Info("closing teleop arm")

	s.executor.Cancel()
	s.channel.Close()
	if ws, ok := s.transport.(*WebSocketTransport); ok {
		if err := ws.Close(); err != nil {
			s.logger.Debugf("dashboard close: %v", err)
		}
	}
	s.cancelFunc()

	if s.controller != nil {
		sharedRegistry.ReleaseController(s.cfg.Port)
	}
	return nil
}

// poseFromCommand reads the Cartesian target out of a DoCommand map.
// x, y, z are meters; roll and pitch are degrees, matching the wire
// format.
func poseFromCommand(cmd map[string]interface{}) (CartesianPose, error) {
	var p CartesianPose
	fields := []struct {
		key string
		dst *float64
	}{
		{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}, {"roll", &p.Roll}, {"pitch", &p.Pitch},
	}
	for _, f := range fields {
		v, ok := cmd[f.key].(float64)
		if !ok {
			return CartesianPose{}, errors.Errorf("command requires numeric %q parameter", f.key)
		}
		*f.dst = v
	}
	p.Roll = degToRad(p.Roll)
	p.Pitch = degToRad(p.Pitch)
	return p, nil
}
