package telearm

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.viam.com/rdk/logging"
)

// Defaults applied by Validate.
const (
	DefaultBaudrate           = 1000000
	DefaultTickRateHz         = 10
	DefaultStepSizeM          = 0.01
	DefaultOrientationStepDeg = 5.0
	DefaultDebounceWindowMs   = 50
	DefaultTimeout            = 5 * time.Second
)

// Config configures one teleoperated arm instance.
type Config struct {
	// Serial communication settings. Port may be empty when running
	// without a servo backend (planning/visualization only).
	Port     string        `json:"port,omitempty"`
	Baudrate int           `json:"baudrate,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`

	ServoIDs []int `json:"servo_ids,omitempty"`

	// Trajectory playback parameters.
	TickRateHz         int     `json:"tick_rate_hz,omitempty"`         // waypoint playback rate, 1-50
	StepSizeM          float64 `json:"step_size_m,omitempty"`          // translation spacing between waypoints
	OrientationStepDeg float64 `json:"orientation_step_deg,omitempty"` // angular spacing for orientation-only moves

	// Pose synchronization.
	DashboardAddr    string `json:"dashboard_addr,omitempty"`     // websocket endpoint, e.g. "ws://10.0.0.2:9090/ws"
	DebounceWindowMs int    `json:"debounce_window_ms,omitempty"` // outbound pose coalescing window

	CalibrationFile string `json:"calibration_file,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate fills defaults and range-checks the config.
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Baudrate == 0 {
		cfg.Baudrate = DefaultBaudrate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.ServoIDs) == 0 {
		cfg.ServoIDs = []int{1, 2, 3, 4, 5}
	}
	if len(cfg.ServoIDs) != NumJoints {
		return nil, nil, fmt.Errorf("expected %d servo IDs for arm joints, got %d", NumJoints, len(cfg.ServoIDs))
	}
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = DefaultTickRateHz
	}
	if cfg.TickRateHz < 1 || cfg.TickRateHz > 50 {
		return nil, nil, fmt.Errorf("tick_rate_hz must be between 1 and 50, got %d", cfg.TickRateHz)
	}
	if cfg.StepSizeM == 0 {
		cfg.StepSizeM = DefaultStepSizeM
	}
	if cfg.StepSizeM < 0 {
		return nil, nil, fmt.Errorf("step_size_m must be positive, got %f", cfg.StepSizeM)
	}
	if cfg.OrientationStepDeg == 0 {
		cfg.OrientationStepDeg = DefaultOrientationStepDeg
	}
	if cfg.OrientationStepDeg < 0 {
		return nil, nil, fmt.Errorf("orientation_step_deg must be positive, got %f", cfg.OrientationStepDeg)
	}
	if cfg.DebounceWindowMs == 0 {
		cfg.DebounceWindowMs = DefaultDebounceWindowMs
	}
	if cfg.DebounceWindowMs < 0 {
		return nil, nil, fmt.Errorf("debounce_window_ms must be positive, got %d", cfg.DebounceWindowMs)
	}
	return nil, nil, nil
}

// DebounceWindow returns the outbound pose coalescing window.
func (cfg *Config) DebounceWindow() time.Duration {
	return time.Duration(cfg.DebounceWindowMs) * time.Millisecond
}

// OrientationStep returns the orientation spacing in radians.
func (cfg *Config) OrientationStep() float64 {
	return degToRad(cfg.OrientationStepDeg)
}

// LoadCalibration loads calibration from the configured file or falls
// back to defaults. The second return reports whether a file was used.
func (cfg *Config) LoadCalibration(logger logging.Logger) (FullCalibration, bool) {
	if cfg.CalibrationFile == "" {
		if logger != nil {
			logger.Debug("no calibration file specified, using default calibration")
		}
		return DefaultFullCalibration, false
	}

	// Relative paths resolve against the module data directory.
	if !filepath.IsAbs(cfg.CalibrationFile) {
		moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
		if moduleDataDir == "" {
			moduleDataDir = "/tmp"
		}
		cfg.CalibrationFile = filepath.Join(moduleDataDir, cfg.CalibrationFile)
	}

	cal, err := LoadCalibrationFile(cfg.CalibrationFile, logger)
	if err != nil {
		if logger != nil {
			logger.Warnf("failed to load calibration from %s: %v, using default calibration", cfg.CalibrationFile, err)
		}
		return DefaultFullCalibration, false
	}

	if logger != nil {
		logger.Infof("loaded calibration from %s", cfg.CalibrationFile)
	}
	return cal, true
}
