package telearm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

// TelearmDiscoveryModel identifies the serial-port discovery service.
var TelearmDiscoveryModel = resource.NewModel("telearm", "arm", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		TelearmDiscoveryModel,
		resource.Registration[discovery.Service, *DiscoveryConfig]{
			Constructor: newTelearmDiscovery,
		})
}

// DiscoveryConfig is the configuration for the discovery service.
type DiscoveryConfig struct {
	// Empty for now - could add port filters or baudrate options later
}

// Validate ensures the config is valid
func (cfg *DiscoveryConfig) Validate(path string) ([]string, []string, error) {
	return nil, nil, nil
}

type telearmDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger logging.Logger
}

func newTelearmDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	_, err := resource.NativeConfig[*DiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &telearmDiscovery{
		Named:  conf.ResourceName().AsNamed(),
		logger: logger,
	}, nil
}

// DiscoverResources scans serial ports for arm servos and returns
// ready-to-use component configurations.
func (dis *telearmDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	dis.logger.Info("starting teleop arm discovery")

	allPorts := enumerateSerialPorts()
	dis.logger.Debugf("found %d total serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	dis.logger.Debugf("filtered to %d candidate ports", len(candidates))

	var configs []resource.Config
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			dis.logger.Info("discovery cancelled")
			return configs, ctx.Err()
		default:
		}

		if !dis.probePort(portPath) {
			dis.logger.Debugf("no arm servos detected on %s", portPath)
			continue
		}

		portSuffix := extractPortSuffix(portPath)
		dis.logger.Infof("discovered arm on %s", portPath)

		attrs := map[string]interface{}{"port": portPath}
		if calFile := findCalibrationFile(moduleDataDir(), portSuffix, dis.logger); calFile != "" {
			attrs["calibration_file"] = calFile
		}

		configs = append(configs, resource.Config{
			Name:       "telearm-" + portSuffix,
			API:        arm.API,
			Model:      TelearmModel,
			Attributes: attrs,
		})
	}

	if len(configs) == 0 {
		dis.logger.Info("no arms discovered")
	} else {
		dis.logger.Infof("discovered %d component configurations", len(configs))
	}
	return configs, nil
}

// probePort opens the port briefly and pings servo 1.
func (dis *telearmDiscovery) probePort(portPath string) bool {
	ctx := context.Background()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     portPath,
		BaudRate: DefaultBaudrate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  500 * time.Millisecond,
	})
	if err != nil {
		dis.logger.Debugf("failed to open port %s: %v", portPath, err)
		return false
	}
	defer bus.Close()

	servo := feetech.NewServo(bus, 1, &feetech.ModelSTS3215)
	_, err = servo.Ping(ctx)
	return err == nil
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks if a port matches USB serial adapter patterns
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") {
		return true
	}
	// macOS: /dev/tty.usbmodem*, /dev/tty.usbserial*, /dev/cu.usbmodem*, /dev/cu.usbserial*
	if strings.HasPrefix(port, "/dev/tty.usbmodem") || strings.HasPrefix(port, "/dev/tty.usbserial") ||
		strings.HasPrefix(port, "/dev/cu.usbmodem") || strings.HasPrefix(port, "/dev/cu.usbserial") {
		return true
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// COM3 -> "COM3"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)

	if strings.HasPrefix(base, "tty.usb") {
		return strings.TrimPrefix(base, "tty.")
	}
	if strings.HasPrefix(base, "cu.usb") {
		return strings.TrimPrefix(base, "cu.")
	}
	return base
}

func moduleDataDir() string {
	dir := os.Getenv("VIAM_MODULE_DATA")
	if dir == "" {
		dir = "/tmp"
	}
	return dir
}

// findCalibrationFile looks for a port-specific calibration file first,
// then the shared default. Returns just the filename, or empty.
func findCalibrationFile(dataDir, portSuffix string, logger logging.Logger) string {
	portSpecific := filepath.Join(dataDir, portSuffix+"_calibration.json")
	if _, err := os.Stat(portSpecific); err == nil {
		logger.Debugf("found port-specific calibration file: %s", filepath.Base(portSpecific))
		return filepath.Base(portSpecific)
	}

	defaultFile := filepath.Join(dataDir, "telearm_calibration.json")
	if _, err := os.Stat(defaultFile); err == nil {
		logger.Debug("found default calibration file: telearm_calibration.json")
		return "telearm_calibration.json"
	}

	logger.Debug("no calibration file found")
	return ""
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}
