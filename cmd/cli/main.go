package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"

	"telearm"
)

// Small debug tool: plans a trajectory to a target pose and plays it
// back, against real servos when -port is given, otherwise dry.
func main() {
	if err := realMain(); err != nil {
		panic(err)
	}
}

func realMain() error {
	port := flag.String("port", "", "serial port of the arm (empty for dry run)")
	dashboard := flag.String("dashboard", "", "dashboard websocket address (optional)")
	x := flag.Float64("x", 0.25, "target x in meters")
	y := flag.Float64("y", 0.0, "target y in meters")
	z := flag.Float64("z", 0.30, "target z in meters")
	roll := flag.Float64("roll", 0, "target roll in degrees")
	pitch := flag.Float64("pitch", 0, "target pitch in degrees")
	rate := flag.Int("rate", 10, "playback rate in Hz")
	flag.Parse()

	ctx := context.Background()
	logger := logging.NewLogger("telearm-cli")

	cfg := &telearm.Config{
		Port:          *port,
		DashboardAddr: *dashboard,
		TickRateHz:    *rate,
	}
	if _, _, err := cfg.Validate(""); err != nil {
		return err
	}

	a, err := telearm.NewTeleopArm(ctx, resource.NewName(arm.API, "telearm-cli"), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	cmd := map[string]interface{}{
		"command": "go_to_pose",
		"x":       *x, "y": *y, "z": *z,
		"roll": *roll, "pitch": *pitch,
	}
	result, err := a.DoCommand(ctx, cmd)
	if err != nil {
		return err
	}
	logger.Infof("trajectory accepted: %v", result)

	for {
		moving, err := a.IsMoving(ctx)
		if err != nil {
			return err
		}
		status, err := a.DoCommand(ctx, map[string]interface{}{"command": "status"})
		if err != nil {
			return err
		}
		fmt.Printf("state=%v progress=%v/%v\n", status["state"], status["index"], status["total"])
		if !moving {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}

	logger.Info("done")
	return nil
}
