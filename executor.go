package telearm

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// ExecutionState is the executor's lifecycle state.
type ExecutionState int

const (
	StateIdle ExecutionState = iota
	StateExecuting
)

func (s ExecutionState) String() string {
	if s == StateExecuting {
		return "executing"
	}
	return "idle"
}

// playback owns the resources of one trajectory run: the accepted
// waypoint sequence, the cursor into it, and the ticker driving it.
// A playback is created on Idle->Executing and torn down on every exit
// path; two playbacks never run concurrently for one executor.
type playback struct {
	waypoints []CartesianPose
	index     int
	ticker    *time.Ticker
	stop      chan struct{}
	done      chan struct{}
}

// Executor drives timed waypoint playback against a PoseModel. It is
// the only component that mutates the model while a trajectory runs.
type Executor struct {
	model  *PoseModel
	logger logging.Logger

	rateHz          int
	stepSize        float64
	orientationStep float64

	mu      sync.Mutex
	state   ExecutionState
	pb      *playback
	history []CartesianPose
}

// NewExecutor creates an idle executor. rateHz is the playback tick
// rate (1-50 Hz), stepSize/orientationStep the planner spacings.
func NewExecutor(model *PoseModel, rateHz int, stepSize, orientationStep float64, logger logging.Logger) *Executor {
	return &Executor{
		model:           model,
		logger:          logger,
		rateHz:          rateHz,
		stepSize:        stepSize,
		orientationStep: orientationStep,
	}
}

// State returns the current execution state. Idle is only reported
// after the previous playback's ticker has been stopped.
func (e *Executor) State() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Progress returns the waypoint cursor and sequence length of the
// active playback, or (0, 0) when idle.
func (e *Executor) Progress() (index, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pb == nil {
		return 0, 0
	}
	return e.pb.index, len(e.pb.waypoints)
}

// History returns a copy of the waypoints applied so far, for progress
// reporting only.
func (e *Executor) History() []CartesianPose {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CartesianPose, len(e.history))
	copy(out, e.history)
	return out
}

// Start plans a trajectory from the model's current pose to target and
// begins playback. The whole sequence is validated before any state
// changes: if any waypoint is out of reach the request is rejected and
// the executor stays as it was. A Start while Executing tears down the
// running playback first, so at most one ticker exists per executor.
//
// An already-satisfied target (empty plan) is a no-op and returns nil.
func (e *Executor) Start(target CartesianPose) error {
	waypoints := GenerateLinear(e.model.Pose(), target, e.stepSize, e.orientationStep)
	if len(waypoints) == 0 {
		e.logger.Debug("trajectory target matches current pose, nothing to do")
		return nil
	}
	if err := ValidateWaypoints(waypoints); err != nil {
		return errors.Wrap(err, "trajectory rejected")
	}

	pb := &playback{
		waypoints: waypoints,
		ticker:    time.NewTicker(time.Second / time.Duration(e.rateHz)),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	// Teardown of a running playback and installation of the new one
	// happen in one critical section so two tickers can never coexist.
	e.mu.Lock()
	prev := e.pb
	if prev != nil {
		prev.ticker.Stop()
		close(prev.stop)
	}
	e.pb = pb
	e.state = StateExecuting
	e.history = e.history[:0]
	e.mu.Unlock()

	if prev != nil {
		<-prev.done
	}

	e.logger.Debugf("starting trajectory playback: %d waypoints at %d Hz", len(waypoints), e.rateHz)
	go e.run(pb)
	return nil
}

// Cancel stops the active playback, if any. The ticker is released and
// the state set to Idle before Cancel returns; a tick that raced the
// cancellation finds a stale playback and applies nothing.
func (e *Executor) Cancel() {
	e.mu.Lock()
	pb := e.pb
	if pb != nil {
		pb.ticker.Stop()
		close(pb.stop)
		e.pb = nil
		e.state = StateIdle
	}
	e.mu.Unlock()

	if pb != nil {
		<-pb.done
		e.logger.Debug("trajectory playback cancelled")
	}
}

func (e *Executor) run(pb *playback) {
	defer close(pb.done)
	for {
		select {
		case <-pb.ticker.C:
			if !e.tick(pb) {
				return
			}
		case <-pb.stop:
			return
		}
	}
}

// tick applies the waypoint at the cursor and advances. It returns
// false once playback is finished or the playback is no longer current.
func (e *Executor) tick(pb *playback) bool {
	e.mu.Lock()
	if e.pb != pb {
		// Cancelled or superseded between the ticker firing and now.
		e.mu.Unlock()
		return false
	}
	if pb.index >= len(pb.waypoints) {
		pb.ticker.Stop()
		e.pb = nil
		e.state = StateIdle
		e.mu.Unlock()
		e.logger.Debug("trajectory playback complete")
		return false
	}
	wp := pb.waypoints[pb.index]
	pb.index++
	e.history = append(e.history, wp)
	e.mu.Unlock()

	// Applying the waypoint recomputes joint angles and fans out to
	// subscribers (servo sink, sync channel) outside the executor lock.
	e.model.Set(wp, SourceExecutor)
	return true
}
