package telearm

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ControllerEntry tracks one shared serial bus and its users.
type ControllerEntry struct {
	controller  *ServoController
	config      *Config
	calibration FullCalibration
	refCount    int64 // atomic
	lastError   error
	mu          sync.Mutex
}

// ControllerRegistry hands out shared ServoControllers keyed by serial
// port, so the arm component and the discovery service never fight over
// one bus. Controllers are closed when their last user releases them.
type ControllerRegistry struct {
	entries map[string]*ControllerEntry // port path -> entry
	mu      sync.RWMutex
}

// NewControllerRegistry creates an empty registry.
func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{entries: make(map[string]*ControllerEntry)}
}

// sharedRegistry is the process-wide registry used by the components.
var sharedRegistry = NewControllerRegistry()

// GetController returns the controller for the port, creating it on
// first use. A second caller with an incompatible config is refused
// rather than silently reconfiguring shared hardware.
func (r *ControllerRegistry) GetController(portPath string, config *Config, calibration FullCalibration) (*ServoController, error) {
	r.mu.RLock()
	entry, exists := r.entries[portPath]
	r.mu.RUnlock()

	if exists {
		return r.getExistingController(entry, config)
	}
	return r.createNewController(portPath, config, calibration)
}

func (r *ControllerRegistry) getExistingController(entry *ControllerEntry, config *Config) (*ServoController, error) {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.controller == nil {
		if entry.lastError != nil {
			return nil, fmt.Errorf("cached controller creation error: %w", entry.lastError)
		}
		return nil, fmt.Errorf("controller not available for port %s", entry.config.Port)
	}

	if !configsCompatible(entry.config, config) {
		return nil, fmt.Errorf("conflict: port %s already open with different serial settings (refCount: %d)",
			entry.config.Port, atomic.LoadInt64(&entry.refCount))
	}

	atomic.AddInt64(&entry.refCount, 1)
	return entry.controller, nil
}

func (r *ControllerRegistry) createNewController(portPath string, config *Config, calibration FullCalibration) (*ServoController, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[portPath]; exists {
		return r.getExistingController(entry, config)
	}

	entry := &ControllerEntry{config: config, calibration: calibration}

	controller, err := NewServoController(config.Port, config.Baudrate, config.ServoIDs, calibration, config.Logger)
	if err != nil {
		entry.lastError = err
		r.entries[portPath] = entry
		return nil, fmt.Errorf("failed to create servo controller: %w", err)
	}

	entry.controller = controller
	atomic.StoreInt64(&entry.refCount, 1)
	r.entries[portPath] = entry

	if config.Logger != nil {
		config.Logger.Infof("created shared servo controller for port %s", portPath)
	}
	return controller, nil
}

// ReleaseController drops one reference; the bus closes when the last
// reference goes.
func (r *ControllerRegistry) ReleaseController(portPath string) {
	r.mu.RLock()
	entry, exists := r.entries[portPath]
	r.mu.RUnlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if atomic.AddInt64(&entry.refCount, -1) > 0 {
		return
	}

	if entry.controller != nil {
		if err := entry.controller.Close(); err != nil && entry.config != nil && entry.config.Logger != nil {
			entry.config.Logger.Warnf("error closing shared controller for port %s: %v", portPath, err)
		}
	}

	r.mu.Lock()
	delete(r.entries, portPath)
	r.mu.Unlock()

	entry.controller = nil
	entry.lastError = nil
	atomic.StoreInt64(&entry.refCount, 0)
}

// ForceCloseController closes a port's controller regardless of
// references. For shutdown and tests.
func (r *ControllerRegistry) ForceCloseController(portPath string) error {
	r.mu.Lock()
	entry, exists := r.entries[portPath]
	if exists {
		delete(r.entries, portPath)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	var err error
	if entry.controller != nil {
		err = entry.controller.Close()
		entry.controller = nil
	}
	atomic.StoreInt64(&entry.refCount, 0)
	entry.lastError = nil
	return err
}

// Status reports the entry count and a per-port summary, for DoCommand
// introspection.
func (r *ControllerRegistry) Status() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.entries))
	for port, entry := range r.entries {
		out[port] = atomic.LoadInt64(&entry.refCount)
	}
	return out
}

func configsCompatible(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port && a.Baudrate == b.Baudrate && a.Timeout == b.Timeout
}
