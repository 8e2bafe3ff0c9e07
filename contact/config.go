package contact

import (
	"fmt"
	"runtime"
)

// Backend selects where the per-node and per-entity loops run
type Backend int

const (
	BackendSerial Backend = iota
	BackendThreaded
	BackendDevice
)

func (b Backend) String() string {
	switch b {
	case BackendThreaded:
		return "Threaded"
	case BackendDevice:
		return "Device"
	default:
		return "Serial"
	}
}

// Config holds the contact settings. Zero values select the serial backend,
// runtime.NumCPU() workers for the threaded backend and DefaultTolerance.
type Config struct {
	PrimaryBlocks    []int
	SecondaryBlocks  []int
	PenaltyParameter float64

	Backend   Backend
	Workers   int
	Tolerance float64
	Verbose   bool

	// Mirror runs the nodal loops for BackendDevice
	Mirror DeviceMirror
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// Validate reports settings that cannot run
func (c Config) Validate() error {
	if c.PenaltyParameter <= 0 {
		return fmt.Errorf("penalty %g: %w", c.PenaltyParameter, ErrInvalidPenalty)
	}
	if c.Backend == BackendDevice && c.Mirror == nil {
		return fmt.Errorf("device backend requires a device mirror")
	}
	return nil
}
