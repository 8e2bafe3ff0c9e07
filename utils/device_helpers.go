package utils

import (
	"fmt"

	"github.com/cpmech/gosl/io"
	"github.com/notargets/gocca"
)

// deviceProps maps a device mode to its OCCA properties
var deviceProps = map[string]string{
	"Serial": `{"mode": "Serial"}`,
	"OpenMP": `{"mode": "OpenMP"}`,
	"CUDA":   `{"mode": "CUDA", "device_id": 0}`,
}

// CreateDevice creates a device of the named mode: Serial, OpenMP or CUDA
func CreateDevice(mode string) (*gocca.OCCADevice, error) {
	props, ok := deviceProps[mode]
	if !ok {
		return nil, fmt.Errorf("unknown device mode %q", mode)
	}
	device, err := gocca.NewDevice(props)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s device: %w", mode, err)
	}
	return device, nil
}

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	for _, mode := range []string{"OpenMP", "CUDA", "Serial"} {
		device, err := CreateDevice(mode)
		if err == nil {
			io.Pf("Created %s Device\n", device.Mode())
			return device
		}
	}

	// Should not reach here
	panic("Failed to create any Device")
}
