package runner

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/notargets/DGContact/runner/builder"
	"github.com/notargets/gocca"
)

// ArrayMetadata stores information about allocated arrays
type ArrayMetadata struct {
	Length   int // Logical element count; the allocation holds at least one
	DataType builder.DataType
}

// Runner owns a device, the kernels compiled for it and the named device
// arrays those kernels operate on
type Runner struct {
	*builder.Builder
	Device        *gocca.OCCADevice
	Kernels       map[string]*gocca.OCCAKernel
	PooledMemory  map[string]*gocca.OCCAMemory
	arrayMetadata map[string]ArrayMetadata
}

// NewRunner creates a new Runner instance
func NewRunner(device *gocca.OCCADevice, Config builder.Config) (kr *Runner) {
	if device == nil {
		panic("runner requires a device")
	}
	kr = &Runner{
		Builder:       builder.NewBuilder(Config),
		Device:        device,
		Kernels:       make(map[string]*gocca.OCCAKernel),
		PooledMemory:  make(map[string]*gocca.OCCAMemory),
		arrayMetadata: make(map[string]ArrayMetadata),
	}
	return
}

// AllocFloat64 allocates a device array initialized from data. An existing
// array of the same name is released first.
func (kr *Runner) AllocFloat64(name string, data []float64) *gocca.OCCAMemory {
	n := len(data)
	if n == 0 {
		data = []float64{0}
	}
	return kr.alloc(name, n, builder.Float64, int64(len(data)*8), unsafe.Pointer(&data[0]))
}

// AllocZeroFloat64 allocates a zeroed device array of n values
func (kr *Runner) AllocZeroFloat64(name string, n int) *gocca.OCCAMemory {
	return kr.AllocFloat64(name, make([]float64, n))
}

// AllocInt64 allocates a device array initialized from data
func (kr *Runner) AllocInt64(name string, data []int64) *gocca.OCCAMemory {
	n := len(data)
	if n == 0 {
		data = []int64{0}
	}
	return kr.alloc(name, n, builder.INT64, int64(len(data)*8), unsafe.Pointer(&data[0]))
}

func (kr *Runner) alloc(name string, n int, dt builder.DataType, bytes int64, src unsafe.Pointer) *gocca.OCCAMemory {
	if old, exists := kr.PooledMemory[name]; exists {
		old.Free()
	}
	mem := kr.Device.Malloc(bytes, src, nil)
	kr.PooledMemory[name] = mem
	kr.arrayMetadata[name] = ArrayMetadata{Length: n, DataType: dt}
	return mem
}

// GetMemory returns the device memory for a named array
func (kr *Runner) GetMemory(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName]
}

// GetArrayMetadata returns metadata for a named array
func (kr *Runner) GetArrayMetadata(arrayName string) (ArrayMetadata, bool) {
	meta, exists := kr.arrayMetadata[arrayName]
	return meta, exists
}

// GetAllocatedArrays returns a sorted list of allocated array names
func (kr *Runner) GetAllocatedArrays() []string {
	arrays := make([]string, 0, len(kr.arrayMetadata))
	for name := range kr.arrayMetadata {
		arrays = append(arrays, name)
	}
	sort.Strings(arrays)
	return arrays
}

func (kr *Runner) checkFloat64(name string, n int) (*gocca.OCCAMemory, error) {
	meta, exists := kr.arrayMetadata[name]
	if !exists {
		return nil, fmt.Errorf("array %s not found", name)
	}
	if meta.DataType != builder.Float64 {
		return nil, fmt.Errorf("array %s is not float64", name)
	}
	if n > meta.Length {
		return nil, fmt.Errorf("array %s holds %d values, %d requested", name, meta.Length, n)
	}
	return kr.PooledMemory[name], nil
}

// WriteFloat64 copies host data into the start of a device array
func (kr *Runner) WriteFloat64(name string, data []float64) error {
	mem, err := kr.checkFloat64(name, len(data))
	if err != nil {
		return err
	}
	if len(data) > 0 {
		mem.CopyFrom(unsafe.Pointer(&data[0]), int64(len(data)*8))
	}
	return nil
}

// ReadFloat64 copies the start of a device array into out
func (kr *Runner) ReadFloat64(name string, out []float64) error {
	mem, err := kr.checkFloat64(name, len(out))
	if err != nil {
		return err
	}
	if len(out) > 0 {
		mem.CopyTo(unsafe.Pointer(&out[0]), int64(len(out)*8))
	}
	return nil
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	kr.GeneratePreamble()

	// Combine preamble with kernel source
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error

	if kr.Device.Mode() == "OpenMP" {
		// OpenMP does not get -O3 by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}

	if old, exists := kr.Kernels[kernelName]; exists {
		old.Free()
	}
	kr.Kernels[kernelName] = kernel
	return kernel, nil
}

// RunKernel launches a compiled kernel and waits for the device
func (kr *Runner) RunKernel(kernelName string, args ...interface{}) error {
	kernel, exists := kr.Kernels[kernelName]
	if !exists {
		return fmt.Errorf("kernel %s not compiled", kernelName)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", kernelName, err)
	}
	kr.Device.Finish()
	return nil
}

// Free releases all kernels and device arrays. The device itself belongs to
// the caller.
func (kr *Runner) Free() {
	for _, kernel := range kr.Kernels {
		kernel.Free()
	}
	for _, mem := range kr.PooledMemory {
		mem.Free()
	}
	kr.Kernels = make(map[string]*gocca.OCCAKernel)
	kr.PooledMemory = make(map[string]*gocca.OCCAMemory)
	kr.arrayMetadata = make(map[string]ArrayMetadata)
}
