package dispatch

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/notargets/DGContact/partitions"
)

// Executor runs an index-parallel loop. Bodies must only write to locations
// owned by their index; the executor gives no ordering guarantees between
// indices.
type Executor interface {
	Name() string
	ParallelFor(label string, n int, body func(i int))
}

// Serial runs every loop on the calling goroutine
type Serial struct{}

func (Serial) Name() string { return "Serial" }

func (Serial) ParallelFor(_ string, n int, body func(i int)) {
	for i := 0; i < n; i++ {
		body(i)
	}
}

// Threaded cuts each loop into block partitions and runs one goroutine per
// partition
type Threaded struct {
	Workers int

	mu      sync.Mutex
	layouts map[int]*partitions.PartitionLayout
}

// NewThreaded creates a threaded executor. Zero or negative worker counts
// default to runtime.NumCPU().
func NewThreaded(workers int) *Threaded {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Threaded{
		Workers: workers,
		layouts: make(map[int]*partitions.PartitionLayout),
	}
}

func (th *Threaded) Name() string { return fmt.Sprintf("Threaded(%d)", th.Workers) }

func (th *Threaded) ParallelFor(label string, n int, body func(i int)) {
	if n <= 0 {
		return
	}
	if th.Workers <= 1 || n == 1 {
		Serial{}.ParallelFor(label, n, body)
		return
	}

	layout := th.layout(n)
	var wg sync.WaitGroup
	for p := 0; p < layout.NumPartitions; p++ {
		start, end := layout.Range(p)
		if start == end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				body(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// layout caches one block layout per loop length; contact loops repeat the
// same lengths every step
func (th *Threaded) layout(n int) *partitions.PartitionLayout {
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.layouts == nil {
		th.layouts = make(map[int]*partitions.PartitionLayout)
	}
	if l, ok := th.layouts[n]; ok {
		return l
	}
	l, err := partitions.NewBlockLayout(n, th.Workers)
	if err != nil {
		panic(fmt.Errorf("failed to partition %d loop indices: %w", n, err))
	}
	th.layouts[n] = l
	return l
}

// New returns the executor for a worker count: Serial for one worker,
// Threaded otherwise
func New(workers int) Executor {
	if workers == 1 {
		return Serial{}
	}
	return NewThreaded(workers)
}
