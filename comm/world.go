package comm

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// linkDepth is the number of messages a sender may run ahead of its receiver
// on one ordered rank pair
const linkDepth = 64

type message struct {
	ints   []int
	floats []float64
}

// World is an in-process group of ranks connected by buffered channels, one
// per ordered rank pair. Messages between a pair are delivered in order.
type World struct {
	size  int
	links [][]chan message // links[from][to]
}

// NewWorld creates a world of size ranks
func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, got %d", size))
	}
	w := &World{size: size, links: make([][]chan message, size)}
	for from := range w.links {
		w.links[from] = make([]chan message, size)
		for to := range w.links[from] {
			w.links[from][to] = make(chan message, linkDepth)
		}
	}
	return w
}

// Size returns the rank count
func (w *World) Size() int { return w.size }

// Comm returns the communicator of one rank
func (w *World) Comm(rank int) Communicator {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d outside world of size %d", rank, w.size))
	}
	return &worldComm{world: w, rank: rank}
}

// Run executes fn once per rank, each on its own goroutine, and joins the
// per-rank errors. A panicking rank is reported as an error.
func (w *World) Run(fn func(c Communicator) error) error {
	errs := make([]error, w.size)
	var wg sync.WaitGroup
	for r := 0; r < w.size; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					errs[rank] = fmt.Errorf("rank %d panicked: %v", rank, p)
				}
			}()
			if err := fn(w.Comm(rank)); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
			}
		}(r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

type worldComm struct {
	world *World
	rank  int
}

func (wc *worldComm) Rank() int { return wc.rank }
func (wc *worldComm) Size() int { return wc.world.size }

func (wc *worldComm) send(to int, m message) {
	wc.world.links[wc.rank][to] <- m
}

func (wc *worldComm) recv(from int) message {
	return <-wc.world.links[from][wc.rank]
}

func (wc *worldComm) Barrier() {
	wc.allReduceFloats(nil, nil, nil)
}

// allReduceFloats gathers to rank 0, combines in rank order and broadcasts
func (wc *worldComm) allReduceFloats(dest, orig []float64, op func(a, b float64) float64) {
	size := wc.world.size
	if wc.rank != 0 {
		wc.send(0, message{floats: append([]float64(nil), orig...)})
		copy(dest, wc.recv(0).floats)
		return
	}
	acc := append([]float64(nil), orig...)
	for r := 1; r < size; r++ {
		in := wc.recv(r).floats
		for i := range acc {
			acc[i] = op(acc[i], in[i])
		}
	}
	for r := 1; r < size; r++ {
		wc.send(r, message{floats: append([]float64(nil), acc...)})
	}
	copy(dest, acc)
}

func (wc *worldComm) allReduceInts(dest, orig []int, op func(a, b int) int) {
	size := wc.world.size
	if wc.rank != 0 {
		wc.send(0, message{ints: append([]int(nil), orig...)})
		copy(dest, wc.recv(0).ints)
		return
	}
	acc := append([]int(nil), orig...)
	for r := 1; r < size; r++ {
		in := wc.recv(r).ints
		for i := range acc {
			acc[i] = op(acc[i], in[i])
		}
	}
	for r := 1; r < size; r++ {
		wc.send(r, message{ints: append([]int(nil), acc...)})
	}
	copy(dest, acc)
}

func (wc *worldComm) AllReduceMaxInt(v int) int {
	out := []int{v}
	wc.allReduceInts(out, out, func(a, b int) int {
		if b > a {
			return b
		}
		return a
	})
	return out[0]
}

func (wc *worldComm) AllReduceSumInts(dest, orig []int) {
	wc.allReduceInts(dest, orig, func(a, b int) int { return a + b })
}

func (wc *worldComm) AllReduceMin(dest, orig []float64) {
	wc.allReduceFloats(dest, orig, math.Min)
}

func (wc *worldComm) AllReduceMax(dest, orig []float64) {
	wc.allReduceFloats(dest, orig, math.Max)
}

func (wc *worldComm) AllReduceSum(dest, orig []float64) {
	wc.allReduceFloats(dest, orig, func(a, b float64) float64 { return a + b })
}

// SendRecvInts sends before it receives; the link buffers make the ring
// exchange deadlock free
func (wc *worldComm) SendRecvInts(buf []int, target, source int) []int {
	wc.send(target, message{ints: append([]int(nil), buf...)})
	return wc.recv(source).ints
}

func (wc *worldComm) SendRecvFloats(buf []float64, target, source int) []float64 {
	wc.send(target, message{floats: append([]float64(nil), buf...)})
	return wc.recv(source).floats
}

// Self returns the communicator of a single-rank world
func Self() Communicator {
	return NewWorld(1).Comm(0)
}
