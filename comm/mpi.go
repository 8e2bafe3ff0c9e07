//go:build mpi

package comm

import (
	"fmt"

	"github.com/cpmech/gosl/mpi"
)

// MPI is a Communicator over the MPI world communicator
type MPI struct {
	c *mpi.Communicator
}

// NewMPI wraps the world communicator. mpi.Start must have been called.
func NewMPI() *MPI {
	if !mpi.IsOn() {
		panic("MPI is not running; call mpi.Start first")
	}
	return &MPI{c: mpi.NewCommunicator(nil)}
}

func (m *MPI) Rank() int { return m.c.Rank() }
func (m *MPI) Size() int { return m.c.Size() }
func (m *MPI) Barrier()  { m.c.Barrier() }

func (m *MPI) AllReduceMaxInt(v int) int {
	out := []int{0}
	m.c.AllReduceMaxI(out, []int{v})
	return out[0]
}

// AllReduceSumInts goes through the float64 reduction, exact for counts
// below 2^53
func (m *MPI) AllReduceSumInts(dest, orig []int) {
	in := make([]float64, len(orig))
	for i, v := range orig {
		in[i] = float64(v)
	}
	out := make([]float64, len(orig))
	m.c.AllReduceSum(out, in)
	for i, v := range out {
		dest[i] = int(v)
	}
}

func (m *MPI) AllReduceMin(dest, orig []float64) { m.c.AllReduceMin(dest, orig) }
func (m *MPI) AllReduceMax(dest, orig []float64) { m.c.AllReduceMax(dest, orig) }
func (m *MPI) AllReduceSum(dest, orig []float64) { m.c.AllReduceSum(dest, orig) }

// recvFirst orders a ring round so it cannot deadlock with blocking sends:
// the ranks of one shift form gcd(size, shift) cycles, and the smallest rank
// of each cycle receives before it sends
func (m *MPI) recvFirst(target int) bool {
	size := m.Size()
	shift := (target - m.Rank() + size) % size
	return m.Rank() < gcd(size, shift)
}

func (m *MPI) SendRecvInts(buf []int, target, source int) []int {
	if target == m.Rank() && source == m.Rank() {
		return append([]int(nil), buf...)
	}
	var in []int
	recv := func() {
		n := m.c.RecvOneI(source)
		in = make([]int, n)
		if n > 0 {
			m.c.RecvI(in, source)
		}
	}
	send := func() {
		m.c.SendOneI(len(buf), target)
		if len(buf) > 0 {
			m.c.SendI(buf, target)
		}
	}
	if m.recvFirst(target) {
		recv()
		send()
	} else {
		send()
		recv()
	}
	return in
}

func (m *MPI) SendRecvFloats(buf []float64, target, source int) []float64 {
	if target == m.Rank() && source == m.Rank() {
		return append([]float64(nil), buf...)
	}
	var in []float64
	recv := func() {
		n := m.c.RecvOneI(source)
		in = make([]float64, n)
		if n > 0 {
			m.c.Recv(in, source)
		}
	}
	send := func() {
		m.c.SendOneI(len(buf), target)
		if len(buf) > 0 {
			m.c.Send(buf, target)
		}
	}
	if m.recvFirst(target) {
		recv()
		send()
	} else {
		send()
		recv()
	}
	return in
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// String identifies the rank in log lines
func (m *MPI) String() string {
	return fmt.Sprintf("mpi rank %d of %d", m.Rank(), m.Size())
}
