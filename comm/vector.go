package comm

import (
	"math"
	"sort"
)

// VectorCommunicator reduces nodal vectors over nodes shared between ranks.
// Sharing is discovered once by passing every rank's node global ids around
// the ring.
type VectorCommunicator struct {
	comm     Communicator
	numNodes int

	// shared[r] lists the local node ids also present on rank r, ordered by
	// global id so both sides of a pair agree on the order
	shared [][]int
}

// NewVectorCommunicator is collective: every rank must call it with its own
// local-to-global node map
func NewVectorCommunicator(c Communicator, nodeGlobalIDs []int) *VectorCommunicator {
	if c == nil {
		panic("vector communicator needs a communicator")
	}
	size, rank := c.Size(), c.Rank()
	vc := &VectorCommunicator{
		comm:     c,
		numNodes: len(nodeGlobalIDs),
		shared:   make([][]int, size),
	}

	localOf := make(map[int]int, len(nodeGlobalIDs))
	mine := make([]int, 0, len(nodeGlobalIDs))
	for local, gid := range nodeGlobalIDs {
		localOf[gid] = local
		mine = append(mine, gid)
	}
	sort.Ints(mine)

	for shift := 1; shift < size; shift++ {
		target, source := RingPartners(rank, size, shift)
		theirs := c.SendRecvInts(mine, target, source)
		// theirs arrives sorted, so the intersection is in global id order
		for _, gid := range theirs {
			if local, ok := localOf[gid]; ok {
				vc.shared[source] = append(vc.shared[source], local)
			}
		}
	}
	return vc
}

// Communicator returns the underlying communicator
func (vc *VectorCommunicator) Communicator() Communicator { return vc.comm }

// SharedWith returns the local node ids shared with rank r
func (vc *VectorCommunicator) SharedWith(r int) []int { return vc.shared[r] }

// PartitionBoundaryNodeLocalIDs returns every local node that also lives on
// another rank, in ascending local id order, together with the minimum rank
// that holds it
func (vc *VectorCommunicator) PartitionBoundaryNodeLocalIDs() (localIDs, minRank []int) {
	owner := make(map[int]int)
	for r, nodes := range vc.shared {
		for _, n := range nodes {
			if cur, ok := owner[n]; !ok || r < cur {
				owner[n] = r
			}
		}
	}
	localIDs = make([]int, 0, len(owner))
	for n := range owner {
		localIDs = append(localIDs, n)
	}
	sort.Ints(localIDs)
	minRank = make([]int, len(localIDs))
	for i, n := range localIDs {
		minRank[i] = owner[n]
		if vc.comm.Rank() < minRank[i] {
			minRank[i] = vc.comm.Rank()
		}
	}
	return
}

// VectorReduction sums data (dim values per node) over all ranks sharing each
// node. Collective.
func (vc *VectorCommunicator) VectorReduction(dim int, data []float64) {
	vc.reduce(dim, data, func(a, b float64) float64 { return a + b })
}

// VectorReductionMax replaces each shared value by its maximum over the
// sharing ranks. Collective.
func (vc *VectorCommunicator) VectorReductionMax(dim int, data []float64) {
	vc.reduce(dim, data, math.Max)
}

func (vc *VectorCommunicator) reduce(dim int, data []float64, op func(a, b float64) float64) {
	size, rank := vc.comm.Size(), vc.comm.Rank()
	if size == 1 {
		return
	}
	acc := append([]float64(nil), data...)
	for shift := 1; shift < size; shift++ {
		target, source := RingPartners(rank, size, shift)
		out := make([]float64, 0, dim*len(vc.shared[target]))
		for _, n := range vc.shared[target] {
			out = append(out, data[dim*n:dim*(n+1)]...)
		}
		in := vc.comm.SendRecvFloats(out, target, source)
		for i, n := range vc.shared[source] {
			for d := 0; d < dim; d++ {
				acc[dim*n+d] = op(acc[dim*n+d], in[dim*i+d])
			}
		}
	}
	copy(data, acc)
}
