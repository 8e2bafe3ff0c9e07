package comm

// Communicator is the cross-rank surface the contact core needs. Every rank
// must call collective operations in the same order.
type Communicator interface {
	Rank() int
	Size() int
	Barrier()

	// AllReduceMaxInt returns the maximum of v over all ranks
	AllReduceMaxInt(v int) int
	// AllReduceSumInts sums orig element-wise over all ranks into dest
	AllReduceSumInts(dest, orig []int)
	AllReduceMin(dest, orig []float64)
	AllReduceMax(dest, orig []float64)
	AllReduceSum(dest, orig []float64)

	// SendRecvInts sends buf to target and returns what source sent. The
	// receive length is negotiated with a one-integer size handshake.
	SendRecvInts(buf []int, target, source int) []int
	SendRecvFloats(buf []float64, target, source int) []float64
}

// RingPartners returns the target and source ranks of ring round shift
func RingPartners(rank, size, shift int) (target, source int) {
	target = (rank + shift) % size
	source = (rank - shift + size) % size
	return
}
