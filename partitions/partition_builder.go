package partitions

import (
	"fmt"
	"math"
	"sort"
)

// PartitionBuilder constructs partitions from mesh connectivity
type PartitionBuilder struct {
	// Mesh connectivity
	Mesh *MeshConnectivity

	// Partitioning parameters. NumPartitions wins over TargetPartitionSize
	// when both are set.
	NumPartitions       int // Exact partition count
	TargetPartitionSize int // Desired elements per partition
	Strategy            PartitionStrategy
}

// MeshConnectivity provides the mesh topology needed for partitioning
type MeshConnectivity struct {
	NumElements int

	// Element centroids, required by SpaceFillingCurve
	Centroids [][3]float64
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// Simple strategies
	BlockPartition PartitionStrategy = iota // Consecutive elements
	RoundRobin                              // Distribute cyclically

	// Geometric strategies
	SpaceFillingCurve // Morton curve ordering of element centroids
)

// NewBlockLayout is the common case used by the threaded executor: n indices
// cut into at most numPartitions consecutive runs
func NewBlockLayout(n, numPartitions int) (*PartitionLayout, error) {
	if numPartitions > n {
		numPartitions = n
	}
	pb := &PartitionBuilder{
		Mesh:          &MeshConnectivity{NumElements: n},
		NumPartitions: numPartitions,
		Strategy:      BlockPartition,
	}
	return pb.BuildPartitions()
}

// BuildPartitions creates a partition layout from mesh connectivity
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.Mesh == nil {
		return nil, fmt.Errorf("partition builder has no mesh connectivity")
	}
	if pb.Strategy == SpaceFillingCurve && len(pb.Mesh.Centroids) != pb.Mesh.NumElements {
		return nil, fmt.Errorf("space filling curve needs %d centroids, got %d",
			pb.Mesh.NumElements, len(pb.Mesh.Centroids))
	}

	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Partition the elements
	eToP := pb.partitionElements(numPartitions)

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	// Calculate KpartMax for OCCA
	kpartMax := pb.calculateKpartMax(partitions)

	// Set MaxElements for all partitions
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements,
		NumPartitions: numPartitions,
		EToP:          eToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions <= 0 && pb.TargetPartitionSize > 0 {
		numPartitions = int(math.Ceil(float64(pb.Mesh.NumElements) / float64(pb.TargetPartitionSize)))
	}

	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	n := pb.Mesh.NumElements
	eToP := make([]int, n)

	switch pb.Strategy {
	case RoundRobin:
		for i := 0; i < n; i++ {
			eToP[i] = i % numPartitions
		}

	case SpaceFillingCurve:
		order := mortonOrder(pb.Mesh.Centroids)
		for rank, elem := range order {
			eToP[elem] = blockOwner(rank, n, numPartitions)
		}

	default:
		for i := 0; i < n; i++ {
			eToP[i] = blockOwner(i, n, numPartitions)
		}
	}

	return eToP
}

// blockOwner spreads n items over numPartitions consecutive runs whose
// sizes differ by at most one
func blockOwner(i, n, numPartitions int) int {
	base := n / numPartitions
	extra := n % numPartitions
	// The first extra partitions hold base+1 items
	cut := extra * (base + 1)
	if i < cut {
		return i / (base + 1)
	}
	if base == 0 {
		return numPartitions - 1
	}
	return extra + (i-cut)/base
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:       i,
			Elements: make([]int, 0),
		}
	}

	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].NumElements++
	}

	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// mortonOrder returns element indices sorted along a Z-order curve through
// the centroid bounding box
func mortonOrder(centroids [][3]float64) []int {
	var lo, hi [3]float64
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	for _, c := range centroids {
		for d := 0; d < 3; d++ {
			lo[d] = math.Min(lo[d], c[d])
			hi[d] = math.Max(hi[d], c[d])
		}
	}

	const levels = 1 << 20
	keys := make([]uint64, len(centroids))
	for i, c := range centroids {
		var q [3]uint64
		for d := 0; d < 3; d++ {
			span := hi[d] - lo[d]
			if span > 0 {
				q[d] = uint64((c[d] - lo[d]) / span * float64(levels-1))
			}
		}
		keys[i] = interleave3(q[0]) | interleave3(q[1])<<1 | interleave3(q[2])<<2
	}

	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})
	return order
}

// interleave3 spreads the low 21 bits of v so that two zero bits separate
// each original bit
func interleave3(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}
