package partitions

import (
	"fmt"
	"math"
)

// Partition represents a collection of items (elements, nodes, contact
// entities) that execute together as one unit of parallel work, or that
// live together on one rank
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Membership
	Elements    []int // Global item indices in this partition
	NumElements int   // Actual number of active items
	MaxElements int   // Padded size for OCCA @inner loop uniformity
}

// PartitionLayout manages the complete decomposition
type PartitionLayout struct {
	// All partitions
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions for OCCA
	TotalElements int // Sum of all actual items across partitions
	NumPartitions int // Total number of partitions

	// Item to partition mapping
	EToP []int // Length TotalElements: item k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if len(p.Elements) != p.NumElements {
			return fmt.Errorf("partition %d: %d members recorded, NumElements %d",
				p.ID, len(p.Elements), p.NumElements)
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, layout declares %d",
			total, pl.TotalElements)
	}
	return nil
}

// Range returns the half-open index range [start, end) of a partition
// holding a consecutive run of indices, as BlockPartition produces
func (pl *PartitionLayout) Range(partitionID int) (start, end int) {
	p := pl.Partitions[partitionID]
	if p.NumElements == 0 {
		return 0, 0
	}
	return p.Elements[0], p.Elements[p.NumElements-1] + 1
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(pl.TotalElements) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}

	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}
