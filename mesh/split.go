package mesh

import (
	"fmt"

	"github.com/notargets/DGContact/partitions"
)

// Split decomposes a serial mesh into numRanks rank-local meshes. Elements are
// assigned with the partition strategy, each rank keeps every node its
// elements touch, and global ids are preserved so nodes on partition
// boundaries appear on more than one rank.
func Split(hm *HexMesh, numRanks int, strategy partitions.PartitionStrategy) ([]*HexMesh, error) {
	layout, err := Partition(hm, numRanks, strategy)
	if err != nil {
		return nil, err
	}
	return SplitByLayout(hm, layout)
}

// elemRef locates an element by block position and index within the block
type elemRef struct{ block, elem int }

// elementRefs lists every element in block order, the numbering the
// partition layout uses
func elementRefs(hm *HexMesh) []elemRef {
	var refs []elemRef
	for bi, b := range hm.Blocks {
		for e := 0; e < b.NumElements(); e++ {
			refs = append(refs, elemRef{bi, e})
		}
	}
	return refs
}

// Partition assigns the elements of hm, numbered across blocks in block
// order, to numRanks partitions
func Partition(hm *HexMesh, numRanks int, strategy partitions.PartitionStrategy) (*partitions.PartitionLayout, error) {
	if numRanks < 1 {
		return nil, fmt.Errorf("rank count must be positive, got %d", numRanks)
	}
	var centroids [][3]float64
	for _, b := range hm.Blocks {
		for e := 0; e < b.NumElements(); e++ {
			var c [3]float64
			nodes := b.Connectivity[e*b.NodesPerElem : (e+1)*b.NodesPerElem]
			for _, n := range nodes {
				c[0] += hm.X[n]
				c[1] += hm.Y[n]
				c[2] += hm.Z[n]
			}
			for d := range c {
				c[d] /= float64(len(nodes))
			}
			centroids = append(centroids, c)
		}
	}

	pb := &partitions.PartitionBuilder{
		Mesh: &partitions.MeshConnectivity{
			NumElements: len(centroids),
			Centroids:   centroids,
		},
		NumPartitions: numRanks,
		Strategy:      strategy,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, fmt.Errorf("failed to partition mesh: %w", err)
	}
	return layout, nil
}

// SplitByLayout builds one rank-local mesh per partition of layout
func SplitByLayout(hm *HexMesh, layout *partitions.PartitionLayout) ([]*HexMesh, error) {
	refs := elementRefs(hm)
	if layout.TotalElements != len(refs) {
		return nil, fmt.Errorf("layout covers %d elements, mesh has %d", layout.TotalElements, len(refs))
	}
	numRanks := layout.NumPartitions
	var err error
	ranks := make([]*HexMesh, numRanks)
	for r := 0; r < numRanks; r++ {
		var part partitions.Partition
		if r < len(layout.Partitions) {
			part = layout.Partitions[r]
		}

		// Rank-local nodes in ascending serial index order
		used := make([]bool, hm.NumNodes())
		for _, k := range part.Elements {
			ref := refs[k]
			b := hm.Blocks[ref.block]
			for _, n := range b.Connectivity[ref.elem*b.NodesPerElem : (ref.elem+1)*b.NodesPerElem] {
				used[n] = true
			}
		}
		localOf := make([]int, hm.NumNodes())
		var x, y, z []float64
		var gids []int
		for n, u := range used {
			localOf[n] = -1
			if !u {
				continue
			}
			localOf[n] = len(x)
			x = append(x, hm.X[n])
			y = append(y, hm.Y[n])
			z = append(z, hm.Z[n])
			gids = append(gids, hm.NodeGlobalID[n])
		}

		blocks := make([]*Block, len(hm.Blocks))
		for bi, b := range hm.Blocks {
			blocks[bi] = &Block{
				ID:           b.ID,
				Name:         b.Name,
				NodesPerElem: b.NodesPerElem,
				Connectivity: []int{},
				ElemGlobalID: []int{},
			}
		}
		for _, k := range part.Elements {
			ref := refs[k]
			b := hm.Blocks[ref.block]
			lb := blocks[ref.block]
			for _, n := range b.Connectivity[ref.elem*b.NodesPerElem : (ref.elem+1)*b.NodesPerElem] {
				lb.Connectivity = append(lb.Connectivity, localOf[n])
			}
			lb.ElemGlobalID = append(lb.ElemGlobalID, b.ElemGlobalID[ref.elem])
		}

		if ranks[r], err = NewHexMesh(x, y, z, gids, blocks); err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return ranks, nil
}
