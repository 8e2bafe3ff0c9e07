package mesh

import (
	"fmt"
	"sort"
)

// Mesh is the read-only view of a rank-local finite element mesh that the
// contact core consumes. Node and element indices are rank-local, global ids
// are consistent across ranks.
type Mesh interface {
	NumNodes() int
	CoordinatesX() []float64
	CoordinatesY() []float64
	CoordinatesZ() []float64
	NodeGlobalIDs() []int
	MaxNodeGlobalID() int

	BlockIDs() []int
	NumElementsInBlock(blockID int) int
	NumNodesPerElement(blockID int) int
	Connectivity(blockID int) []int
	ElementGlobalIDsInBlock(blockID int) []int
}

// HexNodesPerElement is the corner count of a trilinear hexahedron
const HexNodesPerElement = 8

// Block is a set of elements of a single type
type Block struct {
	ID           int
	Name         string
	NodesPerElem int
	Connectivity []int // Len NumElements*NodesPerElem, rank-local node indices
	ElemGlobalID []int // 0-based global element ids
}

// NumElements returns the element count of the block
func (b *Block) NumElements() int {
	if b.NodesPerElem == 0 {
		return 0
	}
	return len(b.Connectivity) / b.NodesPerElem
}

// HexMesh is an in-memory implementation of Mesh holding hexahedral blocks
// in Exodus node ordering.
type HexMesh struct {
	X, Y, Z      []float64
	NodeGlobalID []int
	Blocks       []*Block

	blockIndex map[int]int
}

// NewHexMesh wraps coordinate, id and block data into a HexMesh
func NewHexMesh(x, y, z []float64, nodeGlobalIDs []int, blocks []*Block) (*HexMesh, error) {
	if len(x) != len(y) || len(x) != len(z) || len(x) != len(nodeGlobalIDs) {
		return nil, fmt.Errorf("inconsistent node arrays: x=%d y=%d z=%d ids=%d",
			len(x), len(y), len(z), len(nodeGlobalIDs))
	}
	hm := &HexMesh{
		X:            x,
		Y:            y,
		Z:            z,
		NodeGlobalID: nodeGlobalIDs,
		Blocks:       blocks,
	}
	if err := hm.index(); err != nil {
		return nil, err
	}
	return hm, nil
}

func (hm *HexMesh) index() error {
	hm.blockIndex = make(map[int]int, len(hm.Blocks))
	for i, b := range hm.Blocks {
		if _, dup := hm.blockIndex[b.ID]; dup {
			return fmt.Errorf("duplicate block id %d", b.ID)
		}
		if b.NodesPerElem > 0 && len(b.Connectivity)%b.NodesPerElem != 0 {
			return fmt.Errorf("block %d: connectivity length %d is not a multiple of %d",
				b.ID, len(b.Connectivity), b.NodesPerElem)
		}
		if len(b.ElemGlobalID) != b.NumElements() {
			return fmt.Errorf("block %d: %d element ids for %d elements",
				b.ID, len(b.ElemGlobalID), b.NumElements())
		}
		for _, n := range b.Connectivity {
			if n < 0 || n >= len(hm.X) {
				return fmt.Errorf("block %d: node index %d out of range [0,%d)", b.ID, n, len(hm.X))
			}
		}
		hm.blockIndex[b.ID] = i
	}
	return nil
}

func (hm *HexMesh) block(blockID int) *Block {
	if i, ok := hm.blockIndex[blockID]; ok {
		return hm.Blocks[i]
	}
	return nil
}

func (hm *HexMesh) NumNodes() int           { return len(hm.X) }
func (hm *HexMesh) CoordinatesX() []float64 { return hm.X }
func (hm *HexMesh) CoordinatesY() []float64 { return hm.Y }
func (hm *HexMesh) CoordinatesZ() []float64 { return hm.Z }
func (hm *HexMesh) NodeGlobalIDs() []int    { return hm.NodeGlobalID }

// MaxNodeGlobalID returns the largest node global id on this rank, -1 if empty
func (hm *HexMesh) MaxNodeGlobalID() int {
	maxID := -1
	for _, id := range hm.NodeGlobalID {
		if id > maxID {
			maxID = id
		}
	}
	return maxID
}

// BlockIDs returns the block ids in ascending order
func (hm *HexMesh) BlockIDs() []int {
	ids := make([]int, 0, len(hm.Blocks))
	for _, b := range hm.Blocks {
		ids = append(ids, b.ID)
	}
	sort.Ints(ids)
	return ids
}

func (hm *HexMesh) NumElementsInBlock(blockID int) int {
	if b := hm.block(blockID); b != nil {
		return b.NumElements()
	}
	return 0
}

func (hm *HexMesh) NumNodesPerElement(blockID int) int {
	if b := hm.block(blockID); b != nil {
		return b.NodesPerElem
	}
	return 0
}

func (hm *HexMesh) Connectivity(blockID int) []int {
	if b := hm.block(blockID); b != nil {
		return b.Connectivity
	}
	return nil
}

func (hm *HexMesh) ElementGlobalIDsInBlock(blockID int) []int {
	if b := hm.block(blockID); b != nil {
		return b.ElemGlobalID
	}
	return nil
}

// NumElements returns the element count over all blocks
func (hm *HexMesh) NumElements() int {
	n := 0
	for _, b := range hm.Blocks {
		n += b.NumElements()
	}
	return n
}

// Append merges other into hm. Node and element global ids are kept as they
// are, so the caller is responsible for keeping them disjoint.
func (hm *HexMesh) Append(other *HexMesh) error {
	base := len(hm.X)
	hm.X = append(hm.X, other.X...)
	hm.Y = append(hm.Y, other.Y...)
	hm.Z = append(hm.Z, other.Z...)
	hm.NodeGlobalID = append(hm.NodeGlobalID, other.NodeGlobalID...)
	for _, ob := range other.Blocks {
		conn := make([]int, len(ob.Connectivity))
		for i, n := range ob.Connectivity {
			conn[i] = n + base
		}
		hm.Blocks = append(hm.Blocks, &Block{
			ID:           ob.ID,
			Name:         ob.Name,
			NodesPerElem: ob.NodesPerElem,
			Connectivity: conn,
			ElemGlobalID: append([]int(nil), ob.ElemGlobalID...),
		})
	}
	return hm.index()
}
