package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoxSpec describes a structured block of Nx*Ny*Nz hexahedra
type BoxSpec struct {
	Nx, Ny, Nz int
	Origin     r3.Vec
	Size       r3.Vec
	BlockID    int
	BlockName  string

	// Added to the generated 0-based node and element global ids
	NodeIDOffset int
	ElemIDOffset int
}

// NumNodes returns the node count of the box
func (bs BoxSpec) NumNodes() int {
	return (bs.Nx + 1) * (bs.Ny + 1) * (bs.Nz + 1)
}

// NumElements returns the hexahedron count of the box
func (bs BoxSpec) NumElements() int {
	return bs.Nx * bs.Ny * bs.Nz
}

// NewBoxMesh generates a single-block structured hex mesh. Nodes are numbered
// x fastest, then y, then z; elements follow the same order and use Exodus
// corner ordering so that skin faces have outward normals.
func NewBoxMesh(bs BoxSpec) (*HexMesh, error) {
	if bs.Nx < 1 || bs.Ny < 1 || bs.Nz < 1 {
		return nil, fmt.Errorf("box needs at least one element per direction, got %dx%dx%d",
			bs.Nx, bs.Ny, bs.Nz)
	}
	if bs.Size.X <= 0 || bs.Size.Y <= 0 || bs.Size.Z <= 0 {
		return nil, fmt.Errorf("box size must be positive, got %v", bs.Size)
	}

	nnx, nny, nnz := bs.Nx+1, bs.Ny+1, bs.Nz+1
	nNodes := nnx * nny * nnz
	x := make([]float64, nNodes)
	y := make([]float64, nNodes)
	z := make([]float64, nNodes)
	gids := make([]int, nNodes)

	dx := bs.Size.X / float64(bs.Nx)
	dy := bs.Size.Y / float64(bs.Ny)
	dz := bs.Size.Z / float64(bs.Nz)

	node := func(i, j, k int) int { return i + nnx*(j+nny*k) }
	for k := 0; k < nnz; k++ {
		for j := 0; j < nny; j++ {
			for i := 0; i < nnx; i++ {
				n := node(i, j, k)
				x[n] = bs.Origin.X + float64(i)*dx
				y[n] = bs.Origin.Y + float64(j)*dy
				z[n] = bs.Origin.Z + float64(k)*dz
				gids[n] = bs.NodeIDOffset + n
			}
		}
	}

	nElem := bs.NumElements()
	conn := make([]int, 0, nElem*HexNodesPerElement)
	egids := make([]int, 0, nElem)
	for k := 0; k < bs.Nz; k++ {
		for j := 0; j < bs.Ny; j++ {
			for i := 0; i < bs.Nx; i++ {
				conn = append(conn,
					node(i, j, k), node(i+1, j, k), node(i+1, j+1, k), node(i, j+1, k),
					node(i, j, k+1), node(i+1, j, k+1), node(i+1, j+1, k+1), node(i, j+1, k+1),
				)
				egids = append(egids, bs.ElemIDOffset+len(egids))
			}
		}
	}

	return NewHexMesh(x, y, z, gids, []*Block{{
		ID:           bs.BlockID,
		Name:         bs.BlockName,
		NodesPerElem: HexNodesPerElement,
		Connectivity: conn,
		ElemGlobalID: egids,
	}})
}
