package contact

import (
	"testing"

	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/mesh"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	lowerBlock = 1
	upperBlock = 2
)

func unitCube(t *testing.T) *mesh.HexMesh {
	hm, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: 1, Ny: 1, Nz: 1,
		Size:    r3.Vec{X: 1, Y: 1, Z: 1},
		BlockID: lowerBlock,
	})
	require.NoError(t, err)
	return hm
}

func boxMesh(t *testing.T, nx, ny, nz int) *mesh.HexMesh {
	hm, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: nx, Ny: ny, Nz: nz,
		Size:    r3.Vec{X: float64(nx), Y: float64(ny), Z: float64(nz)},
		BlockID: lowerBlock,
	})
	require.NoError(t, err)
	return hm
}

// stackedBlocks is a 2x2x1 primary slab on [0,2]x[0,2]x[0,1] with a single
// secondary hex on [0.3,1.3]x[0.4,1.4]x[1,2] resting on it. The upper hex
// bottom nodes land strictly inside the left triangles of the slab top
// quads.
func stackedBlocks(t *testing.T) *mesh.HexMesh {
	return stackedBlocksAt(t, r3.Vec{X: 0.3, Y: 0.4, Z: 1}, r3.Vec{X: 1, Y: 1, Z: 1})
}

// stackedBlocksAt places the secondary hex at origin with the given size
func stackedBlocksAt(t *testing.T, origin, size r3.Vec) *mesh.HexMesh {
	lower, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: 2, Ny: 2, Nz: 1,
		Size:      r3.Vec{X: 2, Y: 2, Z: 1},
		BlockID:   lowerBlock,
		BlockName: "slab",
	})
	require.NoError(t, err)
	upper, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: 1, Ny: 1, Nz: 1,
		Origin:       origin,
		Size:         size,
		BlockID:      upperBlock,
		BlockName:    "punch",
		NodeIDOffset: lower.NumNodes(),
		ElemIDOffset: lower.NumElements(),
	})
	require.NoError(t, err)
	require.NoError(t, lower.Append(upper))
	return lower
}

// pressDown displaces every node of the upper block by dz
func pressDown(m *mesh.HexMesh, dz float64) []float64 {
	disp := make([]float64, 3*m.NumNodes())
	for _, n := range m.Connectivity(upperBlock) {
		disp[3*n+2] = dz
	}
	return disp
}

func selfVector(m mesh.Mesh) *comm.VectorCommunicator {
	return comm.NewVectorCommunicator(comm.Self(), m.NodeGlobalIDs())
}

func triangle(p1, p2, p3 r3.Vec, charLen float64) *ContactEntity {
	return &ContactEntity{
		Kind:    TriangleEntity,
		CharLen: charLen,
		Coords:  [9]float64{p1.X, p1.Y, p1.Z, p2.X, p2.Y, p2.Z, p3.X, p3.Y, p3.Z},
	}
}

func point(p r3.Vec) *ContactEntity {
	return &ContactEntity{Kind: NodeEntity, Coords: [9]float64{p.X, p.Y, p.Z}}
}
