package accel

import (
	"math/rand"
	"testing"

	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/contact"
	"github.com/notargets/DGContact/dispatch"
	"github.com/notargets/DGContact/mesh"
	"github.com/notargets/DGContact/runner/builder"
	"github.com/notargets/DGContact/search"
	"github.com/notargets/DGContact/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func pressedBlocks(t *testing.T) *mesh.HexMesh {
	slab, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: 2, Ny: 2, Nz: 1, Size: r3.Vec{X: 2, Y: 2, Z: 1}, BlockID: 1,
	})
	require.NoError(t, err)
	punch, err := mesh.NewBoxMesh(mesh.BoxSpec{
		Nx: 1, Ny: 1, Nz: 1,
		Origin:       r3.Vec{X: 0.3, Y: 0.4, Z: 1},
		Size:         r3.Vec{X: 1, Y: 1, Z: 1},
		BlockID:      2,
		NodeIDOffset: slab.NumNodes(),
		ElemIDOffset: slab.NumElements(),
	})
	require.NoError(t, err)
	require.NoError(t, slab.Append(punch))
	return slab
}

func randomDisplacement(rng *rand.Rand, n int) []float64 {
	disp := make([]float64, 3*n)
	for i := range disp {
		disp[i] = 0.01 * (rng.Float64() - 0.5)
	}
	return disp
}

func TestMirrorMatchesHost(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	hm := pressedBlocks(t)
	primary, err := contact.SkinBlocks(hm, []int{1}, hm.MaxNodeGlobalID())
	require.NoError(t, err)
	secondary, err := contact.SkinBlocks(hm, []int{2}, hm.MaxNodeGlobalID())
	require.NoError(t, err)
	vc := comm.NewVectorCommunicator(comm.Self(), hm.NodeGlobalIDs())
	sm, faces, nodes, err := contact.BuildSubmodel(hm, primary, secondary, vc)
	require.NoError(t, err)

	mirror := NewMirror(device, builder.Config{BlockSize: 8})
	defer mirror.Free()
	require.NoError(t, mirror.Upload(contact.NewDeviceArrays(hm.NumNodes(), sm, faces, nodes)))
	assert.Equal(t, device.Mode(), mirror.Mode())
	assert.Len(t, mirror.Runner().Kernels, 6)

	rng := rand.New(rand.NewSource(3))
	disp := randomDisplacement(rng, hm.NumNodes())

	t.Run("apply_displacements", func(t *testing.T) {
		coord := make([]float64, 3*sm.NumNodes())
		faceCoords := make([]float64, 9*len(faces))
		nodeCoords := make([]float64, 3*len(nodes))
		require.NoError(t, mirror.ApplyDisplacements(disp, coord, faceCoords, nodeCoords))

		sm.ApplyDisplacements(dispatch.Serial{}, disp)
		assert.InDeltaSlice(t, sm.Coord, coord, 1e-14)
		for i := range faces {
			faces[i].SetCoordinates(sm.Coord)
			assert.InDeltaSlice(t, faces[i].Coords[:], faceCoords[9*i:9*i+9], 1e-14)
		}
		for i := range nodes {
			nodes[i].SetCoordinates(sm.Coord)
			assert.InDeltaSlice(t, nodes[i].Coords[:3], nodeCoords[3*i:3*i+3], 1e-14)
		}
	})

	t.Run("assemble_and_gather", func(t *testing.T) {
		for i := range faces {
			for j := range faces[i].Force {
				faces[i].Force[j] = rng.Float64() - 0.5
			}
		}
		for i := range nodes {
			for j := 0; j < 3; j++ {
				nodes[i].Force[j] = rng.Float64() - 0.5
			}
		}
		da := contact.NewDeviceArrays(hm.NumNodes(), sm, faces, nodes)
		entityForce := make([]float64, da.EntityForceLen())
		for i := range faces {
			copy(entityForce[9*i:9*i+9], faces[i].Force[:])
		}
		for i := range nodes {
			copy(entityForce[9*len(faces)+3*i:], nodes[i].Force[:3])
		}

		force := make([]float64, 3*sm.NumNodes())
		require.NoError(t, mirror.AssembleForces(entityForce, force))
		sm.AssembleForces(dispatch.Serial{}, faces, nodes)
		assert.InDeltaSlice(t, sm.Force, force, 1e-13)

		out := make([]float64, 3*hm.NumNodes())
		require.NoError(t, mirror.GatherForces(out))
		expected := make([]float64, len(out))
		sm.GetForces(expected)
		assert.InDeltaSlice(t, expected, out, 1e-13)

		require.NoError(t, mirror.ZeroForces())
		require.NoError(t, mirror.GatherForces(out))
		for _, f := range out {
			assert.Zero(t, f)
		}
	})
}

func TestMirrorPreservesNonSubmodelEntries(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	// A 2x1x1 bar where only the left hex is in contact: nodes of the right
	// end face are outside the submodel
	hm, err := mesh.NewBoxMesh(mesh.BoxSpec{Nx: 2, Ny: 1, Nz: 1, Size: r3.Vec{X: 2, Y: 1, Z: 1}, BlockID: 1})
	require.NoError(t, err)
	faces := []contact.SkinFace{{Nodes: []int{0, 3, 4, 1}, EntityID: 100}}
	vc := comm.NewVectorCommunicator(comm.Self(), hm.NodeGlobalIDs())
	sm, tris, nodes, err := contact.BuildSubmodel(hm, faces, nil, vc)
	require.NoError(t, err)
	require.Equal(t, 4, sm.NumNodes())

	mirror := NewMirror(device, builder.Config{})
	defer mirror.Free()
	require.NoError(t, mirror.Upload(contact.NewDeviceArrays(hm.NumNodes(), sm, tris, nodes)))

	out := make([]float64, 3*hm.NumNodes())
	for i := range out {
		out[i] = -1
	}
	require.NoError(t, mirror.ZeroForces())
	require.NoError(t, mirror.GatherForces(out))
	for n := 0; n < hm.NumNodes(); n++ {
		want := -1.0
		if n == 0 || n == 1 || n == 3 || n == 4 {
			want = 0
		}
		assert.Equal(t, []float64{want, want, want}, out[3*n:3*n+3], "node %d", n)
	}
}

func TestDeviceBackendMatchesSerial(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	hm := pressedBlocks(t)
	disp := make([]float64, 3*hm.NumNodes())
	for _, n := range hm.Connectivity(2) {
		disp[3*n+2] = -0.1
	}

	run := func(cfg contact.Config) []float64 {
		cfg.PrimaryBlocks = []int{1}
		cfg.SecondaryBlocks = []int{2}
		cfg.PenaltyParameter = 10
		cm := contact.NewManager(cfg, comm.Self(), comm.NewVectorCommunicator(comm.Self(), hm.NodeGlobalIDs()))
		defer cm.Free()
		require.NoError(t, cm.CreateContactEntities(hm))
		out := make([]float64, 3*hm.NumNodes())
		require.NoError(t, cm.ComputeContactForce(1, disp, search.KDTree{}, out))
		return out
	}

	serial := run(contact.Config{Backend: contact.BackendSerial})
	onDevice := run(contact.Config{
		Backend: contact.BackendDevice,
		Mirror:  NewMirror(device, builder.Config{BlockSize: 16}),
	})
	assert.InDeltaSlice(t, serial, onDevice, 1e-12)

	total := 0.0
	for n := 18; n < 22; n++ {
		total += onDevice[3*n+2]
	}
	assert.InDelta(t, 4.0, total, 1e-12)
}
