package contact

import (
	"testing"

	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/mesh"
	"github.com/notargets/DGContact/partitions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// allPairs proposes every node against every triangle
type allPairs struct{}

func (allPairs) Candidates(nodes, faces []ContactEntity) []Pair {
	pairs := make([]Pair, 0, len(nodes)*len(faces))
	for n := range nodes {
		for f := range faces {
			pairs = append(pairs, Pair{Node: n, Face: f})
		}
	}
	return pairs
}

// hostMirror implements DeviceMirror on host slices from the uploaded flat
// arrays only
type hostMirror struct {
	da    DeviceArrays
	coord []float64
	force []float64
	freed bool
}

func (hm *hostMirror) Mode() string { return "Host" }

func (hm *hostMirror) Upload(da DeviceArrays) error {
	hm.da = da
	hm.coord = make([]float64, len(da.ModelCoord))
	hm.force = make([]float64, len(da.ModelCoord))
	return nil
}

func (hm *hostMirror) ApplyDisplacements(disp, coord, faceCoords, nodeCoords []float64) error {
	for i, n := range hm.da.NodeIDs {
		for d := 0; d < 3; d++ {
			hm.coord[3*i+d] = hm.da.ModelCoord[3*i+d] + disp[3*n+int64(d)]
		}
	}
	copy(coord, hm.coord)
	for f := 0; f < len(hm.da.FaceNodes)/6; f++ {
		fn := hm.da.FaceNodes[6*f : 6*f+6]
		for d := 0; d < 3; d++ {
			faceCoords[9*f+d] = hm.coord[3*fn[0]+int64(d)]
			faceCoords[9*f+3+d] = hm.coord[3*fn[1]+int64(d)]
			sum := 0.0
			for _, n := range fn[2:] {
				sum += hm.coord[3*n+int64(d)]
			}
			faceCoords[9*f+6+d] = 0.25 * sum
		}
	}
	for i, n := range hm.da.NodeNodes {
		copy(nodeCoords[3*i:3*i+3], hm.coord[3*n:3*n+3])
	}
	return nil
}

func (hm *hostMirror) ZeroForces() error {
	for i := range hm.force {
		hm.force[i] = 0
	}
	return nil
}

func (hm *hostMirror) AssembleForces(entityForce, force []float64) error {
	for i := 0; i < len(hm.da.NodeIDs); i++ {
		for d := 0; d < 3; d++ {
			sum := 0.0
			for s := hm.da.IncidenceOffsets[i]; s < hm.da.IncidenceOffsets[i+1]; s++ {
				sum += hm.da.IncidenceWeights[s] * entityForce[hm.da.IncidenceSlots[s]+int64(d)]
			}
			hm.force[3*i+d] = sum
		}
	}
	copy(force, hm.force)
	return nil
}

func (hm *hostMirror) GatherForces(out []float64) error {
	for i, n := range hm.da.NodeIDs {
		copy(out[3*n:3*n+3], hm.force[3*i:3*i+3])
	}
	return nil
}

func (hm *hostMirror) Free() { hm.freed = true }

func stackedConfig(backend Backend) Config {
	cfg := Config{
		PrimaryBlocks:    []int{lowerBlock},
		SecondaryBlocks:  []int{upperBlock},
		PenaltyParameter: 10,
		Backend:          backend,
		Workers:          3,
	}
	if backend == BackendDevice {
		cfg.Mirror = &hostMirror{}
	}
	return cfg
}

func newStackedManager(t *testing.T, backend Backend) (*Manager, *mesh.HexMesh) {
	hm := stackedBlocks(t)
	cm := NewManager(stackedConfig(backend), comm.Self(), selfVector(hm))
	require.NoError(t, cm.CreateContactEntities(hm))
	return cm, hm
}

// ============================================================================
// Full step
// ============================================================================

// The punch is pressed 0.1 into the slab. Each of its four bottom nodes
// lands in the left triangle of a different slab top quad, at barycentric
// (0.1, 0.3, 0.6), and is pushed back with penalty*0.1 = 1.
func TestManagerComputeContactForce(t *testing.T) {
	for _, backend := range []Backend{BackendSerial, BackendThreaded, BackendDevice} {
		t.Run(backend.String(), func(t *testing.T) {
			cm, hm := newStackedManager(t, backend)
			defer cm.Free()

			assert.Equal(t, 64, cm.NumContactFaces())
			assert.Equal(t, 8, cm.NumContactNodes())
			assert.Equal(t, StateIdle, cm.State())

			out := make([]float64, 3*hm.NumNodes())
			require.NoError(t, cm.ComputeContactForce(1, pressDown(hm, -0.1), allPairs{}, out))
			assert.Equal(t, StateIdle, cm.State())
			assert.Equal(t, 4, cm.NumActiveContactFaces())

			// Punch bottom nodes are mesh nodes 18..21, top nodes 22..25
			for n := 18; n < 22; n++ {
				assert.InDeltaSlice(t, []float64{0, 0, 1}, out[3*n:3*n+3], 1e-12, "node %d", n)
			}
			for n := 22; n < 26; n++ {
				assert.InDeltaSlice(t, []float64{0, 0, 0}, out[3*n:3*n+3], 1e-12, "node %d", n)
			}

			// Slab corner (0,0,1) is vertex 1 of the loaded triangle and one
			// of the four barycenter nodes: -(0.3 + 0.6/4)
			assert.InDelta(t, -0.45, out[3*9+2], 1e-12)

			var sumSlab, sumAll [3]float64
			for n := 0; n < hm.NumNodes(); n++ {
				for d := 0; d < 3; d++ {
					sumAll[d] += out[3*n+d]
					if n < 18 {
						sumSlab[d] += out[3*n+d]
					}
				}
			}
			assert.InDeltaSlice(t, []float64{0, 0, -4}, sumSlab[:], 1e-12)
			assert.InDeltaSlice(t, []float64{0, 0, 0}, sumAll[:], 1e-12)
		})
	}
}

func TestManagerNoContact(t *testing.T) {
	cm, hm := newStackedManager(t, BackendSerial)
	out := make([]float64, 3*hm.NumNodes())
	for i := range out {
		out[i] = 7
	}
	// Lifted clear of the slab
	require.NoError(t, cm.ComputeContactForce(1, pressDown(hm, 0.5), allPairs{}, out))
	assert.Equal(t, 0, cm.NumActiveContactFaces())
	assert.Equal(t, make([]float64, 3*hm.NumNodes()), out)
}

func TestManagerStepByStep(t *testing.T) {
	cm, hm := newStackedManager(t, BackendThreaded)
	require.NoError(t, cm.ApplyDisplacements(pressDown(hm, -0.1)))
	assert.Equal(t, StateDisplacementsApplied, cm.State())
	require.NoError(t, cm.EvaluateContact(allPairs{}))
	assert.Equal(t, StateForcesComputed, cm.State())

	out := make([]float64, 3*hm.NumNodes())
	require.NoError(t, cm.ScatterContactForces(out))
	assert.Equal(t, StateIdle, cm.State())

	again := make([]float64, len(out))
	require.NoError(t, cm.GetForces(again))
	assert.Equal(t, out, again)

	require.NoError(t, cm.ZeroContactForce())
	assert.Equal(t, 0, cm.NumActiveContactFaces())
	for _, f := range cm.Submodel().Force {
		assert.Zero(t, f)
	}

	timers := cm.Timers()
	for _, name := range []string{TimerCreateEntities, TimerApplyDisplacements, TimerEvaluateContact, TimerScatterForces} {
		assert.Contains(t, timers, name)
	}
}

// ============================================================================
// Errors
// ============================================================================

func TestManagerStateErrors(t *testing.T) {
	hm := stackedBlocks(t)
	cm := NewManager(stackedConfig(BackendSerial), comm.Self(), selfVector(hm))

	assert.ErrorIs(t, cm.ApplyDisplacements(make([]float64, 3*hm.NumNodes())), ErrInvalidState)
	assert.ErrorIs(t, cm.GetForces(make([]float64, 3*hm.NumNodes())), ErrInvalidState)
	assert.ErrorIs(t, cm.InitializeContactVisualization(&MemorySink{}), ErrInvalidState)
	assert.ErrorIs(t, cm.WriteVisualizationStep(0), ErrInvalidState)

	require.NoError(t, cm.CreateContactEntities(hm))
	assert.ErrorIs(t, cm.EvaluateContact(allPairs{}), ErrInvalidState)
	assert.ErrorIs(t, cm.ScatterContactForces(make([]float64, 3*hm.NumNodes())), ErrInvalidState)
	assert.Error(t, cm.ApplyDisplacements(make([]float64, 5)))

	require.NoError(t, cm.ApplyDisplacements(pressDown(hm, -0.1)))
	assert.ErrorIs(t, cm.ScatterContactForces(make([]float64, 3*hm.NumNodes())), ErrInvalidState)
}

func TestManagerInvalidPenalty(t *testing.T) {
	hm := stackedBlocks(t)
	cfg := stackedConfig(BackendSerial)
	cfg.PenaltyParameter = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPenalty)

	cm := NewManager(cfg, comm.Self(), selfVector(hm))
	require.NoError(t, cm.CreateContactEntities(hm))
	out := make([]float64, 3*hm.NumNodes())
	assert.ErrorIs(t, cm.ComputeContactForce(1, pressDown(hm, -0.1), allPairs{}, out), ErrInvalidPenalty)

	require.NoError(t, cm.ApplyDisplacements(pressDown(hm, -0.1)))
	assert.ErrorIs(t, cm.EvaluateContact(allPairs{}), ErrInvalidPenalty)
}

func TestNewManagerPanics(t *testing.T) {
	hm := unitCube(t)
	assert.Panics(t, func() { NewManager(Config{}, nil, selfVector(hm)) })
	assert.Panics(t, func() { NewManager(Config{}, comm.Self(), nil) })
	assert.Panics(t, func() {
		NewManager(Config{Backend: BackendDevice}, comm.Self(), selfVector(hm))
	})
	assert.Error(t, Config{PenaltyParameter: 1, Backend: BackendDevice}.Validate())
}

// ============================================================================
// Bounding box and device cleanup
// ============================================================================

func TestManagerBoundingBox(t *testing.T) {
	cm, hm := newStackedManager(t, BackendSerial)
	lo, hi := cm.BoundingBox()
	assert.InDeltaSlice(t, []float64{0, 0, 0}, vecSlice(lo), 1e-15)
	assert.InDeltaSlice(t, []float64{2, 2, 2}, vecSlice(hi), 1e-15)

	require.NoError(t, cm.ApplyDisplacements(pressDown(hm, -0.1)))
	_, hi = cm.BoundingBox()
	assert.InDeltaSlice(t, []float64{2, 2, 1.9}, vecSlice(hi), 1e-15)
	assert.InDelta(t, 2.0, cm.BoundingBoxAverageCharacteristicLengthOverAllRanks(), 1e-15)
}

func TestManagerFreeReleasesMirror(t *testing.T) {
	cm, _ := newStackedManager(t, BackendDevice)
	mirror := cm.cfg.Mirror.(*hostMirror)
	assert.Equal(t, 64*9+8*3, mirror.da.EntityForceLen())
	cm.Free()
	assert.True(t, mirror.freed)
	// A second Free is a no-op
	cm.Free()
}

// ============================================================================
// Distributed run
// ============================================================================

// Contact search is rank local, so the punch sits over the slab element
// that shares its rank: slab elements 0-2 go to rank 0, slab element 3 and
// the punch to rank 1.
func TestManagerTwoRanksMatchesSerial(t *testing.T) {
	serial := stackedBlocksAt(t, r3.Vec{X: 1.15, Y: 1.3, Z: 1}, r3.Vec{X: 0.6, Y: 0.5, Z: 1})
	cm := NewManager(stackedConfig(BackendSerial), comm.Self(), selfVector(serial))
	require.NoError(t, cm.CreateContactEntities(serial))
	expected := make([]float64, 3*serial.NumNodes())
	require.NoError(t, cm.ComputeContactForce(1, pressDown(serial, -0.1), allPairs{}, expected))
	punchZ := 0.0
	for n := 18; n < 22; n++ {
		punchZ += expected[3*n+2]
	}
	require.InDelta(t, 4.0, punchZ, 1e-12)

	ranks, err := mesh.Split(serial, 2, partitions.BlockPartition)
	require.NoError(t, err)

	byGID := make([]map[int][3]float64, 2)
	faces := make([]int, 2)
	nodes := make([]int, 2)
	err = comm.NewWorld(2).Run(func(c comm.Communicator) error {
		rm := ranks[c.Rank()]
		vc := comm.NewVectorCommunicator(c, rm.NodeGlobalIDs())
		rcm := NewManager(stackedConfig(BackendThreaded), c, vc)
		if err := rcm.CreateContactEntities(rm); err != nil {
			return err
		}
		out := make([]float64, 3*rm.NumNodes())
		if err := rcm.ComputeContactForce(1, pressDown(rm, -0.1), allPairs{}, out); err != nil {
			return err
		}
		m := map[int][3]float64{}
		for n, gid := range rm.NodeGlobalIDs() {
			m[gid] = [3]float64{out[3*n], out[3*n+1], out[3*n+2]}
		}
		byGID[c.Rank()] = m
		faces[c.Rank()] = rcm.NumContactFaces()
		nodes[c.Rank()] = rcm.NumContactNodes()
		return nil
	})
	require.NoError(t, err)

	// The slab skin splits into 12 + 4 faces once the partition boundary
	// faces are removed
	assert.Equal(t, []int{4 * 12, 4 * 4}, faces)
	assert.Equal(t, []int{0, 8}, nodes)

	for r := 0; r < 2; r++ {
		for gid, f := range byGID[r] {
			assert.InDeltaSlice(t, expected[3*gid:3*gid+3], f[:], 1e-12, "rank %d gid %d", r, gid)
		}
	}
}

// ============================================================================
// Visualization
// ============================================================================

func TestManagerVisualization(t *testing.T) {
	cm, hm := newStackedManager(t, BackendSerial)
	sink := &MemorySink{}
	require.NoError(t, cm.InitializeContactVisualization(sink))

	vm := sink.Mesh
	require.Len(t, vm.Blocks, 3)
	faces, nodes, box := vm.Blocks[0], vm.Blocks[1], vm.Blocks[2]
	assert.Equal(t, VisFacesBlockName, faces.Name)
	assert.Len(t, faces.ElemIDs, 64)
	assert.Len(t, faces.Connectivity, 3*64)
	assert.Equal(t, VisNodesBlockName, nodes.Name)
	assert.Len(t, nodes.ElemIDs, 8)
	assert.Equal(t, VisBoundingBoxBlockName, box.Name)
	assert.Len(t, vm.NodeIDs, 3*64+8+8)

	// The largest entity is the last triangle of the top face (ordinal 5)
	// of slab element 4, with the offset at the max node global id 25
	maxID := TriangleEntityID(FaceEntityID(4, 25, 5), 3)
	require.Equal(t, int64(951), maxID)
	assert.Equal(t, []int64{maxID + 1}, box.ElemIDs)

	// Triangle vertex ids are 3*id+max+9+v
	f0 := cm.ContactFaces()[0].GlobalID
	assert.Equal(t, []int64{3*f0 + maxID + 9, 3*f0 + maxID + 10, 3*f0 + maxID + 11}, vm.NodeIDs[:3])
	// Contact nodes keep their entity id, punch gids start at 18
	assert.Equal(t, cm.ContactNodes()[0].GlobalID, vm.NodeIDs[3*64])
	for c := 0; c < 8; c++ {
		assert.Equal(t, 3*maxID+1+int64(c), vm.NodeIDs[3*64+8+c])
	}
	assertUniqueVisIDs(t, vm)

	out := make([]float64, 3*hm.NumNodes())
	require.NoError(t, cm.ComputeContactForce(1, pressDown(hm, -0.1), allPairs{}, out))
	require.NoError(t, cm.WriteVisualizationStep(0.5))
	require.Len(t, sink.Steps, 1)
	step := sink.Steps[0]
	assert.Equal(t, 0.5, step.Time)
	assert.Equal(t, 4.0, step.Global[GlobalNumContacts])

	dz := step.NodeData[FieldDisplacementZ]
	status := step.NodeData[FieldContactStatus]
	require.Len(t, dz, len(vm.NodeIDs))
	for i := 0; i < 3*64; i++ {
		assert.InDelta(t, 0, dz[i], 1e-15, "slab triangles do not move")
	}
	for i := 3 * 64; i < 3*64+8; i++ {
		assert.InDelta(t, -0.1, dz[i], 1e-15, "punch nodes move down")
	}
	// Bounding box top corners follow the punch
	for c := 0; c < 8; c++ {
		want := 0.0
		if c >= 4 {
			want = -0.1
		}
		assert.InDelta(t, want, dz[3*64+8+c], 1e-15)
	}

	active := 0.0
	for i := 0; i < 3*64; i++ {
		active += status[i]
	}
	assert.Equal(t, 3*4.0, active)
}

func assertUniqueVisIDs(t *testing.T, vm VisMesh) {
	t.Helper()
	nodeIDs := map[int64]bool{}
	for _, id := range vm.NodeIDs {
		assert.False(t, nodeIDs[id], "node id %d used twice", id)
		nodeIDs[id] = true
	}
	elemIDs := map[int64]string{}
	for _, b := range vm.Blocks {
		for _, id := range b.ElemIDs {
			prev, seen := elemIDs[id]
			assert.False(t, seen, "element id %d used by %s and %s", id, prev, b.Name)
			elemIDs[id] = b.Name
		}
	}
}

func TestManagerVisualizationTwoRanks(t *testing.T) {
	serial := stackedBlocksAt(t, r3.Vec{X: 1.15, Y: 1.3, Z: 1}, r3.Vec{X: 0.6, Y: 0.5, Z: 1})
	ranks, err := mesh.Split(serial, 2, partitions.BlockPartition)
	require.NoError(t, err)

	meshes := make([]VisMesh, 2)
	maxIDs := make([]int64, 2)
	firstFace := make([]int64, 2)
	err = comm.NewWorld(2).Run(func(c comm.Communicator) error {
		rm := ranks[c.Rank()]
		rcm := NewManager(stackedConfig(BackendSerial), c, comm.NewVectorCommunicator(c, rm.NodeGlobalIDs()))
		if err := rcm.CreateContactEntities(rm); err != nil {
			return err
		}
		sink := &MemorySink{}
		if err := rcm.InitializeContactVisualization(sink); err != nil {
			return err
		}
		meshes[c.Rank()] = sink.Mesh
		maxIDs[c.Rank()] = rcm.vis.maxID
		firstFace[c.Rank()] = rcm.ContactFaces()[0].GlobalID
		return nil
	})
	require.NoError(t, err)

	// Slab element 4 lives on rank 1 only; rank 0 still numbers with it
	maxID := TriangleEntityID(FaceEntityID(4, 25, 5), 3)
	assert.Equal(t, []int64{maxID, maxID}, maxIDs)
	assert.Equal(t, 3*firstFace[0]+maxID+9, meshes[0].NodeIDs[0])

	// One global box, written by rank 0
	require.Len(t, meshes[0].Blocks, 3)
	require.Len(t, meshes[1].Blocks, 2)
	assert.Equal(t, []int64{maxID + 1}, meshes[0].Blocks[2].ElemIDs)

	merged := VisMesh{NodeIDs: append(append([]int64{}, meshes[0].NodeIDs...), meshes[1].NodeIDs...)}
	merged.Blocks = append(append([]VisBlock{}, meshes[0].Blocks...), meshes[1].Blocks...)
	assertUniqueVisIDs(t, merged)
}
