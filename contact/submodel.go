package contact

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/dispatch"
	"github.com/notargets/DGContact/mesh"
)

// ForceSlot names one entity vertex that contributes force to a submodel node
type ForceSlot struct {
	Kind   EntityKind
	Entity int // Index into the face or node entity list
	Vertex int
	Weight float64
}

// NodeIncidence is a CSR table from submodel node to the force slots that
// land on it: node i owns Slots[Offsets[i]:Offsets[i+1]]
type NodeIncidence struct {
	Offsets []int
	Slots   []ForceSlot
}

// Submodel is the compact node set touched by contact faces, with its own
// dense numbering. Coordinate and force arrays are interleaved xyz.
type Submodel struct {
	NodeIDs    []int // Mesh-local node index of each submodel node, ascending
	GlobalIDs  []int // Node global id of each submodel node
	ModelCoord []float64
	Coord      []float64
	Force      []float64
	Ghosted    []bool

	Incidence NodeIncidence
}

// NumNodes returns the submodel node count
func (sm *Submodel) NumNodes() int { return len(sm.NodeIDs) }

// BuildSubmodel collects the nodes of the primary and secondary skin faces
// into a submodel, marks nodes owned by a lower rank as ghosted, and creates
// the contact triangles (four per primary face) and contact nodes (one per
// non-ghosted secondary node). Secondary node characteristic lengths are
// max-reduced across ranks by node global id, so vc must be collective.
func BuildSubmodel(m mesh.Mesh, primary, secondary []SkinFace, vc *comm.VectorCommunicator) (
	sm *Submodel, faces, nodes []ContactEntity, err error) {

	for i, f := range primary {
		if len(f.Nodes) != 4 {
			return nil, nil, nil, fmt.Errorf("primary face %d has %d nodes: %w", i, len(f.Nodes), ErrInvalidFaceNodeCount)
		}
	}
	for i, f := range secondary {
		if len(f.Nodes) != 4 {
			return nil, nil, nil, fmt.Errorf("secondary face %d has %d nodes: %w", i, len(f.Nodes), ErrInvalidFaceNodeCount)
		}
	}

	sm = newSubmodel(m, primary, secondary)
	primaryLocal := sm.localize(m, primary)
	secondaryLocal := sm.localize(m, secondary)

	// Ghosted: partition boundary nodes owned by a lower rank
	submodelOf := make(map[int]int, sm.NumNodes())
	for i, n := range sm.NodeIDs {
		submodelOf[n] = i
	}
	boundary, minRank := vc.PartitionBoundaryNodeLocalIDs()
	rank := vc.Communicator().Rank()
	for i, n := range boundary {
		if s, ok := submodelOf[n]; ok && minRank[i] != rank {
			sm.Ghosted[s] = true
		}
	}

	// Node characteristic lengths: local max over touching secondary faces,
	// then max over ranks sharing the node
	charLen := make([]float64, m.NumNodes())
	for _, f := range secondaryLocal {
		h := FaceCharacteristicLength(sm.ModelCoord, f.Nodes)
		for _, n := range f.Nodes {
			meshID := sm.NodeIDs[n]
			charLen[meshID] = math.Max(charLen[meshID], h)
		}
	}
	vc.VectorReductionMax(1, charLen)

	nodes = createContactNodes(sm, secondaryLocal, charLen)
	faces = createContactFaces(sm, primaryLocal)
	sm.buildIncidence(faces, nodes)
	return sm, faces, nodes, nil
}

func newSubmodel(m mesh.Mesh, faceLists ...[]SkinFace) *Submodel {
	used := make(map[int]struct{})
	for _, faces := range faceLists {
		for _, f := range faces {
			for _, n := range f.Nodes {
				used[n] = struct{}{}
			}
		}
	}
	ids := make([]int, 0, len(used))
	for n := range used {
		ids = append(ids, n)
	}
	sort.Ints(ids)

	x, y, z := m.CoordinatesX(), m.CoordinatesY(), m.CoordinatesZ()
	gids := m.NodeGlobalIDs()
	sm := &Submodel{
		NodeIDs:    ids,
		GlobalIDs:  make([]int, len(ids)),
		ModelCoord: make([]float64, 3*len(ids)),
		Coord:      make([]float64, 3*len(ids)),
		Force:      make([]float64, 3*len(ids)),
		Ghosted:    make([]bool, len(ids)),
	}
	for i, n := range ids {
		sm.GlobalIDs[i] = gids[n]
		sm.ModelCoord[3*i] = x[n]
		sm.ModelCoord[3*i+1] = y[n]
		sm.ModelCoord[3*i+2] = z[n]
	}
	copy(sm.Coord, sm.ModelCoord)
	return sm
}

// localize returns copies of faces with nodes rewritten to submodel ids
func (sm *Submodel) localize(m mesh.Mesh, faces []SkinFace) []SkinFace {
	out := make([]SkinFace, len(faces))
	for i, f := range faces {
		nodes := make([]int, len(f.Nodes))
		for j, n := range f.Nodes {
			nodes[j] = sort.SearchInts(sm.NodeIDs, n)
		}
		out[i] = SkinFace{Nodes: nodes, EntityID: f.EntityID}
	}
	return out
}

// FaceCharacteristicLength is the longest of the four wrap-around edges of a
// quad given by submodel node ids
func FaceCharacteristicLength(coord []float64, quad []int) float64 {
	maxSq := 0.0
	for i := range quad {
		a, b := quad[i], quad[(i+1)%len(quad)]
		sq := 0.0
		for d := 0; d < 3; d++ {
			e := coord[3*a+d] - coord[3*b+d]
			sq += e * e
		}
		maxSq = math.Max(maxSq, sq)
	}
	return math.Sqrt(maxSq)
}

func createContactNodes(sm *Submodel, secondary []SkinFace, meshCharLen []float64) []ContactEntity {
	var nodes []ContactEntity
	added := make([]bool, sm.NumNodes())
	for _, f := range secondary {
		for _, n := range f.Nodes {
			if added[n] || sm.Ghosted[n] {
				continue
			}
			added[n] = true
			ce := ContactEntity{
				Kind:       NodeEntity,
				GlobalID:   NodeEntityID(sm.GlobalIDs[n]),
				LocalIndex: len(nodes),
				CharLen:    meshCharLen[sm.NodeIDs[n]],
				NodeID1:    n,
			}
			ce.SetCoordinates(sm.Coord)
			nodes = append(nodes, ce)
		}
	}
	return nodes
}

func createContactFaces(sm *Submodel, primary []SkinFace) []ContactEntity {
	faces := make([]ContactEntity, 0, 4*len(primary))
	for _, f := range primary {
		h := FaceCharacteristicLength(sm.ModelCoord, f.Nodes)
		var fict [4]int
		copy(fict[:], f.Nodes)
		for tri := 0; tri < 4; tri++ {
			ce := ContactEntity{
				Kind:            TriangleEntity,
				GlobalID:        TriangleEntityID(f.EntityID, tri),
				LocalIndex:      len(faces),
				CharLen:         h,
				NodeID1:         f.Nodes[tri],
				NodeID2:         f.Nodes[(tri+1)%4],
				FictitiousNodes: fict,
			}
			ce.SetCoordinates(sm.Coord)
			faces = append(faces, ce)
		}
	}
	return faces
}

// buildIncidence records, per submodel node, every entity vertex whose force
// lands on it: triangle vertices 0 and 1 with weight 1, the barycenter with
// weight 1/4 on each of its four nodes, and contact nodes with weight 1
func (sm *Submodel) buildIncidence(faces, nodes []ContactEntity) {
	n := sm.NumNodes()
	counts := make([]int, n+1)
	for i := range faces {
		f := &faces[i]
		counts[f.NodeID1+1]++
		counts[f.NodeID2+1]++
		for _, fn := range f.FictitiousNodes {
			counts[fn+1]++
		}
	}
	for i := range nodes {
		counts[nodes[i].NodeID1+1]++
	}
	for i := 1; i <= n; i++ {
		counts[i] += counts[i-1]
	}

	slots := make([]ForceSlot, counts[n])
	next := append([]int(nil), counts[:n]...)
	put := func(node int, s ForceSlot) {
		slots[next[node]] = s
		next[node]++
	}
	for i := range faces {
		f := &faces[i]
		put(f.NodeID1, ForceSlot{Kind: TriangleEntity, Entity: i, Vertex: 0, Weight: 1})
		put(f.NodeID2, ForceSlot{Kind: TriangleEntity, Entity: i, Vertex: 1, Weight: 1})
		for _, fn := range f.FictitiousNodes {
			put(fn, ForceSlot{Kind: TriangleEntity, Entity: i, Vertex: 2, Weight: 0.25})
		}
	}
	for i := range nodes {
		put(nodes[i].NodeID1, ForceSlot{Kind: NodeEntity, Entity: i, Vertex: 0, Weight: 1})
	}
	sm.Incidence = NodeIncidence{Offsets: counts, Slots: slots}
}

// ApplyDisplacements sets Coord = ModelCoord + displacement for every
// submodel node. displacement is interleaved over all mesh nodes.
func (sm *Submodel) ApplyDisplacements(ex dispatch.Executor, displacement []float64) {
	ex.ParallelFor("applyDisplacements", sm.NumNodes(), func(i int) {
		n := sm.NodeIDs[i]
		for d := 0; d < 3; d++ {
			sm.Coord[3*i+d] = sm.ModelCoord[3*i+d] + displacement[3*n+d]
		}
	})
}

// AssembleForces overwrites Force with the weighted sum of the entity forces
// listed in the incidence table. Each node writes only its own slot.
func (sm *Submodel) AssembleForces(ex dispatch.Executor, faces, nodes []ContactEntity) {
	inc := sm.Incidence
	ex.ParallelFor("assembleForces", sm.NumNodes(), func(i int) {
		var f [3]float64
		for _, s := range inc.Slots[inc.Offsets[i]:inc.Offsets[i+1]] {
			src := &nodes
			if s.Kind == TriangleEntity {
				src = &faces
			}
			ce := &(*src)[s.Entity]
			for d := 0; d < 3; d++ {
				f[d] += s.Weight * ce.Force[3*s.Vertex+d]
			}
		}
		copy(sm.Force[3*i:3*i+3], f[:])
	})
}

// GetForces writes submodel forces into an interleaved array over all mesh
// nodes. Entries of nodes outside the submodel are left untouched.
func (sm *Submodel) GetForces(out []float64) {
	for i, n := range sm.NodeIDs {
		copy(out[3*n:3*n+3], sm.Force[3*i:3*i+3])
	}
}
