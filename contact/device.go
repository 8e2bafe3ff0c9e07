package contact

// DeviceArrays is the flat, integer-indexed form of a submodel and its
// entities that a device mirror uploads once after entity creation
type DeviceArrays struct {
	NumMeshNodes int

	NodeIDs    []int64   // Mesh-local node index per submodel node
	ModelCoord []float64 // 3 per submodel node

	// Submodel nodes feeding each entity: 6 per face (NodeID1, NodeID2,
	// then the four fictitious nodes), 1 per contact node
	FaceNodes []int64
	NodeNodes []int64

	// Incidence in CSR form. Slot offsets index the entity force buffer,
	// which holds 9 values per face followed by 3 per contact node.
	IncidenceOffsets []int64
	IncidenceSlots   []int64
	IncidenceWeights []float64
}

// EntityForceLen returns the length of the entity force buffer
func (da *DeviceArrays) EntityForceLen() int {
	return 9*(len(da.FaceNodes)/6) + 3*len(da.NodeNodes)
}

// DeviceMirror keeps a copy of the submodel on an accelerator. All outputs are
// copied back to host slices before returning.
type DeviceMirror interface {
	Mode() string
	Upload(arrays DeviceArrays) error

	// ApplyDisplacements updates submodel coordinates from the mesh
	// displacement and fills the current coordinates, face vertex coordinates
	// (9 per face) and contact node coordinates (3 per node)
	ApplyDisplacements(displacement, coord, faceCoords, nodeCoords []float64) error

	// ZeroForces clears the device force buffers
	ZeroForces() error

	// AssembleForces uploads the entity force buffer, gathers it per submodel
	// node through the incidence table and copies the submodel force back
	AssembleForces(entityForce, force []float64) error

	// GatherForces scatters the submodel force into a mesh-sized force array
	GatherForces(out []float64) error

	Free()
}

// NewDeviceArrays flattens a submodel and its entities
func NewDeviceArrays(numMeshNodes int, sm *Submodel, faces, nodes []ContactEntity) DeviceArrays {
	da := DeviceArrays{
		NumMeshNodes: numMeshNodes,
		NodeIDs:      make([]int64, sm.NumNodes()),
		ModelCoord:   append([]float64(nil), sm.ModelCoord...),
		FaceNodes:    make([]int64, 0, 6*len(faces)),
		NodeNodes:    make([]int64, len(nodes)),
	}
	for i, n := range sm.NodeIDs {
		da.NodeIDs[i] = int64(n)
	}
	for i := range faces {
		f := &faces[i]
		da.FaceNodes = append(da.FaceNodes, int64(f.NodeID1), int64(f.NodeID2))
		for _, fn := range f.FictitiousNodes {
			da.FaceNodes = append(da.FaceNodes, int64(fn))
		}
	}
	for i := range nodes {
		da.NodeNodes[i] = int64(nodes[i].NodeID1)
	}

	inc := sm.Incidence
	da.IncidenceOffsets = make([]int64, len(inc.Offsets))
	for i, o := range inc.Offsets {
		da.IncidenceOffsets[i] = int64(o)
	}
	da.IncidenceSlots = make([]int64, len(inc.Slots))
	da.IncidenceWeights = make([]float64, len(inc.Slots))
	nodeBase := 9 * len(faces)
	for i, s := range inc.Slots {
		if s.Kind == TriangleEntity {
			da.IncidenceSlots[i] = int64(9*s.Entity + 3*s.Vertex)
		} else {
			da.IncidenceSlots[i] = int64(nodeBase + 3*s.Entity)
		}
		da.IncidenceWeights[i] = s.Weight
	}
	return da
}

// packEntityForces writes face and node forces into the device layout
func packEntityForces(faces, nodes []ContactEntity, out []float64) {
	for i := range faces {
		copy(out[9*i:9*i+9], faces[i].Force[:])
	}
	base := 9 * len(faces)
	for i := range nodes {
		copy(out[base+3*i:base+3*i+3], nodes[i].Force[:3])
	}
}
