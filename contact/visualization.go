package contact

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Visualization block ids and field names
const (
	VisFacesBlockID       = 1
	VisNodesBlockID       = 2
	VisBoundingBoxBlockID = 3

	VisFacesBlockName       = "contact_faces"
	VisNodesBlockName       = "contact_nodes"
	VisBoundingBoxBlockName = "contact_bounding_box"

	FieldDisplacementX = "displacement_x"
	FieldDisplacementY = "displacement_y"
	FieldDisplacementZ = "displacement_z"
	FieldContactStatus = "contact_status"
	GlobalNumContacts  = "num_contacts"
)

// VisBlock is one element block of the visualization mesh. Connectivity
// holds indices into the VisMesh node arrays.
type VisBlock struct {
	ID           int
	Name         string
	NodesPerElem int
	Connectivity []int
	ElemIDs      []int64
}

// VisMesh is the geometry of the contact entities in model coordinates
type VisMesh struct {
	NodeIDs []int64
	X, Y, Z []float64
	Blocks  []VisBlock
}

// VisualizationSink receives the contact visualization mesh once and nodal
// fields every output step
type VisualizationSink interface {
	Initialize(mesh VisMesh) error
	WriteStep(t float64, global map[string]float64, nodeData map[string][]float64) error
}

// VisStep is one recorded output step
type VisStep struct {
	Time     float64
	Global   map[string]float64
	NodeData map[string][]float64
}

// MemorySink keeps everything it receives
type MemorySink struct {
	Mesh  VisMesh
	Steps []VisStep
}

func (ms *MemorySink) Initialize(mesh VisMesh) error {
	ms.Mesh = mesh
	ms.Steps = nil
	return nil
}

func (ms *MemorySink) WriteStep(t float64, global map[string]float64, nodeData map[string][]float64) error {
	ms.Steps = append(ms.Steps, VisStep{Time: t, Global: global, NodeData: nodeData})
	return nil
}

type visualization struct {
	sink    VisualizationSink
	model   []float64 // xyz per vis node
	maxID   int64
	withBox bool
}

// maxContactEntityID returns the largest face or node entity id over all
// ranks. Collective.
func (cm *Manager) maxContactEntityID() int64 {
	local := int64(0)
	for i := range cm.faces {
		if cm.faces[i].GlobalID > local {
			local = cm.faces[i].GlobalID
		}
	}
	for i := range cm.nodes {
		if cm.nodes[i].GlobalID > local {
			local = cm.nodes[i].GlobalID
		}
	}
	return int64(cm.comm.AllReduceMaxInt(int(local)))
}

// InitializeContactVisualization sends the contact geometry to sink. Triangle
// vertices get node ids 3*id+max+9, +10 and +11 and element id id; contact
// nodes use their entity id for both; rank 0 adds the global contact
// bounding box with node ids 3*max+1..8 and element id max+1, where max is
// the largest contact entity id over all ranks. Collective.
func (cm *Manager) InitializeContactVisualization(sink VisualizationSink) error {
	if cm.sm == nil {
		return fmt.Errorf("no contact entities: %w", ErrInvalidState)
	}
	var (
		vm    VisMesh
		maxID = cm.maxContactEntityID()
		model []float64
	)
	addNode := func(id int64, p r3.Vec) int {
		vm.NodeIDs = append(vm.NodeIDs, id)
		vm.X = append(vm.X, p.X)
		vm.Y = append(vm.Y, p.Y)
		vm.Z = append(vm.Z, p.Z)
		model = append(model, p.X, p.Y, p.Z)
		return len(vm.NodeIDs) - 1
	}

	faces := VisBlock{ID: VisFacesBlockID, Name: VisFacesBlockName, NodesPerElem: 3}
	for i := range cm.faces {
		ref := cm.faces[i]
		ref.SetCoordinates(cm.sm.ModelCoord)
		gid := ref.GlobalID
		for v := 0; v < 3; v++ {
			faces.Connectivity = append(faces.Connectivity, addNode(3*gid+maxID+9+int64(v), ref.Vertex(v)))
		}
		faces.ElemIDs = append(faces.ElemIDs, gid)
	}

	nodes := VisBlock{ID: VisNodesBlockID, Name: VisNodesBlockName, NodesPerElem: 1}
	for i := range cm.nodes {
		ref := cm.nodes[i]
		ref.SetCoordinates(cm.sm.ModelCoord)
		nodes.Connectivity = append(nodes.Connectivity, addNode(ref.GlobalID, ref.Vertex(0)))
		nodes.ElemIDs = append(nodes.ElemIDs, ref.GlobalID)
	}
	vm.Blocks = []VisBlock{faces, nodes}

	lo, hi := cm.BoundingBox()
	vis := &visualization{sink: sink, maxID: maxID}
	if cm.comm.Rank() == 0 && lo.X <= hi.X {
		vis.withBox = true
		box := VisBlock{
			ID:           VisBoundingBoxBlockID,
			Name:         VisBoundingBoxBlockName,
			NodesPerElem: 8,
			ElemIDs:      []int64{maxID + 1},
		}
		for c, p := range boxCorners(lo, hi) {
			box.Connectivity = append(box.Connectivity, addNode(3*maxID+1+int64(c), p))
		}
		vm.Blocks = append(vm.Blocks, box)
	}
	vis.model = model
	cm.vis = vis

	if err := sink.Initialize(vm); err != nil {
		return fmt.Errorf("failed to initialize contact visualization: %w", err)
	}
	return nil
}

// WriteVisualizationStep sends the current displacement and contact status
// of every visualization node. Collective.
func (cm *Manager) WriteVisualizationStep(t float64) error {
	if cm.vis == nil {
		return fmt.Errorf("contact visualization not initialized: %w", ErrInvalidState)
	}
	n := len(cm.vis.model) / 3
	dx := make([]float64, 0, n)
	dy := make([]float64, 0, n)
	dz := make([]float64, 0, n)
	status := make([]float64, 0, n)
	model := cm.vis.model
	push := func(p r3.Vec, active bool) {
		k := len(dx)
		dx = append(dx, p.X-model[3*k])
		dy = append(dy, p.Y-model[3*k+1])
		dz = append(dz, p.Z-model[3*k+2])
		s := 0.0
		if active {
			s = 1
		}
		status = append(status, s)
	}

	for i := range cm.faces {
		f := &cm.faces[i]
		for v := 0; v < 3; v++ {
			push(f.Vertex(v), f.Status)
		}
	}
	for i := range cm.nodes {
		push(cm.nodes[i].Vertex(0), cm.nodes[i].Status)
	}

	lo, hi := cm.BoundingBox()
	if cm.vis.withBox {
		for _, p := range boxCorners(lo, hi) {
			push(p, false)
		}
	}

	active := []int{0}
	cm.comm.AllReduceSumInts(active, []int{cm.NumActiveContactFaces()})

	err := cm.vis.sink.WriteStep(t,
		map[string]float64{GlobalNumContacts: float64(active[0])},
		map[string][]float64{
			FieldDisplacementX: dx,
			FieldDisplacementY: dy,
			FieldDisplacementZ: dz,
			FieldContactStatus: status,
		})
	if err != nil {
		return fmt.Errorf("failed to write contact visualization at t=%g: %w", t, err)
	}
	return nil
}

// boxCorners lists the corners of an axis-aligned box in hex ordering
func boxCorners(lo, hi r3.Vec) [8]r3.Vec {
	return [8]r3.Vec{
		{X: lo.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
	}
}
