package contact

import (
	"fmt"
	"math"
	"time"

	"github.com/cpmech/gosl/io"
	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/dispatch"
	"github.com/notargets/DGContact/mesh"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// State tracks where the manager is within one contact step
type State int

const (
	StateIdle State = iota
	StateDisplacementsApplied
	StateForcesComputed
	StateScattered
)

func (s State) String() string {
	switch s {
	case StateDisplacementsApplied:
		return "DISPLACEMENTS_APPLIED"
	case StateForcesComputed:
		return "FORCES_COMPUTED"
	case StateScattered:
		return "SCATTERED"
	default:
		return "IDLE"
	}
}

// Timer names
const (
	TimerCreateEntities     = "Create Contact Entities"
	TimerApplyDisplacements = "Apply Displacements"
	TimerEvaluateContact    = "Evaluate Contact"
	TimerScatterForces      = "Scatter Forces"
)

// Manager owns the contact submodel of one rank and runs the per-step
// contact force computation
type Manager struct {
	cfg    Config
	comm   comm.Communicator
	vec    *comm.VectorCommunicator
	exec   dispatch.Executor
	mirror DeviceMirror

	numMeshNodes    int
	maxNodeGlobalID int
	sm              *Submodel
	faces           []ContactEntity
	nodes           []ContactEntity
	state           State

	// Device staging buffers
	faceCoords  []float64
	nodeCoords  []float64
	entityForce []float64

	timers *Timers
	vis    *visualization
}

// NewManager creates a manager for one rank. The vector communicator must be
// built over the same mesh that is later passed to CreateContactEntities.
func NewManager(cfg Config, c comm.Communicator, vc *comm.VectorCommunicator) *Manager {
	if c == nil || vc == nil {
		panic("contact manager needs a communicator and a vector communicator")
	}
	if cfg.Backend == BackendDevice && cfg.Mirror == nil {
		panic("contact manager: device backend requires a device mirror")
	}
	cfg = cfg.withDefaults()

	cm := &Manager{
		cfg:    cfg,
		comm:   c,
		vec:    vc,
		timers: newTimers(),
	}
	switch cfg.Backend {
	case BackendSerial:
		cm.exec = dispatch.Serial{}
	case BackendThreaded:
		cm.exec = dispatch.NewThreaded(cfg.Workers)
	case BackendDevice:
		// Host-side projection still runs threaded
		cm.exec = dispatch.New(cfg.Workers)
		cm.mirror = cfg.Mirror
	}
	return cm
}

// CreateContactEntities skins the primary and secondary blocks, removes the
// faces on partition boundaries and builds the submodel with its contact
// triangles and nodes. Collective.
func (cm *Manager) CreateContactEntities(m mesh.Mesh) error {
	cm.timers.Start(TimerCreateEntities)
	defer cm.timers.Stop(TimerCreateEntities)

	cm.numMeshNodes = m.NumNodes()
	cm.maxNodeGlobalID = cm.comm.AllReduceMaxInt(m.MaxNodeGlobalID())
	offset := cm.maxNodeGlobalID

	primary, err := SkinBlocks(m, cm.cfg.PrimaryBlocks, offset)
	if err != nil {
		return fmt.Errorf("failed to skin primary blocks: %w", err)
	}
	secondary, err := SkinBlocks(m, cm.cfg.SecondaryBlocks, offset)
	if err != nil {
		return fmt.Errorf("failed to skin secondary blocks: %w", err)
	}

	primary, removedPrimary, err := RemoveInternalSkinFaces(m, primary, cm.comm)
	if err != nil {
		return fmt.Errorf("failed to remove internal primary faces: %w", err)
	}
	secondary, removedSecondary, err := RemoveInternalSkinFaces(m, secondary, cm.comm)
	if err != nil {
		return fmt.Errorf("failed to remove internal secondary faces: %w", err)
	}

	cm.sm, cm.faces, cm.nodes, err = BuildSubmodel(m, primary, secondary, cm.vec)
	if err != nil {
		return fmt.Errorf("failed to build contact submodel: %w", err)
	}
	cm.state = StateIdle

	if cm.mirror != nil {
		if err = cm.mirror.Upload(NewDeviceArrays(cm.numMeshNodes, cm.sm, cm.faces, cm.nodes)); err != nil {
			return fmt.Errorf("failed to upload contact submodel to %s device: %w", cm.mirror.Mode(), err)
		}
		cm.faceCoords = make([]float64, 9*len(cm.faces))
		cm.nodeCoords = make([]float64, 3*len(cm.nodes))
		cm.entityForce = make([]float64, 9*len(cm.faces)+3*len(cm.nodes))
	}

	cm.report(removedPrimary, removedSecondary)
	return nil
}

// report prints the summed entity counts on rank 0. Collective.
func (cm *Manager) report(removedPrimary, removedSecondary int) {
	counts := make([]int, 4)
	cm.comm.AllReduceSumInts(counts, []int{len(cm.faces), len(cm.nodes), removedPrimary, removedSecondary})
	if !cm.cfg.Verbose || cm.comm.Rank() != 0 {
		return
	}
	io.Pf("\nContact initialization:\n")
	io.Pf("  number of triangular contact facets (primary blocks): %d\n", counts[0])
	io.Pf("  number of contact nodes (secondary blocks): %d\n", counts[1])
	if cm.comm.Size() > 1 {
		io.Pf("  partition boundary faces removed: %d primary, %d secondary\n", counts[2], counts[3])
	}
	io.Pforan("  contact backend: %s\n", cm.backendName())
}

func (cm *Manager) backendName() string {
	if cm.mirror != nil {
		return fmt.Sprintf("%s (%s)", cm.cfg.Backend, cm.mirror.Mode())
	}
	return cm.exec.Name()
}

// State returns the position within the current step
func (cm *Manager) State() State { return cm.state }

// Submodel returns the contact submodel, nil before CreateContactEntities
func (cm *Manager) Submodel() *Submodel { return cm.sm }

func (cm *Manager) NumContactFaces() int           { return len(cm.faces) }
func (cm *Manager) NumContactNodes() int           { return len(cm.nodes) }
func (cm *Manager) ContactFaces() []ContactEntity { return cm.faces }
func (cm *Manager) ContactNodes() []ContactEntity { return cm.nodes }

// NumActiveContactFaces counts the triangles that received a force in the
// last evaluation
func (cm *Manager) NumActiveContactFaces() int {
	n := 0
	for i := range cm.faces {
		if cm.faces[i].Status {
			n++
		}
	}
	return n
}

// Timers returns the accumulated time per phase
func (cm *Manager) Timers() map[string]time.Duration { return cm.timers.Snapshot() }

// ApplyDisplacements moves the submodel to ModelCoord + displacement and
// refreshes every entity's vertex coordinates. displacement is interleaved
// over all mesh nodes.
func (cm *Manager) ApplyDisplacements(displacement []float64) error {
	if cm.sm == nil {
		return fmt.Errorf("no contact entities: %w", ErrInvalidState)
	}
	if len(displacement) < 3*cm.numMeshNodes {
		return fmt.Errorf("displacement has %d values, need %d", len(displacement), 3*cm.numMeshNodes)
	}
	cm.timers.Start(TimerApplyDisplacements)
	defer cm.timers.Stop(TimerApplyDisplacements)

	if cm.mirror != nil {
		err := cm.mirror.ApplyDisplacements(displacement, cm.sm.Coord, cm.faceCoords, cm.nodeCoords)
		if err != nil {
			return fmt.Errorf("device displacement update failed: %w", err)
		}
		for i := range cm.faces {
			copy(cm.faces[i].Coords[:], cm.faceCoords[9*i:9*i+9])
		}
		for i := range cm.nodes {
			copy(cm.nodes[i].Coords[:3], cm.nodeCoords[3*i:3*i+3])
		}
	} else {
		cm.sm.ApplyDisplacements(cm.exec, displacement)
		cm.exec.ParallelFor("setFaceCoordinates", len(cm.faces), func(i int) {
			cm.faces[i].SetCoordinates(cm.sm.Coord)
		})
		cm.exec.ParallelFor("setNodeCoordinates", len(cm.nodes), func(i int) {
			cm.nodes[i].SetCoordinates(cm.sm.Coord)
		})
	}
	cm.state = StateDisplacementsApplied
	return nil
}

// ZeroContactForce clears every force accumulator
func (cm *Manager) ZeroContactForce() error {
	for i := range cm.faces {
		cm.faces[i].ZeroForce()
	}
	for i := range cm.nodes {
		cm.nodes[i].ZeroForce()
	}
	if cm.sm != nil {
		for i := range cm.sm.Force {
			cm.sm.Force[i] = 0
		}
	}
	if cm.mirror != nil {
		if err := cm.mirror.ZeroForces(); err != nil {
			return fmt.Errorf("device force reset failed: %w", err)
		}
	}
	return nil
}

// EvaluateContact projects every candidate pair, keeps the shallowest
// penetration per node and accumulates penalty forces on the entities.
// Projections run in parallel into disjoint slots; accumulation is
// sequential in pair order.
func (cm *Manager) EvaluateContact(search CandidateSearch) error {
	if cm.state != StateDisplacementsApplied {
		return fmt.Errorf("evaluate contact in state %s: %w", cm.state, ErrInvalidState)
	}
	if cm.cfg.PenaltyParameter <= 0 {
		return fmt.Errorf("penalty %g: %w", cm.cfg.PenaltyParameter, ErrInvalidPenalty)
	}
	cm.timers.Start(TimerEvaluateContact)
	defer cm.timers.Stop(TimerEvaluateContact)

	if err := cm.ZeroContactForce(); err != nil {
		return err
	}

	pairs := search.Candidates(cm.nodes, cm.faces)
	results := make([]ProjectionResult, len(pairs))
	tol := cm.cfg.Tolerance
	cm.exec.ParallelFor("projection", len(pairs), func(i int) {
		node, tri := &cm.nodes[pairs[i].Node], &cm.faces[pairs[i].Face]
		if sharesNode(node, tri) {
			return
		}
		results[i] = Projection(node, tri, tol)
	})

	keep := selectContacts(pairs, results)
	for i, p := range pairs {
		if keep[i] {
			ApplyPenalty(&cm.nodes[p.Node], &cm.faces[p.Face], results[i], cm.cfg.PenaltyParameter)
		}
	}

	cm.state = StateForcesComputed
	return nil
}

// ScatterContactForces assembles entity forces per submodel node, writes them
// into out (interleaved over all mesh nodes, zeroed first) and sums the
// contributions of ranks sharing a node. Collective.
func (cm *Manager) ScatterContactForces(out []float64) error {
	if cm.state != StateForcesComputed {
		return fmt.Errorf("scatter forces in state %s: %w", cm.state, ErrInvalidState)
	}
	cm.timers.Start(TimerScatterForces)
	defer cm.timers.Stop(TimerScatterForces)

	if cm.mirror != nil {
		packEntityForces(cm.faces, cm.nodes, cm.entityForce)
		if err := cm.mirror.AssembleForces(cm.entityForce, cm.sm.Force); err != nil {
			return fmt.Errorf("device force assembly failed: %w", err)
		}
	} else {
		cm.sm.AssembleForces(cm.exec, cm.faces, cm.nodes)
	}

	for i := range out {
		out[i] = 0
	}
	if err := cm.GetForces(out); err != nil {
		return err
	}
	cm.state = StateScattered

	cm.vec.VectorReduction(3, out)
	cm.state = StateIdle
	return nil
}

// ComputeContactForce runs one full contact step: displacement update,
// candidate evaluation and force scatter into out
func (cm *Manager) ComputeContactForce(step int, displacement []float64, search CandidateSearch, out []float64) error {
	if cm.cfg.PenaltyParameter <= 0 {
		return fmt.Errorf("penalty %g: %w", cm.cfg.PenaltyParameter, ErrInvalidPenalty)
	}
	if err := cm.ApplyDisplacements(displacement); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	if err := cm.EvaluateContact(search); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	if err := cm.ScatterContactForces(out); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}
	if cm.cfg.Verbose {
		active := []int{0}
		cm.comm.AllReduceSumInts(active, []int{cm.NumActiveContactFaces()})
		if cm.comm.Rank() == 0 {
			io.Pf("step %d: %d active contact facets\n", step, active[0])
		}
	}
	return nil
}

// GetForces copies the submodel force into out, interleaved over all mesh
// nodes. Entries of nodes outside the submodel are left untouched.
func (cm *Manager) GetForces(out []float64) error {
	if cm.sm == nil {
		return fmt.Errorf("no contact entities: %w", ErrInvalidState)
	}
	if cm.mirror != nil {
		if err := cm.mirror.GatherForces(out); err != nil {
			return fmt.Errorf("device force gather failed: %w", err)
		}
		return nil
	}
	cm.sm.GetForces(out)
	return nil
}

// localBox returns the box of the current submodel coordinates on this rank
func (cm *Manager) localBox() (lo, hi [3]float64) {
	for d := 0; d < 3; d++ {
		lo[d], hi[d] = math.Inf(1), math.Inf(-1)
	}
	if cm.sm == nil {
		return
	}
	for i := 0; i < cm.sm.NumNodes(); i++ {
		for d := 0; d < 3; d++ {
			v := cm.sm.Coord[3*i+d]
			lo[d] = math.Min(lo[d], v)
			hi[d] = math.Max(hi[d], v)
		}
	}
	return
}

// BoundingBox returns the box of the contact submodel over all ranks.
// Collective.
func (cm *Manager) BoundingBox() (lo, hi r3.Vec) {
	l, h := cm.localBox()
	gl, gh := make([]float64, 3), make([]float64, 3)
	cm.comm.AllReduceMin(gl, l[:])
	cm.comm.AllReduceMax(gh, h[:])
	return r3.Vec{X: gl[0], Y: gl[1], Z: gl[2]}, r3.Vec{X: gh[0], Y: gh[1], Z: gh[2]}
}

// BoundingBoxAverageCharacteristicLengthOverAllRanks averages, over ranks,
// the longest edge of each rank's local contact box. Ranks without contact
// entities contribute zero. Collective.
func (cm *Manager) BoundingBoxAverageCharacteristicLengthOverAllRanks() float64 {
	l, h := cm.localBox()
	longest := 0.0
	if cm.sm != nil && cm.sm.NumNodes() > 0 {
		edges := make([]float64, 3)
		floats.SubTo(edges, h[:], l[:])
		longest = floats.Max(edges)
	}
	sum := []float64{0}
	cm.comm.AllReduceSum(sum, []float64{longest})
	return sum[0] / float64(cm.comm.Size())
}

// Free releases the device mirror
func (cm *Manager) Free() {
	if cm.mirror != nil {
		cm.mirror.Free()
		cm.mirror = nil
	}
}
