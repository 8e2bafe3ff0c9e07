package accel

import (
	"fmt"
	"strings"

	"github.com/notargets/DGContact/contact"
	"github.com/notargets/DGContact/runner"
	"github.com/notargets/DGContact/runner/builder"
	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"
)

// Kernel names
const (
	KernelApplyDisplacements = "applyDisplacements"
	KernelSetFaceCoords      = "setFaceCoords"
	KernelSetNodeCoords      = "setNodeCoords"
	KernelZeroForces         = "zeroForces"
	KernelAssembleForces     = "assembleForces"
	KernelGatherForces       = "gatherForces"
)

// triangleInterpolation maps the six submodel nodes of a face triangle
// (NodeID1, NodeID2, four barycenter nodes) to its three vertices
var triangleInterpolation = mat.NewDense(3, 6, []float64{
	1, 0, 0, 0, 0, 0,
	0, 1, 0, 0, 0, 0,
	0, 0, 0.25, 0.25, 0.25, 0.25,
})

// Mirror keeps the contact submodel on an OCCA device and runs the nodal
// loops there: displacement update, entity coordinate refresh, force
// assembly through the incidence table and the scatter to mesh nodes
type Mirror struct {
	runner *runner.Runner
	arrays contact.DeviceArrays

	numNodes        int
	numFaces        int
	numContactNodes int
}

// NewMirror creates a mirror on device. Host arrays are float64 and int64, so
// the type settings of cfg are overridden; BlockSize is honored.
func NewMirror(device *gocca.OCCADevice, cfg builder.Config) *Mirror {
	cfg.FloatType = builder.Float64
	cfg.IntType = builder.INT64
	kr := runner.NewRunner(device, cfg)
	kr.AddStaticMatrix("TRI_INTERP", triangleInterpolation)
	return &Mirror{runner: kr}
}

// Mode returns the OCCA device mode
func (m *Mirror) Mode() string { return m.runner.Device.Mode() }

// Runner exposes the underlying kernel runner
func (m *Mirror) Runner() *runner.Runner { return m.runner }

// Upload copies the submodel to the device and compiles the kernels for its
// sizes
func (m *Mirror) Upload(da contact.DeviceArrays) error {
	m.arrays = da
	m.numNodes = len(da.NodeIDs)
	m.numFaces = len(da.FaceNodes) / 6
	m.numContactNodes = len(da.NodeNodes)

	kr := m.runner
	kr.AllocInt64("nodeIDs", da.NodeIDs)
	kr.AllocFloat64("modelCoord", da.ModelCoord)
	kr.AllocZeroFloat64("coord", 3*m.numNodes)
	kr.AllocZeroFloat64("disp", 3*da.NumMeshNodes)
	kr.AllocInt64("faceNodes", da.FaceNodes)
	kr.AllocZeroFloat64("faceCoords", 9*m.numFaces)
	kr.AllocInt64("nodeNodes", da.NodeNodes)
	kr.AllocZeroFloat64("nodeCoords", 3*m.numContactNodes)
	kr.AllocInt64("incOffsets", da.IncidenceOffsets)
	kr.AllocInt64("incSlots", da.IncidenceSlots)
	kr.AllocFloat64("incWeights", da.IncidenceWeights)
	kr.AllocZeroFloat64("entityForce", da.EntityForceLen())
	kr.AllocZeroFloat64("force", 3*m.numNodes)
	kr.AllocZeroFloat64("meshForce", 3*da.NumMeshNodes)

	header := m.sizeDefinitions()
	for _, k := range []struct{ name, src string }{
		{KernelApplyDisplacements, applyDisplacementsSource},
		{KernelSetFaceCoords, setFaceCoordsSource},
		{KernelSetNodeCoords, setNodeCoordsSource},
		{KernelZeroForces, zeroForcesSource},
		{KernelAssembleForces, assembleForcesSource},
		{KernelGatherForces, gatherForcesSource},
	} {
		if _, err := kr.BuildKernel(header+k.src, k.name); err != nil {
			return err
		}
	}
	return nil
}

// sizeDefinitions bakes the entity counts into the kernels so every loop
// bound is a compile-time constant
func (m *Mirror) sizeDefinitions() string {
	kr := m.runner
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("#define NUM_SUBMODEL_NODES %d\n", m.numNodes))
	sb.WriteString(fmt.Sprintf("#define NUM_FACES %d\n", m.numFaces))
	sb.WriteString(fmt.Sprintf("#define NUM_CONTACT_NODES %d\n", m.numContactNodes))
	sb.WriteString(fmt.Sprintf("#define SUBMODEL_BLOCKS %d\n", kr.NumBlocks(m.numNodes)))
	sb.WriteString(fmt.Sprintf("#define FACE_BLOCKS %d\n", kr.NumBlocks(m.numFaces)))
	sb.WriteString(fmt.Sprintf("#define CONTACT_NODE_BLOCKS %d\n", kr.NumBlocks(m.numContactNodes)))
	sb.WriteString("\n")
	return sb.String()
}

// run launches a kernel over count items; empty launches are skipped
func (m *Mirror) run(kernel string, count int, arrays ...string) error {
	if count == 0 {
		return nil
	}
	args := make([]interface{}, len(arrays))
	for i, name := range arrays {
		mem := m.runner.GetMemory(name)
		if mem == nil {
			return fmt.Errorf("device array %s not allocated", name)
		}
		args[i] = mem
	}
	return m.runner.RunKernel(kernel, args...)
}

func (m *Mirror) ApplyDisplacements(displacement, coord, faceCoords, nodeCoords []float64) error {
	kr := m.runner
	if m.numNodes == 0 {
		return nil
	}
	if err := kr.WriteFloat64("disp", displacement[:3*m.arrays.NumMeshNodes]); err != nil {
		return err
	}
	if err := m.run(KernelApplyDisplacements, m.numNodes, "nodeIDs", "modelCoord", "disp", "coord"); err != nil {
		return err
	}
	if err := m.run(KernelSetFaceCoords, m.numFaces, "faceNodes", "coord", "faceCoords"); err != nil {
		return err
	}
	if err := m.run(KernelSetNodeCoords, m.numContactNodes, "nodeNodes", "coord", "nodeCoords"); err != nil {
		return err
	}
	if err := kr.ReadFloat64("coord", coord[:3*m.numNodes]); err != nil {
		return err
	}
	if err := kr.ReadFloat64("faceCoords", faceCoords[:9*m.numFaces]); err != nil {
		return err
	}
	return kr.ReadFloat64("nodeCoords", nodeCoords[:3*m.numContactNodes])
}

func (m *Mirror) ZeroForces() error {
	return m.run(KernelZeroForces, m.numNodes, "force")
}

func (m *Mirror) AssembleForces(entityForce, force []float64) error {
	if m.numNodes == 0 {
		return nil
	}
	kr := m.runner
	if err := kr.WriteFloat64("entityForce", entityForce[:m.arrays.EntityForceLen()]); err != nil {
		return err
	}
	err := m.run(KernelAssembleForces, m.numNodes, "incOffsets", "incSlots", "incWeights", "entityForce", "force")
	if err != nil {
		return err
	}
	return kr.ReadFloat64("force", force[:3*m.numNodes])
}

// GatherForces writes the submodel force of each node into out at its mesh
// node. Other entries of out are preserved.
func (m *Mirror) GatherForces(out []float64) error {
	if m.numNodes == 0 {
		return nil
	}
	kr := m.runner
	n := 3 * m.arrays.NumMeshNodes
	if err := kr.WriteFloat64("meshForce", out[:n]); err != nil {
		return err
	}
	if err := m.run(KernelGatherForces, m.numNodes, "nodeIDs", "force", "meshForce"); err != nil {
		return err
	}
	return kr.ReadFloat64("meshForce", out[:n])
}

// Free releases kernels and device arrays. The device is left to its owner.
func (m *Mirror) Free() {
	m.runner.Free()
}

var _ contact.DeviceMirror = (*Mirror)(nil)
