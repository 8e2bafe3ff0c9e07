package contact

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// EntityKind tags a ContactEntity as a node or a triangle
type EntityKind uint8

const (
	NodeEntity EntityKind = iota
	TriangleEntity
)

func (k EntityKind) String() string {
	if k == NodeEntity {
		return "NODE"
	}
	return "TRIANGLE"
}

// ContactEntity is a contact node or a contact triangle. Both kinds share one
// fixed layout so they can live in flat arrays: a node uses vertex slot 0
// only and leaves the remaining slots zero.
//
// A triangle is built on one edge of a quad skin face plus the face
// barycenter. Vertices 0 and 1 are the real submodel nodes NodeID1 and NodeID2,
// vertex 2 is the average of the four FictitiousNodes.
type ContactEntity struct {
	Kind       EntityKind
	GlobalID   int64
	LocalIndex int

	Coords  [9]float64
	Force   [9]float64
	CharLen float64

	NodeID1, NodeID2 int
	FictitiousNodes  [4]int

	// Status is set when a contact force was accumulated this step
	Status bool
}

// NumVertices returns 1 for a node and 3 for a triangle
func (ce *ContactEntity) NumVertices() int {
	if ce.Kind == NodeEntity {
		return 1
	}
	return 3
}

// Vertex returns vertex i of the current coordinates
func (ce *ContactEntity) Vertex(i int) r3.Vec {
	return r3.Vec{X: ce.Coords[3*i], Y: ce.Coords[3*i+1], Z: ce.Coords[3*i+2]}
}

// SetCoordinates loads the current vertex positions from an interleaved
// submodel coordinate array
func (ce *ContactEntity) SetCoordinates(coord []float64) {
	n1 := 3 * ce.NodeID1
	copy(ce.Coords[0:3], coord[n1:n1+3])
	if ce.Kind == NodeEntity {
		return
	}
	n2 := 3 * ce.NodeID2
	copy(ce.Coords[3:6], coord[n2:n2+3])
	for d := 0; d < 3; d++ {
		sum := 0.0
		for _, f := range ce.FictitiousNodes {
			sum += coord[3*f+d]
		}
		ce.Coords[6+d] = 0.25 * sum
	}
}

// ScatterForces adds the entity force into an interleaved submodel force
// array, splitting the barycenter force evenly over the four fictitious
// nodes
func (ce *ContactEntity) ScatterForces(force []float64) {
	n1 := 3 * ce.NodeID1
	for d := 0; d < 3; d++ {
		force[n1+d] += ce.Force[d]
	}
	if ce.Kind == NodeEntity {
		return
	}
	n2 := 3 * ce.NodeID2
	for d := 0; d < 3; d++ {
		force[n2+d] += ce.Force[3+d]
	}
	for _, f := range ce.FictitiousNodes {
		for d := 0; d < 3; d++ {
			force[3*f+d] += 0.25 * ce.Force[6+d]
		}
	}
}

// ZeroForce clears the force accumulator and the contact status
func (ce *ContactEntity) ZeroForce() {
	ce.Force = [9]float64{}
	ce.Status = false
}

// AddForce accumulates f on vertex i
func (ce *ContactEntity) AddForce(i int, f r3.Vec) {
	ce.Force[3*i] += f.X
	ce.Force[3*i+1] += f.Y
	ce.Force[3*i+2] += f.Z
	ce.Status = true
}

// VertexForce returns the accumulated force on vertex i
func (ce *ContactEntity) VertexForce(i int) r3.Vec {
	return r3.Vec{X: ce.Force[3*i], Y: ce.Force[3*i+1], Z: ce.Force[3*i+2]}
}

// BoundingBox returns the axis-aligned box of the vertices
func (ce *ContactEntity) BoundingBox() r3.Box {
	box := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for i := 0; i < ce.NumVertices(); i++ {
		box = growBox(box, ce.Vertex(i))
	}
	return box
}

// Centroid returns the vertex average
func (ce *ContactEntity) Centroid() r3.Vec {
	var c r3.Vec
	nv := ce.NumVertices()
	for i := 0; i < nv; i++ {
		c = r3.Add(c, ce.Vertex(i))
	}
	return r3.Scale(1/float64(nv), c)
}

func growBox(b r3.Box, p r3.Vec) r3.Box {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	return b
}
