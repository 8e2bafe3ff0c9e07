package contact

import (
	"github.com/notargets/DGContact/dispatch"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTolerance bounds the barycentric inside test
const DefaultTolerance = 1.0e-16

// ProjectionType classifies where a projected point landed on a triangle
type ProjectionType uint8

const (
	ProjectionUnknown ProjectionType = iota
	ProjectionNodeOrEdge
	ProjectionFace
)

func (pt ProjectionType) String() string {
	switch pt {
	case ProjectionNodeOrEdge:
		return "NODE_OR_EDGE"
	case ProjectionFace:
		return "FACE"
	default:
		return "UNKNOWN"
	}
}

// ProjectionResult is the outcome of projecting a contact node onto a contact
// triangle
type ProjectionResult struct {
	In          bool    // Penetrating and within the triangle's capture depth
	Gap         float64 // Signed distance along Normal, negative when penetrating
	Normal      r3.Vec  // Unit triangle normal
	Point       r3.Vec
	Barycentric [3]float64
}

func within(x, tol float64) bool { return x > -tol && x < 1+tol }
func isZero(x, tol float64) bool { return x > -tol && x < tol }

// barycentric returns the coordinates of the projection of p onto the plane
// of (p1, p2, p3), following Heidrich, "Computing the barycentric coordinates
// of a projected point", JGT 2005. The unnormalized normal is returned too.
func barycentric(p, p1, p2, p3 r3.Vec) (alpha, beta, gamma float64, n r3.Vec) {
	u := r3.Sub(p2, p1)
	v := r3.Sub(p3, p1)
	w := r3.Sub(p, p1)
	n = r3.Cross(u, v)
	oneOver4ASq := 1 / r3.Dot(n, n)
	gamma = r3.Dot(r3.Cross(u, w), n) * oneOver4ASq
	beta = r3.Dot(r3.Cross(w, v), n) * oneOver4ASq
	alpha = 1 - beta - gamma
	return
}

func combine(alpha, beta, gamma float64, p1, p2, p3 r3.Vec) r3.Vec {
	return r3.Add(r3.Add(r3.Scale(alpha, p1), r3.Scale(beta, p2)), r3.Scale(gamma, p3))
}

// ClosestPointProjection returns the point of the triangle closest to the
// node. Inside the triangle (within tol) the plane projection is used; the
// result is FACE unless a barycentric coordinate is zero. Otherwise the
// nearest of the three vertices and the interiors of the three edges wins,
// ties going to the earlier candidate, and the result is NODE_OR_EDGE.
func ClosestPointProjection(node, tri *ContactEntity, tol float64) (r3.Vec, ProjectionType) {
	p := node.Vertex(0)
	p1, p2, p3 := tri.Vertex(0), tri.Vertex(1), tri.Vertex(2)

	alpha, beta, gamma, _ := barycentric(p, p1, p2, p3)
	if within(alpha, tol) && within(beta, tol) && within(gamma, tol) {
		pt := ProjectionFace
		if isZero(alpha, tol) || isZero(beta, tol) || isZero(gamma, tol) {
			pt = ProjectionNodeOrEdge
		}
		return combine(alpha, beta, gamma, p1, p2, p3), pt
	}

	// Candidates in order: vertex 1, 2, 3, edge 1-2, 2-3, 3-1
	best := p1
	bestSq := r3.Norm2(r3.Sub(p, p1))
	consider := func(q r3.Vec) {
		if d := r3.Norm2(r3.Sub(p, q)); d < bestSq {
			best, bestSq = q, d
		}
	}
	consider(p2)
	consider(p3)
	for _, e := range [3][2]r3.Vec{{p1, p2}, {p2, p3}, {p3, p1}} {
		a, b := e[0], e[1]
		ab := r3.Sub(b, a)
		t := r3.Dot(r3.Sub(p, a), ab) / r3.Norm2(ab)
		if t > 0 && t < 1 {
			consider(r3.Add(a, r3.Scale(t, ab)))
		}
	}
	return best, ProjectionNodeOrEdge
}

// ClosestPointProjections projects nodes[i] onto tris[i] for every i,
// writing points[i] and types[i]
func ClosestPointProjections(ex dispatch.Executor, nodes, tris []ContactEntity, points []r3.Vec, types []ProjectionType) {
	ex.ParallelFor("closestPointProjection", len(nodes), func(i int) {
		points[i], types[i] = ClosestPointProjection(&nodes[i], &tris[i], DefaultTolerance)
	})
}

// SimpleClosestPointProjection projects the node onto the triangle plane. A
// projection inside the triangle is FACE with the unit normal and the signed
// gap; anything else is UNKNOWN with zero gap and normal.
func SimpleClosestPointProjection(node, tri *ContactEntity, tol float64) (pt ProjectionType, point r3.Vec, gap float64, normal r3.Vec) {
	res, ok := project(node, tri, tol)
	if !ok {
		return ProjectionUnknown, r3.Vec{}, 0, r3.Vec{}
	}
	return ProjectionFace, res.Point, res.Gap, res.Normal
}

// Projection evaluates one node against one triangle. In holds when the node
// projects inside the triangle, is behind it, and is less than the
// triangle's characteristic length deep.
func Projection(node, tri *ContactEntity, tol float64) ProjectionResult {
	res, ok := project(node, tri, tol)
	if !ok {
		return ProjectionResult{}
	}
	res.In = res.Gap < 0 && res.Gap > -tri.CharLen
	return res
}

func project(node, tri *ContactEntity, tol float64) (ProjectionResult, bool) {
	p := node.Vertex(0)
	p1, p2, p3 := tri.Vertex(0), tri.Vertex(1), tri.Vertex(2)

	alpha, beta, gamma, n := barycentric(p, p1, p2, p3)
	if !(within(alpha, tol) && within(beta, tol) && within(gamma, tol)) {
		return ProjectionResult{}, false
	}
	point := combine(alpha, beta, gamma, p1, p2, p3)
	normal := r3.Unit(n)
	return ProjectionResult{
		Gap:         r3.Dot(r3.Sub(p, point), normal),
		Normal:      normal,
		Point:       point,
		Barycentric: [3]float64{alpha, beta, gamma},
	}, true
}
