package search

import (
	"math"

	"github.com/notargets/DGContact/contact"
	"github.com/notargets/DGContact/dispatch"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// KDTree indexes triangle centroids in a gonum k-d tree. Each node queries
// every centroid within the largest capture radius, then the capture box
// test of BruteForce filters the hits, so both searches agree.
type KDTree struct {
	Executor dispatch.Executor
}

// centroid is a triangle centroid stored in the tree
type centroid struct {
	C     r3.Vec
	Index int
}

func (c *centroid) Compare(o kdtree.Comparable, d kdtree.Dim) float64 {
	q := o.(*centroid)
	switch d {
	case 0:
		return c.C.X - q.C.X
	case 1:
		return c.C.Y - q.C.Y
	default:
		return c.C.Z - q.C.Z
	}
}

func (c *centroid) Dims() int { return 3 }

func (c *centroid) Distance(o kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(c.C, o.(*centroid).C))
}

// centroids implements kdtree.Interface
type centroids []centroid

func (cs centroids) Index(i int) kdtree.Comparable { return &cs[i] }
func (cs centroids) Len() int                      { return len(cs) }

func (cs centroids) Pivot(d kdtree.Dim) int {
	p := plane{dim: d, centroids: cs}
	return kdtree.Partition(p, kdtree.MedianOfMedians(p))
}

func (cs centroids) Slice(start, end int) kdtree.Interface { return cs[start:end] }

// plane sorts centroids along one dimension
type plane struct {
	dim kdtree.Dim
	centroids
}

func (p plane) Less(i, j int) bool {
	return p.centroids[i].Compare(&p.centroids[j], p.dim) < 0
}

func (p plane) Swap(i, j int) {
	p.centroids[i], p.centroids[j] = p.centroids[j], p.centroids[i]
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.centroids = p.centroids[start:end]
	return p
}

// Candidates returns pairs ordered by node then triangle
func (kt KDTree) Candidates(nodes, faces []contact.ContactEntity) []contact.Pair {
	if len(nodes) == 0 || len(faces) == 0 {
		return nil
	}
	ex := kt.Executor
	if ex == nil {
		ex = dispatch.Serial{}
	}

	boxes := make([]r3.Box, len(faces))
	points := make(centroids, len(faces))
	radii := make([]float64, len(faces))
	ex.ParallelFor("captureBoxes", len(faces), func(i int) {
		boxes[i] = captureBox(&faces[i])
		c := faces[i].Centroid()
		points[i] = centroid{C: c, Index: i}
		// Farthest capture box corner from the centroid
		far := r3.Vec{
			X: math.Max(c.X-boxes[i].Min.X, boxes[i].Max.X-c.X),
			Y: math.Max(c.Y-boxes[i].Min.Y, boxes[i].Max.Y-c.Y),
			Z: math.Max(c.Z-boxes[i].Min.Z, boxes[i].Max.Z-c.Z),
		}
		radii[i] = r3.Norm2(far)
	})
	maxRadiusSq := 0.0
	for _, r := range radii {
		maxRadiusSq = math.Max(maxRadiusSq, r)
	}

	tree := kdtree.New(points, false)

	perNode := make([][]int, len(nodes))
	ex.ParallelFor("kdtreeSearch", len(nodes), func(i int) {
		p := nodes[i].Vertex(0)
		keeper := kdtree.NewDistKeeper(maxRadiusSq)
		tree.NearestSet(keeper, &centroid{C: p})
		for _, hit := range keeper.Heap {
			if hit.Comparable == nil {
				continue
			}
			f := hit.Comparable.(*centroid).Index
			if inBox(boxes[f], p) {
				perNode[i] = append(perNode[i], f)
			}
		}
	})
	return flatten(perNode)
}
