package search

import (
	"sort"

	"github.com/notargets/DGContact/contact"
	"github.com/notargets/DGContact/dispatch"
	"gonum.org/v1/gonum/spatial/r3"
)

// captureBox is the triangle's bounding box grown by its characteristic
// length, the deepest penetration the projection accepts
func captureBox(tri *contact.ContactEntity) r3.Box {
	b := tri.BoundingBox()
	h := r3.Vec{X: tri.CharLen, Y: tri.CharLen, Z: tri.CharLen}
	return r3.Box{Min: r3.Sub(b.Min, h), Max: r3.Add(b.Max, h)}
}

func inBox(b r3.Box, p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// flatten concatenates per-node candidate lists in node order
func flatten(perNode [][]int) []contact.Pair {
	n := 0
	for _, faces := range perNode {
		n += len(faces)
	}
	pairs := make([]contact.Pair, 0, n)
	for node, faces := range perNode {
		sort.Ints(faces)
		for _, f := range faces {
			pairs = append(pairs, contact.Pair{Node: node, Face: f})
		}
	}
	return pairs
}

// BruteForce tests every node against every triangle capture box
type BruteForce struct {
	Executor dispatch.Executor
}

// Candidates returns pairs ordered by node then triangle
func (bf BruteForce) Candidates(nodes, faces []contact.ContactEntity) []contact.Pair {
	ex := bf.Executor
	if ex == nil {
		ex = dispatch.Serial{}
	}
	boxes := make([]r3.Box, len(faces))
	ex.ParallelFor("captureBoxes", len(faces), func(i int) {
		boxes[i] = captureBox(&faces[i])
	})

	perNode := make([][]int, len(nodes))
	ex.ParallelFor("bruteForceSearch", len(nodes), func(i int) {
		p := nodes[i].Vertex(0)
		for f := range boxes {
			if inBox(boxes[f], p) {
				perNode[i] = append(perNode[i], f)
			}
		}
	})
	return flatten(perNode)
}
