package contact

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Pair is a candidate (contact node, contact triangle) couple, by index into
// the manager's node and face lists
type Pair struct {
	Node, Face int
}

// CandidateSearch is the broad phase: it proposes node/triangle pairs close
// enough to be worth projecting
type CandidateSearch interface {
	Candidates(nodes, faces []ContactEntity) []Pair
}

// PenaltyForce is the force on a penetrating node, along the triangle
// normal and proportional to the penetration depth
func PenaltyForce(res ProjectionResult, penalty float64) r3.Vec {
	return r3.Scale(-penalty*res.Gap, res.Normal)
}

// ApplyPenalty adds the penalty force to the node and the reaction to the
// triangle vertices, split by barycentric weight
func ApplyPenalty(node, tri *ContactEntity, res ProjectionResult, penalty float64) {
	f := PenaltyForce(res, penalty)
	node.AddForce(0, f)
	for v := 0; v < 3; v++ {
		tri.AddForce(v, r3.Scale(-res.Barycentric[v], f))
	}
}

// sharesNode reports whether the node entity sits on one of the triangle's
// contributing submodel nodes
func sharesNode(node, tri *ContactEntity) bool {
	n := node.NodeID1
	if n == tri.NodeID1 || n == tri.NodeID2 {
		return true
	}
	for _, f := range tri.FictitiousNodes {
		if n == f {
			return true
		}
	}
	return false
}

// selectContacts keeps, for each node, the penetrating pair with the
// shallowest gap; ties go to the earlier pair. The returned mask is indexed
// like pairs.
func selectContacts(pairs []Pair, results []ProjectionResult) []bool {
	best := make(map[int]int)
	for i, p := range pairs {
		if !results[i].In {
			continue
		}
		if j, ok := best[p.Node]; !ok || results[i].Gap > results[j].Gap {
			best[p.Node] = i
		}
	}
	keep := make([]bool, len(pairs))
	for _, i := range best {
		keep[i] = true
	}
	return keep
}
