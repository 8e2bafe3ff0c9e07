package contact

import (
	"fmt"
	"sort"

	"github.com/notargets/DGContact/comm"
	"github.com/notargets/DGContact/mesh"
)

// RemoveInternalSkinFaces drops skin faces that another rank also holds: such
// a face lies on a partition boundary and is interior to the global mesh.
// Faces are compared by their sorted node global ids, exchanged around the
// ring one shift at a time. Collective; survivors keep their order. Returns
// the number of faces removed on this rank.
func RemoveInternalSkinFaces(m mesh.Mesh, faces []SkinFace, c comm.Communicator) ([]SkinFace, int, error) {
	size, rank := c.Size(), c.Rank()
	if size == 1 {
		return faces, 0, nil
	}

	gids := m.NodeGlobalIDs()
	keys := make([]int, 0, 4*len(faces))
	for i, f := range faces {
		if len(f.Nodes) != 4 {
			return nil, 0, fmt.Errorf("skin face %d has %d nodes: %w", i, len(f.Nodes), ErrInvalidFaceNodeCount)
		}
		var key faceKey
		for j, n := range f.Nodes {
			key[j] = gids[n]
		}
		sort.Ints(key[:])
		keys = append(keys, key[:]...)
	}

	removed := make([]bool, len(faces))
	for shift := 1; shift < size; shift++ {
		target, source := comm.RingPartners(rank, size, shift)
		theirs := c.SendRecvInts(keys, target, source)

		remote := make(map[faceKey]struct{}, len(theirs)/4)
		for i := 0; i+4 <= len(theirs); i += 4 {
			var key faceKey
			copy(key[:], theirs[i:i+4])
			remote[key] = struct{}{}
		}
		for i := range faces {
			var key faceKey
			copy(key[:], keys[4*i:4*i+4])
			if _, ok := remote[key]; ok {
				removed[i] = true
			}
		}
	}

	kept := faces[:0:0]
	for i, f := range faces {
		if !removed[i] {
			kept = append(kept, f)
		}
	}
	return kept, len(faces) - len(kept), nil
}
