package contact

import (
	"fmt"
	"sort"

	"github.com/notargets/DGContact/mesh"
)

// SkinFace is a quadrilateral on the exterior of a set of blocks. Nodes hold
// mesh-local node indices in element ordering until the submodel builder
// rewrites them to submodel indices.
type SkinFace struct {
	Nodes    []int
	EntityID int64
}

// hexFaces lists the corners of each hex face in Exodus ordering, wound so
// that the face normal points out of the element
var hexFaces = [6][4]int{
	{0, 1, 5, 4},
	{1, 2, 6, 5},
	{2, 3, 7, 6},
	{0, 4, 7, 3},
	{0, 3, 2, 1},
	{4, 5, 6, 7},
}

type faceKey [4]int

type faceRecord struct {
	count    int
	nodes    [4]int
	entityID int64
}

// SkinBlocks returns the faces of the requested blocks that belong to exactly
// one element, ordered by their sorted node indices. offset is folded into
// the entity ids, see FaceEntityID.
func SkinBlocks(m mesh.Mesh, blockIDs []int, offset int) ([]SkinFace, error) {
	records := make(map[faceKey]*faceRecord)

	for _, blockID := range blockIDs {
		nodesPerElem := m.NumNodesPerElement(blockID)
		numElem := m.NumElementsInBlock(blockID)
		if numElem == 0 {
			continue
		}
		if nodesPerElem != mesh.HexNodesPerElement {
			return nil, fmt.Errorf("block %d has %d nodes per element: %w",
				blockID, nodesPerElem, ErrNotHexahedral)
		}
		conn := m.Connectivity(blockID)
		elemGlobalIDs := m.ElementGlobalIDsInBlock(blockID)

		for e := 0; e < numElem; e++ {
			hex := conn[e*nodesPerElem : (e+1)*nodesPerElem]
			for ordinal, tmpl := range hexFaces {
				var nodes [4]int
				for i, c := range tmpl {
					nodes[i] = hex[c]
				}
				key := faceKey(nodes)
				sort.Ints(key[:])
				if rec, ok := records[key]; ok {
					rec.count++
					continue
				}
				records[key] = &faceRecord{
					count:    1,
					nodes:    nodes,
					entityID: FaceEntityID(elemGlobalIDs[e]+1, offset, ordinal),
				}
			}
		}
	}

	keys := make([]faceKey, 0, len(records))
	for k, rec := range records {
		switch rec.count {
		case 1:
			keys = append(keys, k)
		case 2:
			// Interior face
		default:
			return nil, fmt.Errorf("face %v appears %d times: %w", k, rec.count, ErrFaceMultiplicity)
		}
	}
	sort.Slice(keys, func(a, b int) bool {
		ka, kb := keys[a], keys[b]
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
		return false
	})

	faces := make([]SkinFace, len(keys))
	for i, k := range keys {
		rec := records[k]
		faces[i] = SkinFace{
			Nodes:    append([]int(nil), rec.nodes[:]...),
			EntityID: rec.entityID,
		}
	}
	return faces, nil
}
