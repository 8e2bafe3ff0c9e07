package contact

// Face entity ids pack the owning element, the hex face ordinal and the
// triangle ordinal into one integer:
//
//	id = (elemGlobalID1Based + offset) << ElementShift
//	   | (faceOrdinal & FaceOrdinalMask) << FaceOrdinalShift
//	   | (triOrdinal & TriangleOrdinalMask)
//
// offset is the global maximum node global id, which keeps face ids clear of
// node entity ids (nodeGlobalID + 1).
const (
	FaceOrdinalShift          = 2
	ElementShift              = 5
	FaceOrdinalMask     int64 = 0x7
	TriangleOrdinalMask int64 = 0x3
)

// FaceEntityID encodes a skin face id with triangle ordinal zero
func FaceEntityID(elemGlobalID1Based, offset, faceOrdinal int) int64 {
	return int64(elemGlobalID1Based+offset)<<ElementShift |
		(int64(faceOrdinal)&FaceOrdinalMask)<<FaceOrdinalShift
}

// TriangleEntityID folds a triangle ordinal into a face id
func TriangleEntityID(faceID int64, triOrdinal int) int64 {
	return faceID | int64(triOrdinal)&TriangleOrdinalMask
}

// DecodeFaceEntityID inverts FaceEntityID and TriangleEntityID
func DecodeFaceEntityID(id int64, offset int) (elemGlobalID1Based, faceOrdinal, triOrdinal int) {
	elemGlobalID1Based = int(id>>ElementShift) - offset
	faceOrdinal = int((id >> FaceOrdinalShift) & FaceOrdinalMask)
	triOrdinal = int(id & TriangleOrdinalMask)
	return
}

// NodeEntityID is the id of the contact node built on a mesh node
func NodeEntityID(nodeGlobalID int) int64 {
	return int64(nodeGlobalID) + 1
}
