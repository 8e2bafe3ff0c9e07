package accel

// OKL sources. Each loop covers its item count in blocks of BLOCK_SIZE; the
// count macros are prepended at build time.

const applyDisplacementsSource = `
@kernel void applyDisplacements(const int_t* nodeIDs,
                                const real_t* modelCoord,
                                const real_t* disp,
                                real_t* coord) {
	for (int b = 0; b < SUBMODEL_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int i = b * BLOCK_SIZE + t;
			if (i < NUM_SUBMODEL_NODES) {
				const int_t n = nodeIDs[i];
				for (int d = 0; d < 3; ++d) {
					coord[3 * i + d] = modelCoord[3 * i + d] + disp[3 * n + d];
				}
			}
		}
	}
}
`

const setFaceCoordsSource = `
@kernel void setFaceCoords(const int_t* faceNodes,
                           const real_t* coord,
                           real_t* faceCoords) {
	for (int b = 0; b < FACE_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int f = b * BLOCK_SIZE + t;
			if (f < NUM_FACES) {
				for (int v = 0; v < 3; ++v) {
					for (int d = 0; d < 3; ++d) {
						real_t sum = REAL_ZERO;
						for (int j = 0; j < 6; ++j) {
							sum += TRI_INTERP[j][v] * coord[3 * faceNodes[6 * f + j] + d];
						}
						faceCoords[9 * f + 3 * v + d] = sum;
					}
				}
			}
		}
	}
}
`

const setNodeCoordsSource = `
@kernel void setNodeCoords(const int_t* nodeNodes,
                           const real_t* coord,
                           real_t* nodeCoords) {
	for (int b = 0; b < CONTACT_NODE_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int i = b * BLOCK_SIZE + t;
			if (i < NUM_CONTACT_NODES) {
				const int_t n = nodeNodes[i];
				for (int d = 0; d < 3; ++d) {
					nodeCoords[3 * i + d] = coord[3 * n + d];
				}
			}
		}
	}
}
`

const zeroForcesSource = `
@kernel void zeroForces(real_t* force) {
	for (int b = 0; b < SUBMODEL_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int i = b * BLOCK_SIZE + t;
			if (i < NUM_SUBMODEL_NODES) {
				for (int d = 0; d < 3; ++d) {
					force[3 * i + d] = REAL_ZERO;
				}
			}
		}
	}
}
`

const assembleForcesSource = `
@kernel void assembleForces(const int_t* incOffsets,
                            const int_t* incSlots,
                            const real_t* incWeights,
                            const real_t* entityForce,
                            real_t* force) {
	for (int b = 0; b < SUBMODEL_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int i = b * BLOCK_SIZE + t;
			if (i < NUM_SUBMODEL_NODES) {
				real_t f0 = REAL_ZERO, f1 = REAL_ZERO, f2 = REAL_ZERO;
				for (int_t s = incOffsets[i]; s < incOffsets[i + 1]; ++s) {
					const real_t w = incWeights[s];
					const int_t o = incSlots[s];
					f0 += w * entityForce[o];
					f1 += w * entityForce[o + 1];
					f2 += w * entityForce[o + 2];
				}
				force[3 * i] = f0;
				force[3 * i + 1] = f1;
				force[3 * i + 2] = f2;
			}
		}
	}
}
`

const gatherForcesSource = `
@kernel void gatherForces(const int_t* nodeIDs,
                          const real_t* force,
                          real_t* meshForce) {
	for (int b = 0; b < SUBMODEL_BLOCKS; ++b; @outer) {
		for (int t = 0; t < BLOCK_SIZE; ++t; @inner) {
			const int i = b * BLOCK_SIZE + t;
			if (i < NUM_SUBMODEL_NODES) {
				const int_t n = nodeIDs[i];
				for (int d = 0; d < 3; ++d) {
					meshForce[3 * n + d] = force[3 * i + d];
				}
			}
		}
	}
}
`
