// Package identity derives stable environment file identifiers shared by
// clients and the server. The derivation is a wire contract: any change to the
// separator or encoding breaks every stored identifier and requires a
// migration.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// separator joins repository ID and file name before hashing. A repository ID
// is an opaque UUID, so the byte cannot occur inside a valid left-hand side.
const separator = ":"

// ComputeID maps (repositoryID, fileName) to a stable hex identifier.
// Deterministic and side-effect free; both the pushing client and the server
// compute it independently and must agree bit for bit. Input validation
// (empty file names, length ceilings) is the caller's responsibility.
func ComputeID(repositoryID, fileName string) string {
	sum := sha256.Sum256([]byte(repositoryID + separator + fileName))
	return hex.EncodeToString(sum[:])
}
