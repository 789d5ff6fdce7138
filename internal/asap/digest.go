package asap

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Digest returns the hex SHA3-256 digest of a raw document. The run history
// stores it so identical responses can be recognised across runs.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the digest of the document's XML encoding.
func (d *Document) Digest() (string, error) {
	data, err := d.Marshal()
	if err != nil {
		return "", err
	}
	return Digest(data), nil
}
