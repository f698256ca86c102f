// Package fingerprint computes the short, stable digest clients use to
// decide whether a tile needs refetching.
package fingerprint

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Digest computes a 16-character hex fingerprint over the rendered
// buffer, the display mode string, and the device id, so that two
// devices showing identical content still produce distinct fingerprints.
//
// xxhash is a non-cryptographic hash; clients only need the output to
// be deterministic and stable under byte-for-byte equal input, which
// xxhash satisfies across processes and architectures.
func Digest(buf []byte, mode string, deviceID string) string {
	h := xxhash.New()
	h.WriteString(deviceID)
	h.Write([]byte{0})
	h.WriteString(mode)
	h.Write([]byte{0})
	h.Write(buf)

	sum := h.Sum64()
	return fmt.Sprintf("%016x", sum)
}
