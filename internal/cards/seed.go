package cards

import (
	"crypto/sha256"
	"encoding/binary"
)

var seedPrefix = []byte("SCGv1|seed|")

// DeriveSeed hashes length-prefixed messages under a domain separator so that
// seeds for different purposes (creation shuffle, join cut) never collide.
func DeriveSeed(domainSep string, msgs ...[]byte) []byte {
	h := sha256.New()
	h.Write(seedPrefix)
	writeLenPrefixed(h, []byte(domainSep))
	for _, m := range msgs {
		writeLenPrefixed(h, m)
	}
	return h.Sum(nil)
}

func writeLenPrefixed(h interface{ Write([]byte) (int, error) }, b []byte) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(b)))
	_, _ = h.Write(n[:])
	_, _ = h.Write(b)
}

// U64LE encodes x little-endian; used to bind game ids into seeds.
func U64LE(x uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, x)
	return b
}
