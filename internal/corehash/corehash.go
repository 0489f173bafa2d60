// Package corehash computes deterministic digests over the core columns of a
// candle table. The digest is the immutability contract for enrichment: any
// write to a core column changes it.
package corehash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/Gitchegumi/quantpipe-sub002/internal/domain"
)

// Sum computes the SHA256 digest of the seven core columns in canonical
// order. Serialization is column-major and bit-exact: column name bytes, then
// fixed-width little-endian values (int64 for timestamps, IEEE-754 bits for
// floats, one byte for booleans). Returns the hex-encoded hash (64 characters).
func Sum(t *domain.CoreTable) string {
	h := sha256.New()
	var buf [8]byte

	writeName := func(name string) {
		h.Write([]byte(name))
		h.Write([]byte{'|'})
	}

	writeName(domain.ColTimestamp)
	for _, ts := range t.TimestampMs {
		binary.LittleEndian.PutUint64(buf[:], uint64(ts))
		h.Write(buf[:])
	}

	floatCols := [][]float64{t.Open, t.High, t.Low, t.Close, t.Volume}
	for i, name := range domain.FloatColumns() {
		writeName(name)
		for _, v := range floatCols[i] {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			h.Write(buf[:])
		}
	}

	writeName(domain.ColIsGap)
	for _, g := range t.IsGap {
		if g {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
