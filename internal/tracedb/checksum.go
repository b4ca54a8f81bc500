package tracedb

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/spaolacci/murmur3"

	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/pkg/types"
)

// tableChecksum digests a table's timestamps and typed columns with
// murmur3-128. Rows are hashed in order: the timestamp bits, then each
// column's value in declaration order. Payload blobs are excluded, their
// content is reproduced from the typed columns they decode into.
func tableChecksum(t *trace.Table) string {
	h := murmur3.New128()
	var buf [8]byte

	writeFloat := func(v float64) {
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}

	for i := 0; i < t.Len(); i++ {
		writeFloat(t.Time(i))
		for _, col := range t.Columns() {
			switch col.Kind() {
			case types.KindFloat:
				writeFloat(col.Floats()[i])
			case types.KindInt:
				writeInt(col.Ints()[i])
			case types.KindString:
				h.Write([]byte(col.Strings()[i]))
				h.Write([]byte{0})
			}
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
