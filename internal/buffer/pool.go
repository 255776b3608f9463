package buffer

import (
	"sync"

	"github.com/Geun-Oh/lxring/internal/entry"
)

// wirePool holds scratch slices for encoding entries to their wire shape,
// to keep tail paths from allocating a frame per entry.
var wirePool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// maxPooledWire keeps oversized frames out of the pool.
const maxPooledWire = 64 * 1024

// EncodeWire encodes e in its cursor's wire shape into a pooled slice. The
// result must be handed back with ReleaseWire once written out.
func EncodeWire(e *entry.Entry) *[]byte {
	b := wirePool.Get().(*[]byte)
	v := e.Version
	if v == 0 {
		v = entry.V2
	}
	*b = e.AppendWire((*b)[:0], v)
	return b
}

// ReleaseWire returns a slice obtained from EncodeWire.
func ReleaseWire(b *[]byte) {
	if cap(*b) > maxPooledWire {
		return
	}
	wirePool.Put(b)
}
