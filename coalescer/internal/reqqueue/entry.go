package reqqueue

import (
	"fmt"
	"math/bits"
	"reflect"

	"github.com/sarchlab/lanecoalescer/mem"
)

// Entry is a request waiting in a lane queue.
type Entry struct {
	Req      mem.AccessReq
	Write    bool
	Address  uint64
	SizeLog2 uint8
}

// Size returns the number of bytes the entry accesses.
func (e Entry) Size() uint64 {
	return 1 << e.SizeLog2
}

// NewEntry wraps a lane request. Only reads and writes whose size is a
// non-zero power of two are accepted. A write mask, if given, must cover
// every byte.
func NewEntry(req mem.AccessReq) (Entry, error) {
	e := Entry{Req: req, Address: req.GetAddress()}

	switch r := req.(type) {
	case *mem.ReadReq:
	case *mem.WriteReq:
		if r.DirtyMask != nil && len(r.DirtyMask) != len(r.Data) {
			return Entry{}, fmt.Errorf(
				"write %s has %d mask bits for %d bytes",
				r.ID, len(r.DirtyMask), len(r.Data))
		}

		e.Write = true
	default:
		return Entry{}, fmt.Errorf("unsupported request type %s",
			reflect.TypeOf(req))
	}

	size := req.GetByteSize()
	if size == 0 || size&(size-1) != 0 {
		return Entry{}, fmt.Errorf(
			"request %s has size %d, which is not a power of two",
			req.Meta().ID, size)
	}

	e.SizeLog2 = uint8(bits.TrailingZeros64(size))

	return e, nil
}
