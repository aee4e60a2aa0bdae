package mem

import (
	"errors"
	"sync"
)

// For capacity
const (
	_         = iota
	KB uint64 = 1 << (10 * iota)
	MB
	GB
	TB
)

// ErrOutOfRange is returned when an access touches bytes beyond the storage
// capacity.
var ErrOutOfRange = errors.New("accessing address beyond the storage capacity")

// A Storage keeps the data of the guest system.
//
// The storage manages the data in units, similar to pages. Units that are
// never touched by Read and Write are not allocated.
type Storage struct {
	sync.Mutex

	unitSize uint64
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.unitSize = 4 * KB
	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

func (s *Storage) inRange(address, length uint64) bool {
	end := address + length

	return end >= address && end <= s.capacity
}

func (s *Storage) unit(baseAddr uint64) []byte {
	unit, ok := s.data[baseAddr]
	if !ok {
		unit = make([]byte, s.unitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if !s.inRange(address, length) {
		return nil, ErrOutOfRange
	}

	res := make([]byte, length)
	done := uint64(0)

	for done < length {
		curr := address + done
		inUnit := curr % s.unitSize
		n := min(s.unitSize-inUnit, length-done)

		unit := s.unit(curr - inUnit)
		copy(res[done:done+n], unit[inUnit:inUnit+n])
		done += n
	}

	return res, nil
}

// Write stores data at address. Bytes whose mask entry is false are left
// untouched. A nil mask writes every byte.
func (s *Storage) Write(address uint64, data []byte, mask []bool) error {
	s.Lock()
	defer s.Unlock()

	length := uint64(len(data))
	if !s.inRange(address, length) {
		return ErrOutOfRange
	}

	for i := uint64(0); i < length; i++ {
		if mask != nil && !mask[i] {
			continue
		}

		curr := address + i
		inUnit := curr % s.unitSize
		s.unit(curr - inUnit)[inUnit] = data[i]
	}

	return nil
}
