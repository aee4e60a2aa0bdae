package mem

import "github.com/sarchlab/lanecoalescer/sim"

// AddressToPortMapper helps the coalescer find the low module that holds the
// data at a certain address.
type AddressToPortMapper interface {
	Find(address uint64) sim.RemotePort
}

// SinglePortMapper is used when a unit is connected with only one
// low module
type SinglePortMapper struct {
	Port sim.RemotePort
}

// Find simply returns the solo unit that it connects to
func (f *SinglePortMapper) Find(_ uint64) sim.RemotePort {
	return f.Port
}

// InterleavedAddressPortMapper helps find the low module when the low modules
// maintains interleaved address space
type InterleavedAddressPortMapper struct {
	InterleavingSize uint64
	LowModules       []sim.RemotePort
}

// Find returns the low module that has the data at provided address
func (f *InterleavedAddressPortMapper) Find(address uint64) sim.RemotePort {
	number := address / f.InterleavingSize % uint64(len(f.LowModules))
	return f.LowModules[number]
}

// NewInterleavedAddressPortMapper creates a new finder for interleaved lower
// modules
func NewInterleavedAddressPortMapper(
	interleavingSize uint64,
	lowModules ...sim.RemotePort,
) *InterleavedAddressPortMapper {
	return &InterleavedAddressPortMapper{
		InterleavingSize: interleavingSize,
		LowModules:       lowModules,
	}
}
