package mem

import (
	"log"

	"github.com/sarchlab/membridge/sim"
)

// An AddressRange is a right-open interval of addresses [Low, High).
type AddressRange struct {
	Low  uint64
	High uint64
}

// Contains returns true if the address falls in the range.
func (r AddressRange) Contains(address uint64) bool {
	return address >= r.Low && address < r.High
}

// AddressToPortMapper helps a memory fabric component find the downstream
// module that should hold the data at a certain address.
type AddressToPortMapper interface {
	Find(address uint64) sim.RemotePort
}

// SinglePortMapper is used when a unit is connected with only one
// downstream module.
type SinglePortMapper struct {
	Port sim.RemotePort
}

// Find simply returns the solo unit that it connects to.
func (f *SinglePortMapper) Find(address uint64) sim.RemotePort {
	return f.Port
}

// RangedAddressPortMapper routes each address to the downstream module that
// claims the range that the address falls in.
type RangedAddressPortMapper struct {
	Ranges     []AddressRange
	LowModules []sim.RemotePort
}

// AddRange registers a downstream module to serve an address range.
func (f *RangedAddressPortMapper) AddRange(
	r AddressRange,
	port sim.RemotePort,
) {
	f.Ranges = append(f.Ranges, r)
	f.LowModules = append(f.LowModules, port)
}

// Find returns the downstream module that claims the address.
func (f *RangedAddressPortMapper) Find(address uint64) sim.RemotePort {
	for i, r := range f.Ranges {
		if r.Contains(address) {
			return f.LowModules[i]
		}
	}

	log.Panicf("address 0x%x is not claimed by any downstream module", address)

	return ""
}

// InterleavedAddressPortMapper helps find the downstream module when the
// modules maintain an interleaved address space.
type InterleavedAddressPortMapper struct {
	UseAddressSpaceLimitation bool
	LowAddress                uint64
	HighAddress               uint64
	InterleavingSize          uint64
	LowModules                []sim.RemotePort
	ModuleForOtherAddresses   sim.RemotePort
}

// NewInterleavedAddressPortMapper creates a new mapper for interleaved
// downstream modules.
func NewInterleavedAddressPortMapper(
	interleavingSize uint64,
) *InterleavedAddressPortMapper {
	mapper := new(InterleavedAddressPortMapper)

	mapper.LowModules = make([]sim.RemotePort, 0)
	mapper.InterleavingSize = interleavingSize

	return mapper
}

// Find returns the downstream module that has the data at the provided
// address.
func (f *InterleavedAddressPortMapper) Find(address uint64) sim.RemotePort {
	if f.UseAddressSpaceLimitation &&
		(address >= f.HighAddress || address < f.LowAddress) {
		return f.ModuleForOtherAddresses
	}

	number := address / f.InterleavingSize % uint64(len(f.LowModules))

	return f.LowModules[number]
}

// BankedAddressPortMapper defines the downstream modules by address banks.
type BankedAddressPortMapper struct {
	BankSize   uint64
	LowModules []sim.RemotePort
}

// NewBankedAddressPortMapper returns a new BankedAddressPortMapper.
func NewBankedAddressPortMapper(bankSize uint64) *BankedAddressPortMapper {
	f := new(BankedAddressPortMapper)
	f.BankSize = bankSize
	f.LowModules = make([]sim.RemotePort, 0)

	return f
}

// Find returns the port that can provide the data.
func (f *BankedAddressPortMapper) Find(address uint64) sim.RemotePort {
	i := address / f.BankSize
	return f.LowModules[i]
}
