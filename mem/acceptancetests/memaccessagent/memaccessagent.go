// Package memaccessagent provides an agent that tests memory fabrics by
// issuing a large number of random read and write requests and checking
// that every read returns the last written value.
package memaccessagent

import (
	"encoding/binary"
	"log"
	"math/rand"
	"reflect"

	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
)

// A MemAccessAgent is a Component that can help testing the bridges and the
// memory controllers by generating a large number of read and write
// requests.
type MemAccessAgent struct {
	*sim.TickingComponent

	LowModule  sim.Port
	MaxAddress uint64

	WriteLeft       int
	ReadLeft        int
	KnownMemValue   map[uint64]uint32
	PendingReadReq  map[string]*mem.ReadReq
	PendingWriteReq map[string]*mem.WriteReq

	memPort sim.Port
}

// Tick updates the state of the agent and issues new read and write
// requests.
func (a *MemAccessAgent) Tick() bool {
	madeProgress := false

	madeProgress = a.processRsp() || madeProgress

	if a.ReadLeft == 0 && a.WriteLeft == 0 {
		return madeProgress
	}

	if a.shouldRead() {
		madeProgress = a.doRead() || madeProgress
	} else {
		madeProgress = a.doWrite() || madeProgress
	}

	return madeProgress
}

// Done returns true when all the reads and writes completed.
func (a *MemAccessAgent) Done() bool {
	return a.ReadLeft == 0 && a.WriteLeft == 0 &&
		len(a.PendingReadReq) == 0 && len(a.PendingWriteReq) == 0
}

func (a *MemAccessAgent) processRsp() bool {
	msg := a.memPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	switch msg := msg.(type) {
	case *mem.WriteDoneRsp:
		write, found := a.PendingWriteReq[msg.RespondTo]
		if !found {
			log.Panicf("agent %s: write done for an unknown request %s",
				a.Name(), msg.RespondTo)
		}

		delete(a.PendingWriteReq, msg.RespondTo)
		a.KnownMemValue[write.Address] =
			binary.LittleEndian.Uint32(write.Data)

		return true
	case *mem.DataReadyRsp:
		read, found := a.PendingReadReq[msg.RespondTo]
		if !found {
			log.Panicf("agent %s: data ready for an unknown request %s",
				a.Name(), msg.RespondTo)
		}

		delete(a.PendingReadReq, msg.RespondTo)
		a.checkReadResult(read, msg)

		return true
	default:
		log.Panicf("cannot process message of type %s", reflect.TypeOf(msg))
	}

	return false
}

func (a *MemAccessAgent) checkReadResult(
	read *mem.ReadReq,
	rsp *mem.DataReadyRsp,
) {
	want := a.KnownMemValue[read.Address]
	got := binary.LittleEndian.Uint32(rsp.Data)

	if got != want {
		log.Panicf("agent %s: read 0x%X returned %d, expected %d",
			a.Name(), read.Address, got, want)
	}
}

func (a *MemAccessAgent) shouldRead() bool {
	if len(a.KnownMemValue) == 0 {
		return false
	}

	if a.ReadLeft == 0 {
		return false
	}

	if a.WriteLeft == 0 {
		return true
	}

	return rand.Float64() > 0.5
}

func (a *MemAccessAgent) doRead() bool {
	address := a.randomReadAddress()
	if a.isAddressInPendingReq(address) {
		return false
	}

	readReq := mem.ReadReqBuilder{}.
		WithSrc(a.memPort.AsRemote()).
		WithDst(a.LowModule.AsRemote()).
		WithAddress(address).
		WithByteSize(4).
		Build()

	err := a.memPort.Send(readReq)
	if err != nil {
		return false
	}

	a.PendingReadReq[readReq.ID] = readReq
	a.ReadLeft--

	return true
}

// randomReadAddress picks an address that the agent has written before, so
// that the returned data can be checked.
func (a *MemAccessAgent) randomReadAddress() uint64 {
	for {
		addr := rand.Uint64() % (a.MaxAddress / 4) * 4
		if _, written := a.KnownMemValue[addr]; written {
			return addr
		}
	}
}

func (a *MemAccessAgent) doWrite() bool {
	address := rand.Uint64() % (a.MaxAddress / 4) * 4
	data := rand.Uint32()

	if a.isAddressInPendingReq(address) {
		return false
	}

	writeReq := mem.WriteReqBuilder{}.
		WithSrc(a.memPort.AsRemote()).
		WithDst(a.LowModule.AsRemote()).
		WithAddress(address).
		WithData(uint32ToBytes(data)).
		Build()

	err := a.memPort.Send(writeReq)
	if err != nil {
		return false
	}

	a.WriteLeft--
	a.PendingWriteReq[writeReq.ID] = writeReq

	return true
}

func (a *MemAccessAgent) isAddressInPendingReq(addr uint64) bool {
	return a.isAddressInPendingWrite(addr) || a.isAddressInPendingRead(addr)
}

func (a *MemAccessAgent) isAddressInPendingWrite(addr uint64) bool {
	for _, write := range a.PendingWriteReq {
		if write.Address == addr {
			return true
		}
	}

	return false
}

func (a *MemAccessAgent) isAddressInPendingRead(addr uint64) bool {
	for _, read := range a.PendingReadReq {
		if read.Address == addr {
			return true
		}
	}

	return false
}

func uint32ToBytes(data uint32) []byte {
	bytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(bytes, data)

	return bytes
}
