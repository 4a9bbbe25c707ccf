// Package idealmemcontroller provides an ideal memory controller that
// always completes an access in a fixed number of cycles.
package idealmemcontroller

import (
	"log"
	"reflect"

	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
	"github.com/sarchlab/membridge/tracing"
)

type readRespondEvent struct {
	*sim.EventBase
	req *mem.ReadReq
}

func newReadRespondEvent(time sim.VTimeInSec, handler sim.Handler,
	req *mem.ReadReq,
) *readRespondEvent {
	return &readRespondEvent{sim.NewEventBase(time, handler), req}
}

type writeRespondEvent struct {
	*sim.EventBase
	req *mem.WriteReq
}

func newWriteRespondEvent(time sim.VTimeInSec, handler sim.Handler,
	req *mem.WriteReq,
) *writeRespondEvent {
	return &writeRespondEvent{sim.NewEventBase(time, handler), req}
}

// Comp is an ideal memory controller that can perform read and write.
// An ideal memory controller always responds to a request in a fixed number
// of cycles. There is no limitation on the concurrency of this unit.
type Comp struct {
	*sim.TickingComponent

	topPort sim.Port
	Storage *mem.Storage
	Latency int

	width int
}

// Handle defines how the Comp handles events.
func (c *Comp) Handle(e sim.Event) error {
	switch e := e.(type) {
	case *readRespondEvent:
		return c.handleReadRespondEvent(e)
	case *writeRespondEvent:
		return c.handleWriteRespondEvent(e)
	case sim.TickEvent:
		return c.TickingComponent.Handle(e)
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return nil
}

// Tick updates the memory controller state.
func (c *Comp) Tick() bool {
	madeProgress := false

	for i := 0; i < c.width; i++ {
		madeProgress = c.updateMemCtrl() || madeProgress
	}

	return madeProgress
}

func (c *Comp) updateMemCtrl() bool {
	msg := c.topPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	tracing.TraceReqReceive(msg, c)

	switch msg := msg.(type) {
	case *mem.ReadReq:
		c.handleReadReq(msg)
		return true
	case *mem.WriteReq:
		c.handleWriteReq(msg)
		return true
	default:
		log.Panicf("cannot handle request of type %s", reflect.TypeOf(msg))
	}

	return false
}

func (c *Comp) handleReadReq(req *mem.ReadReq) {
	now := c.CurrentTime()
	timeToSchedule := c.Freq.NCyclesLater(c.Latency, now)
	respondEvent := newReadRespondEvent(timeToSchedule, c, req)
	c.Engine.Schedule(respondEvent)
}

func (c *Comp) handleWriteReq(req *mem.WriteReq) {
	now := c.CurrentTime()
	timeToSchedule := c.Freq.NCyclesLater(c.Latency, now)
	respondEvent := newWriteRespondEvent(timeToSchedule, c, req)
	c.Engine.Schedule(respondEvent)
}

func (c *Comp) handleReadRespondEvent(e *readRespondEvent) error {
	now := e.Time()
	req := e.req

	if req.IsInhibited() {
		// Another component already answered the read. The memory only
		// sinks it.
		tracing.TraceReqComplete(req, c)
		c.TickLater()

		return nil
	}

	data, err := c.Storage.Read(req.Address, req.AccessByteSize)
	if err != nil {
		log.Panic(err)
	}

	rsp := mem.DataReadyRspBuilder{}.
		WithSrc(c.topPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req).
		WithData(data).
		Build()

	networkErr := c.topPort.Send(rsp)
	if networkErr != nil {
		retry := newReadRespondEvent(c.Freq.NextTick(now), c, req)
		c.Engine.Schedule(retry)

		return nil
	}

	tracing.TraceReqComplete(req, c)
	c.TickLater()

	return nil
}

func (c *Comp) handleWriteRespondEvent(e *writeRespondEvent) error {
	now := e.Time()
	req := e.req

	if req.IsInhibited() {
		tracing.TraceReqComplete(req, c)
		c.TickLater()

		return nil
	}

	if !req.NeedsResponse() {
		c.commitWrite(req)
		tracing.TraceReqComplete(req, c)
		c.TickLater()

		return nil
	}

	rsp := mem.WriteDoneRspBuilder{}.
		WithSrc(c.topPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req).
		Build()

	networkErr := c.topPort.Send(rsp)
	if networkErr != nil {
		retry := newWriteRespondEvent(c.Freq.NextTick(now), c, req)
		c.Engine.Schedule(retry)

		return nil
	}

	c.commitWrite(req)
	tracing.TraceReqComplete(req, c)
	c.TickLater()

	return nil
}

func (c *Comp) commitWrite(req *mem.WriteReq) {
	err := c.Storage.Write(req.Address, req.Data)
	if err != nil {
		log.Panic(err)
	}
}

// AccessAtomic completes the access immediately and reports the latency
// that a scheduled access would have taken.
func (c *Comp) AccessAtomic(
	req mem.AccessReq,
) (mem.AccessRsp, sim.VTimeInSec) {
	latency := sim.VTimeInSec(c.Latency) * c.Freq.Period()

	if req.IsInhibited() {
		return nil, latency
	}

	return c.access(req), latency
}

// AccessFunctional completes the access immediately without any timing
// bookkeeping.
func (c *Comp) AccessFunctional(req mem.AccessReq) mem.AccessRsp {
	if req.IsInhibited() {
		return nil
	}

	return c.access(req)
}

func (c *Comp) access(req mem.AccessReq) mem.AccessRsp {
	switch req := req.(type) {
	case *mem.ReadReq:
		data, err := c.Storage.Read(req.Address, req.AccessByteSize)
		if err != nil {
			log.Panic(err)
		}

		return mem.DataReadyRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(req.Src).
			WithRspTo(req).
			WithData(data).
			Build()
	case *mem.WriteReq:
		c.commitWrite(req)

		if !req.NeedsResponse() {
			return nil
		}

		return mem.WriteDoneRspBuilder{}.
			WithSrc(c.topPort.AsRemote()).
			WithDst(req.Src).
			WithRspTo(req).
			Build()
	default:
		log.Panicf("cannot handle request of type %s", reflect.TypeOf(req))
	}

	return nil
}
