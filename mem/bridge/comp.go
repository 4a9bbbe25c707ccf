// Package bridge provides a component that connects two memory fabric
// domains. Requests that enter the bridge from the top side are tagged,
// delayed, and forwarded to the bottom side. Responses travel the opposite
// way. Both directions are backed by bounded transmit queues, and a request
// that expects a response reserves its response slot before it is accepted.
package bridge

import (
	"log"
	"reflect"

	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
	"github.com/sarchlab/membridge/tracing"
)

// A MemoryPeer is the downstream module that the bridge delegates atomic and
// functional accesses to.
type MemoryPeer interface {
	mem.AtomicAccessor
	mem.FunctionalAccessor
}

// requestHopState is the record that the bridge pushes on a request before
// forwarding it, so that the response can be routed back to the requester.
type requestHopState struct {
	bridge        *Comp
	requesterPort sim.RemotePort
}

// A deferredMsg is a message waiting in a transmit queue. It must not be
// attempted for delivery before its release time.
type deferredMsg struct {
	msg         sim.Msg
	releaseTime sim.VTimeInSec
}

// A queueWakeEvent wakes the bridge up when the head of a transmit queue
// becomes releasable.
type queueWakeEvent struct {
	*sim.EventBase
}

func newQueueWakeEvent(
	time sim.VTimeInSec,
	handler sim.Handler,
) *queueWakeEvent {
	return &queueWakeEvent{sim.NewEventBase(time, handler)}
}

// Comp connects a requester-side domain on its Top port with a responder-side
// domain on its Bottom port, adding a fixed forwarding delay in each
// direction.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	topPort    sim.Port
	bottomPort sim.Port

	addressToPortMapper mem.AddressToPortMapper
	addressRanges       []mem.AddressRange
	peer                MemoryPeer

	delay     int
	domainTag uint64

	requestQueueCap  int
	responseQueueCap int

	downQueue        []deferredMsg
	upQueue          []deferredMsg
	reservedRspSlots int

	pendingWakeTime sim.VTimeInSec
}

// Init checks that the bridge is fully wired before the simulation starts.
// A bridge with a dangling port or without a downstream routing table would
// fail in ways that are hard to diagnose at run time.
func (c *Comp) Init() {
	if c.topPort.Connection() == nil {
		log.Panicf("bridge %s: top port is not connected", c.Name())
	}

	if c.bottomPort.Connection() == nil {
		log.Panicf("bridge %s: bottom port is not connected", c.Name())
	}

	if c.addressToPortMapper == nil {
		log.Panicf("bridge %s: address-to-port mapper is not configured",
			c.Name())
	}
}

// AddressRanges returns the address ranges that the bridge claims on behalf
// of the modules behind its bottom port.
func (c *Comp) AddressRanges() []mem.AddressRange {
	return c.addressRanges
}

// Handle processes the events scheduled for the bridge.
func (c *Comp) Handle(e sim.Event) error {
	switch e := e.(type) {
	case *queueWakeEvent:
		c.pendingWakeTime = -1
		c.TickNow()
		return nil
	case sim.TickEvent:
		return c.TickingComponent.Handle(e)
	default:
		log.Panicf("cannot handle event of %s", reflect.TypeOf(e))
	}

	return nil
}

// Tick updates the bridge state.
func (c *Comp) Tick() bool {
	return c.MiddlewareHolder.Tick()
}

// AccessAtomic forwards the access to the downstream peer right away. The
// reported latency is the peer latency plus the bridge forwarding delay.
// Atomic accesses do not touch the transmit queues or the reservations.
func (c *Comp) AccessAtomic(
	req mem.AccessReq,
) (mem.AccessRsp, sim.VTimeInSec) {
	req.SetDomainTag(c.domainTag)

	rsp, latency := c.peer.AccessAtomic(req)

	return rsp, latency + sim.VTimeInSec(c.delay)*c.Freq.Period()
}

// AccessFunctional inspects the in-flight messages first. A read that is
// fully covered by a single queued message is answered from the snooped
// data. All other accesses propagate to the downstream peer. Functional
// accesses never perturb the simulated timing.
func (c *Comp) AccessFunctional(req mem.AccessReq) mem.AccessRsp {
	req.SetDomainTag(c.domainTag)

	if rsp := c.snoopQueues(req); rsp != nil {
		return rsp
	}

	return c.peer.AccessFunctional(req)
}

// snoopQueues tries to answer a read from the messages sitting in the
// transmit queues. The upstream queue is searched before the downstream
// queue. Writes always propagate.
func (c *Comp) snoopQueues(req mem.AccessReq) mem.AccessRsp {
	read, isRead := req.(*mem.ReadReq)
	if !isRead {
		return nil
	}

	for _, d := range c.upQueue {
		rsp, isDataReady := d.msg.(*mem.DataReadyRsp)
		if !isDataReady {
			continue
		}

		origReq := rsp.OriginalReq
		if covers(origReq.GetAddress(), origReq.GetByteSize(), read) {
			return c.answerRead(read, rsp.Data, origReq.GetAddress())
		}
	}

	for _, d := range c.downQueue {
		write, isWrite := d.msg.(*mem.WriteReq)
		if !isWrite {
			continue
		}

		if covers(write.Address, uint64(len(write.Data)), read) {
			return c.answerRead(read, write.Data, write.Address)
		}
	}

	return nil
}

func covers(base, size uint64, read *mem.ReadReq) bool {
	return base <= read.Address &&
		read.Address+read.AccessByteSize <= base+size
}

func (c *Comp) answerRead(
	read *mem.ReadReq,
	data []byte,
	base uint64,
) *mem.DataReadyRsp {
	offset := read.Address - base

	return mem.DataReadyRspBuilder{}.
		WithSrc(c.topPort.AsRemote()).
		WithDst(read.Src).
		WithRspTo(read).
		WithData(data[offset : offset+read.AccessByteSize]).
		Build()
}

// scheduleWakeAt makes sure the bridge ticks again no later than the given
// time. An already pending earlier wake-up also covers the later one.
func (c *Comp) scheduleWakeAt(t sim.VTimeInSec) {
	if c.pendingWakeTime >= 0 && c.pendingWakeTime <= t {
		return
	}

	c.pendingWakeTime = t
	c.Engine.Schedule(newQueueWakeEvent(t, c))
}

func (c *Comp) releaseResponseSlot() {
	if c.reservedRspSlots == 0 {
		log.Panicf("bridge %s: releasing a response slot that was never "+
			"reserved", c.Name())
	}

	c.reservedRspSlots--
}

type middleware struct {
	*Comp
}

func (m *middleware) Tick() bool {
	madeProgress := false

	madeProgress = m.trySendUp() || madeProgress
	madeProgress = m.trySendDown() || madeProgress
	madeProgress = m.acceptRsp() || madeProgress
	madeProgress = m.admitReq() || madeProgress

	return madeProgress
}

// admitReq runs the admission checks on the message at the head of the top
// port. A refused message stays in the port buffer until a later tick finds
// room for it.
func (m *middleware) admitReq() bool {
	msg := m.topPort.PeekIncoming()
	if msg == nil {
		return false
	}

	req, ok := msg.(mem.AccessReq)
	if !ok {
		log.Panicf("bridge %s: message of type %s arrived on the top port",
			m.Name(), reflect.TypeOf(msg))
	}

	wantsResponseSlot := req.NeedsResponse() && !req.IsInhibited()

	accept, reserve := decideAdmission(
		len(m.downQueue), m.requestQueueCap,
		m.reservedRspSlots, m.responseQueueCap,
		wantsResponseSlot,
	)
	if !accept {
		return false
	}

	if reserve {
		m.reservedRspSlots++
	}

	req.SetDomainTag(m.domainTag)

	if wantsResponseSlot {
		req.PushHopState(&requestHopState{
			bridge:        m.Comp,
			requesterPort: req.Meta().Src,
		})
	}

	meta := req.Meta()
	meta.Src = m.bottomPort.AsRemote()
	meta.Dst = m.addressToPortMapper.Find(req.GetAddress())

	m.topPort.RetrieveIncoming()

	m.downQueue = append(m.downQueue, deferredMsg{
		msg:         req,
		releaseTime: m.Freq.NCyclesLater(m.delay, m.CurrentTime()),
	})

	tracing.TraceReqReceive(req, m.Comp)

	return true
}

// acceptRsp moves a response from the bottom port into the upstream
// transmit queue, restoring the routing that the admission rewrote. The
// reservation made at admission guarantees that the queue has room.
func (m *middleware) acceptRsp() bool {
	msg := m.bottomPort.PeekIncoming()
	if msg == nil {
		return false
	}

	rsp, ok := msg.(mem.AccessRsp)
	if !ok {
		log.Panicf("bridge %s: message of type %s arrived on the bottom port",
			m.Name(), reflect.TypeOf(msg))
	}

	state := rsp.GetOriginalReq().PopHopState()

	hop, ok := state.(*requestHopState)
	if !ok {
		log.Panicf("bridge %s: response carries a hop state of type %s",
			m.Name(), reflect.TypeOf(state))
	}

	if hop.bridge != m.Comp {
		log.Panicf("bridge %s: response carries a hop state pushed by "+
			"another component", m.Name())
	}

	meta := rsp.Meta()
	meta.Src = m.topPort.AsRemote()
	meta.Dst = hop.requesterPort

	m.bottomPort.RetrieveIncoming()

	m.upQueue = append(m.upQueue, deferredMsg{
		msg:         rsp,
		releaseTime: m.Freq.NCyclesLater(m.delay, m.CurrentTime()),
	})

	return true
}

// trySendDown attempts to deliver the head of the downstream transmit
// queue. The queue is strictly first-in-first-out, so a head that cannot go
// blocks everything behind it.
func (m *middleware) trySendDown() bool {
	if len(m.downQueue) == 0 {
		return false
	}

	head := m.downQueue[0]

	now := m.CurrentTime()
	if head.releaseTime > now {
		m.scheduleWakeAt(head.releaseTime)
		return false
	}

	err := m.bottomPort.Send(head.msg)
	if err != nil {
		return false
	}

	m.downQueue = m.downQueue[1:]

	if req, ok := head.msg.(mem.AccessReq); ok &&
		(!req.NeedsResponse() || req.IsInhibited()) {
		tracing.TraceReqComplete(req, m.Comp)
	}

	return true
}

// trySendUp attempts to deliver the head of the upstream transmit queue.
// A response that leaves the queue frees the slot that its request
// reserved.
func (m *middleware) trySendUp() bool {
	if len(m.upQueue) == 0 {
		return false
	}

	head := m.upQueue[0]

	now := m.CurrentTime()
	if head.releaseTime > now {
		m.scheduleWakeAt(head.releaseTime)
		return false
	}

	err := m.topPort.Send(head.msg)
	if err != nil {
		return false
	}

	m.upQueue = m.upQueue[1:]
	m.releaseResponseSlot()

	if rsp, ok := head.msg.(mem.AccessRsp); ok {
		tracing.TraceReqComplete(rsp.GetOriginalReq(), m.Comp)
	}

	return true
}
