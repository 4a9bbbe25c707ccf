package bridge

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
)

type fakeMemoryPeer struct {
	atomicRsp     mem.AccessRsp
	atomicLatency sim.VTimeInSec
	functionalRsp mem.AccessRsp

	lastReq mem.AccessReq
}

func (p *fakeMemoryPeer) AccessAtomic(
	req mem.AccessReq,
) (mem.AccessRsp, sim.VTimeInSec) {
	p.lastReq = req
	return p.atomicRsp, p.atomicLatency
}

func (p *fakeMemoryPeer) AccessFunctional(req mem.AccessReq) mem.AccessRsp {
	p.lastReq = req
	return p.functionalRsp
}

var _ = Describe("Bridge", func() {
	var (
		mockCtrl   *gomock.Controller
		engine     *MockEngine
		topPort    *MockPort
		bottomPort *MockPort
		peer       *fakeMemoryPeer
		b          *Comp
		mw         *middleware
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		engine = NewMockEngine(mockCtrl)
		peer = &fakeMemoryPeer{}

		b = MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithDelay(10).
			WithRequestQueueSize(2).
			WithResponseQueueSize(1).
			WithDomainTag(7).
			WithAddressToPortMapper(&mem.SinglePortMapper{Port: "Mem.Top"}).
			WithMemoryPeer(peer).
			Build("Bridge")

		topPort = NewMockPort(mockCtrl)
		topPort.EXPECT().
			AsRemote().
			Return(sim.RemotePort("Bridge.Top")).
			AnyTimes()
		b.topPort = topPort

		bottomPort = NewMockPort(mockCtrl)
		bottomPort.EXPECT().
			AsRemote().
			Return(sim.RemotePort("Bridge.Bottom")).
			AnyTimes()
		b.bottomPort = bottomPort

		mw = &middleware{Comp: b}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when admitting requests", func() {
		It("should tag, reroute, and queue a request", func() {
			req := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			topPort.EXPECT().PeekIncoming().Return(req)
			topPort.EXPECT().RetrieveIncoming().Return(req)
			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(0)).
				AnyTimes()

			madeProgress := mw.admitReq()

			Expect(madeProgress).To(BeTrue())
			Expect(b.downQueue).To(HaveLen(1))
			Expect(b.reservedRspSlots).To(Equal(1))
			Expect(req.DomainTag()).To(Equal(uint64(7)))
			Expect(req.Src).To(Equal(sim.RemotePort("Bridge.Bottom")))
			Expect(req.Dst).To(Equal(sim.RemotePort("Mem.Top")))
			Expect(b.downQueue[0].releaseTime).
				To(BeNumerically("~", 10e-9, 1e-15))

			hop := req.PopHopState().(*requestHopState)
			Expect(hop.bridge).To(BeIdenticalTo(b))
			Expect(hop.requesterPort).To(Equal(sim.RemotePort("Agent.Port")))
		})

		It("should not claim a response slot for a posted write", func() {
			req := mem.WriteReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithData([]byte{1, 2, 3, 4}).
				AsPosted().
				Build()

			topPort.EXPECT().PeekIncoming().Return(req)
			topPort.EXPECT().RetrieveIncoming().Return(req)
			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(0)).
				AnyTimes()

			madeProgress := mw.admitReq()

			Expect(madeProgress).To(BeTrue())
			Expect(b.reservedRspSlots).To(Equal(0))
			Expect(func() { req.PopHopState() }).To(Panic())
		})

		It("should not claim a response slot for an inhibited request",
			func() {
				req := mem.ReadReqBuilder{}.
					WithSrc("Agent.Port").
					WithDst("Bridge.Top").
					WithAddress(0x1000).
					WithByteSize(4).
					AsInhibited().
					Build()

				topPort.EXPECT().PeekIncoming().Return(req)
				topPort.EXPECT().RetrieveIncoming().Return(req)
				engine.EXPECT().
					CurrentTime().
					Return(sim.VTimeInSec(0)).
					AnyTimes()

				madeProgress := mw.admitReq()

				Expect(madeProgress).To(BeTrue())
				Expect(b.reservedRspSlots).To(Equal(0))
				Expect(func() { req.PopHopState() }).To(Panic())
			})

		It("should stall when the request queue is full", func() {
			b.downQueue = make([]deferredMsg, 2)

			req := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			topPort.EXPECT().PeekIncoming().Return(req)

			madeProgress := mw.admitReq()

			Expect(madeProgress).To(BeFalse())
			Expect(req.HasDomainTag()).To(BeFalse())
			Expect(b.reservedRspSlots).To(Equal(0))
		})

		It("should stall when all response slots are reserved", func() {
			b.reservedRspSlots = 1

			req := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			topPort.EXPECT().PeekIncoming().Return(req)

			madeProgress := mw.admitReq()

			Expect(madeProgress).To(BeFalse())
			Expect(req.HasDomainTag()).To(BeFalse())
			Expect(b.downQueue).To(BeEmpty())
		})

		It("should panic on a request that is already tagged", func() {
			req := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()
			req.SetDomainTag(3)

			topPort.EXPECT().PeekIncoming().Return(req)

			Expect(func() { mw.admitReq() }).To(Panic())
		})

		It("should panic on a message that is not a request", func() {
			rsp := &mem.WriteDoneRsp{}

			topPort.EXPECT().PeekIncoming().Return(rsp)

			Expect(func() { mw.admitReq() }).To(Panic())
		})
	})

	Context("when sending downstream", func() {
		var req *mem.WriteReq

		BeforeEach(func() {
			req = mem.WriteReqBuilder{}.
				WithSrc("Bridge.Bottom").
				WithDst("Mem.Top").
				WithAddress(0x1000).
				WithData([]byte{1, 2, 3, 4}).
				AsPosted().
				Build()
		})

		It("should hold the queue head before its release time", func() {
			b.downQueue = append(b.downQueue, deferredMsg{
				msg:         req,
				releaseTime: 10e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(5e-9)).
				AnyTimes()
			engine.EXPECT().
				Schedule(gomock.AssignableToTypeOf(&queueWakeEvent{})).
				Do(func(e sim.Event) {
					Expect(e.Time()).To(BeNumerically("~", 10e-9, 1e-15))
				})

			madeProgress := mw.trySendDown()

			Expect(madeProgress).To(BeFalse())
			Expect(b.downQueue).To(HaveLen(1))
		})

		It("should not schedule a second wake-up for the same time", func() {
			b.downQueue = append(b.downQueue, deferredMsg{
				msg:         req,
				releaseTime: 10e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(5e-9)).
				AnyTimes()
			engine.EXPECT().
				Schedule(gomock.AssignableToTypeOf(&queueWakeEvent{}))

			mw.trySendDown()
			mw.trySendDown()
		})

		It("should send the queue head at its release time", func() {
			b.downQueue = append(b.downQueue, deferredMsg{
				msg:         req,
				releaseTime: 10e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(10e-9)).
				AnyTimes()
			bottomPort.EXPECT().Send(req).Return(nil)

			madeProgress := mw.trySendDown()

			Expect(madeProgress).To(BeTrue())
			Expect(b.downQueue).To(BeEmpty())
		})

		It("should keep the queue head when the send fails", func() {
			b.downQueue = append(b.downQueue, deferredMsg{
				msg:         req,
				releaseTime: 10e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(10e-9)).
				AnyTimes()
			bottomPort.EXPECT().Send(req).Return(sim.NewSendError())

			madeProgress := mw.trySendDown()

			Expect(madeProgress).To(BeFalse())
			Expect(b.downQueue).To(HaveLen(1))
		})
	})

	Context("when accepting responses", func() {
		var (
			req *mem.ReadReq
			rsp *mem.DataReadyRsp
		)

		BeforeEach(func() {
			req = mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			rsp = mem.DataReadyRspBuilder{}.
				WithSrc("Mem.Top").
				WithDst("Bridge.Bottom").
				WithRspTo(req).
				WithData([]byte{1, 2, 3, 4}).
				Build()
		})

		It("should restore the routing and queue the response", func() {
			req.PushHopState(&requestHopState{
				bridge:        b,
				requesterPort: "Agent.Port",
			})

			bottomPort.EXPECT().PeekIncoming().Return(rsp)
			bottomPort.EXPECT().RetrieveIncoming().Return(rsp)
			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(20e-9)).
				AnyTimes()

			madeProgress := mw.acceptRsp()

			Expect(madeProgress).To(BeTrue())
			Expect(b.upQueue).To(HaveLen(1))
			Expect(rsp.Src).To(Equal(sim.RemotePort("Bridge.Top")))
			Expect(rsp.Dst).To(Equal(sim.RemotePort("Agent.Port")))
			Expect(b.upQueue[0].releaseTime).
				To(BeNumerically("~", 30e-9, 1e-15))
		})

		It("should panic on a response without a hop state", func() {
			bottomPort.EXPECT().PeekIncoming().Return(rsp)

			Expect(func() { mw.acceptRsp() }).To(Panic())
		})

		It("should panic on a hop state pushed by another component", func() {
			req.PushHopState(&requestHopState{
				bridge:        &Comp{},
				requesterPort: "Agent.Port",
			})

			bottomPort.EXPECT().PeekIncoming().Return(rsp)

			Expect(func() { mw.acceptRsp() }).To(Panic())
		})

		It("should panic on a message that is not a response", func() {
			bottomPort.EXPECT().PeekIncoming().Return(req)

			Expect(func() { mw.acceptRsp() }).To(Panic())
		})
	})

	Context("when sending upstream", func() {
		var rsp *mem.DataReadyRsp

		BeforeEach(func() {
			req := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			rsp = mem.DataReadyRspBuilder{}.
				WithSrc("Bridge.Top").
				WithDst("Agent.Port").
				WithRspTo(req).
				WithData([]byte{1, 2, 3, 4}).
				Build()
		})

		It("should free the response slot when the response leaves", func() {
			b.reservedRspSlots = 1
			b.upQueue = append(b.upQueue, deferredMsg{
				msg:         rsp,
				releaseTime: 30e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(30e-9)).
				AnyTimes()
			topPort.EXPECT().Send(rsp).Return(nil)

			madeProgress := mw.trySendUp()

			Expect(madeProgress).To(BeTrue())
			Expect(b.upQueue).To(BeEmpty())
			Expect(b.reservedRspSlots).To(Equal(0))
		})

		It("should keep the slot reserved when the send fails", func() {
			b.reservedRspSlots = 1
			b.upQueue = append(b.upQueue, deferredMsg{
				msg:         rsp,
				releaseTime: 30e-9,
			})

			engine.EXPECT().
				CurrentTime().
				Return(sim.VTimeInSec(30e-9)).
				AnyTimes()
			topPort.EXPECT().Send(rsp).Return(sim.NewSendError())

			madeProgress := mw.trySendUp()

			Expect(madeProgress).To(BeFalse())
			Expect(b.reservedRspSlots).To(Equal(1))
		})

		It("should panic when freeing a slot that was never reserved",
			func() {
				b.upQueue = append(b.upQueue, deferredMsg{
					msg:         rsp,
					releaseTime: 30e-9,
				})

				engine.EXPECT().
					CurrentTime().
					Return(sim.VTimeInSec(30e-9)).
					AnyTimes()
				topPort.EXPECT().Send(rsp).Return(nil)

				Expect(func() { mw.trySendUp() }).To(Panic())
			})
	})

	Context("when serving atomic accesses", func() {
		It("should add the forwarding delay to the peer latency", func() {
			req := mem.WriteReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithData([]byte{1, 2}).
				Build()

			peer.atomicRsp = &mem.WriteDoneRsp{}
			peer.atomicLatency = 5e-9

			rsp, latency := b.AccessAtomic(req)

			Expect(rsp).To(BeIdenticalTo(peer.atomicRsp))
			Expect(latency).To(BeNumerically("~", 15e-9, 1e-15))
			Expect(req.DomainTag()).To(Equal(uint64(7)))
			Expect(b.downQueue).To(BeEmpty())
			Expect(b.upQueue).To(BeEmpty())
			Expect(b.reservedRspSlots).To(Equal(0))
		})
	})

	Context("when serving functional accesses", func() {
		var queuedRead *mem.ReadReq

		BeforeEach(func() {
			queuedRead = mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()
		})

		It("should answer a read from a queued response", func() {
			rsp := mem.DataReadyRspBuilder{}.
				WithSrc("Bridge.Top").
				WithDst("Agent.Port").
				WithRspTo(queuedRead).
				WithData([]byte{1, 2, 3, 4}).
				Build()
			b.upQueue = append(b.upQueue, deferredMsg{msg: rsp})

			query := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(4).
				Build()

			answer := b.AccessFunctional(query)

			Expect(answer).NotTo(BeNil())
			Expect(answer.(*mem.DataReadyRsp).Data).
				To(Equal([]byte{1, 2, 3, 4}))
			Expect(peer.lastReq).To(BeNil())
			Expect(b.upQueue).To(HaveLen(1))
		})

		It("should answer a read from a queued write", func() {
			write := mem.WriteReqBuilder{}.
				WithSrc("Bridge.Bottom").
				WithDst("Mem.Top").
				WithAddress(0x2000).
				WithData([]byte{1, 2, 3, 4, 5, 6, 7, 8}).
				Build()
			b.downQueue = append(b.downQueue, deferredMsg{msg: write})

			query := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x2002).
				WithByteSize(2).
				Build()

			answer := b.AccessFunctional(query)

			Expect(answer.(*mem.DataReadyRsp).Data).To(Equal([]byte{3, 4}))
			Expect(peer.lastReq).To(BeNil())
		})

		It("should propagate a read that is only partially covered", func() {
			rsp := mem.DataReadyRspBuilder{}.
				WithSrc("Bridge.Top").
				WithDst("Agent.Port").
				WithRspTo(queuedRead).
				WithData([]byte{1, 2, 3, 4}).
				Build()
			b.upQueue = append(b.upQueue, deferredMsg{msg: rsp})

			query := mem.ReadReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithByteSize(8).
				Build()

			b.AccessFunctional(query)

			Expect(peer.lastReq).To(BeIdenticalTo(query))
		})

		It("should always propagate writes", func() {
			queuedWrite := mem.WriteReqBuilder{}.
				WithSrc("Bridge.Bottom").
				WithDst("Mem.Top").
				WithAddress(0x1000).
				WithData([]byte{1, 2, 3, 4}).
				Build()
			b.downQueue = append(b.downQueue, deferredMsg{msg: queuedWrite})

			query := mem.WriteReqBuilder{}.
				WithSrc("Agent.Port").
				WithDst("Bridge.Top").
				WithAddress(0x1000).
				WithData([]byte{5, 6, 7, 8}).
				Build()

			b.AccessFunctional(query)

			Expect(peer.lastReq).To(BeIdenticalTo(query))
		})
	})

	Context("when initializing", func() {
		It("should panic when the top port is not connected", func() {
			topPort.EXPECT().Connection().Return(nil)

			Expect(func() { b.Init() }).To(Panic())
		})

		It("should panic when the bottom port is not connected", func() {
			conn := NewMockConnection(mockCtrl)
			topPort.EXPECT().Connection().Return(conn)
			bottomPort.EXPECT().Connection().Return(nil)

			Expect(func() { b.Init() }).To(Panic())
		})

		It("should panic when no mapper is configured", func() {
			conn := NewMockConnection(mockCtrl)
			topPort.EXPECT().Connection().Return(conn)
			bottomPort.EXPECT().Connection().Return(conn)
			b.addressToPortMapper = nil

			Expect(func() { b.Init() }).To(Panic())
		})

		It("should pass when fully wired", func() {
			conn := NewMockConnection(mockCtrl)
			topPort.EXPECT().Connection().Return(conn)
			bottomPort.EXPECT().Connection().Return(conn)

			Expect(func() { b.Init() }).NotTo(Panic())
		})
	})
})
