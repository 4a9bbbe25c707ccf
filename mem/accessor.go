package mem

import "github.com/sarchlab/membridge/sim"

// An AtomicAccessor completes an access in zero simulated time and reports
// the latency that the access would have taken, so that a requester can
// advance its own clock without exchanging messages.
type AtomicAccessor interface {
	AccessAtomic(req AccessReq) (rsp AccessRsp, latency sim.VTimeInSec)
}

// A FunctionalAccessor completes an access immediately without any timing
// bookkeeping. Functional accesses are used for loading programs and
// inspecting the simulated memory.
type FunctionalAccessor interface {
	AccessFunctional(req AccessReq) AccessRsp
}
