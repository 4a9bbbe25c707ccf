package bridge

import (
	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
)

// Builder can build bridges.
type Builder struct {
	engine              sim.Engine
	freq                sim.Freq
	delay               int
	requestQueueSize    int
	responseQueueSize   int
	domainTag           uint64
	addressRanges       []mem.AddressRange
	addressToPortMapper mem.AddressToPortMapper
	peer                MemoryPeer
	portBufSize         int
}

// MakeBuilder returns a new Builder with default configurations.
func MakeBuilder() Builder {
	return Builder{
		freq:              1 * sim.GHz,
		delay:             10,
		requestQueueSize:  16,
		responseQueueSize: 16,
		portBufSize:       4,
	}
}

// WithEngine sets the engine that the bridge uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency that the bridge works at.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithDelay sets the forwarding delay of the bridge, in cycles. The delay
// applies to each direction.
func (b Builder) WithDelay(delay int) Builder {
	b.delay = delay
	return b
}

// WithRequestQueueSize sets the capacity of the downstream transmit queue.
func (b Builder) WithRequestQueueSize(size int) Builder {
	b.requestQueueSize = size
	return b
}

// WithResponseQueueSize sets the number of responses that the upstream
// transmit queue can hold. Requests that expect a response reserve their
// slot at admission time.
func (b Builder) WithResponseQueueSize(size int) Builder {
	b.responseQueueSize = size
	return b
}

// WithDomainTag sets the tag that the bridge attaches to every request it
// forwards.
func (b Builder) WithDomainTag(tag uint64) Builder {
	b.domainTag = tag
	return b
}

// WithAddressRange adds an address range that the bridge claims on behalf
// of the modules behind its bottom port.
func (b Builder) WithAddressRange(r mem.AddressRange) Builder {
	b.addressRanges = append(b.addressRanges, r)
	return b
}

// WithAddressToPortMapper sets the mapper that routes forwarded requests to
// the downstream modules.
func (b Builder) WithAddressToPortMapper(
	mapper mem.AddressToPortMapper,
) Builder {
	b.addressToPortMapper = mapper
	return b
}

// WithMemoryPeer sets the downstream module that serves atomic and
// functional accesses.
func (b Builder) WithMemoryPeer(peer MemoryPeer) Builder {
	b.peer = peer
	return b
}

// WithPortBufSize sets the size of the port buffers.
func (b Builder) WithPortBufSize(size int) Builder {
	b.portBufSize = size
	return b
}

// Build creates a new bridge.
func (b Builder) Build(name string) *Comp {
	c := &Comp{
		delay:               b.delay,
		domainTag:           b.domainTag,
		requestQueueCap:     b.requestQueueSize,
		responseQueueCap:    b.responseQueueSize,
		addressRanges:       b.addressRanges,
		addressToPortMapper: b.addressToPortMapper,
		peer:                b.peer,
		pendingWakeTime:     -1,
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.topPort = sim.NewPort(c, b.portBufSize, b.portBufSize, name+".Top")
	c.AddPort("Top", c.topPort)

	c.bottomPort = sim.NewPort(c, b.portBufSize, b.portBufSize, name+".Bottom")
	c.AddPort("Bottom", c.bottomPort)

	m := &middleware{Comp: c}
	c.AddMiddleware(m)

	return c
}
