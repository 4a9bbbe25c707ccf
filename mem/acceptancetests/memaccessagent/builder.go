package memaccessagent

import (
	"github.com/sarchlab/membridge/mem"
	"github.com/sarchlab/membridge/sim"
)

// Builder can build memory access agents.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	maxAddress uint64
	writeLeft  int
	readLeft   int
	lowModule  sim.Port
}

// MakeBuilder returns a new Builder with default configurations.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		maxAddress: 1 * mem.MB,
		writeLeft:  1000,
		readLeft:   1000,
	}
}

// WithEngine sets the engine that the agent uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency that the agent works at.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithMaxAddress sets the address range that the agent accesses.
func (b Builder) WithMaxAddress(addr uint64) Builder {
	b.maxAddress = addr
	return b
}

// WithWriteLeft sets the number of writes to generate.
func (b Builder) WithWriteLeft(writeLeft int) Builder {
	b.writeLeft = writeLeft
	return b
}

// WithReadLeft sets the number of reads to generate.
func (b Builder) WithReadLeft(readLeft int) Builder {
	b.readLeft = readLeft
	return b
}

// WithLowModule sets the port that the agent sends requests to.
func (b Builder) WithLowModule(port sim.Port) Builder {
	b.lowModule = port
	return b
}

// Build creates a new MemAccessAgent.
func (b Builder) Build(name string) *MemAccessAgent {
	agent := new(MemAccessAgent)

	agent.TickingComponent =
		sim.NewTickingComponent(name, b.engine, b.freq, agent)
	agent.MaxAddress = b.maxAddress
	agent.WriteLeft = b.writeLeft
	agent.ReadLeft = b.readLeft
	agent.LowModule = b.lowModule

	agent.KnownMemValue = make(map[uint64]uint32)
	agent.PendingWriteReq = make(map[string]*mem.WriteReq)
	agent.PendingReadReq = make(map[string]*mem.ReadReq)

	agent.memPort = sim.NewPort(agent, 1, 1, name+".Mem")
	agent.AddPort("Mem", agent.memPort)

	return agent
}
