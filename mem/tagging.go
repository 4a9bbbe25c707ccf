package mem

import "log"

// A HopState is an opaque piece of state that a component on the path of a
// request stores on the request before forwarding it. The component that
// pushed a hop state recovers it from the response.
type HopState interface{}

// BridgeMeta carries the metadata that memory fabric components attach to a
// request as it travels between domains.
//
// The domain tag can only be written once. The hop states form a stack: the
// components closer to the requester push first and pop last.
type BridgeMeta struct {
	Inhibited bool

	hasDomainTag bool
	domainTag    uint64
	hopStates    []HopState
}

// IsInhibited returns true if the request is already answered by a snooping
// component and only travels for bookkeeping.
func (m *BridgeMeta) IsInhibited() bool {
	return m.Inhibited
}

// HasDomainTag returns true if a domain tag is attached to the request.
func (m *BridgeMeta) HasDomainTag() bool {
	return m.hasDomainTag
}

// DomainTag returns the attached domain tag.
func (m *BridgeMeta) DomainTag() uint64 {
	if !m.hasDomainTag {
		log.Panic("request carries no domain tag")
	}

	return m.domainTag
}

// SetDomainTag attaches a domain tag to the request. A request can only be
// tagged once.
func (m *BridgeMeta) SetDomainTag(tag uint64) {
	if m.hasDomainTag {
		log.Panicf(
			"request is already tagged with domain %d, cannot tag with %d",
			m.domainTag, tag)
	}

	m.hasDomainTag = true
	m.domainTag = tag
}

// PushHopState stores a piece of per-hop state on the request.
func (m *BridgeMeta) PushHopState(s HopState) {
	m.hopStates = append(m.hopStates, s)
}

// PopHopState removes and returns the most recently pushed hop state.
func (m *BridgeMeta) PopHopState() HopState {
	if len(m.hopStates) == 0 {
		log.Panic("popping hop state from a request that carries none")
	}

	s := m.hopStates[len(m.hopStates)-1]
	m.hopStates = m.hopStates[:len(m.hopStates)-1]

	return s
}
