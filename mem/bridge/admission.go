package bridge

// decideAdmission applies the two capacity checks that gate a request's
// entry into the downstream transmit queue. The request queue is checked
// first. The response queue check only applies when the upstream path will
// have to carry a response back, in which case accepting the request also
// claims a response slot.
func decideAdmission(
	queuedRequests, requestQueueCap int,
	reservedResponses, responseQueueCap int,
	wantsResponseSlot bool,
) (accept, reserve bool) {
	if queuedRequests >= requestQueueCap {
		return false, false
	}

	if wantsResponseSlot {
		if reservedResponses >= responseQueueCap {
			return false, false
		}

		return true, true
	}

	return true, false
}
