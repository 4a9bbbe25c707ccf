package bridge

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Admission", func() {
	It("should accept a request and claim a response slot", func() {
		accept, reserve := decideAdmission(0, 2, 0, 1, true)

		Expect(accept).To(BeTrue())
		Expect(reserve).To(BeTrue())
	})

	It("should accept a request that does not expect a response", func() {
		accept, reserve := decideAdmission(1, 2, 1, 1, false)

		Expect(accept).To(BeTrue())
		Expect(reserve).To(BeFalse())
	})

	It("should stall when the request queue is full", func() {
		accept, reserve := decideAdmission(2, 2, 0, 1, true)

		Expect(accept).To(BeFalse())
		Expect(reserve).To(BeFalse())
	})

	It("should stall when all response slots are reserved", func() {
		accept, reserve := decideAdmission(1, 4, 1, 1, true)

		Expect(accept).To(BeFalse())
		Expect(reserve).To(BeFalse())
	})

	It("should not check the response slots for fire-and-forget requests",
		func() {
			accept, _ := decideAdmission(1, 4, 1, 1, false)

			Expect(accept).To(BeTrue())
		})
})
