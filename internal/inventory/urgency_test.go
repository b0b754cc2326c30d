package inventory

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DaysLeft", func() {
	var today time.Time

	BeforeEach(func() {
		// Mid-afternoon on purpose; the time of day must not matter.
		today = time.Date(2024, time.January, 8, 15, 30, 0, 0, time.Local)
	})

	DescribeTable("whole days until expiry",
		func(expiry Date, expected int) {
			Expect(DaysLeft(today, expiry)).To(Equal(expected))
		},
		Entry("expires today", NewDate(2024, time.January, 8), 0),
		Entry("expires tomorrow", NewDate(2024, time.January, 9), 1),
		Entry("expires in two days", NewDate(2024, time.January, 10), 2),
		Entry("expired yesterday", NewDate(2024, time.January, 7), -1),
		Entry("expires next week", NewDate(2024, time.January, 15), 7),
	)

	It("should be independent of the sampling hour", func() {
		expiry := NewDate(2024, time.January, 10)
		morning := time.Date(2024, time.January, 8, 0, 1, 0, 0, time.Local)
		night := time.Date(2024, time.January, 8, 23, 59, 0, 0, time.Local)
		Expect(DaysLeft(morning, expiry)).To(Equal(DaysLeft(night, expiry)))
	})
})

var _ = Describe("ClassifyUrgency", func() {
	var today time.Time

	BeforeEach(func() {
		today = time.Date(2024, time.January, 8, 15, 30, 0, 0, time.Local)
	})

	DescribeTable("mapping days left to a tier",
		func(expiry Date, expected Tier) {
			Expect(ClassifyUrgency(today, expiry)).To(Equal(expected))
		},
		Entry("expired yesterday", NewDate(2024, time.January, 7), TierExpired),
		Entry("expires today", NewDate(2024, time.January, 8), TierCritical),
		Entry("expires tomorrow", NewDate(2024, time.January, 9), TierCritical),
		Entry("expires in two days", NewDate(2024, time.January, 10), TierWarning),
		Entry("expires in three days", NewDate(2024, time.January, 11), TierWarning),
		Entry("expires in four days", NewDate(2024, time.January, 12), TierFresh),
	)
})

var _ = Describe("Tier", func() {
	DescribeTable("String",
		func(tier Tier, expected string) {
			Expect(tier.String()).To(Equal(expected))
		},
		Entry("expired", TierExpired, "expired"),
		Entry("critical", TierCritical, "critical"),
		Entry("warning", TierWarning, "warning"),
		Entry("fresh", TierFresh, "fresh"),
	)
})
