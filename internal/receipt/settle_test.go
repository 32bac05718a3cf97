package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockTimeSource is a mock implementation of TimeSource
type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Settler", func() {
	var (
		history *History
		timeSrc *mockTimeSource
		settler *Settler
	)

	BeforeEach(func() {
		history = NewHistory()
		timeSrc = &mockTimeSource{now: time.Date(2025, 8, 27, 18, 30, 0, 0, time.UTC)}
		settler = NewSettlerWithDeps(2, history, timeSrc)
	})

	Describe("Settle", func() {
		It("appends the amount to the history", func() {
			settler.Settle("50.00")
			Expect(history.List()).To(HaveLen(1))
			Expect(history.List()[0].Amount).To(Equal("50.00"))
		})

		It("stamps the settlement with the current time", func() {
			settlement := settler.Settle("50.00")
			Expect(settlement.SettledAt).To(Equal(timeSrc.now))
		})

		It("keeps history in append order", func() {
			settler.Settle("50.00")
			settler.Settle("12.30")
			amounts := []string{history.List()[0].Amount, history.List()[1].Amount}
			Expect(amounts).To(Equal([]string{"50.00", "12.30"}))
		})
	})

	Describe("Share", func() {
		It("splits the amount between two participants", func() {
			Expect(settler.Share("50.00")).To(Equal("25.00"))
		})

		It("rounds to the nearest øre for odd amounts", func() {
			Expect(settler.Share("0.03")).To(Equal("0.02"))
		})

		When("the split size is configured", func() {
			BeforeEach(func() {
				settler = NewSettlerWithDeps(4, history, timeSrc)
			})

			It("divides by the configured participant count", func() {
				Expect(settler.Share("100.00")).To(Equal("25.00"))
			})
		})

		When("the participant count is nonsense", func() {
			BeforeEach(func() {
				settler = NewSettlerWithDeps(0, history, timeSrc)
			})

			It("falls back to a two-way split", func() {
				Expect(settler.Share("50.00")).To(Equal("25.00"))
			})
		})
	})

	Describe("History", func() {
		It("hands out copies, not the backing slice", func() {
			settler.Settle("50.00")
			list := history.List()
			list[0].Amount = "tampered"
			Expect(history.List()[0].Amount).To(Equal("50.00"))
		})
	})
})
