package receipt

import (
	"math"
	"sync"
	"time"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Settlement is one finalized total folded into the expense history.
type Settlement struct {
	Amount    string    `json:"amount"` // decimal text, two fractional digits
	SettledAt time.Time `json:"settled_at"`
}

// History is the append-only, session-lifetime list of settlements. The
// ledger is cleared when a settlement is appended, so history and ledger
// never overlap in content.
type History struct {
	mu          sync.Mutex
	settlements []Settlement
}

// NewHistory returns an empty expense history.
func NewHistory() *History {
	return &History{}
}

// Add appends a settlement. There is no way to remove one.
func (h *History) Add(s Settlement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settlements = append(h.settlements, s)
}

// List returns the settlements in append order.
func (h *History) List() []Settlement {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Settlement, len(h.settlements))
	copy(out, h.settlements)
	return out
}

// Settler folds finalized ledger totals into the expense history and
// derives the per-participant share of a split.
type Settler struct {
	participants int
	history      *History
	timeSource   TimeSource
}

// NewSettler creates a Settler splitting between participants people.
// Values below one fall back to a two-way split.
func NewSettler(participants int, history *History) *Settler {
	return NewSettlerWithDeps(participants, history, &defaultTimeSource{})
}

// NewSettlerWithDeps creates a Settler with a custom time source for testing
func NewSettlerWithDeps(participants int, history *History, timeSource TimeSource) *Settler {
	if participants < 1 {
		participants = 2
	}
	return &Settler{
		participants: participants,
		history:      history,
		timeSource:   timeSource,
	}
}

// Settle appends amount to the history. The caller supplies the value it
// just computed from the ledger; Settle does not recompute it.
func (s *Settler) Settle(amount string) Settlement {
	settlement := Settlement{
		Amount:    amount,
		SettledAt: s.timeSource.Now(),
	}
	s.history.Add(settlement)
	return settlement
}

// Share derives one participant's part of amount. The share is display
// state, never stored.
func (s *Settler) Share(amount string) string {
	total := ParseAmount(amount)
	share := int64(math.Round(float64(total) / float64(s.participants)))
	return FormatAmount(share)
}

// Participants returns the configured split size.
func (s *Settler) Participants() int {
	return s.participants
}
