package meter

import (
	"sync"
	"time"

	"github.com/ineyio/chatstream"
)

// Totals is the accumulated usage of one provider for the current day.
type Totals struct {
	Requests int64
	Failures int64
	Usage    chatstream.Usage
	Cost     float64 // USD
}

// SpendMeter tracks per-provider token usage and dollar spend with a daily
// reset at UTC midnight.
type SpendMeter struct {
	mu        sync.Mutex
	providers map[string]*Totals
	resetDay  int // day of year for last reset
	now       func() time.Time
}

var _ chatstream.Meter = (*SpendMeter)(nil)

// NewSpendMeter creates a new SpendMeter.
func NewSpendMeter() *SpendMeter {
	s := &SpendMeter{
		providers: make(map[string]*Totals),
		now:       time.Now,
	}
	s.resetDay = s.now().UTC().YearDay()
	return s
}

func (s *SpendMeter) OnRequest(chatstream.RequestEvent) {}

// OnResult records the outcome of a call. Calls closed early still count
// the tokens the vendor reported before the close.
func (s *SpendMeter) OnResult(e chatstream.ResultEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkReset()

	t, ok := s.providers[e.Provider]
	if !ok {
		t = &Totals{}
		s.providers[e.Provider] = t
	}
	t.Requests++
	if !e.Success {
		t.Failures++
	}
	t.Usage.InputTokens += e.Usage.InputTokens
	t.Usage.OutputTokens += e.Usage.OutputTokens
	t.Cost += e.Cost
}

// Get returns today's totals for a provider.
func (s *SpendMeter) Get(provider string) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkReset()

	t, ok := s.providers[provider]
	if !ok {
		return Totals{}
	}
	return *t
}

// Spend returns today's dollar spend across all providers.
func (s *SpendMeter) Spend() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkReset()

	var total float64
	for _, t := range s.providers {
		total += t.Cost
	}
	return total
}

// checkReset resets all totals if the day has changed. Must be called with
// lock held.
func (s *SpendMeter) checkReset() {
	today := s.now().UTC().YearDay()
	if today != s.resetDay {
		s.providers = make(map[string]*Totals)
		s.resetDay = today
	}
}
