package state

import (
	"sort"

	"execcore/internal/model"
	"execcore/internal/syncmap"

	"github.com/shopspring/decimal"
)

// Book owns one Tracker per symbol. Trackers are created on first use and
// live as long as the book.
type Book struct {
	trackers syncmap.Map[string, *Tracker]
}

func NewBook() *Book {
	return &Book{}
}

// Tracker returns the tracker of symbol, creating it when absent.
func (b *Book) Tracker(symbol string) *Tracker {
	if t, ok := b.trackers.Load(symbol); ok {
		return t
	}
	t, _ := b.trackers.LoadOrStore(symbol, NewTracker(symbol))
	return t
}

// Lookup returns the tracker of symbol without creating it.
func (b *Book) Lookup(symbol string) (*Tracker, bool) {
	return b.trackers.Load(symbol)
}

// Count returns the number of tracked symbols.
func (b *Book) Count() int {
	return b.trackers.Len()
}

// ApplyHoldings feeds broker holdings into ManagePosition. Tracked symbols
// missing from holdings are confirmed flat.
func (b *Book) ApplyHoldings(holdings []model.Holding) {
	reported := make(map[string]decimal.Decimal, len(holdings))
	for _, h := range holdings {
		reported[h.Symbol] = reported[h.Symbol].Add(h.Quantity)
	}
	for _, e := range b.trackers.Snapshot() {
		e.Value.ManagePosition(reported[e.Key])
	}
}

// Mismatches returns the sorted symbols whose CheckPosition fails.
func (b *Book) Mismatches() []string {
	var symbols []string
	for _, e := range b.trackers.Snapshot() {
		if !e.Value.CheckPosition() {
			symbols = append(symbols, e.Key)
		}
	}
	sort.Strings(symbols)
	return symbols
}
