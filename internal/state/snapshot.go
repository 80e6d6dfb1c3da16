package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Snapshot captures position quantities at a point in time.
type Snapshot struct {
	Timestamp int64           `json:"timestamp"`
	Positions []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol    string          `json:"symbol"`
	Virtual   decimal.Decimal `json:"virtual"`
	Confirmed decimal.Decimal `json:"confirmed"`
}

// Snapshot builds a snapshot from current positions, sorted by symbol.
func (b *Book) Snapshot() Snapshot {
	trackers := b.trackers.Snapshot()
	entries := make([]PositionEntry, 0, len(trackers))
	for _, e := range trackers {
		entries = append(entries, e.Value.entry())
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{
		Timestamp: time.Now().UTC().UnixNano(),
		Positions: entries,
	}
}

// Restore seeds trackers from a snapshot. Existing trackers are overwritten.
func (b *Book) Restore(snapshot Snapshot) {
	for _, entry := range snapshot.Positions {
		t := b.Tracker(entry.Symbol)
		t.mu.Lock()
		t.virtual = entry.Virtual
		t.confirmed = entry.Confirmed
		t.mu.Unlock()
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks if the virtual positions of two snapshots match.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]decimal.Decimal, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.Symbol] = entry.Virtual
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.Symbol]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %s", entry.Symbol)
		}
		if !want.Equal(entry.Virtual) {
			return fmt.Errorf("snapshot qty mismatch: symbol=%s expected=%s actual=%s", entry.Symbol, want, entry.Virtual)
		}
	}
	return nil
}
