package orchestrator

import "sync/atomic"

// StateBus is a fixed-size array of ChannelSnapshot cells. Each cell has
// exactly one writer (the owning ChannelWorker) and any number of
// readers (the terminal UI, the monitor-selection controller); readers
// always see a complete, never-torn snapshot because publishing is a
// single atomic pointer swap, not an in-place mutation (spec §4.8).
type StateBus struct {
	cells   []atomic.Pointer[ChannelSnapshot]
	monitor atomic.Int64 // currently monitored channel id, -1 for none
}

// NewStateBus allocates a bus for n channels, each starting unpublished
// (Snapshot returns ok=false until the first Publish).
func NewStateBus(n int) *StateBus {
	b := &StateBus{cells: make([]atomic.Pointer[ChannelSnapshot], n)}
	b.monitor.Store(-1)
	return b
}

// Publish swaps in a new snapshot for snap.ChannelID. It never blocks
// and never blocks a concurrent reader.
func (b *StateBus) Publish(snap ChannelSnapshot) {
	if snap.ChannelID < 0 || snap.ChannelID >= len(b.cells) {
		return
	}
	cp := snap
	b.cells[snap.ChannelID].Store(&cp)
}

// Snapshot returns the most recently published snapshot for ch, if any.
func (b *StateBus) Snapshot(ch int) (ChannelSnapshot, bool) {
	if ch < 0 || ch >= len(b.cells) {
		return ChannelSnapshot{}, false
	}
	p := b.cells[ch].Load()
	if p == nil {
		return ChannelSnapshot{}, false
	}
	return *p, true
}

// All returns every currently published snapshot, skipping channels
// that have never published.
func (b *StateBus) All() []ChannelSnapshot {
	out := make([]ChannelSnapshot, 0, len(b.cells))
	for i := range b.cells {
		if snap, ok := b.Snapshot(i); ok {
			out = append(out, snap)
		}
	}
	return out
}

// SetMonitor routes the monitor output to channel ch, or clears routing
// when ch is negative. This is the single value-typed cell that breaks
// what would otherwise be a reference cycle between worker and view
// (spec §9).
func (b *StateBus) SetMonitor(ch int) {
	b.monitor.Store(int64(ch))
}

// Monitor returns the currently monitored channel id, or -1 if none.
func (b *StateBus) Monitor() int {
	return int(b.monitor.Load())
}

// IsMonitored reports whether ch is the currently routed monitor
// channel. Workers call this lock-free on every frame.
func (b *StateBus) IsMonitored(ch int) bool {
	return int(b.monitor.Load()) == ch
}
