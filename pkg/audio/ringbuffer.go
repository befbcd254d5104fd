package audio

import "sync"

// entry is one retained (start_timestamp_ns, samples) pair, per spec §3.
type entry struct {
	startNs int64
	samples []Sample
}

func (e entry) endNs(sampleRate int) int64 {
	return e.startNs + Frame{Samples: e.samples}.DurationNs(sampleRate)
}

// RingBuffer is a per-channel bounded time-indexed sample store. It is
// written by the owning ChannelWorker and read by that channel's
// TranscribeSession, which calls SamplesSince directly from its own
// goroutine when it replays after a reconnect; the mutex serialises the
// two. Reads do not go through the worker. It is a plain slice of entries
// rather than a byte ring because slice() must return samples addressed
// by capture timestamp, not by byte offset.
type RingBuffer struct {
	mu         sync.Mutex
	sampleRate int
	capacityNs int64
	entries    []entry
	retainedNs int64
	droppedNs  int64 // cumulative duration evicted, for overflow counters
}

// NewRingBuffer creates a buffer that retains at most capacitySeconds of
// audio at sampleRate.
func NewRingBuffer(sampleRate, capacitySeconds int) *RingBuffer {
	return &RingBuffer{
		sampleRate: sampleRate,
		capacityNs: int64(capacitySeconds) * 1e9,
	}
}

// Push appends frame, then evicts whole entries from the head until the
// retained duration is within capacity. Entries are never partially
// evicted — dropping is always of complete, whole entries.
func (r *RingBuffer) Push(f Frame) {
	if len(f.Samples) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	samples := make([]Sample, len(f.Samples))
	copy(samples, f.Samples)
	e := entry{startNs: f.CapturedAt, samples: samples}
	r.entries = append(r.entries, e)
	r.retainedNs += f.DurationNs(r.sampleRate)

	for r.retainedNs > r.capacityNs && len(r.entries) > 1 {
		oldest := r.entries[0]
		dur := Frame{Samples: oldest.samples}.DurationNs(r.sampleRate)
		r.entries = r.entries[1:]
		r.retainedNs -= dur
		r.droppedNs += dur
	}
}

// Slice returns the samples whose timestamps fall in [fromNs, toNs),
// clipped to whatever is currently retained. It never panics and never
// returns samples outside the retained range.
func (r *RingBuffer) Slice(fromNs, toNs int64) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Sample
	for _, e := range r.entries {
		end := e.endNs(r.sampleRate)
		if end <= fromNs || e.startNs >= toNs {
			continue
		}
		perSampleNs := int64(1e9) / int64(r.sampleRate)
		if perSampleNs == 0 {
			continue
		}
		startIdx := 0
		if fromNs > e.startNs {
			startIdx = int((fromNs - e.startNs) / perSampleNs)
		}
		endIdx := len(e.samples)
		if toNs < end {
			trim := int((end - toNs) / perSampleNs)
			endIdx = len(e.samples) - trim
		}
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > len(e.samples) {
			endIdx = len(e.samples)
		}
		if startIdx < endIdx {
			out = append(out, e.samples[startIdx:endIdx]...)
		}
	}
	return out
}

// DropBefore releases every entry strictly older than ts.
func (r *RingBuffer) DropBefore(ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := 0
	for i < len(r.entries) && r.entries[i].endNs(r.sampleRate) <= ts {
		dur := Frame{Samples: r.entries[i].samples}.DurationNs(r.sampleRate)
		r.retainedNs -= dur
		r.droppedNs += dur
		i++
	}
	r.entries = r.entries[i:]
}

// RetainedSeconds reports the currently retained duration, for tests and
// StateBus diagnostics.
func (r *RingBuffer) RetainedSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.retainedNs) / 1e9
}

// DroppedSeconds reports the cumulative evicted duration (spec §7,
// "RingBuffer overflow... increment counter").
func (r *RingBuffer) DroppedSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.droppedNs) / 1e9
}

// SamplesSince returns every retained sample captured at or after
// fromNs, satisfying transcribe.Replayer.
func (r *RingBuffer) SamplesSince(fromNs int64) []Sample {
	return r.Slice(fromNs, int64(1)<<62)
}

// Latest returns the end timestamp of the most recently pushed entry
// (one sample period past its last sample), or 0 if the buffer is empty.
func (r *RingBuffer) Latest() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return 0
	}
	last := r.entries[len(r.entries)-1]
	return last.endNs(r.sampleRate)
}
