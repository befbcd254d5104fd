package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRingBuffer_RetainedNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sampleRate := 8000
		capacitySeconds := rapid.IntRange(1, 5).Draw(t, "capacitySeconds")
		rb := NewRingBuffer(sampleRate, capacitySeconds)

		n := rapid.IntRange(0, 40).Draw(t, "frames")
		var cursor int64
		for i := 0; i < n; i++ {
			samples := rapid.IntRange(1, 4000).Draw(t, "samples")
			frame := Frame{Samples: make([]Sample, samples), CapturedAt: cursor}
			rb.Push(frame)
			cursor += frame.DurationNs(sampleRate)

			assert.LessOrEqualf(t, rb.RetainedSeconds(), float64(capacitySeconds)+1e-9,
				"retained duration exceeded capacity after push %d", i)
		}
	})
}

func TestRingBuffer_SliceNeverPanicsOrOverreads(t *testing.T) {
	rb := NewRingBuffer(8000, 2)
	var cursor int64
	for i := 0; i < 10; i++ {
		frame := Frame{Samples: make([]Sample, 8000), CapturedAt: cursor}
		rb.Push(frame)
		cursor += frame.DurationNs(8000)
	}

	require.NotPanics(t, func() {
		_ = rb.Slice(-1000, cursor+1000)
		_ = rb.Slice(cursor+1, cursor+2)
		_ = rb.Slice(0, 0)
	})
}

func TestRingBuffer_SliceReturnsRequestedRange(t *testing.T) {
	rb := NewRingBuffer(1000, 10)
	samples := make([]Sample, 1000)
	for i := range samples {
		samples[i] = Sample(i)
	}
	rb.Push(Frame{Samples: samples, CapturedAt: 0})

	got := rb.Slice(500_000_000, 600_000_000) // [0.5s, 0.6s) at 1000Hz = samples [500,600)
	assert.Equal(t, samples[500:600], got)
}

func TestRingBuffer_DropBeforeEvictsOnlyOlderEntries(t *testing.T) {
	rb := NewRingBuffer(1000, 10)
	rb.Push(Frame{Samples: make([]Sample, 1000), CapturedAt: 0})         // [0, 1s)
	rb.Push(Frame{Samples: make([]Sample, 1000), CapturedAt: 1_000_000_000}) // [1s, 2s)

	rb.DropBefore(1_000_000_001)
	assert.InDelta(t, 1.0, rb.RetainedSeconds(), 1e-9)
}

func TestRingBuffer_EmptyFrameIsNoop(t *testing.T) {
	rb := NewRingBuffer(8000, 5)
	rb.Push(Frame{})
	assert.Equal(t, float64(0), rb.RetainedSeconds())
}
