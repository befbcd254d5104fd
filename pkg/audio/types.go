// Package audio holds the capture, buffering, recording, and encoding
// primitives shared by every channel pipeline.
package audio

// Sample is one 16-bit signed PCM scalar.
type Sample = int16

// ChannelID is a dense index in [0, channel_count).
type ChannelID int

// Frame is an ordered run of samples for one channel. CapturedAt is a
// nanosecond timestamp that CaptureFanout.Drain derives from the capture
// start time plus the number of samples already drained for the channel;
// it is strictly increasing within a channel. It is not taken per
// hardware buffer in the capture callback, and samples dropped on a full
// inbox are not counted, so timestamps after a drop run early by the
// dropped duration.
type Frame struct {
	Channel    ChannelID
	Samples    []Sample
	CapturedAt int64
}

// DurationNs returns how long this frame spans at the given sample rate.
func (f Frame) DurationNs(sampleRate int) int64 {
	if sampleRate <= 0 || len(f.Samples) == 0 {
		return 0
	}
	return int64(len(f.Samples)) * int64(1e9) / int64(sampleRate)
}

// MaxFrameMs is the upper bound on a single Frame's duration (spec §3).
const MaxFrameMs = 100
