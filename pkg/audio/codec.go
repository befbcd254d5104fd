package audio

import (
	"bytes"
	"fmt"

	"github.com/tphakala/flac"
)

// Codec is a stateless PCM-to-FLAC encoder. Encode and SilenceChunk do no
// I/O and hold no state across calls; every call produces a complete,
// independently decodable FLAC stream, since a streaming transcription
// endpoint may not accept a shared container header (spec §4.5).
type Codec struct {
	sampleRate int
	channels   int
}

// NewCodec returns a codec for mono PCM at sampleRate.
func NewCodec(sampleRate int) *Codec {
	return &Codec{sampleRate: sampleRate, channels: 1}
}

// Encode converts samples to a FLAC byte stream.
func (c *Codec) Encode(samples []Sample) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := flac.NewEncoder(&buf, &flac.EncoderConfig{
		SampleRate:    c.sampleRate,
		BitsPerSample: 16,
		NumChannels:   c.channels,
	})
	if err != nil {
		return nil, fmt.Errorf("flac encoder init: %w", err)
	}
	if err := enc.WriteInt16(samples); err != nil {
		return nil, fmt.Errorf("flac encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flac finalize: %w", err)
	}
	return buf.Bytes(), nil
}

// SilenceChunk produces durationMs of digital silence encoded the same
// way as real audio, for idle-fill while a session has nothing to send.
func (c *Codec) SilenceChunk(durationMs int) ([]byte, error) {
	n := c.sampleRate * durationMs / 1000
	return c.Encode(make([]Sample, n))
}
