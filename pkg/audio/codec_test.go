package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodec_SilenceChunkIsNonEmpty(t *testing.T) {
	c := NewCodec(16000)
	chunk, err := c.SilenceChunk(100) // 100ms at 16kHz = 1600 samples
	require.NoError(t, err)
	require.NotEmpty(t, chunk)
}

func TestCodec_EncodeIsStateless(t *testing.T) {
	c := NewCodec(16000)
	samples := make([]Sample, 320)
	for i := range samples {
		samples[i] = Sample(i % 100)
	}

	first, err := c.Encode(samples)
	require.NoError(t, err)
	second, err := c.Encode(samples)
	require.NoError(t, err)
	require.Equal(t, first, second, "encoding identical input twice must produce identical output")
}
