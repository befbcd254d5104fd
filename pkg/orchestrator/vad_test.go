package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nappa/dcr-transcribe/pkg/audio"
)

const testSampleRate = 16000

func silentFrame(n int) audio.Frame {
	return audio.Frame{Samples: make([]audio.Sample, n)}
}

func tone(n int, amplitude int16) audio.Frame {
	samples := make([]audio.Sample, n)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	return audio.Frame{Samples: samples}
}

func TestRMSVAD_SilenceStaysSilent(t *testing.T) {
	v := NewRMSVAD(testSampleRate, -40, 500)
	windowSamples := testSampleRate * windowMs / 1000

	for i := 0; i < 50; i++ {
		res := v.Process(silentFrame(windowSamples))
		assert.Equal(t, PhaseSilent, res.Phase)
		assert.False(t, res.IsVoiceActive)
	}
}

func TestRMSVAD_EmptyFrameIsNoop(t *testing.T) {
	v := NewRMSVAD(testSampleRate, -40, 500)
	res := v.Process(audio.Frame{})
	assert.Equal(t, PhaseSilent, res.Phase)
	assert.False(t, res.IsVoiceActive)
}

func TestRMSVAD_HangoverHoldsThenReleases(t *testing.T) {
	v := NewRMSVAD(testSampleRate, -20, 100) // 100ms hangover == 5 windows of 20ms
	windowSamples := testSampleRate * windowMs / 1000

	loud := v.Process(tone(windowSamples, 10000))
	assert.True(t, loud.VoiceStarted)
	assert.True(t, loud.IsVoiceActive)

	// hangover_duration_ms=100 with a 20ms window gives 4 more windows
	// that stay within the hangover before it lapses.
	for i := 0; i < 4; i++ {
		res := v.Process(silentFrame(windowSamples))
		assert.Truef(t, res.IsVoiceActive, "window %d should still be within hangover", i)
	}

	// The window where remaining hangover no longer exceeds one window
	// releases it.
	res := v.Process(silentFrame(windowSamples))
	assert.False(t, res.IsVoiceActive)
	assert.True(t, res.VoiceEnded)
}
