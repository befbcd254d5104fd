package orchestrator

import (
	"math"

	"github.com/nappa/dcr-transcribe/pkg/audio"
)

const (
	fullScale = 32768.0
	epsilon   = 1e-10
	windowMs  = 20
)

// VADPhase is the voice-activity state for one channel.
type VADPhase int

const (
	PhaseSilent VADPhase = iota
	PhaseVoiced
)

// VADResult is what one Frame's worth of VAD processing produces.
type VADResult struct {
	Phase         VADPhase
	IsVoiceActive bool
	DBFS          float64
	VoiceStarted  bool // phase transitioned Silent -> Voiced this frame
	VoiceEnded    bool // phase transitioned Voiced -> Silent this frame
}

// RMSVAD is the dBFS/hangover voice activity detector described in
// spec §4.2: windows of ~20ms are classified voiced or unvoiced by RMS
// threshold, and a hangover counts down in whole windows once speech
// stops so short pauses don't fragment an utterance.
type RMSVAD struct {
	thresholdDB float64
	hangoverMs  int
	sampleRate  int

	phase          VADPhase
	hangoverRemain int
}

// NewRMSVAD builds a detector for the given threshold (dBFS) and
// hangover duration.
func NewRMSVAD(sampleRate int, thresholdDB float64, hangoverMs int) *RMSVAD {
	return &RMSVAD{
		thresholdDB: thresholdDB,
		hangoverMs:  hangoverMs,
		sampleRate:  sampleRate,
		phase:       PhaseSilent,
	}
}

// Process runs the window state machine across frame and returns the
// frame-level result. An empty frame is a no-op.
func (v *RMSVAD) Process(frame audio.Frame) VADResult {
	if len(frame.Samples) == 0 {
		return VADResult{Phase: v.phase, DBFS: math.Inf(-1)}
	}

	windowSamples := v.sampleRate * windowMs / 1000
	if windowSamples <= 0 {
		windowSamples = len(frame.Samples)
	}

	res := VADResult{Phase: v.phase}
	frameVoiced := false
	var lastDBFS float64

	for start := 0; start < len(frame.Samples); start += windowSamples {
		end := start + windowSamples
		if end > len(frame.Samples) {
			end = len(frame.Samples)
		}
		window := frame.Samples[start:end]
		dbfs := dBFS(rms(window))
		lastDBFS = dbfs
		voiced := dbfs >= v.thresholdDB
		if voiced {
			frameVoiced = true
		}

		switch v.phase {
		case PhaseSilent:
			if voiced {
				v.phase = PhaseVoiced
				v.hangoverRemain = v.hangoverMs
				res.VoiceStarted = true
			}
		case PhaseVoiced:
			if voiced {
				v.hangoverRemain = v.hangoverMs
			} else if v.hangoverRemain > windowMs {
				v.hangoverRemain -= windowMs
			} else {
				v.phase = PhaseSilent
				v.hangoverRemain = 0
				res.VoiceEnded = true
			}
		}
	}

	res.Phase = v.phase
	res.IsVoiceActive = frameVoiced || v.phase == PhaseVoiced
	res.DBFS = lastDBFS
	return res
}

// Reset returns the detector to its initial Silent state.
func (v *RMSVAD) Reset() {
	v.phase = PhaseSilent
	v.hangoverRemain = 0
}

func rms(samples []audio.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / fullScale
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func dBFS(r float64) float64 {
	return 20 * math.Log10(math.Max(r, epsilon))
}
