package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nappa/dcr-transcribe/pkg/audio"
	"github.com/nappa/dcr-transcribe/pkg/transcribe"
)

// MonitorSink receives a copy of one channel's live samples while that
// channel is routed to local monitor playback. Push must be
// non-blocking; a full sink drops samples.
type MonitorSink interface {
	Push(samples []audio.Sample)
}

// Source pulls up to maxSamples queued samples for one channel from the
// capture fanout. It never blocks; ok is false when nothing is queued.
type Source func(maxSamples int) (audio.Frame, bool)

// DropCounter reports the cumulative number of samples the capture
// fanout has discarded for this channel because its inbox was full.
type DropCounter func() int64

const (
	pollInterval      = 10 * time.Millisecond
	peakWindow        = 3 * time.Second
	maxDrainSamples   = 4096
	transcriptRingCap = 100
)

// ChannelWorker is the single consumer of one channel's inbox. It
// fans each Frame out to the Recorder, the VAD, the RingBuffer, the
// TranscribeSession, the StateBus, and (when selected) the monitor
// sink (spec §4.7).
type ChannelWorker struct {
	id         int
	sampleRate int

	source      Source
	dropCounter DropCounter
	recorder    *audio.Recorder
	ring        *audio.RingBuffer
	vad         *RMSVAD
	session     *transcribe.Session
	bus         *StateBus
	monitor     MonitorSink
	logger      Logger

	mu          sync.Mutex
	peaks       []peakSample
	transcripts []string
	partial     string
	partialAt   int64
	lastDropped int64

	events    chan ChannelEvent
	closeOnce sync.Once
}

type peakSample struct {
	at   time.Time
	peak float64
}

// ChannelWorkerConfig bundles a worker's dependencies. All fields are
// required except Monitor, Logger and DropCounter.
type ChannelWorkerConfig struct {
	ChannelID   int
	SampleRate  int
	Source      Source
	DropCounter DropCounter
	Recorder    *audio.Recorder
	Ring        *audio.RingBuffer
	VAD         *RMSVAD
	Session     *transcribe.Session
	Bus         *StateBus
	Monitor     MonitorSink
	Logger      Logger
}

// NewChannelWorker builds a worker. Run must be called to start
// draining.
func NewChannelWorker(cfg ChannelWorkerConfig) *ChannelWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ChannelWorker{
		id:          cfg.ChannelID,
		sampleRate:  cfg.SampleRate,
		source:      cfg.Source,
		dropCounter: cfg.DropCounter,
		recorder:    cfg.Recorder,
		ring:        cfg.Ring,
		vad:         cfg.VAD,
		session:     cfg.Session,
		bus:         cfg.Bus,
		monitor:     cfg.Monitor,
		logger:      logger,
		events:      make(chan ChannelEvent, 256),
	}
}

// Events returns channel-level events (voice start/end, transcripts,
// disk/session failures) for the Engine to relay or log.
func (w *ChannelWorker) Events() <-chan ChannelEvent {
	return w.events
}

// Run drains the inbox until ctx is cancelled. It owns the session's
// lifetime: starting it here and closing it on exit (spec §5, "shutdown
// flows top-down").
func (w *ChannelWorker) Run(ctx context.Context) {
	w.session.Start(ctx)
	go w.drainSessionEvents(ctx)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		case <-ticker.C:
			for {
				frame, ok := w.source(maxDrainSamples)
				if !ok {
					break
				}
				w.processFrame(frame)
			}
			w.checkOverflow()
		}
	}
}

// checkOverflow reports newly dropped samples since the last check. The
// capture callback itself never blocks on a full inbox (spec §4.1); this
// is how that silent drop becomes an observable event.
func (w *ChannelWorker) checkOverflow() {
	if w.dropCounter == nil {
		return
	}
	total := w.dropCounter()
	w.mu.Lock()
	delta := total - w.lastDropped
	w.lastDropped = total
	w.mu.Unlock()
	if delta > 0 {
		w.emit(ChannelEvent{Type: BufferOverflow, ChannelID: w.id, Data: delta})
	}
}

func (w *ChannelWorker) processFrame(frame audio.Frame) {
	w.recorder.Write(frame.Samples)

	result := w.vad.Process(frame)
	w.recordPeak(frame)

	w.ring.Push(frame)

	durationMs := int(frame.DurationNs(w.sampleRate) / 1e6)
	w.session.PushAudio(frame.Samples, result.IsVoiceActive, durationMs)
	if result.VoiceStarted {
		w.emit(ChannelEvent{Type: VoiceStart, ChannelID: w.id})
	}
	if result.VoiceEnded {
		w.emit(ChannelEvent{Type: VoiceEnd, ChannelID: w.id})
	}

	w.publishSnapshot(result)

	if w.bus.IsMonitored(w.id) && w.monitor != nil {
		w.monitor.Push(frame.Samples)
	}

	if w.recorder.Disabled() {
		w.emit(ChannelEvent{Type: RecorderDisabled, ChannelID: w.id, Data: w.recorder.Err()})
	}
}

func (w *ChannelWorker) recordPeak(frame audio.Frame) {
	var peak float64
	for _, s := range frame.Samples {
		f := float64(s) / fullScale
		if f < 0 {
			f = -f
		}
		if f > peak {
			peak = f
		}
	}
	now := time.Now()

	w.mu.Lock()
	w.peaks = append(w.peaks, peakSample{at: now, peak: peak})
	cutoff := now.Add(-peakWindow)
	i := 0
	for i < len(w.peaks) && w.peaks[i].at.Before(cutoff) {
		i++
	}
	w.peaks = w.peaks[i:]
	w.mu.Unlock()
}

func (w *ChannelWorker) windowedPeak() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var max float64
	for _, p := range w.peaks {
		if p.peak > max {
			max = p.peak
		}
	}
	return max
}

func (w *ChannelWorker) drainSessionEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.session.Events():
			if !ok {
				return
			}
			if ev.Transcript != nil {
				w.recordTranscript(*ev.Transcript)
				evType := TranscriptPartial
				if ev.Transcript.IsFinal {
					evType = TranscriptFinal
				}
				w.emit(ChannelEvent{Type: evType, ChannelID: w.id, Data: ev.Transcript})
			} else {
				w.emit(ChannelEvent{Type: SessionStateChanged, ChannelID: w.id, Data: ev.State})
			}
			if ev.Err != nil {
				w.emit(ChannelEvent{Type: ChannelError, ChannelID: w.id, Data: ev.Err})
			}
		}
	}
}

func (w *ChannelWorker) recordTranscript(t transcribe.Transcript) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.IsFinal {
		w.transcripts = append(w.transcripts, t.Text)
		if len(w.transcripts) > transcriptRingCap {
			w.transcripts = w.transcripts[len(w.transcripts)-transcriptRingCap:]
		}
		w.partial = ""
	} else {
		w.partial = t.Text
		w.partialAt = time.Now().UnixNano()
	}
}

func (w *ChannelWorker) publishSnapshot(result VADResult) {
	w.mu.Lock()
	partial := w.partial
	partialAt := w.partialAt
	var last string
	if n := len(w.transcripts); n > 0 {
		last = w.transcripts[n-1]
	}
	w.mu.Unlock()

	text := last
	at := partialAt
	if partial != "" {
		text = partial
	}

	w.bus.Publish(ChannelSnapshot{
		ChannelID:        w.id,
		VoicePhase:       result.Phase,
		DBFS:             result.DBFS,
		SessionState:     w.session.State(),
		LastTranscript:   text,
		LastTranscriptAt: at,
		RetainedSeconds:  w.ring.RetainedSeconds(),
		DroppedSeconds:   w.ring.DroppedSeconds(),
		RecorderPath:     w.recorder.Path(),
		RecorderDisabled: w.recorder.Disabled(),
		Monitored:        w.bus.IsMonitored(w.id),
		UpdatedAtNs:      time.Now().UnixNano(),
	})
}

func (w *ChannelWorker) emit(ev ChannelEvent) {
	select {
	case w.events <- ev:
	default:
		// Consumer is behind; StateBus already carries the durable view.
	}
}

func (w *ChannelWorker) shutdown() {
	w.closeOnce.Do(func() {
		w.session.Close()
		if err := w.recorder.Close(); err != nil {
			w.logger.Warn("recorder finalize failed", "channel", w.id, "err", err)
		}
		close(w.events)
	})
}
