package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nappa/dcr-transcribe/internal/config"
	"github.com/nappa/dcr-transcribe/pkg/audio"
	"github.com/nappa/dcr-transcribe/pkg/transcribe"
)

// Engine owns the capture device and every enabled channel's worker. It
// is the only component that knows how to wire a ChannelWorker's
// dependencies together; once running, each worker is independent (spec
// §5, "each ChannelWorker contains its own errors").
type Engine struct {
	cfg     config.Config
	capture *audio.CaptureFanout
	bus     *StateBus
	backend transcribe.Backend
	logger  Logger

	workers []*ChannelWorker
	ring    []*audio.RingBuffer

	events      chan ChannelEvent
	wg          sync.WaitGroup
	fatalAuth   atomic.Bool
	fatalSeen   map[int]bool
	fatalCount  int
	fatalTarget int
	fatalMu     sync.Mutex
}

// New builds an Engine from a validated Config and an already-opened
// transcription backend.
func New(cfg config.Config, capture *audio.CaptureFanout, backend transcribe.Backend, logger Logger) *Engine {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &Engine{
		cfg:       cfg,
		capture:   capture,
		backend:   backend,
		logger:    logger,
		bus:       NewStateBus(cfg.Audio.Channels),
		events:    make(chan ChannelEvent, 1024),
		fatalSeen: make(map[int]bool),
	}
}

// Bus exposes the StateBus for the terminal UI and monitor controller.
func (e *Engine) Bus() *StateBus {
	return e.bus
}

// Events returns the merged channel-event stream across every worker,
// for the transcript writer.
func (e *Engine) Events() <-chan ChannelEvent {
	return e.events
}

// Run opens the capture device, builds one ChannelWorker per enabled
// channel, and blocks until ctx is cancelled or every enabled channel's
// session has given up with a fatal authentication failure (spec §6,
// exit code 2 "fatal authentication error on all channels"), at which
// point it tears everything down top-down: stop capture, let workers
// drain, close sessions, finalize recorders (spec §5).
func (e *Engine) Run(ctx context.Context) error {
	if err := e.capture.Init(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoCaptureDevice, err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if err := e.capture.Start(runCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrNoCaptureDevice, err)
	}

	startedAt := time.Now()
	enabled := enabledChannels(e.cfg)
	e.fatalTarget = len(enabled)

	for _, ch := range enabled {
		worker, err := e.buildWorker(ch, startedAt)
		if err != nil {
			e.logger.Error("channel init failed", "channel", ch.ID, "err", err)
			continue
		}
		e.workers = append(e.workers, worker)
		e.wg.Add(1)
		go func(w *ChannelWorker) {
			defer e.wg.Done()
			e.relay(runCtx, cancelRun, w)
		}(worker)
		e.wg.Add(1)
		go func(w *ChannelWorker) {
			defer e.wg.Done()
			w.Run(runCtx)
		}(worker)
	}

	<-runCtx.Done()
	e.wg.Wait()
	close(e.events)
	if err := e.capture.Close(); err != nil {
		return err
	}
	if e.fatalAuth.Load() {
		return ErrFatalAuth
	}
	return nil
}

func (e *Engine) buildWorker(ch config.ChannelConfig, startedAt time.Time) (*ChannelWorker, error) {
	id := audio.ChannelID(ch.ID)

	recorder, err := audio.NewRecorder(e.cfg.Output.WavOutputDir, id, e.cfg.Audio.SampleRate, startedAt)
	if err != nil {
		e.logger.Warn("recorder open failed, recording disabled", "channel", ch.ID, "err", err)
	}

	ring := audio.NewRingBuffer(e.cfg.Audio.SampleRate, e.cfg.Buffer.CapacitySeconds)
	codec := audio.NewCodec(e.cfg.Transcribe.SampleRate)
	vad := NewRMSVAD(e.cfg.Audio.SampleRate, e.cfg.VAD.ThresholdDB, e.cfg.VAD.HangoverDurationMs)

	session := transcribe.NewSession(transcribe.Config{
		Backend:  e.backend,
		Encoder:  codec,
		Replayer: ring,
		Retry: transcribe.RetrySchedule{
			BaseDelay:  time.Second,
			MaxDelay:   8 * time.Second,
			MaxRetries: e.cfg.Transcribe.MaxRetries,
		},
	})

	source := func(maxSamples int) (audio.Frame, bool) {
		return e.capture.Drain(id, maxSamples)
	}
	dropCounter := func() int64 {
		return e.capture.DroppedSamples(id)
	}

	worker := NewChannelWorker(ChannelWorkerConfig{
		ChannelID:   ch.ID,
		SampleRate:  e.cfg.Audio.SampleRate,
		Source:      source,
		DropCounter: dropCounter,
		Recorder:    recorder,
		Ring:        ring,
		VAD:         vad,
		Session:     session,
		Bus:         e.bus,
		Logger:      e.logger,
	})
	return worker, nil
}

func (e *Engine) relay(ctx context.Context, cancelRun context.CancelFunc, w *ChannelWorker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if ev.Type == SessionStateChanged {
				if state, ok := ev.Data.(transcribe.SessionState); ok && state == transcribe.StateFatalAuth {
					e.noteFatalAuth(ev.ChannelID, cancelRun)
				}
			}
			select {
			case e.events <- ev:
			default:
			}
		}
	}
}

// noteFatalAuth counts one channel's fatal authentication failure at
// most once and, once every enabled channel has failed the same way,
// cancels the run so Engine.Run returns ErrFatalAuth instead of waiting
// indefinitely for an external shutdown signal.
func (e *Engine) noteFatalAuth(channelID int, cancelRun context.CancelFunc) {
	e.fatalMu.Lock()
	defer e.fatalMu.Unlock()
	if e.fatalSeen[channelID] {
		return
	}
	e.fatalSeen[channelID] = true
	e.fatalCount++
	if e.fatalTarget > 0 && e.fatalCount >= e.fatalTarget {
		e.fatalAuth.Store(true)
		cancelRun()
	}
}

func enabledChannels(cfg config.Config) []config.ChannelConfig {
	var out []config.ChannelConfig
	for _, ch := range cfg.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}
