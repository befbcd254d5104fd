package transcribe

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RetrySchedule controls the exponential backoff between reconnect
// attempts.
type RetrySchedule struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetrySchedule matches spec §4.6: base 1s, capped at 8s, five
// attempts before giving up.
func DefaultRetrySchedule() RetrySchedule {
	return RetrySchedule{BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxRetries: 5}
}

func (r RetrySchedule) delay(attempt int) time.Duration {
	d := r.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= r.MaxDelay {
			return r.MaxDelay
		}
	}
	return d
}

// Replayer supplies previously captured audio so a reconnecting session
// can resend what the backend missed while the connection was down. It
// is implemented by the channel's RingBuffer.
type Replayer interface {
	// SamplesSince returns every sample captured at or after fromNs, in
	// order.
	SamplesSince(fromNs int64) []int16
}

// Encoder turns raw PCM into whatever bytes the backend accepts, and
// supplies pure-silence chunks for idle-fill.
type Encoder interface {
	Encode(samples []int16) ([]byte, error)
	SilenceChunk(durationMs int) ([]byte, error)
}

// Event is one state transition or transcript delivered to the
// session's owner (a ChannelWorker). Sessions never call back into the
// worker directly, matching the rest of the pipeline's one-directional
// ownership.
type Event struct {
	State      SessionState
	Transcript *Transcript
	Err        error
}

// errIdleTimeout is returned internally by senderLoop once a stream has
// carried nothing but idle-fill for longer than idleFillFor. It is
// never classified as a backend error; it just means the socket should
// close cleanly and wait for the next voice-start.
var errIdleTimeout = errors.New("transcribe: idle-fill window elapsed")

// pendingAudio is one frame queued for the sender, carrying enough
// context to decide whether it goes out as real audio or idle-fill
// silence without the sender needing its own copy of the VAD decision.
type pendingAudio struct {
	samples    []int16
	voiced     bool
	durationMs int
}

// Session is a long-lived bidirectional transcription session for one
// channel. It owns reconnection, idle-fill, and replay; its caller only
// feeds it live audio and reads Events. A Session never holds a backend
// connection open without a reason: it opens lazily on first voice and
// closes itself again once idle-fill lapses (spec §3, §4.6), the same
// on-demand-connection idiom as a lazily dialed client that drops its
// handle on any error and reconnects on next use.
type Session struct {
	backend     Backend
	encoder     Encoder
	replayer    Replayer
	retry       RetrySchedule
	idleFillFor time.Duration

	mu          sync.Mutex
	state       SessionState
	lastVoiceAt time.Time
	lastSentNs  int64

	events     chan Event
	sendAudio  chan pendingAudio
	voiceStart chan struct{}
	cancel     context.CancelFunc
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// Config bundles everything a Session needs beyond the backend it talks
// to.
type Config struct {
	Backend     Backend
	Encoder     Encoder
	Replayer    Replayer
	Retry       RetrySchedule
	IdleFillFor time.Duration // spec §4.6: send silence up to this long after the last voiced frame
}

// NewSession builds a session in StateIdle. Start must be called before
// PushAudio can do anything; the session itself never dials a backend
// until the first voiced frame arrives.
func NewSession(cfg Config) *Session {
	if cfg.Retry == (RetrySchedule{}) {
		cfg.Retry = DefaultRetrySchedule()
	}
	if cfg.IdleFillFor == 0 {
		cfg.IdleFillFor = 180 * time.Second
	}
	return &Session{
		backend:     cfg.Backend,
		encoder:     cfg.Encoder,
		replayer:    cfg.Replayer,
		retry:       cfg.Retry,
		idleFillFor: cfg.IdleFillFor,
		state:       StateIdle,
		events:      make(chan Event, 256),
		sendAudio:   make(chan pendingAudio, 64),
		voiceStart:  make(chan struct{}, 1),
	}
}

// Start launches the run loop. The loop sits idle until a voiced frame
// wakes it; ctx governs the session's entire lifetime, and cancelling
// it is the only way to stop a session short of a fatal auth error.
func (s *Session) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
}

// Events returns the channel of state transitions and transcripts. It
// is closed when the session stops for good.
func (s *Session) Events() <-chan Event {
	return s.events
}

// PushAudio hands live PCM samples to the session. While the session is
// Idle, audio is dropped and a voiced frame only wakes the run loop to
// dial the backend; once dialed, every frame is queued for the sender,
// which decides per frame whether to send it as real audio or as
// idle-fill silence (spec §4.7 item 4). The caller decides what counts
// as voiced (its VAD), not the session.
func (s *Session) PushAudio(samples []int16, voiced bool, durationMs int) {
	s.mu.Lock()
	if voiced {
		s.lastVoiceAt = time.Now()
	}
	idle := s.state == StateIdle
	s.mu.Unlock()

	if idle {
		if voiced {
			select {
			case s.voiceStart <- struct{}{}:
			default:
			}
		}
		return
	}

	select {
	case s.sendAudio <- pendingAudio{samples: samples, voiced: voiced, durationMs: durationMs}:
	default:
		// Sender is behind; dropping here is safe because the RingBuffer
		// still holds this audio for replay after a reconnect.
	}
}

// State returns the session's current externally visible state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close stops the session and releases its backend connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		close(s.events)
	})
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.emit(Event{State: state})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		// Owner is behind; state/transcript events are best-effort, the
		// session's own State() call remains authoritative.
	}
}

// run alternates between waiting for a voice-start and running one
// connect-and-stream cycle. It returns only when ctx is cancelled or a
// fatal authentication failure has ended the session for good.
func (s *Session) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		if !s.waitForVoice(ctx) {
			return
		}
		if !s.connectAndStream(ctx) {
			return
		}
	}
}

// waitForVoice blocks in StateIdle until a voiced frame arrives or ctx
// is cancelled.
func (s *Session) waitForVoice(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.voiceStart:
		return true
	}
}

// connectAndStream dials the backend, retrying with backoff on
// transient failures, streams until idle-fill lapses or an error ends
// the stream, and returns to StateIdle on anything short of a fatal
// authentication failure. It returns false only when the caller should
// stop for good: ctx cancellation or ErrorAuth.
func (s *Session) connectAndStream(ctx context.Context) bool {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		s.setState(StateConnecting)
		stream, err := s.backend.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if s.backend.Classify(err) == ErrorAuth {
				s.setState(StateFatalAuth)
				s.emit(Event{Err: err})
				return false
			}
			attempt++
			if attempt > s.retry.MaxRetries {
				s.setState(StateIdle)
				s.emit(Event{Err: err})
				return true
			}
			if !s.backoff(ctx, attempt) {
				return false
			}
			continue
		}

		attempt = 0
		if s.replayer != nil {
			s.replayPending(stream)
		}

		s.setState(StateStreaming)
		streamErr := s.streamLoop(ctx, stream)
		stream.Close()

		if ctx.Err() != nil {
			return false
		}
		if streamErr == nil || errors.Is(streamErr, errIdleTimeout) {
			s.setState(StateIdle)
			return true
		}
		if s.backend.Classify(streamErr) == ErrorAuth {
			s.setState(StateFatalAuth)
			s.emit(Event{Err: streamErr})
			return false
		}

		attempt++
		if attempt > s.retry.MaxRetries {
			s.setState(StateIdle)
			s.emit(Event{Err: streamErr})
			return true
		}
		if !s.backoff(ctx, attempt) {
			return false
		}
	}
}

// backoff sleeps for the attempt-th retry delay, reporting StateBackoff
// for the duration. Returns false if ctx was cancelled first.
func (s *Session) backoff(ctx context.Context, attempt int) bool {
	s.setState(StateBackoff)
	select {
	case <-time.After(s.retry.delay(attempt - 1)):
		return true
	case <-ctx.Done():
		return false
	}
}

// replayPending resends everything the Replayer still holds from
// lastSentNs onward, as one encoded chunk. lastSentNs is the wall-clock
// time of the last voiced frame that SendAudio accepted; it is not a
// backend acknowledgement, so audio that was sent but never processed by
// the backend before the connection dropped is not replayed.
func (s *Session) replayPending(stream Stream) {
	s.mu.Lock()
	from := s.lastSentNs
	s.mu.Unlock()

	samples := s.replayer.SamplesSince(from)
	if len(samples) == 0 {
		return
	}
	encoded, err := s.encoder.Encode(samples)
	if err != nil {
		return
	}
	_ = stream.SendAudio(encoded)
}

// streamLoop runs the sender and receiver halves of one connected
// session concurrently until either fails, the idle-fill window lapses,
// or ctx is cancelled. The receiver blocks inside Stream.Recv with no
// context of its own, so cancellation closes the stream to unblock it
// rather than relying on Recv to observe ctx directly.
func (s *Session) streamLoop(ctx context.Context, stream Stream) error {
	errCh := make(chan error, 2)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-loopCtx.Done()
		stream.Close()
	}()

	go func() {
		errCh <- s.senderLoop(loopCtx, stream)
	}()
	go func() {
		errCh <- s.receiverLoop(loopCtx, stream)
	}()

	err := <-errCh
	cancel()
	<-errCh
	return err
}

// senderLoop makes one decision per queued frame: a voiced frame goes
// out as real audio and resets the idle clock (already done in
// PushAudio); an unvoiced frame goes out as idle-fill silence as long
// as the session is still within idleFillFor of the last voiced frame,
// and once that window lapses the loop ends with errIdleTimeout instead
// of sending anything further (spec §4.6, "closes; no further bytes are
// sent until the next voice-start").
func (s *Session) senderLoop(ctx context.Context, stream Stream) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pending := <-s.sendAudio:
			if pending.voiced {
				encoded, err := s.encoder.Encode(pending.samples)
				if err != nil {
					continue
				}
				if err := stream.SendAudio(encoded); err != nil {
					return err
				}
				s.mu.Lock()
				s.lastSentNs = time.Now().UnixNano()
				s.mu.Unlock()
				continue
			}

			s.mu.Lock()
			idleFor := time.Since(s.lastVoiceAt)
			s.mu.Unlock()
			if idleFor >= s.idleFillFor {
				return errIdleTimeout
			}

			chunk, err := s.encoder.SilenceChunk(pending.durationMs)
			if err != nil {
				continue
			}
			if err := stream.SendSilence(chunk); err != nil {
				return err
			}
		}
	}
}

func (s *Session) receiverLoop(ctx context.Context, stream Stream) error {
	for {
		t, err := stream.Recv()
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		tc := t
		s.emit(Event{State: s.State(), Transcript: &tc})
	}
}
