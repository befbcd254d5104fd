package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	recv      chan Transcript
	sent      chan []byte
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{recv: make(chan Transcript, 8), sent: make(chan []byte, 8)}
}

func (s *fakeStream) SendAudio(encoded []byte) error {
	select {
	case s.sent <- encoded:
	default:
	}
	return nil
}
func (s *fakeStream) SendSilence(encoded []byte) error { return s.SendAudio(encoded) }
func (s *fakeStream) Recv() (Transcript, error) {
	t, ok := <-s.recv
	if !ok {
		return Transcript{}, ErrStreamClosed
	}
	return t, nil
}
func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.recv) })
	return nil
}

var errTransient = errors.New("transient failure")
var errAuth = errors.New("auth failure")

// failNThenSucceedBackend fails Open failCount times with a retryable
// error, then succeeds.
type failNThenSucceedBackend struct {
	failCount int
	opens     int
	stream    *fakeStream
}

func (b *failNThenSucceedBackend) Name() string { return "fake" }
func (b *failNThenSucceedBackend) Open(ctx context.Context) (Stream, error) {
	b.opens++
	if b.opens <= b.failCount {
		return nil, errTransient
	}
	return b.stream, nil
}
func (b *failNThenSucceedBackend) Classify(err error) ErrorClass {
	if errors.Is(err, errAuth) {
		return ErrorAuth
	}
	return ErrorRetryable
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(samples []int16) ([]byte, error)      { return []byte{byte(len(samples))}, nil }
func (fakeEncoder) SilenceChunk(durationMs int) ([]byte, error) { return []byte{0}, nil }

type fakeReplayer struct{}

func (fakeReplayer) SamplesSince(fromNs int64) []int16 { return nil }

func TestSession_NoConnectionUntilVoiceStart(t *testing.T) {
	backend := &failNThenSucceedBackend{failCount: 0, stream: newFakeStream()}

	s := NewSession(Config{
		Backend:  backend,
		Encoder:  fakeEncoder{},
		Replayer: fakeReplayer{},
		Retry:    RetrySchedule{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxRetries: 5},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case ev := <-s.Events():
		t.Fatalf("session must stay idle with no voice seen, got event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 0, backend.opens)
	assert.Equal(t, StateIdle, s.State())
	s.Close()
}

func TestSession_BackoffThenConnects(t *testing.T) {
	backend := &failNThenSucceedBackend{failCount: 2, stream: newFakeStream()}

	s := NewSession(Config{
		Backend:  backend,
		Encoder:  fakeEncoder{},
		Replayer: fakeReplayer{},
		Retry:    RetrySchedule{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxRetries: 5},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.PushAudio([]int16{1, 2, 3}, true, 20)

	var sawBackoff, sawStreaming bool
	deadline := time.After(2 * time.Second)
	for !sawStreaming {
		select {
		case ev := <-s.Events():
			if ev.State == StateBackoff {
				sawBackoff = true
			}
			if ev.State == StateStreaming {
				sawStreaming = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for session to reach Streaming")
		}
	}

	assert.True(t, sawBackoff)
	assert.Equal(t, 3, backend.opens) // 2 failures + 1 success
	s.Close()
}

func TestSession_TransientRetryExhaustionReturnsToIdle(t *testing.T) {
	backend := &failNThenSucceedBackend{failCount: 1000}

	s := NewSession(Config{
		Backend:  backend,
		Encoder:  fakeEncoder{},
		Replayer: fakeReplayer{},
		Retry:    RetrySchedule{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxRetries: 2},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.PushAudio([]int16{1, 2, 3}, true, 20)

	var sawIdleAgain, sawErr bool
	deadline := time.After(2 * time.Second)
	for !sawIdleAgain || !sawErr {
		select {
		case ev := <-s.Events():
			require.NotEqual(t, StateFatalAuth, ev.State, "transient retry exhaustion must not report FatalAuth")
			if ev.Err != nil {
				sawErr = true
			}
			if ev.State == StateIdle {
				sawIdleAgain = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for session to return to Idle with an error event")
		}
	}

	assert.Equal(t, 3, backend.opens) // initial attempt + 2 retries
	s.Close()
}

func TestSession_IdleFillExpiryClosesCleanlyToIdle(t *testing.T) {
	backend := &failNThenSucceedBackend{failCount: 0, stream: newFakeStream()}

	s := NewSession(Config{
		Backend:     backend,
		Encoder:     fakeEncoder{},
		Replayer:    fakeReplayer{},
		Retry:       RetrySchedule{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxRetries: 5},
		IdleFillFor: 20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.PushAudio([]int16{1, 2, 3}, true, 20)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.PushAudio([]int16{0, 0, 0}, false, 5)
			}
		}
	}()

	var sawStreaming, sawIdleAgain, sawErr bool
	deadline := time.After(2 * time.Second)
	for !sawIdleAgain {
		select {
		case ev := <-s.Events():
			if ev.State == StateStreaming {
				sawStreaming = true
			}
			if ev.Err != nil {
				sawErr = true
			}
			if sawStreaming && ev.State == StateIdle {
				sawIdleAgain = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for idle-fill expiry to return the session to Idle")
		}
	}

	assert.False(t, sawErr, "idle-fill expiry must close cleanly, not report an error")
	s.Close()
}

func TestSession_AuthErrorIsFatalWithoutRetry(t *testing.T) {
	authBackend := &classifyingBackend{
		openErr:  errAuth,
		classify: func(err error) ErrorClass { return ErrorAuth },
	}

	s := NewSession(Config{
		Backend:  authBackend,
		Encoder:  fakeEncoder{},
		Replayer: fakeReplayer{},
		Retry:    RetrySchedule{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxRetries: 5},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.PushAudio([]int16{1, 2, 3}, true, 20)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.State == StateFatalAuth {
				assert.Equal(t, 1, authBackend.opens)
				s.Close()
				return
			}
			require.NotEqual(t, StateBackoff, ev.State, "auth failures must not retry")
		case <-deadline:
			t.Fatal("timed out waiting for FatalAuth")
		}
	}
}

type classifyingBackend struct {
	openErr  error
	classify func(error) ErrorClass
	opens    int
}

func (b *classifyingBackend) Name() string { return "fake-auth" }
func (b *classifyingBackend) Open(ctx context.Context) (Stream, error) {
	b.opens++
	return nil, b.openErr
}
func (b *classifyingBackend) Classify(err error) ErrorClass { return b.classify(err) }

func TestRetrySchedule_DelaysCapAtMax(t *testing.T) {
	r := RetrySchedule{BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxRetries: 5}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, r.delay(i))
	}
}
