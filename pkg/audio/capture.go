package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"
)

var (
	ErrNotInitialized = errors.New("capture: not initialized")
	ErrAlreadyRunning = errors.New("capture: already running")
	ErrNotRunning     = errors.New("capture: not running")
)

const bytesPerSample = 2 // S16 PCM

// CaptureConfig describes the physical capture device to open.
type CaptureConfig struct {
	DeviceID     string // "default" or a value returned by ListDevices
	SampleRate   uint32
	Channels     uint32
	PeriodFrames uint32 // frames per hardware callback
	InboxBytes   int    // per-channel lock-free inbox capacity
}

// DeviceInfo describes one enumerable capture device.
type DeviceInfo struct {
	Index int
	Name  string
}

// CaptureFanout owns one multi-channel malgo capture device and
// de-interleaves its hot-path callback into N per-channel lock-free
// inboxes. The callback itself never allocates beyond the one-time
// per-channel scratch buffers set up in Start, and never blocks: a full
// inbox drops the incoming bytes and bumps a counter (spec §4.1, "the
// capture callback must never block or allocate").
type CaptureFanout struct {
	cfg CaptureConfig

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	running atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex

	inboxes   []*ringbuffer.RingBuffer
	scratch   [][]byte // reused de-interleave scratch, one per channel
	dropped   []atomic.Int64
	sampleN   []atomic.Int64 // cumulative sample count per channel, for timestamping
	startedAt time.Time
}

// NewCaptureFanout allocates the fanout for the given config. Call Init
// then Start.
func NewCaptureFanout(cfg CaptureConfig) *CaptureFanout {
	n := int(cfg.Channels)
	f := &CaptureFanout{
		cfg:     cfg,
		inboxes: make([]*ringbuffer.RingBuffer, n),
		scratch: make([][]byte, n),
		dropped: make([]atomic.Int64, n),
		sampleN: make([]atomic.Int64, n),
	}
	for i := 0; i < n; i++ {
		f.inboxes[i] = ringbuffer.New(cfg.InboxBytes)
	}
	return f
}

// Init opens the malgo audio context.
func (f *CaptureFanout) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx != nil {
		return fmt.Errorf("%w: already initialized", ErrAlreadyRunning)
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	f.ctx = ctx
	return nil
}

// ListDevices enumerates capture-capable devices, for --show-interfaces.
func (f *CaptureFanout) ListDevices() ([]DeviceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx == nil {
		return nil, ErrNotInitialized
	}
	raw, err := f.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	out := make([]DeviceInfo, len(raw))
	for i, d := range raw {
		out[i] = DeviceInfo{Index: i, Name: d.Name()}
	}
	return out, nil
}

// Start opens and runs the capture device until ctx is cancelled or Stop
// is called.
func (f *CaptureFanout) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	f.mu.Lock()
	if f.ctx == nil {
		f.mu.Unlock()
		f.running.Store(false)
		return ErrNotInitialized
	}
	audioCtx := f.ctx.Context

	var deviceID unsafe.Pointer
	if f.cfg.DeviceID != "" && f.cfg.DeviceID != "default" {
		devices, err := f.ctx.Devices(malgo.Capture)
		if err != nil {
			f.mu.Unlock()
			f.running.Store(false)
			return fmt.Errorf("enumerate devices: %w", err)
		}
		for _, d := range devices {
			if d.Name() == f.cfg.DeviceID {
				deviceID = d.ID.Pointer()
				break
			}
		}
	}
	f.mu.Unlock()

	n := int(f.cfg.Channels)
	for i := 0; i < n; i++ {
		f.scratch[i] = make([]byte, 0, f.cfg.PeriodFrames*bytesPerSample)
	}
	f.startedAt = time.Now()

	deviceConfig := malgo.DeviceConfig{
		DeviceType:         malgo.Capture,
		SampleRate:         f.cfg.SampleRate,
		PeriodSizeInFrames: f.cfg.PeriodFrames,
		Capture: malgo.SubConfig{
			Format:   malgo.FormatS16,
			Channels: f.cfg.Channels,
		},
	}
	if deviceID != nil {
		deviceConfig.Capture.DeviceID = deviceID
	}

	callbacks := malgo.DeviceCallbacks{
		Data: f.onData,
	}

	device, err := malgo.InitDevice(audioCtx, deviceConfig, callbacks)
	if err != nil {
		f.running.Store(false)
		return fmt.Errorf("init device: %w", err)
	}

	f.mu.Lock()
	f.device = device
	f.mu.Unlock()

	if err := device.Start(); err != nil {
		f.mu.Lock()
		f.device.Uninit()
		f.device = nil
		f.mu.Unlock()
		f.running.Store(false)
		return fmt.Errorf("start device: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = f.Stop()
	}()

	return nil
}

// onData runs on the realtime audio thread. It de-interleaves S16 PCM
// into per-channel byte runs and hands each to its inbox without
// blocking.
func (f *CaptureFanout) onData(_ []byte, input []byte, frameCount uint32) {
	if f.closed.Load() || len(input) == 0 {
		return
	}
	n := int(f.cfg.Channels)
	if n == 0 {
		return
	}
	for ch := 0; ch < n; ch++ {
		f.scratch[ch] = f.scratch[ch][:0]
	}
	stride := n * bytesPerSample
	for fr := 0; fr < int(frameCount); fr++ {
		base := fr * stride
		if base+stride > len(input) {
			break
		}
		for ch := 0; ch < n; ch++ {
			off := base + ch*bytesPerSample
			f.scratch[ch] = append(f.scratch[ch], input[off], input[off+1])
		}
	}
	for ch := 0; ch < n; ch++ {
		if len(f.scratch[ch]) == 0 {
			continue
		}
		if _, err := f.inboxes[ch].TryWrite(f.scratch[ch]); err != nil {
			f.dropped[ch].Add(int64(len(f.scratch[ch]) / bytesPerSample))
		}
	}
}

// Drain reads up to maxSamples samples currently queued for channel ch
// and returns them as a timestamped Frame. It is called from the
// channel's own worker goroutine, never from the audio callback.
func (f *CaptureFanout) Drain(ch ChannelID, maxSamples int) (Frame, bool) {
	idx := int(ch)
	if idx < 0 || idx >= len(f.inboxes) {
		return Frame{}, false
	}
	buf := make([]byte, maxSamples*bytesPerSample)
	nRead, err := f.inboxes[idx].TryRead(buf)
	if err != nil || nRead == 0 {
		return Frame{}, false
	}
	buf = buf[:nRead]
	samples := make([]Sample, nRead/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
	}
	startSample := f.sampleN[idx].Add(int64(len(samples))) - int64(len(samples))
	capturedAt := f.startedAt.UnixNano() + startSample*int64(1e9)/int64(f.cfg.SampleRate)
	return Frame{Channel: ch, Samples: samples, CapturedAt: capturedAt}, true
}

// DroppedSamples returns the cumulative count of samples discarded due
// to a full inbox on channel ch.
func (f *CaptureFanout) DroppedSamples(ch ChannelID) int64 {
	idx := int(ch)
	if idx < 0 || idx >= len(f.dropped) {
		return 0
	}
	return f.dropped[idx].Load()
}

// Stop halts the capture device without releasing the context.
func (f *CaptureFanout) Stop() error {
	if !f.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.device != nil {
		_ = f.device.Stop()
		f.device.Uninit()
		f.device = nil
	}
	return nil
}

// Close releases the audio context. Safe to call after Stop.
func (f *CaptureFanout) Close() error {
	f.closed.Store(true)
	_ = f.Stop()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ctx != nil {
		if err := f.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		f.ctx.Free()
		f.ctx = nil
	}
	return nil
}
