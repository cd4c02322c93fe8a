package stream

import (
	"image"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gyrodesk/internal/capture"
	"gyrodesk/internal/status"
)

type sentFrame struct {
	seq  uint32
	size int
}

type fakeTransport struct {
	mu       sync.Mutex
	target   Target
	frames   []sentFrame
	ready    atomic.Bool
	openErr  error
	closed   atomic.Int32
	sendErrs int
}

func newFakeTransport() *fakeTransport {
	f := &fakeTransport{}
	f.ready.Store(true)
	return f
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Open(target Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	return f.openErr
}

func (f *fakeTransport) Ready() bool { return f.ready.Load() }

func (f *fakeTransport) Send(seq uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErrs > 0 {
		f.sendErrs--
		return errors.New("send failed")
	}
	f.frames = append(f.frames, sentFrame{seq: seq, size: len(payload)})
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed.Add(1)
	return nil
}

func (f *fakeTransport) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.frames...)
}

type flakySource struct {
	calls atomic.Int32
	inner capture.FrameSource
}

// Capture fails on every odd call
func (f *flakySource) Capture() (capture.RawImage, error) {
	if f.calls.Add(1)%2 == 1 {
		return capture.RawImage{}, errors.New("display busy")
	}
	return f.inner.Capture()
}

type sizeEncoder struct{}

func (sizeEncoder) Encode(img image.Image, quality float32) ([]byte, error) {
	b := img.Bounds()
	return make([]byte, b.Dx()), nil
}

type slowEncoder struct{ delay time.Duration }

func (e slowEncoder) Encode(img image.Image, quality float32) ([]byte, error) {
	time.Sleep(e.delay)
	return []byte{0xff, 0xd8}, nil
}

type fixedLocator struct{ calls atomic.Int32 }

func (l *fixedLocator) Location() (int, int, error) {
	l.calls.Add(1)
	return 10, 10, nil
}

func newTestEngine(t *testing.T, tr *fakeTransport, src capture.FrameSource) (*Engine, *status.Tracker) {
	t.Helper()
	obs := status.NewTracker()
	if src == nil {
		src = capture.NewPatternSource(320, 200)
	}
	e := NewEngine("fake", Config{
		Source:       src,
		Encoder:      sizeEncoder{},
		NewTransport: func() Transport { return tr },
		Observer:     obs,
	})
	t.Cleanup(e.Close)
	return e, obs
}

func TestOptionsPeriod(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{12, 83 * time.Millisecond},
		{30, 33 * time.Millisecond},
		{1000, time.Millisecond},
		{5000, time.Millisecond},
		{0, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Options{FPS: tt.fps}.Period(), "fps=%d", tt.fps)
	}
}

func TestEngineStreamsFramesInSequence(t *testing.T) {
	tr := newFakeTransport()
	e, obs := newTestEngine(t, tr, nil)

	started, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 200, MaxWidth: 160, Quality: 0.5})
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool { return len(tr.sent()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, e.Stop())

	frames := tr.sent()
	for i, f := range frames {
		assert.Equal(t, uint32(i), f.seq)
		assert.Equal(t, 160, f.size, "frame should be downscaled to maxWidth")
	}
	assert.Equal(t, int32(1), tr.closed.Load())
	assert.Contains(t, obs.Logs()[0], "fake stream started: 127.0.0.1:6000")
}

func TestEngineStartWhileActiveIsNoop(t *testing.T) {
	tr := newFakeTransport()
	e, _ := newTestEngine(t, tr, nil)

	_, err := e.Start(Target{Host: "10.0.0.5", Port: 6000}, Options{FPS: 100})
	require.NoError(t, err)

	started, err := e.Start(Target{Host: "10.0.0.9", Port: 7000}, Options{FPS: 1})
	require.NoError(t, err)
	assert.False(t, started)

	snap := e.Snapshot()
	assert.True(t, snap.Active)
	assert.Equal(t, "10.0.0.5:6000", snap.Target)
	assert.Equal(t, 100, snap.FPS)
}

func TestEngineStopIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	e, _ := newTestEngine(t, tr, nil)

	assert.False(t, e.Stop())

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 1}, Options{FPS: 50})
	require.NoError(t, err)
	assert.True(t, e.Stop())
	assert.False(t, e.Stop())
	assert.False(t, e.Active())
	assert.Equal(t, int32(1), tr.closed.Load())
}

func TestEngineRestartAfterStop(t *testing.T) {
	tr := newFakeTransport()
	e, _ := newTestEngine(t, tr, nil)

	for i := 0; i < 3; i++ {
		started, err := e.Start(Target{Host: "127.0.0.1", Port: 6000 + i}, Options{FPS: 100})
		require.NoError(t, err)
		require.True(t, started)
		require.True(t, e.Stop())
	}
	assert.Equal(t, int32(3), tr.closed.Load())
}

func TestEngineSkipsFailedIterations(t *testing.T) {
	tr := newFakeTransport()
	src := &flakySource{inner: capture.NewPatternSource(64, 64)}
	e, obs := newTestEngine(t, tr, src)

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 500})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.sent()) >= 3 }, 2*time.Second, 2*time.Millisecond)
	e.Stop()

	// capture failures do not consume sequence numbers
	frames := tr.sent()
	for i, f := range frames {
		assert.Equal(t, uint32(i), f.seq)
	}
	assert.GreaterOrEqual(t, src.calls.Load(), int32(6))

	var failures int
	for _, l := range obs.Logs() {
		if strings.Contains(l, "display busy") {
			failures++
		}
	}
	assert.Greater(t, failures, 0)
}

func TestEngineSendErrorKeepsLooping(t *testing.T) {
	tr := newFakeTransport()
	tr.sendErrs = 2
	e, _ := newTestEngine(t, tr, nil)

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 500})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.sent()) >= 1 }, 2*time.Second, 2*time.Millisecond)
	e.Stop()

	// the two failed sends still used sequence numbers 0 and 1
	assert.Equal(t, uint32(2), tr.sent()[0].seq)
}

func TestEngineWaitsForViewer(t *testing.T) {
	tr := newFakeTransport()
	tr.ready.Store(false)
	src := &flakySource{inner: capture.NewPatternSource(64, 64)}
	e, _ := newTestEngine(t, tr, src)

	_, err := e.Start(Target{Port: 9000}, Options{FPS: 500})
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, src.calls.Load(), "no capture without a viewer")

	tr.ready.Store(true)
	require.Eventually(t, func() bool { return len(tr.sent()) >= 1 }, 2*time.Second, 2*time.Millisecond)
}

func TestEngineSequenceWraps(t *testing.T) {
	tr := newFakeTransport()
	e, _ := newTestEngine(t, tr, nil)
	e.seq.Store(math.MaxUint32)

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 500})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.sent()) >= 2 }, 2*time.Second, 2*time.Millisecond)
	e.Stop()

	frames := tr.sent()
	assert.Equal(t, uint32(math.MaxUint32), frames[0].seq)
	assert.Equal(t, uint32(0), frames[1].seq)
}

func TestEngineOverlaysPointer(t *testing.T) {
	tr := newFakeTransport()
	loc := &fixedLocator{}
	e := NewEngine("fake", Config{
		Source:       capture.NewPatternSource(64, 64),
		Encoder:      sizeEncoder{},
		Locator:      loc,
		NewTransport: func() Transport { return tr },
	})
	defer e.Close()

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 500})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(tr.sent()) >= 1 }, 2*time.Second, 2*time.Millisecond)
	assert.Greater(t, loc.calls.Load(), int32(0))
}

func TestEngineOpenErrorLeavesIdle(t *testing.T) {
	tr := newFakeTransport()
	tr.openErr = errors.New("address in use")
	e, _ := newTestEngine(t, tr, nil)

	started, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 10})
	assert.Error(t, err)
	assert.False(t, started)
	assert.False(t, e.Active())
}

func TestEngineClosedRejectsStart(t *testing.T) {
	tr := newFakeTransport()
	e, _ := newTestEngine(t, tr, nil)
	e.Close()

	_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 10})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

// The period runs from iteration start to iteration start: encode time is
// subtracted from the wait, and an overrunning iteration is followed
// immediately by the next one.
func TestEnginePacingSubtractsWorkTime(t *testing.T) {
	tests := []struct {
		name     string
		encode   time.Duration
		min, max int
	}{
		// 100ms period with 60ms of work: ~10 frames/s, not the ~6 of period+work
		{"work shorter than period", 60 * time.Millisecond, 8, 12},
		// 150ms of work overruns the period: back-to-back, ~6 frames/s, not the 4 of period+work
		{"work longer than period", 150 * time.Millisecond, 5, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport()
			e := NewEngine("fake", Config{
				Source:       capture.NewPatternSource(64, 48),
				Encoder:      slowEncoder{delay: tt.encode},
				NewTransport: func() Transport { return tr },
				Observer:     status.Nop{},
			})
			t.Cleanup(e.Close)

			_, err := e.Start(Target{Host: "127.0.0.1", Port: 6000}, Options{FPS: 10, MaxWidth: 64, Quality: 0.5})
			require.NoError(t, err)
			time.Sleep(time.Second)
			n := len(tr.sent())
			e.Stop()

			assert.GreaterOrEqual(t, n, tt.min)
			assert.LessOrEqual(t, n, tt.max)
		})
	}
}
