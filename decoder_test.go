package webcodecs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thesyncim/webcodecs/workpool"
)

var fakeDecoderConfig = AudioDecoderConfig{Codec: "fake", SampleRate: 8000, NumberOfChannels: 1}

func newTestDecoder(t *testing.T, rec *recorder[*AudioData], options ...Option) *AudioDecoder {
	t.Helper()
	d, err := NewAudioDecoder(rec.output, rec.onError, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func keyChunk(ts int64) *EncodedAudioChunk {
	return &EncodedAudioChunk{Type: ChunkTypeKey, Timestamp: ts, Data: []byte{0, 0, 0, 0}}
}

func deltaChunk(ts int64) *EncodedAudioChunk {
	return &EncodedAudioChunk{Type: ChunkTypeDelta, Timestamp: ts, Data: []byte{0, 0, 0, 0}}
}

func timestamps(units []*AudioData) []int64 {
	ts := make([]int64, len(units))
	for i, u := range units {
		ts[i] = u.Timestamp
	}
	return ts
}

func TestNewAudioDecoder_RequiresCallbacks(t *testing.T) {
	_, err := NewAudioDecoder(nil, func(*CodecError) {})
	require.Error(t, err)
	_, err = NewAudioDecoder(func(*AudioData) {}, nil)
	require.Error(t, err)
}

func TestAudioDecoder_PCM16Scenario(t *testing.T) {
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec)

	require.NoError(t, d.Configure(AudioDecoderConfig{Codec: "pcm16", SampleRate: 44100, NumberOfChannels: 2}))
	require.Equal(t, StateConfigured, d.State())

	// Two stereo frames each.
	require.NoError(t, d.Decode(&EncodedAudioChunk{Type: ChunkTypeKey, Timestamp: 0, Data: s16Bytes([]int16{16384, -16384, 0, 0})}))
	require.NoError(t, d.Decode(&EncodedAudioChunk{Type: ChunkTypeDelta, Timestamp: 45, Data: s16Bytes([]int16{0, 0, 8192, 8192})}))
	require.NoError(t, d.Flush(context.Background()))

	out := rec.snapshot()
	require.Len(t, out, 2)
	require.Equal(t, []int64{0, 45}, timestamps(out))
	for _, unit := range out {
		require.Equal(t, CanonicalFormat, unit.Format)
		require.Equal(t, 2, unit.NumberOfChannels)
		require.Equal(t, 2, unit.NumberOfFrames)
		require.Equal(t, float64(44100), unit.SampleRate)
	}
	require.InDelta(t, 0.5, f32Planar(t, out[0], 0, 0), 1e-6)
	require.InDelta(t, -0.5, f32Planar(t, out[0], 1, 0), 1e-6)
	require.InDelta(t, 0.25, f32Planar(t, out[1], 1, 1), 1e-6)
	require.Empty(t, rec.errorKinds())
	require.Zero(t, d.DecodeQueueSize())
}

func TestAudioDecoder_PreservesSubmissionOrder(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()), WithWorkers(4))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	want := make([]int64, 0, 200)
	for i := range 200 {
		ts := int64(i) * 1000
		chunk := deltaChunk(ts)
		if i == 0 {
			chunk = keyChunk(ts)
		}
		require.NoError(t, d.Decode(chunk))
		want = append(want, ts)
	}
	require.NoError(t, d.Flush(context.Background()))

	require.Equal(t, want, timestamps(rec.snapshot()))
	require.Empty(t, rec.errorKinds())
}

func TestAudioDecoder_KeyChunkGate(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))

	err := d.Decode(deltaChunk(0))
	require.ErrorIs(t, err, DecodeError)
	require.Equal(t, []ErrorKind{DecodeError}, rec.errorKinds())
	require.Zero(t, d.DecodeQueueSize())

	require.NoError(t, d.Decode(keyChunk(10)))
	require.NoError(t, d.Decode(deltaChunk(20)))
	require.NoError(t, d.Flush(context.Background()))
	require.Equal(t, []int64{10, 20}, timestamps(rec.snapshot()))

	// Flush re-arms the gate.
	require.ErrorIs(t, d.Decode(deltaChunk(30)), DecodeError)
	require.Equal(t, []ErrorKind{DecodeError, DecodeError}, rec.errorKinds())

	// So does Configure.
	require.NoError(t, d.Decode(keyChunk(40)))
	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.ErrorIs(t, d.Decode(deltaChunk(50)), DecodeError)
}

func TestAudioDecoder_UnconfiguredRejectsWork(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.ErrorIs(t, d.Decode(keyChunk(0)), InvalidStateError)
	require.Equal(t, []ErrorKind{InvalidStateError}, rec.errorKinds())
	require.Zero(t, d.DecodeQueueSize())

	require.ErrorIs(t, d.Flush(context.Background()), InvalidStateError)
	require.Equal(t, []ErrorKind{InvalidStateError, InvalidStateError}, rec.errorKinds())

	require.ErrorIs(t, d.Decode(nil), TypeError)
	require.Zero(t, f.created.Load())
	require.Zero(t, d.core.queue.len())
}

func TestAudioDecoder_ConfigureTypeError(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	cfg := AudioDecoderConfig{Codec: "", SampleRate: 44100, NumberOfChannels: 2}
	require.False(t, d.IsConfigSupported(cfg))
	require.ErrorIs(t, d.Configure(cfg), TypeError)
	require.Equal(t, StateUnconfigured, d.State())
	require.Empty(t, rec.errorKinds())
	require.Zero(t, d.core.queue.len())

	require.True(t, d.IsConfigSupported(fakeDecoderConfig))
	require.NoError(t, d.Configure(fakeDecoderConfig))
}

func TestAudioDecoder_NotSupported(t *testing.T) {
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec)

	require.NoError(t, d.Configure(AudioDecoderConfig{Codec: "speex", SampleRate: 16000, NumberOfChannels: 1}))
	rec.requireErrors(t, NotSupportedError)

	// Work against the missing backend fails on the error callback.
	require.NoError(t, d.Decode(keyChunk(0)))
	rec.requireErrors(t, NotSupportedError, InvalidStateError)

	// A flush without a backend only fails its waiter.
	require.ErrorIs(t, d.Flush(context.Background()), InvalidStateError)
	require.Equal(t, []ErrorKind{NotSupportedError, InvalidStateError}, rec.errorKinds())
	require.Zero(t, d.DecodeQueueSize())
}

func TestAudioDecoder_SubmitFailure(t *testing.T) {
	f := &fakeCodec{failSubmit: true}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Flush(context.Background()))

	require.Equal(t, []ErrorKind{DecodeError}, rec.errorKinds())
	require.Zero(t, rec.outputCount())
}

func TestAudioDecoder_PanicBecomesInternalError(t *testing.T) {
	f := &fakeCodec{panicSubmit: true}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Flush(context.Background()))
	require.Equal(t, []ErrorKind{InternalError}, rec.errorKinds())

	// The decoder keeps working.
	f.panicSubmit = false
	require.NoError(t, d.Decode(keyChunk(1)))
	require.NoError(t, d.Flush(context.Background()))
	require.Equal(t, []int64{1}, timestamps(rec.snapshot()))
}

func TestAudioDecoder_FlushDrainsBufferedOutput(t *testing.T) {
	f := &fakeCodec{hold: true}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(100)))
	require.NoError(t, d.Decode(deltaChunk(200)))
	require.NoError(t, d.Decode(deltaChunk(300)))
	require.NoError(t, d.Flush(context.Background()))

	// Units released at end of stream carry the last submitted timestamp.
	require.Equal(t, []int64{300, 300, 300}, timestamps(rec.snapshot()))
}

func TestAudioDecoder_ResetAbortsPendingWork(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	rec.gate = make(chan struct{})
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	rec.waitEntered(t)

	require.NoError(t, d.Decode(deltaChunk(1)))
	require.NoError(t, d.Decode(deltaChunk(2)))
	require.Equal(t, 3, d.DecodeQueueSize())

	flushed := make(chan error, 1)
	go func() { flushed <- d.Flush(context.Background()) }()

	require.Eventually(t, func() bool {
		d.core.mu.Lock()
		defer d.core.mu.Unlock()
		return d.core.queue.len() == 0 && len(d.core.flushes) == 1
	}, waitFor, tick)

	require.NoError(t, d.Reset())
	require.Equal(t, StateUnconfigured, d.State())
	require.Zero(t, d.DecodeQueueSize())

	select {
	case err := <-flushed:
		require.ErrorIs(t, err, AbortError)
	case <-time.After(waitFor):
		t.Fatal("flush was not aborted")
	}

	close(rec.gate)
	require.Eventually(t, func() bool { return f.closed.Load() == 1 }, waitFor, tick)

	// Only the unit already being delivered gets through.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.outputCount())
	require.Empty(t, rec.errorKinds())
	require.Zero(t, d.DecodeQueueSize())

	// The decoder can be configured again.
	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(10)))
	require.NoError(t, d.Flush(context.Background()))
	require.Equal(t, int64(10), rec.snapshot()[1].Timestamp)
}

func TestAudioDecoder_ResetDiscardsStaleConfigure(t *testing.T) {
	f := &fakeCodec{factoryGate: make(chan struct{})}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Reset())
	close(f.factoryGate)

	require.Eventually(t, func() bool { return f.closed.Load() == 1 }, waitFor, tick)
	require.Equal(t, int32(1), f.created.Load())
	require.Empty(t, rec.errorKinds())
}

func TestAudioDecoder_ReconfigureReplacesBackend(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(1)))
	require.NoError(t, d.Flush(context.Background()))

	require.Equal(t, int32(2), f.created.Load())
	require.Equal(t, int32(1), f.closed.Load())
	require.Equal(t, []int64{0, 1}, timestamps(rec.snapshot()))
}

func TestAudioDecoder_Close(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Flush(context.Background()))

	require.NotPanics(t, func() {
		require.NoError(t, d.Close())
		require.NoError(t, d.Close())
	})
	require.Equal(t, StateClosed, d.State())
	require.Equal(t, int32(1), f.closed.Load())

	require.ErrorIs(t, d.Configure(fakeDecoderConfig), InvalidStateError)
	require.ErrorIs(t, d.Decode(keyChunk(1)), InvalidStateError)
	require.Equal(t, []ErrorKind{InvalidStateError}, rec.errorKinds())

	require.ErrorIs(t, d.Reset(), InvalidStateError)
	require.Equal(t, []ErrorKind{InvalidStateError, InvalidStateError}, rec.errorKinds())
	require.Equal(t, StateClosed, d.State())
}

func TestAudioDecoder_QueueSizeTracksCompletion(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	rec.gate = make(chan struct{})
	var dequeues atomic.Int32
	d := newTestDecoder(t, rec,
		WithRegistry(f.registry()),
		WithDequeueCallback(func() { dequeues.Add(1) }),
	)

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Decode(deltaChunk(1)))
	require.NoError(t, d.Decode(deltaChunk(2)))
	rec.waitEntered(t)
	require.Equal(t, 3, d.DecodeQueueSize())
	require.Zero(t, dequeues.Load())

	close(rec.gate)
	require.NoError(t, d.Flush(context.Background()))
	require.Zero(t, d.DecodeQueueSize())
	require.Equal(t, int32(3), dequeues.Load())
}

func TestAudioDecoder_MaxInFlight(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	rec.gate = make(chan struct{})
	d := newTestDecoder(t, rec, WithRegistry(f.registry()), WithMaxInFlight(1))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	rec.waitEntered(t)
	require.NoError(t, d.Decode(deltaChunk(1)))
	require.NoError(t, d.Decode(deltaChunk(2)))

	d.core.mu.Lock()
	held, inFlight := d.core.queue.len(), d.core.inFlight
	d.core.mu.Unlock()
	require.Equal(t, 2, held)
	require.Equal(t, 1, inFlight)

	close(rec.gate)
	require.NoError(t, d.Flush(context.Background()))
	require.Equal(t, []int64{0, 1, 2}, timestamps(rec.snapshot()))
}

func TestAudioDecoder_FlushHonorsContext(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	rec.gate = make(chan struct{})
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	rec.waitEntered(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Flush(ctx), context.DeadlineExceeded)

	close(rec.gate)
	require.NoError(t, d.Flush(context.Background()))
}

func TestAudioDecoder_CallbacksMayReenter(t *testing.T) {
	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()))
	rec.onOut = func(*AudioData) {
		_ = d.Close()
	}

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.NoError(t, d.Decode(deltaChunk(1)))

	require.Eventually(t, func() bool { return d.State() == StateClosed }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.outputCount())
}

func TestAudioDecoder_SharedWorkPool(t *testing.T) {
	pool := workpool.New(2)
	defer pool.Close()

	f := &fakeCodec{}
	recA, recB := newRecorder[*AudioData](), newRecorder[*AudioData]()
	a := newTestDecoder(t, recA, WithRegistry(f.registry()), WithWorkPool(pool))
	b := newTestDecoder(t, recB, WithRegistry(f.registry()), WithWorkPool(pool))

	for _, d := range []*AudioDecoder{a, b} {
		require.NoError(t, d.Configure(fakeDecoderConfig))
		for i := range 20 {
			require.NoError(t, d.Decode(keyChunk(int64(i))))
		}
	}
	require.NoError(t, a.Flush(context.Background()))
	require.NoError(t, b.Flush(context.Background()))
	require.Len(t, recA.snapshot(), 20)
	require.Len(t, recB.snapshot(), 20)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	require.NoError(t, pool.Submit(func() {}), "closing a decoder must not close a shared pool")
}

func TestAudioDecoder_PoolClosedUnderPendingWork(t *testing.T) {
	pool := workpool.New(1)
	f := &fakeCodec{factoryGate: make(chan struct{})}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()), WithWorkPool(pool))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	require.NoError(t, d.Decode(keyChunk(0)))
	require.Equal(t, 1, d.DecodeQueueSize())

	closed := make(chan error, 1)
	go func() { closed <- pool.Close() }()
	require.Eventually(t, func() bool {
		return errors.Is(pool.Submit(func() {}), workpool.ErrClosed)
	}, waitFor, tick)
	close(f.factoryGate)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	err := d.Flush(ctx)
	require.ErrorIs(t, err, InternalError)
	require.ErrorIs(t, err, workpool.ErrClosed)

	rec.requireErrors(t, InternalError, InternalError)
	require.Equal(t, 0, d.DecodeQueueSize())
	require.Zero(t, rec.outputCount())
	require.NoError(t, <-closed)
}
