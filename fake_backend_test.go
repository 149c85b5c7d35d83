package webcodecs

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

// fakeCodec is a scriptable backend. Each decoded chunk yields one mono s16
// frame; each encoded input yields one chunk carrying the first sample byte.
type fakeCodec struct {
	hold        bool          // Buffer output until end of stream
	failSubmit  bool          // Submit returns an error
	panicSubmit bool          // Submit panics
	factoryGate chan struct{} // Factories wait on it when non-nil

	created atomic.Int32
	closed  atomic.Int32
}

func (f *fakeCodec) registry() *Registry {
	r := NewRegistry()
	r.RegisterDecoder("fake", ProviderGo, func(AudioDecoderConfig) (AudioDecoderBackend, error) {
		f.waitFactory()
		f.created.Add(1)
		return &fakeDecoder{codec: f}, nil
	})
	r.RegisterEncoder("fake", ProviderGo, func(AudioEncoderConfig) (AudioEncoderBackend, error) {
		f.waitFactory()
		f.created.Add(1)
		return &fakeEncoder{codec: f}, nil
	})
	return r
}

func (f *fakeCodec) waitFactory() {
	if f.factoryGate != nil {
		<-f.factoryGate
	}
}

func (f *fakeCodec) submit() error {
	if f.panicSubmit {
		panic("backend exploded")
	}
	if f.failSubmit {
		return errors.New("corrupt input")
	}
	return nil
}

type fakeDecoder struct {
	codec    *fakeCodec
	held     []*AudioData
	pending  []*AudioData
	isClosed bool
}

func (d *fakeDecoder) Submit(chunk *EncodedAudioChunk) error {
	if err := d.codec.submit(); err != nil {
		return err
	}
	unit := NewAudioData(SampleFormatS16, 8000, 1, 1, chunk.Timestamp, []byte{0, 0x40})
	if d.codec.hold {
		d.held = append(d.held, unit)
		return nil
	}
	d.pending = append(d.pending, unit)
	return nil
}

func (d *fakeDecoder) Receive() (*AudioData, error) {
	if len(d.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	unit := d.pending[0]
	d.pending = d.pending[1:]
	return unit, nil
}

func (d *fakeDecoder) SignalEndOfStream() error {
	d.pending = append(d.pending, d.held...)
	d.held = nil
	return nil
}

func (d *fakeDecoder) Close() error {
	if !d.isClosed {
		d.isClosed = true
		d.codec.closed.Add(1)
	}
	return nil
}

type fakeEncoder struct {
	codec   *fakeCodec
	held    []*EncodedAudioChunk
	pending []*EncodedAudioChunk
}

func (e *fakeEncoder) Submit(data *AudioData) error {
	if err := e.codec.submit(); err != nil {
		return err
	}
	if data.Format != SampleFormatS16 {
		return errors.New("expected s16 input")
	}
	chunk := &EncodedAudioChunk{Type: ChunkTypeKey, Timestamp: data.Timestamp, Data: []byte{data.Data[0]}}
	if e.codec.hold {
		e.held = append(e.held, chunk)
		return nil
	}
	e.pending = append(e.pending, chunk)
	return nil
}

func (e *fakeEncoder) Receive() (*EncodedAudioChunk, error) {
	if len(e.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	chunk := e.pending[0]
	e.pending = e.pending[1:]
	return chunk, nil
}

func (e *fakeEncoder) SignalEndOfStream() error {
	e.pending = append(e.pending, e.held...)
	e.held = nil
	return nil
}

func (e *fakeEncoder) Close() error {
	e.codec.closed.Add(1)
	return nil
}

// recorder collects callback invocations. gate, when set, makes the output
// callback wait for it before recording.
type recorder[T any] struct {
	mu      sync.Mutex
	outputs []T
	errs    []*CodecError

	gate    chan struct{}
	entered chan struct{}
	onOut   func(T)
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{entered: make(chan struct{}, 64)}
}

func (r *recorder[T]) output(v T) {
	select {
	case r.entered <- struct{}{}:
	default:
	}
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.outputs = append(r.outputs, v)
	r.mu.Unlock()
	if r.onOut != nil {
		r.onOut(v)
	}
}

func (r *recorder[T]) onError(err *CodecError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder[T]) outputCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outputs)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.outputs...)
}

func (r *recorder[T]) errorKinds() []ErrorKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]ErrorKind, len(r.errs))
	for i, err := range r.errs {
		kinds[i] = err.Kind
	}
	return kinds
}

// waitEntered blocks until the output callback has been entered once.
func (r *recorder[T]) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-r.entered:
	case <-time.After(waitFor):
		t.Fatal("output callback was not called")
	}
}

func (r *recorder[T]) requireErrors(t *testing.T, kinds ...ErrorKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.errorKinds()) >= len(kinds)
	}, waitFor, tick)
	require.Equal(t, kinds, r.errorKinds())
}
