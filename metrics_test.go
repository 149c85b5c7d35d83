package webcodecs

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_DecoderActivity(t *testing.T) {
	registry := prometheus.NewPedanticRegistry()
	m := NewMetrics(registry, "test", "codec")

	f := &fakeCodec{}
	rec := newRecorder[*AudioData]()
	d := newTestDecoder(t, rec, WithRegistry(f.registry()), WithMetrics(m))

	require.NoError(t, d.Configure(fakeDecoderConfig))
	for i := range 5 {
		require.NoError(t, d.Decode(keyChunk(int64(i))))
	}
	require.ErrorIs(t, d.Decode(nil), TypeError)
	require.NoError(t, d.Flush(context.Background()))
	require.NoError(t, d.Reset())
	require.ErrorIs(t, d.Decode(keyChunk(9)), InvalidStateError)

	require.Equal(t, 5.0, testutil.ToFloat64(m.messages.WithLabelValues("decoder", "decode")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("decoder", "configure")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.dispatched.WithLabelValues("decoder", "decode")))
	require.Equal(t, 5.0, testutil.ToFloat64(m.outputs.WithLabelValues("decoder")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.queueSize.WithLabelValues("decoder")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("decoder", "InvalidStateError")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.panics))

	count, err := testutil.GatherAndCount(registry, "test_codec_job_duration_seconds")
	require.NoError(t, err)
	require.Positive(t, count)
}

func TestMetrics_Panics(t *testing.T) {
	m := NewMetrics(nil, "", "")

	f := &fakeCodec{panicSubmit: true}
	rec := newRecorder[*EncodedAudioChunk]()
	e := newTestEncoder(t, rec, WithRegistry(f.registry()), WithMetrics(m))

	require.NoError(t, e.Configure(fakeEncoderConfig))
	require.NoError(t, e.Encode(s16Mono(0, 1)))
	require.NoError(t, e.Flush(context.Background()))

	require.Equal(t, 1.0, testutil.ToFloat64(m.panics))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("encoder", "InternalError")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.messageEnqueued("decoder", messageDecode)
		m.messageDispatched("decoder", messageDecode)
		m.queueSizeChanged("decoder", 1)
		m.outputDelivered("decoder")
		m.errorReported("decoder", DecodeError)
		m.jobFinished("decoder", messageDecode, 0)
		m.panicRecovered()
	})
}
