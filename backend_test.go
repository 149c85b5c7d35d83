package webcodecs

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	f := &fakeCodec{}
	r := f.registry()

	backend, err := r.NewDecoder(AudioDecoderConfig{Codec: "FAKE", SampleRate: 8000, NumberOfChannels: 1})
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	_, err = r.NewDecoder(AudioDecoderConfig{Codec: "speex", SampleRate: 8000, NumberOfChannels: 1})
	require.ErrorIs(t, err, ErrCodecNotSupported)

	_, err = r.NewEncoder(AudioEncoderConfig{Codec: "fake", Provider: ProviderFFmpeg, SampleRate: 8000, NumberOfChannels: 1})
	require.ErrorIs(t, err, ErrProviderNotFound)

	require.Equal(t, []string{"fake"}, r.DecoderCodecs())
	require.Equal(t, []string{"fake"}, r.EncoderCodecs())
	require.Equal(t, []Provider{ProviderGo}, r.DecoderProviders("fake"))
	require.Empty(t, r.EncoderProviders("speex"))
}

func TestRegistry_DefaultProvider(t *testing.T) {
	r := NewRegistry()
	factory := func(AudioDecoderConfig) (AudioDecoderBackend, error) {
		return newPCMDecoder(SampleFormatS16, 8000, 1), nil
	}

	// Permissive beats copyleft, pure Go beats native.
	r.RegisterDecoder("pcm16", ProviderFFmpeg, factory)
	require.Equal(t, ProviderFFmpeg, r.decoderDefaults["pcm-s16"])
	r.RegisterDecoder("pcm16", ProviderLibopus, factory)
	require.Equal(t, ProviderLibopus, r.decoderDefaults["pcm-s16"])
	r.RegisterDecoder("pcm-s16", ProviderGo, factory)
	require.Equal(t, ProviderGo, r.decoderDefaults["pcm-s16"])

	r.SetDefaultDecoderProvider("PCM16", ProviderFFmpeg)
	require.Equal(t, ProviderFFmpeg, r.decoderDefaults["pcm-s16"])
}

func TestDefaultRegistry_PureGoCodecs(t *testing.T) {
	decoders := DefaultRegistry().DecoderCodecs()
	encoders := DefaultRegistry().EncoderCodecs()
	for _, codec := range []string{"pcm-u8", "pcm-s16", "pcm-s32", "pcm-f32", "ulaw", "alaw"} {
		require.Contains(t, decoders, codec)
		require.Contains(t, encoders, codec)
		require.Contains(t, DefaultRegistry().DecoderProviders(codec), ProviderGo)
	}
}

func TestPCMDecoder(t *testing.T) {
	d := newPCMDecoder(SampleFormatS16, 8000, 2)

	require.Error(t, d.Submit(&EncodedAudioChunk{Data: make([]byte, 6)}))
	require.NoError(t, d.Submit(&EncodedAudioChunk{Data: nil}))
	_, err := d.Receive()
	require.ErrorIs(t, err, ErrNoMoreUnits)

	payload := s16Bytes([]int16{1, 2, 3, 4})
	require.NoError(t, d.Submit(&EncodedAudioChunk{Timestamp: 9, Data: payload}))
	unit, err := d.Receive()
	require.NoError(t, err)
	require.Equal(t, SampleFormatS16, unit.Format)
	require.Equal(t, 2, unit.NumberOfFrames)
	require.Equal(t, int64(9), unit.Timestamp)
	require.Equal(t, payload, unit.Data)

	payload[0] = 0xff
	require.NotEqual(t, payload[0], unit.Data[0], "decoded data must not alias the chunk")
	require.NoError(t, d.SignalEndOfStream())
	require.NoError(t, d.Close())
}

func TestPCMEncoder_Formats(t *testing.T) {
	src := s16Mono(0, 16384, -16384)

	tests := []struct {
		format SampleFormat
		want   []byte
	}{
		{SampleFormatU8, []byte{192, 64}},
		{SampleFormatS16, s16Bytes([]int16{16384, -16384})},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			e := &pcmEncoder{format: tt.format, sampleRate: 8000, channels: 1}
			require.NoError(t, e.Submit(src))
			chunk, err := e.Receive()
			require.NoError(t, err)
			require.Equal(t, tt.want, chunk.Data)
			require.True(t, chunk.IsKey())
		})
	}

	e := &pcmEncoder{format: SampleFormatS16, sampleRate: 8000, channels: 2}
	require.Error(t, e.Submit(src))
}

func TestG711_RoundTrip(t *testing.T) {
	for name, law := range map[string]g711Law{"ulaw": ulawLaw, "alaw": alawLaw} {
		t.Run(name, func(t *testing.T) {
			enc := &g711Encoder{law: law, sampleRate: 8000, channels: 1}
			samples := []int16{0, 1000, -1000, 8000, -8000, 30000, -30000}
			require.NoError(t, enc.Submit(s16Mono(20, samples...)))
			chunk, err := enc.Receive()
			require.NoError(t, err)
			require.Len(t, chunk.Data, len(samples))
			require.Equal(t, int64(20), chunk.Timestamp)

			dec := &g711Decoder{law: law, sampleRate: 8000, channels: 1}
			require.NoError(t, dec.Submit(chunk))
			unit, err := dec.Receive()
			require.NoError(t, err)
			require.Equal(t, SampleFormatS16, unit.Format)
			require.Equal(t, len(samples), unit.NumberOfFrames)

			// Companding is lossy; each sample lands within a few percent.
			got := s16Samples(unit.Data, len(samples))
			for i, want := range samples {
				require.InDelta(t, float64(want), float64(got[i]), 40+0.04*math.Abs(float64(want)), "sample %d", i)
			}
		})
	}
}

func TestG711Encoder_RequiresS16(t *testing.T) {
	enc := &g711Encoder{law: ulawLaw, sampleRate: 8000, channels: 1}
	require.Error(t, enc.Submit(NewAudioData(SampleFormatF32, 8000, 1, 1, 0, make([]byte, 4))))

	dec := &g711Decoder{law: ulawLaw, sampleRate: 8000, channels: 2}
	require.Error(t, dec.Submit(&EncodedAudioChunk{Data: []byte{1, 2, 3}}))
}
