package webcodecs

import (
	"fmt"

	"github.com/zaf/g711"
)

// G.711 companding tables, one for each law.
type g711Law struct {
	decode func([]byte) []byte // law bytes -> s16le
	encode func([]byte) []byte // s16le -> law bytes
}

var (
	ulawLaw = g711Law{decode: g711.DecodeUlaw, encode: g711.EncodeUlaw}
	alawLaw = g711Law{decode: g711.DecodeAlaw, encode: g711.EncodeAlaw}
)

func init() {
	registerG711(DefaultRegistry(), AudioCodecULaw.String(), ulawLaw)
	registerG711(DefaultRegistry(), AudioCodecALaw.String(), alawLaw)
}

func registerG711(r *Registry, codec string, law g711Law) {
	r.RegisterDecoder(codec, ProviderGo, func(cfg AudioDecoderConfig) (AudioDecoderBackend, error) {
		return &g711Decoder{law: law, sampleRate: cfg.SampleRate, channels: cfg.NumberOfChannels}, nil
	})
	r.RegisterEncoder(codec, ProviderGo, func(cfg AudioEncoderConfig) (AudioEncoderBackend, error) {
		return &g711Encoder{law: law, sampleRate: cfg.SampleRate, channels: cfg.NumberOfChannels}, nil
	})
}

// g711Decoder expands one byte per sample into s16 interleaved samples.
type g711Decoder struct {
	law        g711Law
	sampleRate int
	channels   int
	pending    []*AudioData
}

func (d *g711Decoder) Submit(chunk *EncodedAudioChunk) error {
	if len(chunk.Data)%d.channels != 0 {
		return fmt.Errorf("g711: %d bytes is not a whole number of %d-channel frames", len(chunk.Data), d.channels)
	}
	frames := len(chunk.Data) / d.channels
	if frames == 0 {
		return nil
	}
	lpcm := d.law.decode(chunk.Data)
	d.pending = append(d.pending, NewAudioData(SampleFormatS16, float64(d.sampleRate), d.channels, frames, chunk.Timestamp, lpcm))
	return nil
}

func (d *g711Decoder) Receive() (*AudioData, error) {
	if len(d.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	unit := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return unit, nil
}

func (d *g711Decoder) SignalEndOfStream() error { return nil }

func (d *g711Decoder) Close() error {
	d.pending = nil
	return nil
}

type g711Encoder struct {
	law        g711Law
	sampleRate int
	channels   int
	pending    []*EncodedAudioChunk
}

func (e *g711Encoder) Submit(data *AudioData) error {
	if err := checkInputShape(data, e.sampleRate, e.channels); err != nil {
		return fmt.Errorf("g711: %w", err)
	}
	if data.Format != SampleFormatS16 {
		return fmt.Errorf("g711: expected s16 input, got %s", data.Format)
	}
	e.pending = append(e.pending, &EncodedAudioChunk{
		Type:      ChunkTypeKey,
		Timestamp: data.Timestamp,
		Duration:  int64(data.Duration),
		Data:      e.law.encode(data.Data[:data.AllocationSize()]),
	})
	return nil
}

func (e *g711Encoder) Receive() (*EncodedAudioChunk, error) {
	if len(e.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	chunk := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]
	return chunk, nil
}

func (e *g711Encoder) SignalEndOfStream() error { return nil }

func (e *g711Encoder) Close() error {
	e.pending = nil
	return nil
}
