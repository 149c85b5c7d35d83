package webcodecs

import "fmt"

// Raw PCM "codecs": the chunk payload is the samples themselves, interleaved
// little-endian.
var pcmFormats = map[AudioCodec]SampleFormat{
	AudioCodecPCMU8:  SampleFormatU8,
	AudioCodecPCMS16: SampleFormatS16,
	AudioCodecPCMS32: SampleFormatS32,
	AudioCodecPCMF32: SampleFormatF32,
}

func init() {
	for codec, format := range pcmFormats {
		RegisterPCM(DefaultRegistry(), codec.String(), format)
	}
}

// RegisterPCM registers a pure-Go decoder and encoder that pass samples of
// the given format through unchanged.
func RegisterPCM(r *Registry, codec string, format SampleFormat) {
	r.RegisterDecoder(codec, ProviderGo, func(cfg AudioDecoderConfig) (AudioDecoderBackend, error) {
		return newPCMDecoder(format, cfg.SampleRate, cfg.NumberOfChannels), nil
	})
	r.RegisterEncoder(codec, ProviderGo, func(cfg AudioEncoderConfig) (AudioEncoderBackend, error) {
		return &pcmEncoder{format: format, sampleRate: cfg.SampleRate, channels: cfg.NumberOfChannels}, nil
	})
}

type pcmDecoder struct {
	format     SampleFormat
	sampleRate int
	channels   int
	pending    []*AudioData
}

func newPCMDecoder(format SampleFormat, sampleRate, channels int) *pcmDecoder {
	return &pcmDecoder{format: format, sampleRate: sampleRate, channels: channels}
}

func (d *pcmDecoder) Submit(chunk *EncodedAudioChunk) error {
	frameSize := d.channels * d.format.BytesPerSample()
	if len(chunk.Data)%frameSize != 0 {
		return fmt.Errorf("pcm: %d bytes is not a whole number of %d-byte frames", len(chunk.Data), frameSize)
	}
	frames := len(chunk.Data) / frameSize
	if frames == 0 {
		return nil
	}

	data := make([]byte, len(chunk.Data))
	copy(data, chunk.Data)
	d.pending = append(d.pending, NewAudioData(d.format, float64(d.sampleRate), d.channels, frames, chunk.Timestamp, data))
	return nil
}

func (d *pcmDecoder) Receive() (*AudioData, error) {
	if len(d.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	unit := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return unit, nil
}

func (d *pcmDecoder) SignalEndOfStream() error { return nil }

func (d *pcmDecoder) Close() error {
	d.pending = nil
	return nil
}

type pcmEncoder struct {
	format     SampleFormat
	sampleRate int
	channels   int
	pending    []*EncodedAudioChunk
}

func (e *pcmEncoder) Submit(data *AudioData) error {
	if err := checkInputShape(data, e.sampleRate, e.channels); err != nil {
		return err
	}
	out, err := ConvertAudioData(data, e.format)
	if err != nil {
		return err
	}

	e.pending = append(e.pending, &EncodedAudioChunk{
		Type:      ChunkTypeKey,
		Timestamp: data.Timestamp,
		Duration:  int64(data.Duration),
		Data:      out.Data[:out.AllocationSize()],
	})
	return nil
}

func (e *pcmEncoder) Receive() (*EncodedAudioChunk, error) {
	if len(e.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	chunk := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]
	return chunk, nil
}

func (e *pcmEncoder) SignalEndOfStream() error { return nil }

func (e *pcmEncoder) Close() error {
	e.pending = nil
	return nil
}

// checkInputShape rejects encoder input that does not match the configured
// rate and channel count.
func checkInputShape(data *AudioData, sampleRate, channels int) error {
	if data.NumberOfChannels != channels {
		return fmt.Errorf("got %d channels, configured for %d", data.NumberOfChannels, channels)
	}
	if int(data.SampleRate) != sampleRate {
		return fmt.Errorf("got %v Hz, configured for %d Hz", data.SampleRate, sampleRate)
	}
	return nil
}
