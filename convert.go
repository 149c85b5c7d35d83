package webcodecs

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ConvertAudioData returns src re-laid out in the given format. When src is
// already in that format it is returned as is. Sample values are rescaled
// between the integer and float ranges; float input outside [-1, 1] is
// clamped when converted to an integer format.
func ConvertAudioData(src *AudioData, format SampleFormat) (*AudioData, error) {
	if src == nil {
		return nil, fmt.Errorf("convert: nil audio data")
	}
	if format.BytesPerSample() == 0 {
		return nil, fmt.Errorf("convert: invalid target format %d", format)
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	if src.Format == format {
		return src, nil
	}

	frames, channels := src.NumberOfFrames, src.NumberOfChannels
	out := make([]byte, frames*channels*format.BytesPerSample())
	for ch := 0; ch < channels; ch++ {
		for f := 0; f < frames; f++ {
			v := readSample(src.Format, src.Data, sampleOffset(src.Format, f, ch, frames, channels))
			writeSample(format, out, sampleOffset(format, f, ch, frames, channels), v)
		}
	}

	dst := *src
	dst.Format = format
	dst.Data = out
	return &dst, nil
}

// sampleOffset returns the byte offset of one sample.
func sampleOffset(format SampleFormat, frame, channel, frames, channels int) int {
	if format.Planar() {
		return (channel*frames + frame) * format.BytesPerSample()
	}
	return (frame*channels + channel) * format.BytesPerSample()
}

// readSample decodes one sample as a float in [-1, 1].
func readSample(format SampleFormat, data []byte, off int) float64 {
	switch format.Interleaved() {
	case SampleFormatU8:
		return (float64(data[off]) - 128) / 128
	case SampleFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
	case SampleFormatS32:
		return float64(int32(binary.LittleEndian.Uint32(data[off:]))) / 2147483648
	case SampleFormatF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
	default:
		return 0
	}
}

func writeSample(format SampleFormat, data []byte, off int, v float64) {
	switch format.Interleaved() {
	case SampleFormatU8:
		data[off] = uint8(clampInt(math.Round(v*128)+128, 0, 255))
	case SampleFormatS16:
		binary.LittleEndian.PutUint16(data[off:], uint16(int16(clampInt(math.Round(v*32768), math.MinInt16, math.MaxInt16))))
	case SampleFormatS32:
		binary.LittleEndian.PutUint32(data[off:], uint32(int32(clampInt(math.Round(v*2147483648), math.MinInt32, math.MaxInt32))))
	case SampleFormatF32:
		binary.LittleEndian.PutUint32(data[off:], math.Float32bits(float32(v)))
	}
}

func clampInt(v, lo, hi float64) int64 {
	if v < lo {
		return int64(lo)
	}
	if v > hi {
		return int64(hi)
	}
	return int64(v)
}

// s16Samples reads interleaved s16 bytes into samples. n is the number of
// samples to read.
func s16Samples(data []byte, n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// s16Bytes is the inverse of s16Samples.
func s16Bytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
