// Core chunk and sample types used across the codec package.
package webcodecs

import (
	"fmt"
	"time"
)

// SampleFormat represents audio sample formats.
type SampleFormat int

const (
	SampleFormatU8        SampleFormat = iota // Unsigned 8-bit, interleaved
	SampleFormatS16                           // Signed 16-bit little-endian, interleaved
	SampleFormatS32                           // Signed 32-bit little-endian, interleaved
	SampleFormatF32                           // 32-bit float little-endian, interleaved
	SampleFormatU8Planar                      // Unsigned 8-bit, one plane per channel
	SampleFormatS16Planar                     // Signed 16-bit, one plane per channel
	SampleFormatS32Planar                     // Signed 32-bit, one plane per channel
	SampleFormatF32Planar                     // 32-bit float, one plane per channel
)

// CanonicalFormat is the format every decoder delivers to its output callback.
const CanonicalFormat = SampleFormatF32Planar

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatU8:
		return "u8"
	case SampleFormatS16:
		return "s16"
	case SampleFormatS32:
		return "s32"
	case SampleFormatF32:
		return "f32"
	case SampleFormatU8Planar:
		return "u8-planar"
	case SampleFormatS16Planar:
		return "s16-planar"
	case SampleFormatS32Planar:
		return "s32-planar"
	case SampleFormatF32Planar:
		return "f32-planar"
	default:
		return "unknown"
	}
}

// ParseSampleFormat resolves a format name as returned by String.
func ParseSampleFormat(name string) (SampleFormat, error) {
	for f := SampleFormatU8; f <= SampleFormatF32Planar; f++ {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown sample format %q", name)
}

// BytesPerSample returns the number of bytes per sample for this format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFormatU8, SampleFormatU8Planar:
		return 1
	case SampleFormatS16, SampleFormatS16Planar:
		return 2
	case SampleFormatS32, SampleFormatS32Planar, SampleFormatF32, SampleFormatF32Planar:
		return 4
	default:
		return 0
	}
}

// Planar returns true if each channel is stored in its own plane.
func (f SampleFormat) Planar() bool {
	return f >= SampleFormatU8Planar && f <= SampleFormatF32Planar
}

// Interleaved returns the interleaved variant of a planar format and
// returns interleaved formats unchanged.
func (f SampleFormat) Interleaved() SampleFormat {
	if f.Planar() {
		return f - SampleFormatU8Planar
	}
	return f
}

// ChunkType indicates whether a chunk can be decoded on its own.
type ChunkType int

const (
	ChunkTypeKey   ChunkType = iota // Decodable without prior chunks
	ChunkTypeDelta                  // Depends on previous chunks
)

func (t ChunkType) String() string {
	switch t {
	case ChunkTypeKey:
		return "key"
	case ChunkTypeDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// EncodedAudioChunk holds codec-specific encoded audio bytes.
// Byte layout is defined by the backend.
type EncodedAudioChunk struct {
	Type      ChunkType // Key or delta
	Timestamp int64     // Presentation timestamp in microseconds
	Duration  int64     // Duration in microseconds (0 = unknown)
	Data      []byte    // Encoded payload
}

// NewKeyChunk is a convenience constructor for a key chunk.
func NewKeyChunk(timestamp int64, data []byte) *EncodedAudioChunk {
	return &EncodedAudioChunk{Type: ChunkTypeKey, Timestamp: timestamp, Data: data}
}

// IsKey returns true if this is a key chunk.
func (c *EncodedAudioChunk) IsKey() bool {
	return c.Type == ChunkTypeKey
}

// ByteLength returns the payload size.
func (c *EncodedAudioChunk) ByteLength() int {
	return len(c.Data)
}

// Clone creates a deep copy of the chunk.
func (c *EncodedAudioChunk) Clone() *EncodedAudioChunk {
	clone := &EncodedAudioChunk{
		Type:      c.Type,
		Timestamp: c.Timestamp,
		Duration:  c.Duration,
	}
	if c.Data != nil {
		clone.Data = make([]byte, len(c.Data))
		copy(clone.Data, c.Data)
	}
	return clone
}

// AudioData represents unencoded audio. For planar formats Data holds the
// planes back to back, channel 0 first.
type AudioData struct {
	Format           SampleFormat // Sample format
	SampleRate       float64      // Sample rate in Hz
	NumberOfChannels int          // Channel count
	NumberOfFrames   int          // Frames (samples per channel)
	Duration         float64      // Duration in microseconds, derived
	Timestamp        int64        // Presentation timestamp in microseconds
	Data             []byte       // Raw samples
}

// NewAudioData builds an AudioData and derives its duration from the frame
// count and sample rate.
func NewAudioData(format SampleFormat, sampleRate float64, channels, frames int, timestamp int64, data []byte) *AudioData {
	return &AudioData{
		Format:           format,
		SampleRate:       sampleRate,
		NumberOfChannels: channels,
		NumberOfFrames:   frames,
		Duration:         frameDuration(frames, sampleRate),
		Timestamp:        timestamp,
		Data:             data,
	}
}

func frameDuration(frames int, sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(frames) / sampleRate * 1_000_000
}

// DurationTime returns Duration as a time.Duration.
func (a *AudioData) DurationTime() time.Duration {
	return time.Duration(a.Duration * float64(time.Microsecond))
}

// AllocationSize returns the number of bytes the samples occupy.
func (a *AudioData) AllocationSize() int {
	return a.NumberOfFrames * a.NumberOfChannels * a.Format.BytesPerSample()
}

// Validate checks that Data is large enough for the declared shape.
func (a *AudioData) Validate() error {
	if a.NumberOfChannels <= 0 {
		return fmt.Errorf("invalid channel count %d", a.NumberOfChannels)
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %v", a.SampleRate)
	}
	if a.Format.BytesPerSample() == 0 {
		return fmt.Errorf("invalid sample format %d", a.Format)
	}
	if a.NumberOfFrames < 0 {
		return fmt.Errorf("invalid frame count %d", a.NumberOfFrames)
	}
	if need := a.AllocationSize(); len(a.Data) < need {
		return fmt.Errorf("data holds %d bytes, need %d", len(a.Data), need)
	}
	return nil
}

// Plane returns the samples of one channel for planar formats, or the whole
// buffer (plane 0) for interleaved formats.
func (a *AudioData) Plane(i int) []byte {
	if !a.Format.Planar() {
		if i != 0 {
			return nil
		}
		return a.Data[:a.AllocationSize()]
	}
	if i < 0 || i >= a.NumberOfChannels {
		return nil
	}
	size := a.NumberOfFrames * a.Format.BytesPerSample()
	return a.Data[i*size : (i+1)*size]
}

// Clone creates a deep copy of the audio data.
func (a *AudioData) Clone() *AudioData {
	clone := *a
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return &clone
}
