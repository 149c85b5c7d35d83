// Package webcodecs provides WebCodecs-style asynchronous audio decoding and
// encoding in Go.
//
// An AudioDecoder or AudioEncoder accepts configuration and data without
// blocking. Each call becomes a control message on a per-instance queue; the
// queue hands messages to a worker pool, and results come back through the
// output and error callbacks given at construction, in submission order.
//
// # Architecture
//
//   Decode: Configure -> Decode(chunk)... -> Flush -> output(AudioData)
//   Encode: Configure -> Encode(data)...  -> Flush -> output(EncodedAudioChunk)
//
// An instance moves Unconfigured -> Configured on Configure, back to
// Unconfigured on Reset, and to Closed on Close. Work still pending when
// Reset or Close is called is discarded: running jobs finish but deliver
// nothing, and pending flushes fail with AbortError.
//
// Decoded output is always f32-planar (CanonicalFormat). Encoder backends
// always receive s16 interleaved input.
//
// # Backends
//
// Backends register per codec and provider in a Registry:
//   - pcm-u8, pcm-s16 (pcm16), pcm-s32, pcm-f32, ulaw, alaw: pure Go
//   - opus: libstream_opus loaded at runtime with purego
//   - mp3, aac, flac, vorbis, mp2, ac3, alac: libavcodec via go-astiav
//
// Set STREAM_OPUS_LIB_PATH to point at libstream_opus directly.
//
// # Build Tags
//
//   - noopus: drop the Opus backend
//   - ffmpeg: build the FFmpeg backend (needs the FFmpeg development libraries)
//
// # RTP and WebRTC
//
// RTPChunker turns incoming RTP packets into decoder chunks and
// RTPPacketizer does the reverse for encoder output. ConfigFromCodecParameters
// and CodecCapability translate between SDP-negotiated codecs and codec
// configurations.
package webcodecs
