//go:build (darwin || linux) && !noopus

// Opus support via libstream_opus, a thin primitive-only wrapper around
// libopus loaded at runtime with purego.

package webcodecs

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	streamOpusOnce    sync.Once
	streamOpusHandle  uintptr
	streamOpusInitErr error
)

// libstream_opus function pointers
var (
	streamOpusEncoderCreate     func(sampleRate, channels, application int32) uint64
	streamOpusEncoderEncode     func(encoder uint64, pcm uintptr, frameSize int32, outData uintptr, outCapacity int32) int32
	streamOpusEncoderSetBitrate func(encoder uint64, bitrate int32) int32
	streamOpusEncoderDestroy    func(encoder uint64)

	streamOpusDecoderCreate  func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode  func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderDestroy func(decoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

// Constants from stream_opus.h
const (
	streamOpusApplicationAudio = 2049
	streamOpusOK               = 0
)

const (
	opusMaxPacket     = 4000 // Max Opus packet size in bytes
	opusMaxFrameMs    = 120
	opusEncodeFrameMs = 20
)

func loadStreamOpus() error {
	streamOpusOnce.Do(func() {
		streamOpusInitErr = loadStreamOpusLib()
	})
	return streamOpusInitErr
}

func loadStreamOpusLib() error {
	var lastErr error
	for _, path := range nativeLibPaths("libstream_opus", "STREAM_OPUS_LIB_PATH") {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		streamOpusHandle = handle
		loadStreamOpusSymbols()
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("failed to load libstream_opus: %w", lastErr)
	}
	return errors.New("libstream_opus not found in any standard location")
}

func loadStreamOpusSymbols() {
	purego.RegisterLibFunc(&streamOpusEncoderCreate, streamOpusHandle, "stream_opus_encoder_create")
	purego.RegisterLibFunc(&streamOpusEncoderEncode, streamOpusHandle, "stream_opus_encoder_encode")
	purego.RegisterLibFunc(&streamOpusEncoderSetBitrate, streamOpusHandle, "stream_opus_encoder_set_bitrate")
	purego.RegisterLibFunc(&streamOpusEncoderDestroy, streamOpusHandle, "stream_opus_encoder_destroy")

	purego.RegisterLibFunc(&streamOpusDecoderCreate, streamOpusHandle, "stream_opus_decoder_create")
	purego.RegisterLibFunc(&streamOpusDecoderDecode, streamOpusHandle, "stream_opus_decoder_decode")
	purego.RegisterLibFunc(&streamOpusDecoderDestroy, streamOpusHandle, "stream_opus_decoder_destroy")

	purego.RegisterLibFunc(&streamOpusGetError, streamOpusHandle, "stream_opus_get_error")
	purego.RegisterLibFunc(&streamOpusGetVersion, streamOpusHandle, "stream_opus_get_version")
}

// IsOpusAvailable reports whether libstream_opus could be loaded.
func IsOpusAvailable() bool {
	return loadStreamOpus() == nil
}

// OpusVersion returns the libopus version string, or "" if unavailable.
func OpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func opusError() string {
	if msg := goStringFromPtr(streamOpusGetError()); msg != "" {
		return msg
	}
	return "unknown error"
}

func checkOpusShape(sampleRate, channels int) error {
	switch sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("opus: unsupported sample rate %d", sampleRate)
	}
	if channels > 2 {
		return fmt.Errorf("opus: supports max 2 channels, got %d", channels)
	}
	return nil
}

type opusDecoder struct {
	handle     uint64
	sampleRate int
	channels   int
	pcm        []int16
	pending    []*AudioData
}

func newOpusDecoder(cfg AudioDecoderConfig) (*opusDecoder, error) {
	if err := checkOpusShape(cfg.SampleRate, cfg.NumberOfChannels); err != nil {
		return nil, err
	}
	handle := streamOpusDecoderCreate(int32(cfg.SampleRate), int32(cfg.NumberOfChannels))
	if handle == 0 {
		return nil, fmt.Errorf("opus: creating decoder: %s", opusError())
	}
	return &opusDecoder{
		handle:     handle,
		sampleRate: cfg.SampleRate,
		channels:   cfg.NumberOfChannels,
		pcm:        make([]int16, cfg.SampleRate*opusMaxFrameMs/1000*cfg.NumberOfChannels),
	}, nil
}

func (d *opusDecoder) Submit(chunk *EncodedAudioChunk) error {
	var dataPtr uintptr
	if len(chunk.Data) > 0 {
		dataPtr = uintptr(unsafe.Pointer(&chunk.Data[0]))
	}
	frames := streamOpusDecoderDecode(
		d.handle,
		dataPtr,
		int32(len(chunk.Data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		int32(len(d.pcm)/d.channels),
		0,
	)
	if frames < 0 {
		return fmt.Errorf("opus: decode: %s", opusError())
	}
	if frames == 0 {
		return nil
	}

	data := s16Bytes(d.pcm[:int(frames)*d.channels])
	d.pending = append(d.pending, NewAudioData(SampleFormatS16, float64(d.sampleRate), d.channels, int(frames), chunk.Timestamp, data))
	return nil
}

func (d *opusDecoder) Receive() (*AudioData, error) {
	if len(d.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	unit := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return unit, nil
}

// SignalEndOfStream is a no-op: libopus returns every frame it decodes.
func (d *opusDecoder) SignalEndOfStream() error { return nil }

func (d *opusDecoder) Close() error {
	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}

// opusEncoder cuts its input into 20 ms frames. Samples that do not fill a
// frame wait for the next Submit or for SignalEndOfStream, which pads them
// with silence.
type opusEncoder struct {
	handle     uint64
	sampleRate int
	channels   int
	frameSize  int // Samples per channel in one frame

	buf      []int16
	bufStart int64 // Timestamp of buf[0] in microseconds
	out      []byte
	pending  []*EncodedAudioChunk
}

func newOpusEncoder(cfg AudioEncoderConfig) (*opusEncoder, error) {
	if err := checkOpusShape(cfg.SampleRate, cfg.NumberOfChannels); err != nil {
		return nil, err
	}
	handle := streamOpusEncoderCreate(int32(cfg.SampleRate), int32(cfg.NumberOfChannels), streamOpusApplicationAudio)
	if handle == 0 {
		return nil, fmt.Errorf("opus: creating encoder: %s", opusError())
	}
	if cfg.Bitrate > 0 && streamOpusEncoderSetBitrate(handle, int32(cfg.Bitrate)) != streamOpusOK {
		streamOpusEncoderDestroy(handle)
		return nil, fmt.Errorf("opus: setting bitrate %d: %s", cfg.Bitrate, opusError())
	}
	return &opusEncoder{
		handle:     handle,
		sampleRate: cfg.SampleRate,
		channels:   cfg.NumberOfChannels,
		frameSize:  cfg.SampleRate * opusEncodeFrameMs / 1000,
		out:        make([]byte, opusMaxPacket),
	}, nil
}

func (e *opusEncoder) Submit(data *AudioData) error {
	if err := checkInputShape(data, e.sampleRate, e.channels); err != nil {
		return fmt.Errorf("opus: %w", err)
	}
	if len(e.buf) == 0 {
		e.bufStart = data.Timestamp
	}
	e.buf = append(e.buf, s16Samples(data.Data, data.NumberOfFrames*data.NumberOfChannels)...)

	frameLen := e.frameSize * e.channels
	consumed := 0
	for len(e.buf)-consumed >= frameLen {
		if err := e.encodeFrame(e.buf[consumed : consumed+frameLen]); err != nil {
			return err
		}
		consumed += frameLen
	}
	e.buf = append(e.buf[:0], e.buf[consumed:]...)
	return nil
}

func (e *opusEncoder) encodeFrame(samples []int16) error {
	n := streamOpusEncoderEncode(
		e.handle,
		uintptr(unsafe.Pointer(&samples[0])),
		int32(e.frameSize),
		uintptr(unsafe.Pointer(&e.out[0])),
		int32(len(e.out)),
	)
	if n < 0 {
		return fmt.Errorf("opus: encode: %s", opusError())
	}

	duration := int64(frameDuration(e.frameSize, float64(e.sampleRate)))
	e.pending = append(e.pending, &EncodedAudioChunk{
		Type:      ChunkTypeKey,
		Timestamp: e.bufStart,
		Duration:  duration,
		Data:      append([]byte(nil), e.out[:n]...),
	})
	e.bufStart += duration
	return nil
}

func (e *opusEncoder) Receive() (*EncodedAudioChunk, error) {
	if len(e.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	chunk := e.pending[0]
	e.pending[0] = nil
	e.pending = e.pending[1:]
	return chunk, nil
}

func (e *opusEncoder) SignalEndOfStream() error {
	if len(e.buf) == 0 {
		return nil
	}
	frame := make([]int16, e.frameSize*e.channels)
	copy(frame, e.buf)
	e.buf = e.buf[:0]
	return e.encodeFrame(frame)
}

func (e *opusEncoder) Close() error {
	if e.handle != 0 {
		streamOpusEncoderDestroy(e.handle)
		e.handle = 0
	}
	e.buf, e.pending = nil, nil
	return nil
}

// Register the Opus backends when libstream_opus can be loaded.
func init() {
	if err := loadStreamOpus(); err != nil {
		return
	}
	setProviderAvailable(ProviderLibopus)

	codec := AudioCodecOpus.String()
	DefaultRegistry().RegisterDecoder(codec, ProviderLibopus, func(cfg AudioDecoderConfig) (AudioDecoderBackend, error) {
		d, err := newOpusDecoder(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	DefaultRegistry().RegisterEncoder(codec, ProviderLibopus, func(cfg AudioEncoderConfig) (AudioEncoderBackend, error) {
		e, err := newOpusEncoder(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	})
}
