//go:build ffmpeg

// Decoders backed by libavcodec through go-astiav. Built only with the
// ffmpeg tag since it needs the FFmpeg development libraries at link time.

package webcodecs

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

// ffmpegDecoders maps codec ids to libavcodec decoder names.
var ffmpegDecoders = map[string]string{
	AudioCodecMP3.String():    "mp3float",
	AudioCodecAAC.String():    "aac",
	AudioCodecFLAC.String():   "flac",
	AudioCodecVorbis.String(): "vorbis",
	"mp2":                     "mp2float",
	"ac3":                     "ac3",
	"alac":                    "alac",
}

var ffmpegSampleFormats = map[astiav.SampleFormat]SampleFormat{
	astiav.SampleFormatU8:   SampleFormatU8,
	astiav.SampleFormatS16:  SampleFormatS16,
	astiav.SampleFormatS32:  SampleFormatS32,
	astiav.SampleFormatFlt:  SampleFormatF32,
	astiav.SampleFormatU8P:  SampleFormatU8Planar,
	astiav.SampleFormatS16P: SampleFormatS16Planar,
	astiav.SampleFormatS32P: SampleFormatS32Planar,
	astiav.SampleFormatFltp: SampleFormatF32Planar,
}

func init() {
	registered := false
	for codec, name := range ffmpegDecoders {
		if astiav.FindDecoderByName(name) == nil {
			continue
		}
		DefaultRegistry().RegisterDecoder(codec, ProviderFFmpeg, func(cfg AudioDecoderConfig) (AudioDecoderBackend, error) {
			d, err := newFFmpegDecoder(name, cfg)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
		registered = true
	}
	if registered {
		setProviderAvailable(ProviderFFmpeg)
	}
}

type ffmpegDecoder struct {
	ctx     *astiav.CodecContext
	packet  *astiav.Packet
	frame   *astiav.Frame
	pending []*AudioData
}

func newFFmpegDecoder(name string, cfg AudioDecoderConfig) (*ffmpegDecoder, error) {
	codec := astiav.FindDecoderByName(name)
	if codec == nil {
		return nil, fmt.Errorf("ffmpeg: decoder %q not found", name)
	}
	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("ffmpeg: allocating context for %q", name)
	}
	ctx.SetSampleRate(cfg.SampleRate)
	switch cfg.NumberOfChannels {
	case 1:
		ctx.SetChannelLayout(astiav.ChannelLayoutMono)
	case 2:
		ctx.SetChannelLayout(astiav.ChannelLayoutStereo)
	}
	if len(cfg.Description) > 0 {
		if err := ctx.SetExtraData(cfg.Description); err != nil {
			ctx.Free()
			return nil, fmt.Errorf("ffmpeg: setting extradata: %w", err)
		}
	}
	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("ffmpeg: opening %q: %w", name, err)
	}

	return &ffmpegDecoder{
		ctx:    ctx,
		packet: astiav.AllocPacket(),
		frame:  astiav.AllocFrame(),
	}, nil
}

func (d *ffmpegDecoder) Submit(chunk *EncodedAudioChunk) error {
	if err := d.packet.FromData(chunk.Data); err != nil {
		return fmt.Errorf("ffmpeg: packet: %w", err)
	}
	d.packet.SetPts(chunk.Timestamp)
	defer d.packet.Unref()

	if err := d.ctx.SendPacket(d.packet); err != nil {
		return fmt.Errorf("ffmpeg: send packet: %w", err)
	}
	return d.receiveFrames(chunk.Timestamp)
}

func (d *ffmpegDecoder) SignalEndOfStream() error {
	if err := d.ctx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("ffmpeg: drain: %w", err)
	}
	return d.receiveFrames(0)
}

// receiveFrames moves every frame libavcodec has ready into pending.
func (d *ffmpegDecoder) receiveFrames(timestamp int64) error {
	for {
		if err := d.ctx.ReceiveFrame(d.frame); err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("ffmpeg: receive frame: %w", err)
		}
		unit, err := d.convertFrame(timestamp)
		d.frame.Unref()
		if err != nil {
			return err
		}
		d.pending = append(d.pending, unit)
	}
}

func (d *ffmpegDecoder) convertFrame(timestamp int64) (*AudioData, error) {
	format, ok := ffmpegSampleFormats[d.frame.SampleFormat()]
	if !ok {
		return nil, fmt.Errorf("ffmpeg: unsupported sample format %s", d.frame.SampleFormat())
	}
	data, err := d.frame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: frame data: %w", err)
	}
	return NewAudioData(
		format,
		float64(d.frame.SampleRate()),
		d.frame.ChannelLayout().Channels(),
		d.frame.NbSamples(),
		timestamp,
		data,
	), nil
}

func (d *ffmpegDecoder) Receive() (*AudioData, error) {
	if len(d.pending) == 0 {
		return nil, ErrNoMoreUnits
	}
	unit := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return unit, nil
}

func (d *ffmpegDecoder) Close() error {
	d.frame.Free()
	d.packet.Free()
	d.ctx.Free()
	d.pending = nil
	return nil
}
