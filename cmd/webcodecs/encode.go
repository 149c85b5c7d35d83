package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thesyncim/webcodecs"
	"github.com/thesyncim/webcodecs/internal/chunkio"
	"go.uber.org/zap"
)

func newEncodeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode raw interleaved samples to a chunk stream or RTP packets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEncode(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "-", "Input file of raw samples, - for stdin")
	f.StringP("output", "o", "-", "Output file, - for stdout")
	f.String("codec", webcodecs.AudioCodecOpus.String(), "Codec to encode with")
	f.String("provider", webcodecs.ProviderAuto.String(), "Backend provider")
	f.String("sample-format", webcodecs.SampleFormatS16.String(), "Interleaved sample format of the input")
	f.Int("sample-rate", 48000, "Input sample rate in Hz")
	f.Int("channels", 1, "Input channel count")
	f.Int("bitrate", 0, "Target bitrate in bps (0 lets the backend choose)")
	f.Duration("frame-duration", 20*time.Millisecond, "Duration of each input read")
	f.Bool("rtp", false, "Write length-prefixed RTP packets instead of a chunk stream")
	f.Uint32("ssrc", 0, "RTP SSRC (0 picks a random one)")
	f.Int("payload-type", -1, "RTP payload type (-1 uses the codec default)")
	f.Int("mtu", webcodecs.DefaultMTU, "RTP packet size limit")
	return cmd
}

func runEncode(ctx context.Context, v *viper.Viper) error {
	format, err := webcodecs.ParseSampleFormat(v.GetString("sample-format"))
	if err != nil {
		return err
	}
	if format.Planar() {
		return fmt.Errorf("input must be interleaved, got %s", format)
	}
	provider, err := webcodecs.ParseProvider(v.GetString("provider"))
	if err != nil {
		return err
	}
	cfg := webcodecs.AudioEncoderConfig{
		Codec:            v.GetString("codec"),
		Provider:         provider,
		SampleRate:       v.GetInt("sample-rate"),
		NumberOfChannels: v.GetInt("channels"),
		Bitrate:          v.GetInt("bitrate"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	frames := int(v.GetDuration("frame-duration") * time.Duration(cfg.SampleRate) / time.Second)
	if frames <= 0 {
		return fmt.Errorf("frame duration %s is shorter than one sample", v.GetDuration("frame-duration"))
	}

	in, err := openInput(v.GetString("input"))
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := createOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	var sink chunkSink
	if v.GetBool("rtp") {
		sink, err = newRTPSink(logger(ctx), w, cfg, v.GetUint32("ssrc"), v.GetInt("payload-type"), v.GetInt("mtu"))
	} else {
		sink, err = newStreamSink(w, cfg)
	}
	if err != nil {
		return err
	}

	s := newSession(ctx, v)
	return s.run(ctx, func(ctx context.Context) error {
		enc, err := webcodecs.NewAudioEncoder(func(chunk *webcodecs.EncodedAudioChunk) {
			if err := sink.write(chunk); err != nil {
				s.errs.set(err)
			}
		}, s.onError, s.options()...)
		if err != nil {
			return err
		}
		defer enc.Close()

		if err := enc.Configure(cfg); err != nil {
			return err
		}

		r := bufio.NewReader(in)
		frameBytes := cfg.NumberOfChannels * format.BytesPerSample()
		total := 0
		for {
			buf := make([]byte, frames*frameBytes)
			n, err := io.ReadFull(r, buf)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("reading samples: %w", err)
			}
			got := n / frameBytes
			if got == 0 {
				break
			}

			data := webcodecs.NewAudioData(format, float64(cfg.SampleRate), cfg.NumberOfChannels, got,
				int64(total)*1_000_000/int64(cfg.SampleRate), buf[:got*frameBytes])
			if err := s.wait(ctx, enc.EncodeQueueSize); err != nil {
				return err
			}
			if err := enc.Encode(data); err != nil {
				return err
			}
			total += got
			if got < frames {
				break
			}
		}
		if err := enc.Flush(ctx); err != nil {
			return err
		}
		s.log.Info("encoded", zap.Int("frames", total), zap.String("codec", cfg.Codec))
		return w.Flush()
	})
}

// chunkSink writes encoder output somewhere.
type chunkSink interface {
	write(chunk *webcodecs.EncodedAudioChunk) error
}

type streamSink struct {
	w *chunkio.Writer
}

func newStreamSink(w io.Writer, cfg webcodecs.AudioEncoderConfig) (*streamSink, error) {
	cw := chunkio.NewWriter(w)
	err := cw.WriteHeader(chunkio.Header{
		Codec:            cfg.Codec,
		SampleRate:       cfg.SampleRate,
		NumberOfChannels: cfg.NumberOfChannels,
	})
	if err != nil {
		return nil, err
	}
	return &streamSink{w: cw}, nil
}

func (s *streamSink) write(chunk *webcodecs.EncodedAudioChunk) error {
	return s.w.WriteChunk(chunk)
}

type rtpSink struct {
	w          io.Writer
	packetizer *webcodecs.RTPPacketizer
}

func newRTPSink(log *zap.Logger, w io.Writer, cfg webcodecs.AudioEncoderConfig, ssrc uint32, payloadType, mtu int) (*rtpSink, error) {
	codec := webcodecs.ParseAudioCodec(cfg.Codec)
	capability, err := webcodecs.CodecCapability(cfg)
	if err != nil {
		return nil, err
	}
	if ssrc == 0 {
		ssrc = rand.Uint32()
	}
	pt := codec.DefaultPayloadType()
	if payloadType >= 0 {
		pt = uint8(payloadType)
	}

	packetizer, err := webcodecs.NewRTPPacketizer(codec, ssrc, pt, mtu)
	if err != nil {
		return nil, err
	}
	log.Info("writing rtp",
		zap.String("mime_type", capability.MimeType),
		zap.Uint32("clock_rate", capability.ClockRate),
		zap.String("fmtp", capability.SDPFmtpLine),
		zap.Uint8("payload_type", pt),
		zap.Uint32("ssrc", ssrc),
	)
	return &rtpSink{w: w, packetizer: packetizer}, nil
}

func (s *rtpSink) write(chunk *webcodecs.EncodedAudioChunk) error {
	packets, err := s.packetizer.PacketizeToBytes(chunk)
	if err != nil {
		return err
	}
	for _, packet := range packets {
		if err := chunkio.WriteFrame(s.w, packet); err != nil {
			return err
		}
	}
	return nil
}
