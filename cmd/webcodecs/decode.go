package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thesyncim/webcodecs"
	"github.com/thesyncim/webcodecs/internal/chunkio"
	"go.uber.org/zap"
)

func newDecodeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode a chunk stream or an RTP capture to raw samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDecode(cmd.Context(), v)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "-", "Input file, - for stdin")
	f.StringP("output", "o", "-", "Output file for raw samples, - for stdout")
	f.String("sample-format", webcodecs.CanonicalFormat.String(), "Sample format written to the output")
	f.String("provider", webcodecs.ProviderAuto.String(), "Backend provider")
	f.Bool("rtp", false, "Input is length-prefixed RTP packets instead of a chunk stream")
	f.String("codec", webcodecs.AudioCodecOpus.String(), "RTP payload codec (with --rtp)")
	f.Int("channels", 1, "RTP stream channel count (with --rtp)")
	return cmd
}

func runDecode(ctx context.Context, v *viper.Viper) error {
	format, err := webcodecs.ParseSampleFormat(v.GetString("sample-format"))
	if err != nil {
		return err
	}
	provider, err := webcodecs.ParseProvider(v.GetString("provider"))
	if err != nil {
		return err
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

	var src chunkSource
	if v.GetBool("rtp") {
		src, err = newRTPSource(bufio.NewReader(in), v.GetString("codec"), v.GetInt("channels"))
	} else {
		src, err = newStreamSource(bufio.NewReader(in))
	}
	if err != nil {
		return err
	}

	s := newSession(ctx, v)
	return s.run(ctx, func(ctx context.Context) error {
		w := bufio.NewWriter(out)
		dec, err := webcodecs.NewAudioDecoder(func(data *webcodecs.AudioData) {
			converted, err := webcodecs.ConvertAudioData(data, format)
			if err != nil {
				s.errs.set(err)
				return
			}
			if _, err := w.Write(converted.Data[:converted.AllocationSize()]); err != nil {
				s.errs.set(fmt.Errorf("writing samples: %w", err))
			}
		}, s.onError, s.options()...)
		if err != nil {
			return err
		}
		defer dec.Close()

		cfg := src.config()
		cfg.Provider = provider
		if err := dec.Configure(cfg); err != nil {
			return err
		}
		s.log.Info("decoding",
			zap.String("codec", cfg.Codec),
			zap.Int("sample_rate", cfg.SampleRate),
			zap.Int("channels", cfg.NumberOfChannels),
		)

		chunks := 0
		for {
			chunk, err := src.next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := s.wait(ctx, dec.DecodeQueueSize); err != nil {
				return err
			}
			if err := dec.Decode(chunk); err != nil {
				return err
			}
			chunks++
		}
		if err := dec.Flush(ctx); err != nil {
			return err
		}
		s.log.Info("decoded", zap.Int("chunks", chunks))
		return w.Flush()
	})
}

// chunkSource yields the chunks of one input. next returns io.EOF after the
// last chunk.
type chunkSource interface {
	config() webcodecs.AudioDecoderConfig
	next() (*webcodecs.EncodedAudioChunk, error)
}

type streamSource struct {
	r      *chunkio.Reader
	header chunkio.Header
}

func newStreamSource(r io.Reader) (*streamSource, error) {
	cr := chunkio.NewReader(r)
	header, err := cr.Header()
	if err != nil {
		return nil, err
	}
	return &streamSource{r: cr, header: header}, nil
}

func (s *streamSource) config() webcodecs.AudioDecoderConfig {
	return s.header.DecoderConfig()
}

func (s *streamSource) next() (*webcodecs.EncodedAudioChunk, error) {
	return s.r.ReadChunk()
}

type rtpSource struct {
	r       io.Reader
	cfg     webcodecs.AudioDecoderConfig
	chunker *webcodecs.RTPChunker
}

func newRTPSource(r io.Reader, codecID string, channels int) (*rtpSource, error) {
	codec := webcodecs.ParseAudioCodec(codecID)
	params := webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  codec.MimeType(),
			ClockRate: codec.ClockRate(),
			Channels:  uint16(channels),
		},
	}
	if codec == webcodecs.AudioCodecOpus && channels == 2 {
		params.SDPFmtpLine = "stereo=1"
	}
	cfg, err := webcodecs.ConfigFromCodecParameters(params)
	if err != nil {
		return nil, err
	}
	chunker, err := webcodecs.NewRTPChunker(codec)
	if err != nil {
		return nil, err
	}
	return &rtpSource{r: r, cfg: cfg, chunker: chunker}, nil
}

func (s *rtpSource) config() webcodecs.AudioDecoderConfig {
	return s.cfg
}

func (s *rtpSource) next() (*webcodecs.EncodedAudioChunk, error) {
	for {
		packet, err := chunkio.ReadFrame(s.r)
		if err != nil {
			return nil, err
		}
		chunk, err := s.chunker.ChunkBytes(packet)
		if err != nil {
			return nil, fmt.Errorf("rtp packet: %w", err)
		}
		if chunk != nil {
			return chunk, nil
		}
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func createOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
