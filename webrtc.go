package webcodecs

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// opusFmtp is the fmtp line advertised for Opus.
const opusFmtp = "minptime=10;useinbandfec=1"

// codecForMime maps an SDP MIME type to a codec. Matching is
// case-insensitive, as in SDP.
func codecForMime(mime string) AudioCodec {
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		return AudioCodecOpus
	case strings.EqualFold(mime, webrtc.MimeTypePCMU):
		return AudioCodecULaw
	case strings.EqualFold(mime, webrtc.MimeTypePCMA):
		return AudioCodecALaw
	default:
		return AudioCodecUnknown
	}
}

// CodecCapability describes an encoder configuration to pion's media engine.
func CodecCapability(cfg AudioEncoderConfig) (webrtc.RTPCodecCapability, error) {
	codec := ParseAudioCodec(cfg.Codec)
	if codecForMime(codec.MimeType()) == AudioCodecUnknown {
		return webrtc.RTPCodecCapability{}, fmt.Errorf("%w: %q has no WebRTC mapping", ErrCodecNotSupported, cfg.Codec)
	}

	capability := webrtc.RTPCodecCapability{
		MimeType:  codec.MimeType(),
		ClockRate: codec.ClockRate(),
		Channels:  uint16(cfg.NumberOfChannels),
	}
	if codec == AudioCodecOpus {
		// Opus is always signalled as 48 kHz stereo; stereo=1 asks for two
		// decoded channels.
		capability.Channels = 2
		capability.SDPFmtpLine = opusFmtp
		if cfg.NumberOfChannels == 2 {
			capability.SDPFmtpLine += ";stereo=1"
		}
	}
	return capability, nil
}

// ConfigFromCodecParameters builds a decoder configuration for a codec
// negotiated over SDP.
func ConfigFromCodecParameters(params webrtc.RTPCodecParameters) (AudioDecoderConfig, error) {
	codec := codecForMime(params.MimeType)
	switch codec {
	case AudioCodecOpus:
		channels := 1
		if fmtpFlag(params.SDPFmtpLine, "stereo") {
			channels = 2
		}
		return AudioDecoderConfig{Codec: codec.String(), SampleRate: 48000, NumberOfChannels: channels}, nil
	case AudioCodecULaw, AudioCodecALaw:
		channels := int(params.Channels)
		if channels == 0 {
			channels = 1
		}
		rate := int(params.ClockRate)
		if rate == 0 {
			rate = 8000
		}
		return AudioDecoderConfig{Codec: codec.String(), SampleRate: rate, NumberOfChannels: channels}, nil
	default:
		return AudioDecoderConfig{}, fmt.Errorf("%w: mime type %q", ErrCodecNotSupported, params.MimeType)
	}
}

// RegisterMediaEngineCodecs registers codecs with m under their default
// payload types.
func RegisterMediaEngineCodecs(m *webrtc.MediaEngine, codecs ...AudioCodec) error {
	for _, codec := range codecs {
		capability, err := CodecCapability(AudioEncoderConfig{
			Codec:            codec.String(),
			SampleRate:       int(codec.ClockRate()),
			NumberOfChannels: 1,
		})
		if err != nil {
			return err
		}
		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: capability,
			PayloadType:        webrtc.PayloadType(codec.DefaultPayloadType()),
		}
		if err := m.RegisterCodec(params, webrtc.RTPCodecTypeAudio); err != nil {
			return fmt.Errorf("registering %s: %w", codec, err)
		}
	}
	return nil
}

// fmtpFlag reports whether key=1 appears in an fmtp line.
func fmtpFlag(line, key string) bool {
	for _, param := range strings.Split(line, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && strings.EqualFold(k, key) && v == "1" {
			return true
		}
	}
	return false
}
