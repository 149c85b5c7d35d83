package webcodecs

import (
	"fmt"
	"strings"
)

// AudioDecoderConfig configures an audio decoder.
type AudioDecoderConfig struct {
	Codec            string   // Codec id, e.g. "opus", "pcm16", "mp3"
	Provider         Provider // Provider to use (ProviderAuto = registry chooses)
	SampleRate       int      // Sample rate in Hz
	NumberOfChannels int      // Channel count
	Description      []byte   // Optional out-of-band codec setup (e.g. AudioSpecificConfig)
}

// Validate reports why the configuration is malformed, or nil.
func (c AudioDecoderConfig) Validate() error {
	return validateShape(c.Codec, c.SampleRate, c.NumberOfChannels, c.Provider)
}

// Clone returns a copy that does not share the description buffer.
func (c AudioDecoderConfig) Clone() AudioDecoderConfig {
	if c.Description != nil {
		c.Description = append([]byte(nil), c.Description...)
	}
	return c
}

// AudioEncoderConfig configures an audio encoder.
type AudioEncoderConfig struct {
	Codec            string   // Codec id
	Provider         Provider // Provider to use (ProviderAuto = registry chooses)
	SampleRate       int      // Sample rate in Hz
	NumberOfChannels int      // Channel count
	Bitrate          int      // Target bitrate in bps (0 = backend default)
}

// Validate reports why the configuration is malformed, or nil.
func (c AudioEncoderConfig) Validate() error {
	if err := validateShape(c.Codec, c.SampleRate, c.NumberOfChannels, c.Provider); err != nil {
		return err
	}
	if c.Bitrate < 0 {
		return fmt.Errorf("bitrate must be >= 0, got %d", c.Bitrate)
	}
	return nil
}

func validateShape(codec string, sampleRate, channels int, provider Provider) error {
	if strings.TrimSpace(codec) == "" {
		return fmt.Errorf("codec must not be empty")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
	}
	if channels <= 0 {
		return fmt.Errorf("channel count must be > 0, got %d", channels)
	}
	if provider >= providerCount {
		return fmt.Errorf("unknown provider %d", provider)
	}
	return nil
}

// IsDecoderConfigSupported reports whether cfg is well formed. It has no side
// effects and applies exactly the check AudioDecoder.Configure applies; codec
// availability is reported later through the error callback.
func IsDecoderConfigSupported(cfg AudioDecoderConfig) bool {
	return cfg.Validate() == nil
}

// IsEncoderConfigSupported is the encoder counterpart of IsDecoderConfigSupported.
func IsEncoderConfigSupported(cfg AudioEncoderConfig) bool {
	return cfg.Validate() == nil
}
