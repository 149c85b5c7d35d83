package webcodecs

import (
	"fmt"
	"io"
	"slices"
	"sync"
)

// AudioDecoderBackend is a live native decoder instance. Implementations need
// not be safe for concurrent use: the decoder serializes every call through
// its backend slot.
type AudioDecoderBackend interface {
	io.Closer

	// Submit hands one chunk of encoded bytes to the backend.
	Submit(chunk *EncodedAudioChunk) error

	// Receive returns the next decoded unit, in any sample format.
	// Returns ErrNoMoreUnits when nothing is buffered.
	Receive() (*AudioData, error)

	// SignalEndOfStream asks the backend to release buffered units.
	SignalEndOfStream() error
}

// AudioEncoderBackend is a live native encoder instance. Submit always
// receives interleaved s16 samples. Same concurrency contract as
// AudioDecoderBackend.
type AudioEncoderBackend interface {
	io.Closer

	// Submit hands raw samples to the backend.
	Submit(data *AudioData) error

	// Receive returns the next encoded chunk.
	// Returns ErrNoMoreUnits when nothing is buffered.
	Receive() (*EncodedAudioChunk, error)

	// SignalEndOfStream asks the backend to encode any partial frame.
	SignalEndOfStream() error
}

// DecoderFactory creates a decoder backend for a validated configuration.
type DecoderFactory func(AudioDecoderConfig) (AudioDecoderBackend, error)

// EncoderFactory creates an encoder backend for a validated configuration.
type EncoderFactory func(AudioEncoderConfig) (AudioEncoderBackend, error)

// --- Registry ---

// Registry maps codec ids to backend factories per provider.
type Registry struct {
	mu sync.RWMutex

	// Provider-aware registry: codec -> provider -> factory
	decoders map[string]map[Provider]DecoderFactory
	encoders map[string]map[Provider]EncoderFactory

	// Default provider per codec
	decoderDefaults map[string]Provider
	encoderDefaults map[string]Provider
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders:        make(map[string]map[Provider]DecoderFactory),
		encoders:        make(map[string]map[Provider]EncoderFactory),
		decoderDefaults: make(map[string]Provider),
		encoderDefaults: make(map[string]Provider),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the registry backends register themselves into.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// preferProvider reports whether candidate should replace current as the
// default: permissive licenses first, then pure-Go over native.
func preferProvider(candidate, current Provider) bool {
	if candidate.License().Permissive() != current.License().Permissive() {
		return candidate.License().Permissive()
	}
	return !candidate.Native() && current.Native()
}

// RegisterDecoder registers a decoder factory for a codec+provider.
func (r *Registry) RegisterDecoder(codec string, provider Provider, factory DecoderFactory) {
	codec = canonicalCodecID(codec)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.decoders[codec] == nil {
		r.decoders[codec] = make(map[Provider]DecoderFactory)
	}
	r.decoders[codec][provider] = factory

	current, exists := r.decoderDefaults[codec]
	if !exists || preferProvider(provider, current) {
		r.decoderDefaults[codec] = provider
	}
}

// RegisterEncoder registers an encoder factory for a codec+provider.
func (r *Registry) RegisterEncoder(codec string, provider Provider, factory EncoderFactory) {
	codec = canonicalCodecID(codec)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoders[codec] == nil {
		r.encoders[codec] = make(map[Provider]EncoderFactory)
	}
	r.encoders[codec][provider] = factory

	current, exists := r.encoderDefaults[codec]
	if !exists || preferProvider(provider, current) {
		r.encoderDefaults[codec] = provider
	}
}

// SetDefaultDecoderProvider sets the default provider for a codec.
func (r *Registry) SetDefaultDecoderProvider(codec string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoderDefaults[canonicalCodecID(codec)] = provider
}

// SetDefaultEncoderProvider sets the default provider for a codec.
func (r *Registry) SetDefaultEncoderProvider(codec string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoderDefaults[canonicalCodecID(codec)] = provider
}

// NewDecoder creates a decoder backend. Lookup failures wrap
// ErrCodecNotSupported or ErrProviderNotFound.
func (r *Registry) NewDecoder(config AudioDecoderConfig) (AudioDecoderBackend, error) {
	codec := canonicalCodecID(config.Codec)

	r.mu.RLock()
	providers := r.decoders[codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.decoderDefaults[codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no decoders for %q", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %q", ErrProviderNotFound, p, config.Codec)
	}

	return factory(config)
}

// NewEncoder creates an encoder backend.
func (r *Registry) NewEncoder(config AudioEncoderConfig) (AudioEncoderBackend, error) {
	codec := canonicalCodecID(config.Codec)

	r.mu.RLock()
	providers := r.encoders[codec]
	p := config.Provider
	if p == ProviderAuto {
		p = r.encoderDefaults[codec]
	}
	factory, ok := providers[p]
	r.mu.RUnlock()

	if providers == nil {
		return nil, fmt.Errorf("%w: no encoders for %q", ErrCodecNotSupported, config.Codec)
	}
	if !ok || !p.Available() {
		return nil, fmt.Errorf("%w: %s for %q", ErrProviderNotFound, p, config.Codec)
	}

	return factory(config)
}

// DecoderProviders returns available providers for a codec.
func (r *Registry) DecoderProviders(codec string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.decoders[canonicalCodecID(codec)]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	slices.Sort(result)
	return result
}

// EncoderProviders returns available providers for a codec.
func (r *Registry) EncoderProviders(codec string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.encoders[canonicalCodecID(codec)]
	result := make([]Provider, 0, len(providers))
	for p := range providers {
		if p.Available() {
			result = append(result, p)
		}
	}
	slices.Sort(result)
	return result
}

// DecoderCodecs lists codec ids with at least one available decoder.
func (r *Registry) DecoderCodecs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return availableCodecs(r.decoders)
}

// EncoderCodecs lists codec ids with at least one available encoder.
func (r *Registry) EncoderCodecs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return availableCodecs(r.encoders)
}

func availableCodecs[F any](m map[string]map[Provider]F) []string {
	result := make([]string, 0, len(m))
	for codec, providers := range m {
		for p := range providers {
			if p.Available() {
				result = append(result, codec)
				break
			}
		}
	}
	slices.Sort(result)
	return result
}
