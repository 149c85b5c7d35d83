package webcodecs

import (
	"context"
	"errors"
)

// OutputCallback receives decoded audio in CanonicalFormat. The callee owns
// the value.
type OutputCallback func(*AudioData)

// AudioDecoder turns encoded audio chunks into AudioData without blocking
// the caller. Work runs on a worker pool, one job at a time per decoder, so
// outputs arrive in submission order.
//
// Callbacks run on pool workers. They may call back into the decoder
// (Decode, Reset, Close), but must not wait on Flush without a deadline.
type AudioDecoder struct {
	core   *codecCore[AudioDecoderBackend]
	output OutputCallback

	keyRequired bool // Guarded by core.mu
}

// NewAudioDecoder creates an unconfigured decoder.
func NewAudioDecoder(output OutputCallback, onError ErrorCallback, options ...Option) (*AudioDecoder, error) {
	if output == nil {
		return nil, errors.New("output callback is required")
	}
	if onError == nil {
		return nil, errors.New("error callback is required")
	}

	d := &AudioDecoder{
		core:        newCodecCore[AudioDecoderBackend]("decoder", onError, options),
		output:      output,
		keyRequired: true,
	}
	d.core.queue.handlers = [messageKindCount]messageHandler{
		messageConfigure: func(m *controlMessage) outcome {
			return d.core.dispatch(m, func() { d.runConfigure(m) })
		},
		messageDecode: func(m *controlMessage) outcome {
			return d.core.dispatch(m, func() { d.runDecode(m) })
		},
		messageFlush: func(m *controlMessage) outcome {
			return d.core.dispatch(m, func() { d.runFlush(m) })
		},
	}
	return d, nil
}

// IsConfigSupported applies the same check as Configure, without side
// effects.
func (d *AudioDecoder) IsConfigSupported(config AudioDecoderConfig) bool {
	return IsDecoderConfigSupported(config)
}

// Configure validates config and schedules backend creation. A malformed
// config fails with TypeError and leaves the decoder untouched. Backend
// creation failures arrive later on the error callback as NotSupportedError.
func (d *AudioDecoder) Configure(config AudioDecoderConfig) error {
	if err := config.Validate(); err != nil {
		return newError(TypeError, "configure", err)
	}

	c := d.core
	c.mu.Lock()
	defer c.unlock()

	if c.state == StateClosed {
		return errorf(InvalidStateError, "configure", "decoder is closed")
	}
	c.state = StateConfigured
	d.keyRequired = true

	cfg := config.Clone()
	c.enqueueLocked(&controlMessage{kind: messageConfigure, decoderConfig: &cfg})
	return nil
}

// Decode schedules chunk for decoding. The first chunk after Configure or
// Flush must be a key chunk.
func (d *AudioDecoder) Decode(chunk *EncodedAudioChunk) error {
	if chunk == nil {
		return errorf(TypeError, "decode", "nil chunk")
	}

	c := d.core
	c.mu.Lock()
	defer c.unlock()

	if err := c.requireConfigured("decode"); err != nil {
		return err
	}
	if d.keyRequired && !chunk.IsKey() {
		err := errorf(DecodeError, "decode", "key chunk required, got %s", chunk.Type)
		c.deferError(err)
		return err
	}
	d.keyRequired = false

	c.enqueueLocked(&controlMessage{kind: messageDecode, chunk: chunk.Clone()})
	return nil
}

// Flush waits until every chunk decoded so far has been delivered and the
// backend has released its buffered output, or until ctx is done. The next
// chunk decoded after a flush must be a key chunk.
func (d *AudioDecoder) Flush(ctx context.Context) error {
	return d.core.flush(ctx, func() { d.keyRequired = true })
}

// Reset drops pending work and the backend. The decoder must be configured
// again before decoding.
func (d *AudioDecoder) Reset() error {
	return d.core.reset()
}

// Close releases the decoder for good. Calling it again does nothing.
func (d *AudioDecoder) Close() error {
	return d.core.close()
}

func (d *AudioDecoder) State() CodecState {
	return d.core.currentState()
}

// DecodeQueueSize returns the number of accepted chunks not yet decoded.
func (d *AudioDecoder) DecodeQueueSize() int {
	return d.core.currentQueueSize()
}

func (d *AudioDecoder) runConfigure(m *controlMessage) {
	backend, err := d.core.registry.NewDecoder(*m.decoderConfig)
	if err != nil {
		d.core.configureFailed(m.generation, newError(NotSupportedError, "configure", err))
		return
	}
	d.core.install(m.generation, backend)
}

func (d *AudioDecoder) runDecode(m *controlMessage) {
	c := d.core

	var (
		units   []*AudioData
		failure *CodecError
	)
	stale := c.slot.with(m.generation, func(b AudioDecoderBackend, present bool) {
		if !present {
			failure = errorf(InvalidStateError, "decode", "no backend")
			return
		}
		if err := b.Submit(m.chunk); err != nil {
			failure = newError(DecodeError, "decode", err)
			return
		}
		c.slot.lastTimestamp = m.chunk.Timestamp
		units, failure = receiveDecoded(b, m.chunk.Timestamp, "decode")
	})
	if stale {
		return
	}

	d.emit(m.generation, units)
	if failure != nil {
		c.fail(m.generation, failure)
	}
}

func (d *AudioDecoder) runFlush(m *controlMessage) {
	c := d.core

	var (
		units   []*AudioData
		failure *CodecError
	)
	stale := c.slot.with(m.generation, func(b AudioDecoderBackend, present bool) {
		if !present {
			failure = errorf(InvalidStateError, "flush", "no backend")
			return
		}
		if err := b.SignalEndOfStream(); err != nil {
			failure = newError(DecodeError, "flush", err)
			return
		}
		units, failure = receiveDecoded(b, c.slot.lastTimestamp, "flush")
	})
	if !stale {
		d.emit(m.generation, units)
	}
	c.completeFlush(m, failure)
}

// emit delivers units until the generation goes stale.
func (d *AudioDecoder) emit(gen uint64, units []*AudioData) {
	for _, unit := range units {
		if !d.core.live(gen) {
			return
		}
		d.output(unit)
		d.core.metrics.outputDelivered(d.core.name)
	}
}

// receiveDecoded drains b, converting each unit to CanonicalFormat and
// stamping it with timestamp. Called with the slot held.
func receiveDecoded(b AudioDecoderBackend, timestamp int64, op string) ([]*AudioData, *CodecError) {
	raw, err := receiveAll(b.Receive)
	units := make([]*AudioData, 0, len(raw))
	for _, unit := range raw {
		converted, cerr := ConvertAudioData(unit, CanonicalFormat)
		if cerr != nil {
			return units, newError(InternalError, op, cerr)
		}
		converted.Timestamp = timestamp
		units = append(units, converted)
	}
	if err != nil {
		return units, newError(DecodeError, op, err)
	}
	return units, nil
}
