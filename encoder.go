package webcodecs

import (
	"context"
	"errors"
)

// EncodedOutputCallback receives encoded chunks. The callee owns the value.
type EncodedOutputCallback func(*EncodedAudioChunk)

// AudioEncoder turns AudioData into encoded chunks without blocking the
// caller. It mirrors AudioDecoder: same state machine, same queue, same
// callback rules.
type AudioEncoder struct {
	core   *codecCore[AudioEncoderBackend]
	output EncodedOutputCallback
}

// NewAudioEncoder creates an unconfigured encoder.
func NewAudioEncoder(output EncodedOutputCallback, onError ErrorCallback, options ...Option) (*AudioEncoder, error) {
	if output == nil {
		return nil, errors.New("output callback is required")
	}
	if onError == nil {
		return nil, errors.New("error callback is required")
	}

	e := &AudioEncoder{
		core:   newCodecCore[AudioEncoderBackend]("encoder", onError, options),
		output: output,
	}
	e.core.queue.handlers = [messageKindCount]messageHandler{
		messageConfigure: func(m *controlMessage) outcome {
			return e.core.dispatch(m, func() { e.runConfigure(m) })
		},
		messageEncode: func(m *controlMessage) outcome {
			return e.core.dispatch(m, func() { e.runEncode(m) })
		},
		messageFlush: func(m *controlMessage) outcome {
			return e.core.dispatch(m, func() { e.runFlush(m) })
		},
	}
	return e, nil
}

// IsConfigSupported applies the same check as Configure, without side
// effects.
func (e *AudioEncoder) IsConfigSupported(config AudioEncoderConfig) bool {
	return IsEncoderConfigSupported(config)
}

// Configure validates config and schedules backend creation.
func (e *AudioEncoder) Configure(config AudioEncoderConfig) error {
	if err := config.Validate(); err != nil {
		return newError(TypeError, "configure", err)
	}

	c := e.core
	c.mu.Lock()
	defer c.unlock()

	if c.state == StateClosed {
		return errorf(InvalidStateError, "configure", "encoder is closed")
	}
	c.state = StateConfigured

	cfg := config
	c.enqueueLocked(&controlMessage{kind: messageConfigure, encoderConfig: &cfg})
	return nil
}

// Encode schedules data for encoding. The samples are copied; data may be
// reused once Encode returns.
func (e *AudioEncoder) Encode(data *AudioData) error {
	if data == nil {
		return errorf(TypeError, "encode", "nil audio data")
	}
	if err := data.Validate(); err != nil {
		return newError(TypeError, "encode", err)
	}

	c := e.core
	c.mu.Lock()
	defer c.unlock()

	if err := c.requireConfigured("encode"); err != nil {
		return err
	}
	c.enqueueLocked(&controlMessage{kind: messageEncode, data: data.Clone()})
	return nil
}

// Flush waits until everything encoded so far, including partial frames
// held by the backend, has been delivered, or until ctx is done.
func (e *AudioEncoder) Flush(ctx context.Context) error {
	return e.core.flush(ctx, nil)
}

func (e *AudioEncoder) Reset() error {
	return e.core.reset()
}

// Close releases the encoder for good. Calling it again does nothing.
func (e *AudioEncoder) Close() error {
	return e.core.close()
}

func (e *AudioEncoder) State() CodecState {
	return e.core.currentState()
}

// EncodeQueueSize returns the number of accepted inputs not yet encoded.
func (e *AudioEncoder) EncodeQueueSize() int {
	return e.core.currentQueueSize()
}

func (e *AudioEncoder) runConfigure(m *controlMessage) {
	backend, err := e.core.registry.NewEncoder(*m.encoderConfig)
	if err != nil {
		e.core.configureFailed(m.generation, newError(NotSupportedError, "configure", err))
		return
	}
	e.core.install(m.generation, backend)
}

func (e *AudioEncoder) runEncode(m *controlMessage) {
	c := e.core

	input, err := ConvertAudioData(m.data, SampleFormatS16)
	if err != nil {
		c.fail(m.generation, newError(EncodingError, "encode", err))
		return
	}

	var (
		chunks  []*EncodedAudioChunk
		failure *CodecError
	)
	stale := c.slot.with(m.generation, func(b AudioEncoderBackend, present bool) {
		if !present {
			failure = errorf(InvalidStateError, "encode", "no backend")
			return
		}
		if err := b.Submit(input); err != nil {
			failure = newError(EncodingError, "encode", err)
			return
		}
		chunks, failure = receiveEncoded(b, "encode")
	})
	if stale {
		return
	}

	e.emit(m.generation, chunks)
	if failure != nil {
		c.fail(m.generation, failure)
	}
}

func (e *AudioEncoder) runFlush(m *controlMessage) {
	c := e.core

	var (
		chunks  []*EncodedAudioChunk
		failure *CodecError
	)
	stale := c.slot.with(m.generation, func(b AudioEncoderBackend, present bool) {
		if !present {
			failure = errorf(InvalidStateError, "flush", "no backend")
			return
		}
		if err := b.SignalEndOfStream(); err != nil {
			failure = newError(EncodingError, "flush", err)
			return
		}
		chunks, failure = receiveEncoded(b, "flush")
	})
	if !stale {
		e.emit(m.generation, chunks)
	}
	c.completeFlush(m, failure)
}

func (e *AudioEncoder) emit(gen uint64, chunks []*EncodedAudioChunk) {
	for _, chunk := range chunks {
		if !e.core.live(gen) {
			return
		}
		e.output(chunk)
		e.core.metrics.outputDelivered(e.core.name)
	}
}

func receiveEncoded(b AudioEncoderBackend, op string) ([]*EncodedAudioChunk, *CodecError) {
	chunks, err := receiveAll(b.Receive)
	if err != nil {
		return chunks, newError(EncodingError, op, err)
	}
	return chunks, nil
}
