// Package chunkio stores encoded audio chunks in a byte stream.
//
// A stream is a sequence of frames, each a 4-byte big-endian length followed
// by that many bytes. The first frame is a msgpack Header; every later frame
// is a msgpack chunk record. The same framing carries raw RTP packets when
// used through ReadFrame and WriteFrame directly.
package chunkio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/thesyncim/webcodecs"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds a single frame.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Header describes the codec of the chunks that follow it.
type Header struct {
	Codec            string `msgpack:"codec"`
	SampleRate       int    `msgpack:"sample_rate"`
	NumberOfChannels int    `msgpack:"channels"`
	Description      []byte `msgpack:"description,omitempty"`
}

// DecoderConfig returns the configuration needed to decode the stream.
func (h Header) DecoderConfig() webcodecs.AudioDecoderConfig {
	return webcodecs.AudioDecoderConfig{
		Codec:            h.Codec,
		SampleRate:       h.SampleRate,
		NumberOfChannels: h.NumberOfChannels,
		Description:      h.Description,
	}
}

type record struct {
	Key       bool   `msgpack:"key"`
	Timestamp int64  `msgpack:"ts"`
	Duration  int64  `msgpack:"dur"`
	Data      []byte `msgpack:"data"`
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. It returns io.EOF when the
// stream ends cleanly between frames and io.ErrUnexpectedEOF when it ends
// inside one.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// Writer writes a chunk stream.
type Writer struct {
	w           io.Writer
	wroteHeader bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader must be called once, before any chunk.
func (w *Writer) WriteHeader(h Header) error {
	if w.wroteHeader {
		return errors.New("header already written")
	}
	b, err := msgpack.Marshal(&h)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	if err := WriteFrame(w.w, b); err != nil {
		return err
	}
	w.wroteHeader = true
	return nil
}

func (w *Writer) WriteChunk(chunk *webcodecs.EncodedAudioChunk) error {
	if !w.wroteHeader {
		return errors.New("chunk written before header")
	}
	b, err := msgpack.Marshal(&record{
		Key:       chunk.IsKey(),
		Timestamp: chunk.Timestamp,
		Duration:  chunk.Duration,
		Data:      chunk.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return WriteFrame(w.w, b)
}

// Reader reads a chunk stream.
type Reader struct {
	r      io.Reader
	header *Header
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Header reads the stream header on first use.
func (r *Reader) Header() (Header, error) {
	if r.header != nil {
		return *r.header, nil
	}
	b, err := ReadFrame(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := msgpack.Unmarshal(b, &h); err != nil {
		return Header{}, fmt.Errorf("unmarshal header: %w", err)
	}
	r.header = &h
	return h, nil
}

// ReadChunk returns the next chunk, or io.EOF after the last one.
func (r *Reader) ReadChunk() (*webcodecs.EncodedAudioChunk, error) {
	if _, err := r.Header(); err != nil {
		return nil, err
	}
	b, err := ReadFrame(r.r)
	if err != nil {
		return nil, err
	}
	var rec record
	if err := msgpack.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal chunk: %w", err)
	}

	chunk := &webcodecs.EncodedAudioChunk{
		Type:      webcodecs.ChunkTypeDelta,
		Timestamp: rec.Timestamp,
		Duration:  rec.Duration,
		Data:      rec.Data,
	}
	if rec.Key {
		chunk.Type = webcodecs.ChunkTypeKey
	}
	return chunk, nil
}
