package webcodecs

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// DefaultMTU is the packet size limit used when none is given.
const DefaultMTU = 1200

// RTPPacket is an alias to pion's rtp.Packet
type RTPPacket = rtp.Packet

// RTPChunker turns the RTP packets of one audio stream into chunks for an
// AudioDecoder. RTP timestamps are unwrapped and rebased so the first packet
// yields timestamp 0.
type RTPChunker struct {
	codec     AudioCodec
	clockRate uint32
	opus      codecs.OpusPacket

	mu       sync.Mutex
	started  bool
	lastRTP  uint32
	extended int64 // Unwrapped ticks since the first packet
}

// NewRTPChunker creates a chunker for codec, which must have an RTP mapping.
func NewRTPChunker(codec AudioCodec) (*RTPChunker, error) {
	if codec.MimeType() == "" {
		return nil, fmt.Errorf("%w: no RTP mapping for %s", ErrCodecNotSupported, codec)
	}
	return &RTPChunker{codec: codec, clockRate: codec.ClockRate()}, nil
}

// Chunk converts one packet. Packets with an empty payload (padding,
// keepalives) yield a nil chunk and no error.
func (c *RTPChunker) Chunk(packet *RTPPacket) (*EncodedAudioChunk, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(packet.Payload) == 0 {
		return nil, nil
	}
	payload := packet.Payload
	if c.codec == AudioCodecOpus {
		var err error
		if payload, err = c.opus.Unmarshal(packet.Payload); err != nil {
			return nil, fmt.Errorf("opus payload: %w", err)
		}
	}
	if len(payload) == 0 {
		return nil, nil
	}

	if !c.started {
		c.started = true
	} else {
		c.extended += int64(int32(packet.Timestamp - c.lastRTP))
	}
	c.lastRTP = packet.Timestamp

	chunk := &EncodedAudioChunk{
		Type:      ChunkTypeKey, // Every supported RTP audio payload decodes on its own
		Timestamp: c.extended * 1_000_000 / int64(c.clockRate),
		Data:      append([]byte(nil), payload...),
	}
	if c.codec == AudioCodecULaw || c.codec == AudioCodecALaw {
		chunk.Duration = int64(len(payload)) * 1_000_000 / int64(c.clockRate)
	}
	return chunk, nil
}

// ChunkBytes parses raw packet bytes and converts them.
func (c *RTPChunker) ChunkBytes(data []byte) (*EncodedAudioChunk, error) {
	var packet rtp.Packet
	if err := packet.Unmarshal(data); err != nil {
		return nil, err
	}
	return c.Chunk(&packet)
}

// Reset forgets the timestamp base; the next packet yields timestamp 0.
func (c *RTPChunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.extended = 0
}

// RTPPacketizer turns encoder output into RTP packets.
type RTPPacketizer struct {
	codec      AudioCodec
	clockRate  uint32
	packetizer rtp.Packetizer
	mu         sync.Mutex
}

// NewRTPPacketizer creates a packetizer for codec. A non-positive mtu
// selects DefaultMTU.
func NewRTPPacketizer(codec AudioCodec, ssrc uint32, payloadType uint8, mtu int) (*RTPPacketizer, error) {
	var payloader rtp.Payloader
	switch codec {
	case AudioCodecOpus:
		payloader = &codecs.OpusPayloader{}
	case AudioCodecULaw, AudioCodecALaw:
		payloader = &codecs.G711Payloader{}
	default:
		return nil, fmt.Errorf("%w: no RTP payloader for %s", ErrCodecNotSupported, codec)
	}
	if mtu <= 0 {
		mtu = DefaultMTU
	}

	return &RTPPacketizer{
		codec:     codec,
		clockRate: codec.ClockRate(),
		packetizer: rtp.NewPacketizer(
			uint16(mtu),
			payloadType,
			ssrc,
			payloader,
			rtp.NewRandomSequencer(),
			codec.ClockRate(),
		),
	}, nil
}

// Packetize converts one chunk. The RTP timestamp advances by the chunk's
// duration in clock ticks.
func (p *RTPPacketizer) Packetize(chunk *EncodedAudioChunk) []*RTPPacket {
	if chunk == nil || len(chunk.Data) == 0 {
		return nil
	}
	samples := uint32(chunk.Duration * int64(p.clockRate) / 1_000_000)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.packetizer.Packetize(chunk.Data, samples)
}

// PacketizeToBytes converts one chunk into marshalled packets.
func (p *RTPPacketizer) PacketizeToBytes(chunk *EncodedAudioChunk) ([][]byte, error) {
	packets := p.Packetize(chunk)
	result := make([][]byte, len(packets))
	for i, pkt := range packets {
		b, err := pkt.Marshal()
		if err != nil {
			return nil, err
		}
		result[i] = b
	}
	return result, nil
}
