package webcodecs

import "strings"

// AudioCodec identifies a well-known audio codec. Backends register under
// codec id strings; AudioCodec gives the ids this package knows about a
// canonical spelling plus RTP metadata.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecPCMU8
	AudioCodecPCMS16
	AudioCodecPCMS32
	AudioCodecPCMF32
	AudioCodecULaw // G.711 μ-law (PCMU)
	AudioCodecALaw // G.711 A-law (PCMA)
	AudioCodecOpus
	AudioCodecMP3
	AudioCodecAAC
	AudioCodecFLAC
	AudioCodecVorbis
)

// codecAliases maps accepted spellings to codecs. Keys are lower case.
var codecAliases = map[string]AudioCodec{
	"pcm-u8":  AudioCodecPCMU8,
	"pcm-s16": AudioCodecPCMS16,
	"pcm16":   AudioCodecPCMS16,
	"pcm-s32": AudioCodecPCMS32,
	"pcm-f32": AudioCodecPCMF32,
	"ulaw":    AudioCodecULaw,
	"pcmu":    AudioCodecULaw,
	"alaw":    AudioCodecALaw,
	"pcma":    AudioCodecALaw,
	"opus":    AudioCodecOpus,
	"mp3":     AudioCodecMP3,
	"aac":     AudioCodecAAC,
	"mp4a":    AudioCodecAAC,
	"flac":    AudioCodecFLAC,
	"vorbis":  AudioCodecVorbis,
}

// ParseAudioCodec resolves a codec id, ignoring case and surrounding space.
// Unknown ids yield AudioCodecUnknown.
func ParseAudioCodec(id string) AudioCodec {
	id = normalizeCodecID(id)
	if c, ok := codecAliases[id]; ok {
		return c
	}
	// "mp4a.40.2" style strings name AAC profiles.
	if strings.HasPrefix(id, "mp4a.") {
		return AudioCodecAAC
	}
	return AudioCodecUnknown
}

// normalizeCodecID is the registry key form of a codec id.
func normalizeCodecID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// canonicalCodecID returns the registry key for id: the canonical spelling
// for known codecs, the normalized id otherwise.
func canonicalCodecID(id string) string {
	if c := ParseAudioCodec(id); c != AudioCodecUnknown {
		return c.String()
	}
	return normalizeCodecID(id)
}

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecPCMU8:
		return "pcm-u8"
	case AudioCodecPCMS16:
		return "pcm-s16"
	case AudioCodecPCMS32:
		return "pcm-s32"
	case AudioCodecPCMF32:
		return "pcm-f32"
	case AudioCodecULaw:
		return "ulaw"
	case AudioCodecALaw:
		return "alaw"
	case AudioCodecOpus:
		return "opus"
	case AudioCodecMP3:
		return "mp3"
	case AudioCodecAAC:
		return "aac"
	case AudioCodecFLAC:
		return "flac"
	case AudioCodecVorbis:
		return "vorbis"
	default:
		return "unknown"
	}
}

// MimeType returns the RTP MIME type for this codec, or "" if it has none.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "audio/opus"
	case AudioCodecULaw:
		return "audio/PCMU"
	case AudioCodecALaw:
		return "audio/PCMA"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c AudioCodec) ClockRate() uint32 {
	switch c {
	case AudioCodecOpus:
		return 48000
	case AudioCodecULaw, AudioCodecALaw:
		return 8000
	default:
		return 48000
	}
}

// DefaultPayloadType returns a typical payload type for this codec.
// Note: Actual payload type is negotiated via SDP.
func (c AudioCodec) DefaultPayloadType() uint8 {
	switch c {
	case AudioCodecOpus:
		return 111
	case AudioCodecALaw:
		return 8 // Static payload type
	case AudioCodecULaw:
		return 0 // Static payload type
	default:
		return 96
	}
}
