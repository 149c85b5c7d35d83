package webcodecs

// CodecState is the lifecycle state of a decoder or encoder.
type CodecState int32

const (
	StateUnconfigured CodecState = iota // Created or reset, no backend
	StateConfigured                     // Configure accepted
	StateClosed                         // Terminal
)

func (s CodecState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
