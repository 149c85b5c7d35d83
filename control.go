package webcodecs

import "sync"

// messageKind tags the variant a controlMessage carries.
type messageKind uint8

const (
	messageConfigure messageKind = iota
	messageDecode
	messageEncode
	messageFlush
	messageKindCount
)

func (k messageKind) String() string {
	switch k {
	case messageConfigure:
		return "configure"
	case messageDecode:
		return "decode"
	case messageEncode:
		return "encode"
	case messageFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// outcome is the result of asking a message to process.
type outcome uint8

const (
	processed    outcome = iota // Handed to the work pool; pop it
	notProcessed                // Blocked; leave it at the head
)

// controlMessage is a pending operation. Exactly one payload field is set,
// matching kind. The generation is the backend slot generation at enqueue
// time.
type controlMessage struct {
	kind       messageKind
	generation uint64

	decoderConfig *AudioDecoderConfig // messageConfigure (decoder)
	encoderConfig *AudioEncoderConfig // messageConfigure (encoder)
	chunk         *EncodedAudioChunk  // messageDecode
	data          *AudioData          // messageEncode
	flush         *flushRequest       // messageFlush
}

// messageHandler processes the head message of a queue.
type messageHandler func(*controlMessage) outcome

// controlQueue is the ordered list of pending messages of one codec
// instance. It is not safe for concurrent use; the owning codec guards it.
type controlQueue struct {
	messages []*controlMessage
	blocked  bool
	handlers [messageKindCount]messageHandler
}

// enqueue appends m and immediately tries to drain.
func (q *controlQueue) enqueue(m *controlMessage) {
	q.messages = append(q.messages, m)
	q.process()
}

// process drains messages in FIFO order until the queue is empty, blocked,
// or the head reports notProcessed.
func (q *controlQueue) process() {
	for !q.blocked && len(q.messages) > 0 {
		head := q.messages[0]
		if h := q.handlers[head.kind]; h != nil && h(head) == notProcessed {
			return
		}
		q.messages[0] = nil
		q.messages = q.messages[1:]
	}
}

// clear drops every pending message and returns them.
func (q *controlQueue) clear() []*controlMessage {
	dropped := q.messages
	q.messages = nil
	return dropped
}

func (q *controlQueue) len() int {
	return len(q.messages)
}

// flushRequest carries the result of a flush back to the caller waiting in
// Flush.
type flushRequest struct {
	once sync.Once
	done chan error
}

func newFlushRequest() *flushRequest {
	return &flushRequest{done: make(chan error, 1)}
}

// complete delivers err to the waiter. Only the first call has an effect.
func (f *flushRequest) complete(err error) {
	f.once.Do(func() {
		f.done <- err
	})
}
