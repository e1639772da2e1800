package otdht

// Socket is the minimal capability the peer actor needs from a ZeroMQ
// transport: send a multipart message, receive the next one, and
// close. github.com/lightninglabs/gozmq's Conn (the teacher-adjacent
// dependency named in SPEC_FULL.md's DOMAIN STACK, pinned by
// other_examples/manifests/gcash-bchwallet's direct dependency on it
// for bridging a ZMQ pub/sub transport to in-process chain workers)
// only exposes a read-oriented subscriber surface; DEALER-style
// bidirectional sockets are wrapped behind this narrower interface so
// the peer actor itself never depends on gozmq's concrete types, only
// on send/recv/close. See DESIGN.md for the gozmq API-shape caveat.
type Socket interface {
	Send(frames [][]byte) error
	Recv() ([][]byte, error)
	Close() error
}

// chanSocket is an in-process Socket used by tests and the in-process
// transport variant spec §6 allows ("plus an in-process channel for
// test").
type chanSocket struct {
	out chan<- [][]byte
	in  <-chan [][]byte
}

// NewChanSocketPair returns two Sockets wired to each other, for tests
// driving the peer actor without a real ZMQ endpoint.
func NewChanSocketPair(buffer int) (a, b Socket) {
	ab := make(chan [][]byte, buffer)
	ba := make(chan [][]byte, buffer)
	return &chanSocket{out: ab, in: ba}, &chanSocket{out: ba, in: ab}
}

func (s *chanSocket) Send(frames [][]byte) error {
	s.out <- frames
	return nil
}

func (s *chanSocket) Recv() ([][]byte, error) {
	frames, ok := <-s.in
	if !ok {
		return nil, errSocketClosed
	}
	return frames, nil
}

func (s *chanSocket) Close() error { return nil }
