package otdht

import "github.com/lightninglabs/gozmq"

// gozmqSocket adapts a *gozmq.Conn to the Socket interface. gozmq is
// a pure-Go ZMTP client (no CGo libzmq dependency), the same role it
// plays in other_examples/manifests/gcash-bchwallet's own
// block-notification bridge: a DEALER or SUB connection addressed by
// a plain tcp:// endpoint, read with ReadMessage and written with
// SendMessage.
type gozmqSocket struct {
	conn *gozmq.Conn
}

// DialDealer opens an outbound DEALER-style connection to a remote
// OTDHT endpoint (spec §4.7: "one outbound dealer socket to the
// remote").
func DialDealer(address string) (Socket, error) {
	conn, err := gozmq.NewConn(address, gozmq.DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	return &gozmqSocket{conn: conn}, nil
}

// DialSubscriber opens a SUB connection to address and subscribes to
// topic (spec §4.7: "one subscribe socket for the remote's
// block-notification topic").
func DialSubscriber(address, topic string) (Socket, error) {
	conn, err := gozmq.NewConn(address, gozmq.DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	if err := conn.Subscribe(topic); err != nil {
		conn.Close()
		return nil, err
	}
	return &gozmqSocket{conn: conn}, nil
}

func (s *gozmqSocket) Send(frames [][]byte) error {
	return s.conn.SendMessage(frames...)
}

func (s *gozmqSocket) Recv() ([][]byte, error) {
	return s.conn.ReadMessage()
}

func (s *gozmqSocket) Close() error { return s.conn.Close() }
