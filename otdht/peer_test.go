package otdht

import (
	"testing"
	"time"

	"github.com/openxnode/chaincore/chain"
	"github.com/stretchr/testify/require"
)

type recordingWorker struct {
	chain     chain.Chain
	delivered []Message
}

func (w *recordingWorker) Chain() chain.Chain { return w.chain }
func (w *recordingWorker) Deliver(m Message)  { w.delivered = append(w.delivered, m) }

// TestRegistrationFlushesQueuedMessagesInOrder exercises spec §8's
// "OTDHT registration flush" property and end-to-end scenario 6: three
// sync_reply messages arrive before the chain worker registers, then
// registration arrives; all three must reach the worker in FIFO order
// before anything later.
func TestRegistrationFlushesQueuedMessagesInOrder(t *testing.T) {
	p := New(Config{Endpoint: "inproc://remote"})
	worker := &recordingWorker{chain: chain.Bitcoin}
	p.AddChain(worker)

	for i := 0; i < 3; i++ {
		p.HandleIngress(Message{Type: TypeSyncReply, Chain: chain.Bitcoin, Body: []byte{byte(i)}})
	}
	require.Empty(t, worker.delivered, "messages must queue until registration")

	p.Registration(chain.Bitcoin)
	require.Len(t, worker.delivered, 3)
	for i, m := range worker.delivered {
		require.Equal(t, byte(i), m.Body[0])
	}

	p.HandleIngress(Message{Type: TypeSyncReply, Chain: chain.Bitcoin, Body: []byte{99}})
	require.Len(t, worker.delivered, 4)
	require.Equal(t, byte(99), worker.delivered[3].Body[0])
}

// TestRegistrationForwardsPriorAcknowledgement covers spec §4.7
// Registration: "if the last Acknowledgement from the remote covered
// that chain, forwards the acknowledgement too."
func TestRegistrationForwardsPriorAcknowledgement(t *testing.T) {
	p := New(Config{Endpoint: "inproc://remote"})
	worker := &recordingWorker{chain: chain.BitcoinCash}
	p.AddChain(worker)

	p.HandleIngress(Message{
		Type:   TypeAcknowledgement,
		States: []State{{Chain: chain.BitcoinCash}},
	})
	require.Empty(t, worker.delivered)

	p.Registration(chain.BitcoinCash)
	require.Len(t, worker.delivered, 2) // queued ack + forwarded ack
	require.Equal(t, TypeAcknowledgement, worker.delivered[len(worker.delivered)-1].Type)
}

// TestSubscribeIsIdempotent covers spec §4.7 Subscription:
// "re-subscriptions are no-ops."
func TestSubscribeIsIdempotent(t *testing.T) {
	calls := 0
	p := New(Config{
		Endpoint: "inproc://remote",
		DialSubscriber: func(address, topic string) (Socket, error) {
			calls++
			a, _ := NewChanSocketPair(1)
			return a, nil
		},
	})

	p.HandleIngress(Message{Type: TypeAcknowledgement, Endpoint: "inproc://blocks"})
	p.HandleIngress(Message{Type: TypeAcknowledgement, Endpoint: "inproc://blocks"})
	require.Equal(t, 1, calls)
}

// TestEncodeDecodeRoundTrip covers the wire framing spec §6 requires:
// a type tag in the first frame and a decoder that rejects unknown
// tags.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := DataMessage(State{Chain: chain.Bitcoin}, []byte("blockbytes"))
	frame := Encode(msg)

	decoded, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, TypeData, decoded.Type)
	require.Equal(t, []byte("blockbytes"), decoded.Payload)
	require.Len(t, decoded.States, 1)
	require.Equal(t, chain.Bitcoin, decoded.States[0].Chain)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte{0xff})
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

// TestEgressUsesInProcessSocket exercises the in-process transport
// variant spec §6 allows for tests.
func TestEgressUsesInProcessSocket(t *testing.T) {
	a, b := NewChanSocketPair(4)
	p := New(Config{Endpoint: "inproc://remote", DialDealer: func(string) (Socket, error) { return a, nil }})
	require.NoError(t, p.Connect())

	require.NoError(t, p.Egress(Message{Type: TypeQuery}))

	select {
	case frames := <-recvFrom(t, b):
		m, err := Decode(frames[0])
		require.NoError(t, err)
		require.Equal(t, TypeQuery, m.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for egress frame")
	}
}

func recvFrom(t *testing.T, s Socket) <-chan [][]byte {
	t.Helper()
	ch := make(chan [][]byte, 1)
	go func() {
		frames, err := s.Recv()
		if err == nil {
			ch <- frames
		}
	}()
	return ch
}
