package otdht

import (
	"sync"
	"time"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/metrics"
)

// ChainWorker is the local, in-process endpoint the peer bridges
// traffic to/from for one chain (spec §4.7: "one dealer socket per
// supported chain, connected to that chain's OTDHT worker"). A real
// deployment's per-chain OTDHT worker implements this directly; tests
// use a recording fake.
type ChainWorker interface {
	// Chain is the chain this worker handles.
	Chain() chain.Chain
	// Deliver hands an ingress message to the worker. Called from the
	// peer's single goroutine; workers must not block.
	Deliver(Message)
}

// Peer is the long-lived actor bridging one remote OTDHT endpoint to
// the local process's per-chain workers (spec §4.7).
type Peer struct {
	endpoint string
	dialer   DealerOpener
	subOpen  SubscriberOpener

	pingInterval      time.Duration
	registrationRetry time.Duration

	log log.Logger

	mu               sync.Mutex
	dealer           Socket
	sub              Socket
	subscribed       bool
	lastAckByChain   map[chain.Chain]Message
	activeChains     map[chain.Chain]bool
	registeredChains map[chain.Chain]bool
	workers          map[chain.Chain]ChainWorker
	queued           map[chain.Chain][]Message // FIFO per spec's "OTDHT registration flush" property
	lastActivity     time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// DealerOpener and SubscriberOpener let tests substitute in-process
// sockets for a real gozmq dial.
type DealerOpener func(address string) (Socket, error)
type SubscriberOpener func(address, topic string) (Socket, error)

// Config configures a Peer. PingInterval and RegistrationRetry default
// to the SPEC_FULL §9 constants when zero, overridable from
// config.OTDHT.
type Config struct {
	Endpoint          string
	PingInterval      time.Duration
	RegistrationRetry time.Duration
	DialDealer        DealerOpener
	DialSubscriber    SubscriberOpener
}

// New constructs a Peer for one remote endpoint. Call Connect to open
// sockets and Run to start its loop.
func New(cfg Config) *Peer {
	ping := cfg.PingInterval
	if ping <= 0 {
		ping = DefaultPingInterval
	}
	retry := cfg.RegistrationRetry
	if retry <= 0 {
		retry = DefaultRegistrationRetry
	}
	dial := cfg.DialDealer
	if dial == nil {
		dial = DialDealer
	}
	subOpen := cfg.DialSubscriber
	if subOpen == nil {
		subOpen = DialSubscriber
	}
	return &Peer{
		endpoint:          cfg.Endpoint,
		dialer:            dial,
		subOpen:           subOpen,
		pingInterval:      ping,
		registrationRetry: retry,
		log:               log.New("component", "otdht.peer", "endpoint", cfg.Endpoint),
		lastAckByChain:    make(map[chain.Chain]Message),
		activeChains:      make(map[chain.Chain]bool),
		registeredChains:  make(map[chain.Chain]bool),
		workers:           make(map[chain.Chain]ChainWorker),
		queued:            make(map[chain.Chain][]Message),
		stop:              make(chan struct{}),
	}
}

// Connect opens the outbound dealer socket to the remote. The
// block-notification subscribe socket is opened lazily, on receipt of
// an Acknowledgement naming a subscription endpoint (spec §4.7
// Subscription).
func (p *Peer) Connect() error {
	sock, err := p.dialer(p.endpoint)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.dealer = sock
	p.lastActivity = time.Now()
	p.mu.Unlock()
	return nil
}

// AddChain registers w's chain as an active chain the peer should
// bridge and records w as its worker; it opens no socket. (spec §4.7: "Sets
// of active_chains, registered_chains, per-chain queues".)
func (p *Peer) AddChain(w ChainWorker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := w.Chain()
	p.activeChains[c] = true
	p.workers[c] = w
	metrics.OTDHTActiveChains.WithLabelValues(p.endpoint).Set(float64(len(p.activeChains)))
}

// Registration is signalled by a chain worker on startup (spec §4.7
// Registration). It flushes any queued messages for that chain in
// FIFO order, and forwards the last remote Acknowledgement covering
// that chain if one arrived before registration.
func (p *Peer) Registration(c chain.Chain) {
	p.mu.Lock()
	p.registeredChains[c] = true
	queued := p.queued[c]
	delete(p.queued, c)
	worker := p.workers[c]
	ack, ackCovered := p.lastAckByChain[c]
	metrics.OTDHTRegisteredChains.WithLabelValues(p.endpoint).Set(float64(len(p.registeredChains)))
	p.mu.Unlock()

	if worker == nil {
		return
	}
	for _, m := range queued {
		worker.Deliver(m)
	}
	if ackCovered {
		worker.Deliver(ack)
	}
}

// deliverOrQueue routes an ingress message to c's worker if registered,
// otherwise queues it for flush on Registration (spec §8 "OTDHT
// registration flush" property).
func (p *Peer) deliverOrQueue(c chain.Chain, m Message) {
	p.mu.Lock()
	worker, registered := p.workers[c], p.registeredChains[c]
	if !registered {
		p.queued[c] = append(p.queued[c], m)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	if worker != nil {
		worker.Deliver(m)
	}
}

// HandleIngress processes one decoded message received from the
// remote (spec §4.7 Ingress routing table).
func (p *Peer) HandleIngress(m Message) {
	p.mu.Lock()
	p.lastActivity = time.Now()
	p.mu.Unlock()

	switch m.Type {
	case TypeAcknowledgement:
		p.handleAcknowledgement(m)
		for _, s := range m.States {
			p.deliverOrQueue(s.Chain, m)
		}
	case TypeSyncReply, TypeNewBlockHeader, TypePushTransactionReply:
		p.deliverOrQueue(m.Chain, m)
	case TypeData:
		if len(m.States) > 0 {
			for _, s := range m.States {
				p.deliverOrQueue(s.Chain, m)
			}
		}
	case TypePublishAck, TypeContract:
		p.deliverOrQueue(m.Chain, m)
	}
}

func (p *Peer) handleAcknowledgement(m Message) {
	p.mu.Lock()
	for _, s := range m.States {
		p.lastAckByChain[s.Chain] = m
	}
	needSubscribe := m.Endpoint != "" && !p.subscribed
	endpoint := m.Endpoint
	if needSubscribe {
		p.subscribed = true
	}
	p.mu.Unlock()

	if needSubscribe {
		p.subscribeBlocks(endpoint)
	}
}

// subscribeBlocks opens the subscribe socket exactly once (spec §4.7
// Subscription: "re-subscriptions are no-ops").
func (p *Peer) subscribeBlocks(endpoint string) {
	sock, err := p.subOpen(endpoint, "block")
	if err != nil {
		p.log.Warn("subscribe failed", "endpoint", endpoint, "err", err)
		return
	}
	p.mu.Lock()
	p.sub = sock
	p.mu.Unlock()
}

// Egress forwards a locally-originated message (push_tx, sync_request)
// from a chain worker to the remote, stripping the internal chain
// header frame the dealer socket never sees (spec §4.7 Egress).
func (p *Peer) Egress(m Message) error {
	p.mu.Lock()
	dealer := p.dealer
	p.mu.Unlock()
	if dealer == nil {
		return errSocketClosed
	}
	return dealer.Send([][]byte{Encode(m)})
}

// Run starts the registration-retry and ping timers and the ingress
// read loop in background goroutines and returns at once; Stop ends
// them. Safe to call once.
func (p *Peer) Run() {
	p.wg.Add(2)
	go p.registrationLoop()
	go p.pingLoop()
	p.wg.Add(1)
	go p.recvLoop()
}

// Stop terminates all loops and closes sockets.
func (p *Peer) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dealer != nil {
		p.dealer.Close()
	}
	if p.sub != nil {
		p.sub.Close()
	}
}

// registrationLoop retries registration every RegistrationRetry until
// every active_chain is registered (spec §4.7 Registration).
func (p *Peer) registrationLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.registrationRetry)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			pending := make([]chain.Chain, 0)
			for c := range p.activeChains {
				if !p.registeredChains[c] {
					pending = append(pending, c)
				}
			}
			p.mu.Unlock()
			for _, c := range pending {
				p.Registration(c)
			}
		}
	}
}

// pingLoop sends a no-payload Query when nothing has arrived from the
// remote for PingInterval (spec §4.7 Ping).
func (p *Peer) pingLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pingInterval / 4)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			idle := time.Since(p.lastActivity)
			p.mu.Unlock()
			if idle >= p.pingInterval {
				_ = p.Egress(Message{Type: TypeQuery})
				p.mu.Lock()
				p.lastActivity = time.Now()
				p.mu.Unlock()
			}
		}
	}
}

// recvLoop reads frames off the dealer socket and dispatches them.
// Connection loss triggers a reconnect; the ping timer's notion of
// "last activity" is untouched by the reconnect itself (spec §4.7
// Failure).
func (p *Peer) recvLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		p.mu.Lock()
		dealer := p.dealer
		p.mu.Unlock()
		if dealer == nil {
			time.Sleep(p.registrationRetry)
			continue
		}
		frames, err := dealer.Recv()
		if err != nil {
			p.log.Warn("dealer recv failed, reconnecting", "err", err)
			p.reconnect()
			continue
		}
		if len(frames) == 0 {
			continue
		}
		m, err := Decode(frames[0])
		if err != nil {
			p.log.Debug("dropping malformed otdht frame", "err", err)
			continue
		}
		p.HandleIngress(m)
	}
}

func (p *Peer) reconnect() {
	sock, err := p.dialer(p.endpoint)
	if err != nil {
		p.log.Warn("reconnect failed", "err", err)
		time.Sleep(p.registrationRetry)
		return
	}
	p.mu.Lock()
	if p.dealer != nil {
		p.dealer.Close()
	}
	p.dealer = sock
	p.mu.Unlock()
}

// Acknowledge builds an outbound Acknowledgement listing this
// process's chain tips, used by the local side of the protocol (spec
// §6: "An Acknowledgement carries a list of per-chain State entries").
func Acknowledge(states []State, endpoint string) Message {
	return Message{Type: TypeAcknowledgement, States: states, Endpoint: endpoint}
}

// DataMessage builds an outbound Data message for a single chain's
// sync payload (spec §6: "A Data carries a single State plus the
// encoded blocks/headers").
func DataMessage(s State, payload []byte) Message {
	return Message{Type: TypeData, States: []State{s}, Payload: payload}
}
