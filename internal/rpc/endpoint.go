package rpc

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// ListenAddr is one "<address> <port>" entry from the asab:raft `listen`
// config key (spec §6).
type ListenAddr struct {
	Addr string
	Port int
}

func (l ListenAddr) String() string {
	return fmt.Sprintf("%s:%d", l.Addr, l.Port)
}

// Datagram is one inbound UDP packet handed from a socket's read loop to
// the Runtime's single dispatch goroutine.
type Datagram struct {
	Data []byte
	From string // peer address, "host:port"
}

// Endpoint binds one or more UDP sockets (spec §4.1). The first bound
// socket is the primary socket: the sole egress for outbound sends.
// Additional sockets are receive-only.
//
// Go's net package has no non-blocking-socket-plus-reactor API like
// asyncio's add_reader; the idiomatic equivalent used here is one
// blocking-read goroutine per socket funnelling into a single channel,
// which a lone consumer (the Runtime's loop) drains — preserving the same
// "all reactor events serialized on one thread" property the spec asks
// for, just with the producer/consumer split expressed via goroutines and
// a channel instead of an event-loop callback.
type Endpoint struct {
	logger     *zap.Logger
	maxPayload int

	conns   []*net.UDPConn
	primary *net.UDPConn

	inbound chan Datagram
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewEndpoint binds a UDP socket for every listen address. Non-blocking is
// not meaningful for Go's net.UDPConn the way it is for a raw socket, so
// each connection gets its own blocking-read goroutine once Start is called.
func NewEndpoint(listen []ListenAddr, maxPayload int, logger *zap.Logger) (*Endpoint, error) {
	if len(listen) == 0 {
		return nil, fmt.Errorf("rpc: at least one listen address is required")
	}
	if maxPayload <= 0 {
		return nil, fmt.Errorf("rpc: max_rpc_payload_size must be positive")
	}

	e := &Endpoint{
		logger:     logger,
		maxPayload: maxPayload,
		inbound:    make(chan Datagram, 64),
		closeCh:    make(chan struct{}),
	}

	for _, l := range listen {
		udpAddr, err := net.ResolveUDPAddr("udp", l.String())
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("rpc: resolve %s: %w", l, err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			e.closeAll()
			return nil, fmt.Errorf("rpc: bind %s: %w", l, err)
		}
		e.conns = append(e.conns, conn)
		if e.primary == nil {
			e.primary = conn
		}
	}

	return e, nil
}

// Start launches one read-drain goroutine per bound socket.
func (e *Endpoint) Start() {
	for _, conn := range e.conns {
		e.wg.Add(1)
		go e.readLoop(conn)
	}
}

// readLoop drains one socket until it is closed, forwarding every
// (bytes, peer) pair to the shared inbound channel. Oversized datagrams
// (spec §4.2: "Frames exceeding max_rpc_payload_size are rejected on
// receive") are logged and dropped here, before the RPC layer ever sees
// them.
func (e *Endpoint) readLoop(conn *net.UDPConn) {
	defer e.wg.Done()
	buf := make([]byte, e.maxPayload+1)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.closeCh:
				return
			default:
				e.logger.Warn("udp read error", zap.Error(err), zap.String("local", conn.LocalAddr().String()))
				return
			}
		}
		if n > e.maxPayload {
			e.logger.Warn("dropping oversized datagram",
				zap.Int("size", n), zap.Int("max", e.maxPayload), zap.String("peer", addr.String()))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case e.inbound <- Datagram{Data: data, From: addr.String()}:
		case <-e.closeCh:
			return
		}
	}
}

// Inbound returns the channel of drained datagrams.
func (e *Endpoint) Inbound() <-chan Datagram {
	return e.inbound
}

// Send writes to peer on the primary socket unconditionally. A short write
// (n < len(b)) is logged, not retried, per spec §4.1.
func (e *Endpoint) Send(peer string, b []byte) error {
	addr, err := net.ResolveUDPAddr("udp", peer)
	if err != nil {
		return fmt.Errorf("rpc: resolve peer %s: %w", peer, err)
	}
	n, err := e.primary.WriteToUDP(b, addr)
	if err != nil {
		return fmt.Errorf("rpc: send to %s: %w", peer, err)
	}
	if n != len(b) {
		e.logger.Error("short write on send", zap.Int("sent", n), zap.Int("requested", len(b)), zap.String("peer", peer))
	}
	return nil
}

// PrimaryPort returns the bound port of the primary socket.
func (e *Endpoint) PrimaryPort() int {
	return e.primary.LocalAddr().(*net.UDPAddr).Port
}

func (e *Endpoint) closeAll() {
	for _, c := range e.conns {
		c.Close()
	}
}

// Close stops all read loops and closes every socket.
func (e *Endpoint) Close() error {
	close(e.closeCh)
	e.closeAll()
	e.wg.Wait()
	return nil
}
