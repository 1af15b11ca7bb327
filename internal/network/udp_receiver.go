package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
	"deskpilot/internal/motion"
	"deskpilot/internal/protocol"
)

// Target applies relayed input. *desktop.Desktop implements it.
type Target interface {
	Move(p input.Point) error
	SmoothMove(ctx context.Context, p input.Point) (motion.Stats, error)
	Toggle(down bool, b input.Button) error
	PostKey(code keycode.Code, down bool) error
}

// ReceiverStats counts packets seen by a UDPReceiver.
type ReceiverStats struct {
	Received    uint64
	Applied     uint64
	Duplicates  uint64
	RateLimited uint64
	Rejected    uint64
}

// ReceiverOptions tunes a UDPReceiver. Zero values select defaults.
type ReceiverOptions struct {
	// Token, when set, must sign every Register packet.
	Token         string
	RatePerSecond float64
	Burst         int
	PeerTimeout   time.Duration
	Logger        *zap.Logger
}

// UDPReceiver listens for binary input packets from registered senders and
// applies them to a Target.
//
// Senders must register before their input is accepted. With a token
// configured, registrations must be signed with it. Peers that stop
// sending heartbeats are dropped after PeerTimeout.
type UDPReceiver struct {
	addr        string
	token       string
	target      Target
	limiter     *rate.Limiter
	peerTimeout time.Duration
	logger      *zap.Logger

	conn *net.UDPConn

	peersMu sync.Mutex
	peers   map[string]*udpPeer

	received, applied, duplicates, limited, rejected atomic.Uint64
}

type udpPeer struct {
	addr     *net.UDPAddr
	lastSeen time.Time
	dedup    seqDedup
}

// seqDedup tracks recently seen sequence numbers to discard redundant packets.
// Uses a fixed-size ring buffer, so lookups are O(1) and nothing is allocated
// after construction. Sequence 0 is never recorded.
type seqDedup struct {
	ring [512]uint32
	pos  int
	seen map[uint32]struct{}
}

func newSeqDedup() seqDedup {
	return seqDedup{seen: make(map[uint32]struct{}, 512)}
}

func (d *seqDedup) isDuplicate(seq uint32) bool {
	if _, ok := d.seen[seq]; ok {
		return true
	}
	// Evict oldest entry
	old := d.ring[d.pos]
	if old != 0 {
		delete(d.seen, old)
	}
	d.ring[d.pos] = seq
	if seq != 0 {
		d.seen[seq] = struct{}{}
	}
	d.pos = (d.pos + 1) % len(d.ring)
	return false
}

// NewUDPReceiver creates a receiver bound to addr ("host:port") once Listen
// is called.
func NewUDPReceiver(addr string, target Target, opts ReceiverOptions) *UDPReceiver {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2000
	}
	if opts.Burst <= 0 {
		opts.Burst = 200
	}
	if opts.PeerTimeout <= 0 {
		opts.PeerTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &UDPReceiver{
		addr:        addr,
		token:       opts.Token,
		target:      target,
		limiter:     rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		peerTimeout: opts.PeerTimeout,
		logger:      opts.Logger,
		peers:       make(map[string]*udpPeer),
	}
}

// Listen binds the UDP socket and returns its local address.
func (r *UDPReceiver) Listen() (net.Addr, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", r.addr)
	if err != nil {
		return nil, fmt.Errorf("resolve relay address %q: %w", r.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen relay %q: %w", r.addr, err)
	}
	// 1 MB read buffer for bursts
	_ = conn.SetReadBuffer(1 << 20)
	r.conn = conn
	r.logger.Info("relay listening", zap.Stringer("addr", conn.LocalAddr()))
	return conn.LocalAddr(), nil
}

// Serve receives packets until ctx is cancelled. Listen is called first if
// it has not been already.
func (r *UDPReceiver) Serve(ctx context.Context) error {
	if r.conn == nil {
		if _, err := r.Listen(); err != nil {
			return err
		}
	}
	conn := r.conn

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		r.cleanupLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return r.readLoop(gctx, conn)
	})
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
		err = nil
	}
	r.logger.Info("relay stopped")
	return err
}

// readLoop reads and dispatches incoming packets.
func (r *UDPReceiver) readLoop(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, 64)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			continue
		}
		r.received.Add(1)

		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			r.rejected.Add(1)
			r.logger.Debug("dropping malformed packet", zap.Stringer("from", from), zap.Error(err))
			continue
		}
		r.handle(ctx, conn, from, pkt)
	}
}

func (r *UDPReceiver) handle(ctx context.Context, conn *net.UDPConn, from *net.UDPAddr, pkt *protocol.UDPPacket) {
	key := from.String()

	switch pkt.Type {
	case protocol.UDPPacketRegister:
		if r.token != "" && !protocol.VerifyRegister(pkt, r.token) {
			r.rejected.Add(1)
			r.logger.Warn("relay registration with bad token", zap.String("peer", key))
			return
		}
		r.touch(key, from)
		// Reply with Ack so the sender can confirm the UDP path
		ack := &protocol.UDPPacket{
			Type:      protocol.UDPPacketAck,
			Seq:       pkt.Seq,
			Timestamp: time.Now().UnixMilli(),
		}
		if _, err := conn.WriteToUDP(protocol.EncodeUDPPacket(ack), from); err != nil {
			r.logger.Warn("ack failed", zap.String("peer", key), zap.Error(err))
		}
		return
	case protocol.UDPPacketHeartbeat:
		if !r.refresh(key) {
			r.rejected.Add(1)
		}
		return
	case protocol.UDPPacketAck:
		r.rejected.Add(1)
		return
	}

	r.peersMu.Lock()
	peer, ok := r.peers[key]
	dup := ok && peer.dedup.isDuplicate(pkt.Seq)
	r.peersMu.Unlock()
	switch {
	case !ok:
		r.rejected.Add(1)
		r.logger.Debug("input from unregistered peer", zap.String("peer", key))
		return
	case dup:
		r.duplicates.Add(1)
		return
	case !r.limiter.Allow():
		r.limited.Add(1)
		return
	}

	if err := r.apply(ctx, pkt); err != nil {
		r.logger.Warn("relayed input failed",
			zap.String("peer", key), zap.Uint8("type", pkt.Type), zap.Uint32("seq", pkt.Seq), zap.Error(err))
		return
	}
	r.applied.Add(1)
}

// apply runs one input packet. Smooth moves block the receive loop until
// they finish.
func (r *UDPReceiver) apply(ctx context.Context, pkt *protocol.UDPPacket) error {
	switch pkt.Type {
	case protocol.UDPPacketMove:
		return r.target.Move(input.Point{X: int(pkt.X), Y: int(pkt.Y)})
	case protocol.UDPPacketSmoothMove:
		_, err := r.target.SmoothMove(ctx, input.Point{X: int(pkt.X), Y: int(pkt.Y)})
		return err
	case protocol.UDPPacketButton:
		b := input.Button(pkt.Button)
		if !b.Valid() {
			return fmt.Errorf("%w: %d", input.ErrInvalidButton, pkt.Button)
		}
		return r.target.Toggle(pkt.Pressed == 1, b)
	case protocol.UDPPacketKey:
		return r.target.PostKey(keycode.Code(pkt.KeyCode), pkt.Pressed == 1)
	}
	return protocol.ErrUnknownPacket
}

func (r *UDPReceiver) touch(key string, addr *net.UDPAddr) {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	if p, ok := r.peers[key]; ok {
		p.lastSeen = time.Now()
		return
	}
	r.peers[key] = &udpPeer{addr: addr, lastSeen: time.Now(), dedup: newSeqDedup()}
	r.logger.Info("relay peer registered", zap.String("peer", key))
}

// refresh marks a registered peer as alive. It reports false for unknown
// peers, which must register first.
func (r *UDPReceiver) refresh(key string) bool {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	p, ok := r.peers[key]
	if ok {
		p.lastSeen = time.Now()
	}
	return ok
}

// cleanupLoop removes peers that haven't sent a heartbeat recently.
func (r *UDPReceiver) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(r.peerTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.expire(time.Now())
		case <-ctx.Done():
			return
		}
	}
}

func (r *UDPReceiver) expire(now time.Time) {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	for key, p := range r.peers {
		if now.Sub(p.lastSeen) > r.peerTimeout {
			r.logger.Info("removing stale relay peer", zap.String("peer", key))
			delete(r.peers, key)
		}
	}
}

// Peers returns the addresses of registered senders.
func (r *UDPReceiver) Peers() []string {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	out := make([]string, 0, len(r.peers))
	for key := range r.peers {
		out = append(out, key)
	}
	return out
}

// Stats returns packet counters.
func (r *UDPReceiver) Stats() ReceiverStats {
	return ReceiverStats{
		Received:    r.received.Load(),
		Applied:     r.applied.Load(),
		Duplicates:  r.duplicates.Load(),
		RateLimited: r.limited.Load(),
		Rejected:    r.rejected.Load(),
	}
}
