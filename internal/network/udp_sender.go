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

	"deskpilot/internal/input"
	"deskpilot/internal/keycode"
	"deskpilot/internal/protocol"
)

// ErrNoAck is returned by Connect when the receiver never acknowledged
// registration.
var ErrNoAck = errors.New("relay: no ack from receiver")

const (
	handshakeAttempts = 3
	handshakeTimeout  = 500 * time.Millisecond
)

// UDPSender drives a remote UDPReceiver. It registers on Connect, keeps the
// registration alive with heartbeats, and sends input with redundancy for
// button and key events since UDP has no delivery guarantee.
type UDPSender struct {
	addr      string
	token     string
	heartbeat time.Duration
	logger    *zap.Logger

	conn *net.UDPConn
	seq  atomic.Uint32
	done chan struct{}
	wg   sync.WaitGroup
}

// NewUDPSender creates a sender for the receiver at addr ("host:port").
// token signs the registration and must match the receiver's.
func NewUDPSender(addr, token string, logger *zap.Logger) *UDPSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UDPSender{
		addr:      addr,
		token:     token,
		heartbeat: 5 * time.Second,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Connect registers with the receiver and waits for its Ack, retrying a few
// times. On success a heartbeat loop runs until Close.
func (s *UDPSender) Connect(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("resolve relay %q: %w", s.addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dial relay %q: %w", s.addr, err)
	}
	// 1 MB write buffer for burst writes
	_ = conn.SetWriteBuffer(1 << 20)

	if err := s.handshake(ctx, conn); err != nil {
		conn.Close()
		return err
	}
	s.conn = conn

	s.wg.Add(1)
	go s.heartbeatLoop()
	return nil
}

func (s *UDPSender) handshake(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, protocol.MaxUDPPacketSize)
	for attempt := 1; attempt <= handshakeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		seq := s.seq.Add(1)
		if _, err := conn.Write(s.control(protocol.UDPPacketRegister, seq)); err != nil {
			return fmt.Errorf("register: %w", err)
		}

		deadline := time.Now().Add(handshakeTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = conn.SetReadDeadline(deadline)
		n, err := conn.Read(buf)
		if err != nil {
			continue // timeout or error, retry
		}
		resp, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil || resp.Type != protocol.UDPPacketAck {
			continue
		}
		_ = conn.SetReadDeadline(time.Time{})
		s.logger.Info("relay registered", zap.String("addr", s.addr), zap.Int("attempt", attempt))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w after %d attempts (%s)", ErrNoAck, handshakeAttempts, s.addr)
}

func (s *UDPSender) control(t uint8, seq uint32) []byte {
	pkt := &protocol.UDPPacket{
		Type:      t,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
	}
	if t == protocol.UDPPacketRegister {
		protocol.SignRegister(pkt, s.token)
	}
	return protocol.EncodeUDPPacket(pkt)
}

// heartbeatLoop sends periodic heartbeat packets to keep the registration alive.
func (s *UDPSender) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := s.conn.Write(s.control(protocol.UDPPacketHeartbeat, 0)); err != nil {
				s.logger.Debug("heartbeat failed", zap.Error(err))
			}
		case <-s.done:
			return
		}
	}
}

// Move places the remote pointer at p.
func (s *UDPSender) Move(p input.Point) error {
	return s.send(&protocol.UDPPacket{Type: protocol.UDPPacketMove, X: int32(p.X), Y: int32(p.Y)}, 1)
}

// SmoothMove asks the receiver to glide the pointer to p.
func (s *UDPSender) SmoothMove(p input.Point) error {
	return s.send(&protocol.UDPPacket{Type: protocol.UDPPacketSmoothMove, X: int32(p.X), Y: int32(p.Y)}, 2)
}

// Toggle presses or releases b on the receiver.
func (s *UDPSender) Toggle(down bool, b input.Button) error {
	if !b.Valid() {
		return fmt.Errorf("%w: %d", input.ErrInvalidButton, b)
	}
	return s.send(&protocol.UDPPacket{Type: protocol.UDPPacketButton, Button: uint8(b), Pressed: pressed(down)}, 3)
}

// Click sends a button press followed by its release.
func (s *UDPSender) Click(b input.Button) error {
	if err := s.Toggle(true, b); err != nil {
		return err
	}
	return s.Toggle(false, b)
}

// PostKey presses or releases a platform key code on the receiver.
func (s *UDPSender) PostKey(code keycode.Code, down bool) error {
	return s.send(&protocol.UDPPacket{Type: protocol.UDPPacketKey, KeyCode: uint32(code), Pressed: pressed(down)}, 3)
}

// send stamps pkt with the next sequence number and writes it redundancy
// times. The receiver drops the copies by sequence number.
func (s *UDPSender) send(pkt *protocol.UDPPacket, redundancy int) error {
	if s.conn == nil {
		return errors.New("relay: sender not connected")
	}
	pkt.Seq = s.seq.Add(1)
	pkt.Timestamp = time.Now().UnixMilli()
	data := protocol.EncodeUDPPacket(pkt)
	for i := 0; i < redundancy; i++ {
		if _, err := s.conn.Write(data); err != nil {
			return fmt.Errorf("relay send: %w", err)
		}
	}
	return nil
}

func pressed(down bool) uint8 {
	if down {
		return 1
	}
	return 0
}

// Close stops the heartbeat loop and closes the socket.
func (s *UDPSender) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	s.wg.Wait()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
