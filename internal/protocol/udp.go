package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// UDP Packet types
const (
	UDPPacketMove       uint8 = 0x01
	UDPPacketButton     uint8 = 0x02
	UDPPacketSmoothMove uint8 = 0x03
	UDPPacketKey        uint8 = 0x04
	UDPPacketRegister   uint8 = 0x10
	UDPPacketHeartbeat  uint8 = 0x11
	UDPPacketAck        uint8 = 0x12 // receiver -> sender: registration accepted
)

// Header: [type(1)] [seq(4)] [timestamp(8)] = 13 bytes
const UDPHeaderSize = 13

// RegisterMACSize is the length of the authenticator carried by Register.
const RegisterMACSize = sha256.Size

// MaxUDPPacketSize is the largest packet the codec produces.
const MaxUDPPacketSize = UDPHeaderSize + RegisterMACSize

var (
	ErrShortPacket   = errors.New("udp: packet too short")
	ErrUnknownPacket = errors.New("udp: unknown packet type")
)

// UDPPacket represents a binary-encoded input event for low-latency UDP transport.
//
// Wire format per type:
//
//	Move       (0x01): header + x(int32) + y(int32)          = 21 bytes
//	Button     (0x02): header + button(uint8) + pressed(uint8) = 15 bytes
//	SmoothMove (0x03): header + x(int32) + y(int32)          = 21 bytes
//	Key        (0x04): header + code(uint32) + pressed(uint8)  = 18 bytes
//	Register   (0x10): header + mac(32)                      = 45 bytes
//	Heartbeat  (0x11): header only                           = 13 bytes
//	Ack        (0x12): header only                           = 13 bytes
type UDPPacket struct {
	Type      uint8
	Seq       uint32
	Timestamp int64
	X         int32  // move, smooth move
	Y         int32  // move, smooth move
	Button    uint8  // button (1=left, 2=right, 3=middle)
	Pressed   uint8  // button / key (1=pressed, 0=released)
	KeyCode   uint32 // platform key code
	MAC       []byte // register: HMAC-SHA256 of the header keyed by the shared token
}

// IsControl reports whether the packet manages the session rather than
// carrying input.
func (p *UDPPacket) IsControl() bool {
	switch p.Type {
	case UDPPacketRegister, UDPPacketHeartbeat, UDPPacketAck:
		return true
	}
	return false
}

func payloadSize(t uint8) (int, bool) {
	switch t {
	case UDPPacketMove, UDPPacketSmoothMove:
		return 8, true
	case UDPPacketButton:
		return 2, true
	case UDPPacketKey:
		return 5, true
	case UDPPacketRegister:
		return RegisterMACSize, true
	case UDPPacketHeartbeat, UDPPacketAck:
		return 0, true
	}
	return 0, false
}

// EncodeUDPPacket serializes a UDPPacket to wire format.
func EncodeUDPPacket(pkt *UDPPacket) []byte {
	n, _ := payloadSize(pkt.Type)
	buf := make([]byte, UDPHeaderSize+n)
	buf[0] = pkt.Type
	binary.BigEndian.PutUint32(buf[1:5], pkt.Seq)
	binary.BigEndian.PutUint64(buf[5:13], uint64(pkt.Timestamp))

	payload := buf[UDPHeaderSize:]
	switch pkt.Type {
	case UDPPacketMove, UDPPacketSmoothMove:
		binary.BigEndian.PutUint32(payload[0:4], uint32(pkt.X))
		binary.BigEndian.PutUint32(payload[4:8], uint32(pkt.Y))
	case UDPPacketButton:
		payload[0] = pkt.Button
		payload[1] = pkt.Pressed
	case UDPPacketKey:
		binary.BigEndian.PutUint32(payload[0:4], pkt.KeyCode)
		payload[4] = pkt.Pressed
	case UDPPacketRegister:
		copy(payload, pkt.MAC)
	}

	return buf
}

// DecodeUDPPacket deserializes wire bytes into a UDPPacket.
func DecodeUDPPacket(data []byte) (*UDPPacket, error) {
	if len(data) < UDPHeaderSize {
		return nil, ErrShortPacket
	}

	pkt := &UDPPacket{
		Type:      data[0],
		Seq:       binary.BigEndian.Uint32(data[1:5]),
		Timestamp: int64(binary.BigEndian.Uint64(data[5:13])),
	}

	n, ok := payloadSize(pkt.Type)
	if !ok {
		return nil, ErrUnknownPacket
	}
	payload := data[UDPHeaderSize:]
	if len(payload) < n {
		return nil, ErrShortPacket
	}

	switch pkt.Type {
	case UDPPacketMove, UDPPacketSmoothMove:
		pkt.X = int32(binary.BigEndian.Uint32(payload[0:4]))
		pkt.Y = int32(binary.BigEndian.Uint32(payload[4:8]))
	case UDPPacketButton:
		pkt.Button = payload[0]
		pkt.Pressed = payload[1]
	case UDPPacketKey:
		pkt.KeyCode = binary.BigEndian.Uint32(payload[0:4])
		pkt.Pressed = payload[4]
	case UDPPacketRegister:
		pkt.MAC = append([]byte(nil), payload[:RegisterMACSize]...)
	}

	return pkt, nil
}

// SignRegister stores in pkt the authenticator for its type, sequence
// number and timestamp, keyed by token.
func SignRegister(pkt *UDPPacket, token string) {
	pkt.MAC = registerMAC(pkt, token)
}

// VerifyRegister reports whether pkt is a Register signed with token.
func VerifyRegister(pkt *UDPPacket, token string) bool {
	if pkt.Type != UDPPacketRegister || len(pkt.MAC) != RegisterMACSize {
		return false
	}
	return hmac.Equal(pkt.MAC, registerMAC(pkt, token))
}

func registerMAC(pkt *UDPPacket, token string) []byte {
	var header [UDPHeaderSize]byte
	header[0] = pkt.Type
	binary.BigEndian.PutUint32(header[1:5], pkt.Seq)
	binary.BigEndian.PutUint64(header[5:13], uint64(pkt.Timestamp))
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(header[:])
	return mac.Sum(nil)
}
