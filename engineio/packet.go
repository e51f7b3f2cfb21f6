package engineio

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PacketType represents transport-level packet types.
type PacketType byte

const (
	PacketTypeOpen PacketType = iota
	PacketTypeClose
	PacketTypePing
	PacketTypePong
	PacketTypeMessage
	PacketTypeUpgrade
	PacketTypeNoop
)

// Packet is a transport frame: one type byte followed by an opaque payload.
// The payload of message packets belongs to the protocol layer above.
type Packet struct {
	Type PacketType
	Data []byte
}

// Encode encodes the packet to bytes.
func (p *Packet) Encode() []byte {
	out := make([]byte, 0, len(p.Data)+1)
	out = append(out, byte('0'+p.Type))
	out = append(out, p.Data...)
	return out
}

// DecodePacket decodes bytes into a packet.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet")
	}

	if data[0] < '0' || data[0] > '6' {
		return nil, fmt.Errorf("invalid packet type: %c", data[0])
	}

	p := &Packet{Type: PacketType(data[0] - '0')}
	if len(data) > 1 {
		p.Data = data[1:]
	}
	return p, nil
}

// HandshakeData is the payload of the open packet sent to a freshly upgraded
// connection.
type HandshakeData struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// EncodeHandshake builds an open packet describing the session parameters.
// Intervals are expressed in milliseconds on the wire.
func EncodeHandshake(sid string, pingInterval, pingTimeout, maxPayload int) ([]byte, error) {
	data, err := json.Marshal(HandshakeData{
		SID:          sid,
		Upgrades:     []string{},
		PingInterval: pingInterval,
		PingTimeout:  pingTimeout,
		MaxPayload:   maxPayload,
	})
	if err != nil {
		return nil, err
	}

	p := &Packet{Type: PacketTypeOpen, Data: data}
	return p.Encode(), nil
}

func (pt PacketType) String() string {
	switch pt {
	case PacketTypeOpen:
		return "open"
	case PacketTypeClose:
		return "close"
	case PacketTypePing:
		return "ping"
	case PacketTypePong:
		return "pong"
	case PacketTypeMessage:
		return "message"
	case PacketTypeUpgrade:
		return "upgrade"
	case PacketTypeNoop:
		return "noop"
	default:
		return "unknown(" + strconv.Itoa(int(pt)) + ")"
	}
}
