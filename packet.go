package roomcast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PacketType enumerates the protocol packet types exchanged on top of the
// transport layer.
type PacketType int

const (
	PacketTypeConnect PacketType = iota
	PacketTypeDisconnect
	PacketTypeEvent
	PacketTypeAck
	PacketTypeConnectError
)

// Packet is the unit of the protocol: a type, a namespace, an optional
// acknowledgment id and a JSON-serializable body. Event packets carry
// [eventName, args...] as their body.
type Packet struct {
	Type      PacketType
	Namespace string
	Data      any
	ID        *int64
}

// newEventPacket builds an event packet with the event name prepended to the
// argument list, matching the on-wire body layout.
func newEventPacket(namespace, event string, args []any) *Packet {
	body := make([]any, 0, len(args)+1)
	body = append(body, event)
	body = append(body, args...)

	return &Packet{
		Type:      PacketTypeEvent,
		Namespace: namespace,
		Data:      body,
	}
}

// Encode renders the packet as text: type digit, optional namespace followed
// by a comma, optional ack id, optional JSON body.
func (p *Packet) Encode() (string, error) {
	var b strings.Builder

	b.WriteString(strconv.Itoa(int(p.Type)))

	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}

	if p.ID != nil {
		b.WriteString(strconv.FormatInt(*p.ID, 10))
	}

	if p.Data != nil {
		body, err := json.Marshal(p.Data)
		if err != nil {
			return "", fmt.Errorf("encode packet body: %w", err)
		}
		b.Write(body)
	}

	return b.String(), nil
}

// DecodePacket parses a packet in the format produced by Encode. The
// namespace defaults to "/" when absent.
func DecodePacket(data string) (*Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty packet")
	}

	p := &Packet{Namespace: "/"}

	pos := 0
	if data[pos] < '0' || data[pos] > '4' {
		return nil, fmt.Errorf("invalid packet type %q", data[pos])
	}
	p.Type = PacketType(data[pos] - '0')
	pos++

	if pos >= len(data) {
		return p, nil
	}

	if data[pos] == '/' {
		end := strings.IndexByte(data[pos:], ',')
		if end == -1 {
			p.Namespace = data[pos:]
			return p, nil
		}
		p.Namespace = data[pos : pos+end]
		pos += end + 1
	}

	if pos >= len(data) {
		return p, nil
	}

	if data[pos] >= '0' && data[pos] <= '9' {
		end := pos
		for end < len(data) && data[end] >= '0' && data[end] <= '9' {
			end++
		}
		id, err := strconv.ParseInt(data[pos:end], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ack id: %w", err)
		}
		p.ID = &id
		pos = end
	}

	if pos < len(data) {
		if err := json.Unmarshal([]byte(data[pos:]), &p.Data); err != nil {
			return nil, fmt.Errorf("decode packet body: %w", err)
		}
	}

	return p, nil
}

// eventBody splits an event packet body into its name and arguments. Returns
// false when the body is not a well-formed event payload.
func (p *Packet) eventBody() (string, []any, bool) {
	body, ok := p.Data.([]any)
	if !ok || len(body) == 0 {
		return "", nil, false
	}
	name, ok := body[0].(string)
	if !ok {
		return "", nil, false
	}
	return name, body[1:], true
}

func (pt PacketType) String() string {
	switch pt {
	case PacketTypeConnect:
		return "connect"
	case PacketTypeDisconnect:
		return "disconnect"
	case PacketTypeEvent:
		return "event"
	case PacketTypeAck:
		return "ack"
	case PacketTypeConnectError:
		return "connect_error"
	default:
		return "unknown"
	}
}
