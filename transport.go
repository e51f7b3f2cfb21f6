package roomcast

import "github.com/roomcast/roomcast/engineio"

// Transport is the byte-level capability the engine consumes: send a frame,
// receive frames, close, and observe closure. The production implementation
// is an engineio session; tests substitute in-memory fakes.
type Transport interface {
	ID() string
	Send(data []byte) error
	Close(reason string)
	Closed() bool
	OnMessage(fn func([]byte))
	OnClose(fn func(reason string))
}

// sessionTransport adapts an engineio session to the Transport interface,
// framing every payload as a message packet.
type sessionTransport struct {
	session *engineio.Session
}

func (t sessionTransport) ID() string { return t.session.ID() }

func (t sessionTransport) Send(data []byte) error {
	return t.session.Send(&engineio.Packet{
		Type: engineio.PacketTypeMessage,
		Data: data,
	})
}

func (t sessionTransport) Close(reason string)          { t.session.Close(reason) }
func (t sessionTransport) Closed() bool                 { return t.session.Closed() }
func (t sessionTransport) OnMessage(fn func([]byte))    { t.session.OnMessage(fn) }
func (t sessionTransport) OnClose(fn func(string))      { t.session.OnClose(fn) }
