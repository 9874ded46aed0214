package fdbridge

import (
	"io"
	"sync"
)

// Channel exchanges serialized values over a Transport. Send and Receive
// may be called from different goroutines; concurrent Sends are serialised
// so frames never interleave.
type Channel struct {
	transport  Transport
	serializer Serializer

	sendMu sync.Mutex
	recvMu sync.Mutex
}

// NewChannel creates a MessagePack channel over rw, for example one end of
// a socketpair whose other end is registered for the runtime.
func NewChannel(rw io.ReadWriteCloser) *Channel {
	return NewChannelWith(NewMsgpackTransport(rw, rw), MsgpackSerializer{})
}

// NewChannelWith creates a channel from an explicit transport and serializer.
func NewChannelWith(transport Transport, serializer Serializer) *Channel {
	return &Channel{transport: transport, serializer: serializer}
}

// Send serializes v and writes it as one frame.
func (c *Channel) Send(v any) error {
	data, err := c.serializer.Marshal(v)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.Send(data)
}

// Receive reads one frame and decodes it into v. It returns io.EOF once the
// peer has closed its end.
func (c *Channel) Receive(v any) error {
	c.recvMu.Lock()
	data, err := c.transport.Receive()
	c.recvMu.Unlock()
	if err != nil {
		return err
	}
	return c.serializer.Unmarshal(data, v)
}

// Close closes the underlying transport.
func (c *Channel) Close() error {
	return c.transport.Close()
}
