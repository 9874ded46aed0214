package fdbridge

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Seq  int    `msgpack:"seq"`
	Body string `msgpack:"body"`
}

func TestChannelConcurrentSends(t *testing.T) {
	a, b := net.Pipe()
	sender, receiver := NewChannel(a), NewChannel(b)
	defer receiver.Close()

	const senders, perSender = 4, 50
	var wg sync.WaitGroup
	for s := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perSender {
				assert.NoError(t, sender.Send(frame{Seq: s*perSender + i, Body: "payload"}))
			}
		}()
	}
	go func() {
		wg.Wait()
		sender.Close()
	}()

	seen := make(map[int]bool)
	for {
		var f frame
		err := receiver.Receive(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, "payload", f.Body)
		seen[f.Seq] = true
	}
	assert.Len(t, seen, senders*perSender)
}

type failingSerializer struct{}

func (failingSerializer) Marshal(any) ([]byte, error)  { return nil, errors.New("cannot encode") }
func (failingSerializer) Unmarshal([]byte, any) error { return errors.New("cannot decode") }

func TestChannelSerializerErrors(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ch := NewChannelWith(NewMsgpackTransport(a, a), failingSerializer{})
	assert.EqualError(t, ch.Send("x"), "cannot encode")

	go func() {
		NewMsgpackTransport(b, b).Send([]byte{0xc0})
	}()
	var v any
	assert.EqualError(t, ch.Receive(&v), "cannot decode")
}
