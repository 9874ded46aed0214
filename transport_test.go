package fdbridge

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgpackTransportFrames(t *testing.T) {
	var wire bytes.Buffer
	tr := NewMsgpackTransport(&wire, &wire)

	small := []byte("hello")
	large := bytes.Repeat([]byte{0xAB}, frameBufferSize*3)
	require.NoError(t, tr.Send(small))
	require.NoError(t, tr.Send(large))
	require.NoError(t, tr.Send(nil))

	assert.Equal(t, uint32(len(small)), binary.BigEndian.Uint32(wire.Bytes()[:4]))

	got, err := tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, small, got)

	got, err = tr.Receive()
	require.NoError(t, err)
	assert.Equal(t, large, got)

	got, err = tr.Receive()
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = tr.Receive()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMsgpackTransportTruncatedFrame(t *testing.T) {
	var wire bytes.Buffer
	wire.Write([]byte{0, 0, 0, 10})
	wire.WriteString("abc")

	_, err := NewMsgpackTransport(&wire, nil).Receive()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestMsgpackTransportRejectsOversizedFrame(t *testing.T) {
	var wire bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], MaxFrameSize+1)
	wire.Write(prefix[:])

	_, err := NewMsgpackTransport(&wire, nil).Receive()
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	err = NewMsgpackTransport(nil, &wire).Send(make([]byte, MaxFrameSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMsgpackTransportMissingEnds(t *testing.T) {
	_, err := NewMsgpackTransport(nil, nil).Receive()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, NewMsgpackTransport(nil, nil).Send([]byte("x")), ErrInvalidArgument)
}

type countingCloser struct {
	bytes.Buffer
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestMsgpackTransportCloseOnce(t *testing.T) {
	rw := &countingCloser{}
	require.NoError(t, NewMsgpackTransport(rw, rw).Close())
	assert.Equal(t, 1, rw.closes)

	r, w := &countingCloser{}, &countingCloser{}
	require.NoError(t, NewMsgpackTransport(r, w).Close())
	assert.Equal(t, 1, r.closes)
	assert.Equal(t, 1, w.closes)

	require.NoError(t, NewMsgpackTransport(&bytes.Buffer{}, nil).Close())
}

func TestMsgpackSerializer(t *testing.T) {
	type payload struct {
		Name string         `msgpack:"name"`
		Tags []string       `msgpack:"tags"`
		Meta map[string]int `msgpack:"meta"`
	}
	in := payload{Name: "inout", Tags: []string{"a", "b"}, Meta: map[string]int{"fd": 3}}

	var s MsgpackSerializer
	data, err := s.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, s.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
