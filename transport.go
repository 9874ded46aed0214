package fdbridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize caps the payload length accepted by Receive.
const MaxFrameSize = 16 << 20

// frameBufferSize is the pooled buffer size for frame payloads.
const frameBufferSize = 8192

// ErrFrameTooLarge is returned for frames whose length prefix exceeds
// MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Serializer defines the interface for message encoding and decoding.
// Implementations convert between Go values and byte slices for transport.
type Serializer interface {
	// Marshal encodes a Go value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes bytes into a Go value.
	Unmarshal(data []byte, v any) error
}

// Transport defines the interface for sending and receiving byte messages.
// Implementations handle the wire protocol (framing, buffering, etc.).
type Transport interface {
	// Send transmits one message.
	Send(data []byte) error

	// Receive reads one complete message.
	Receive() ([]byte, error)

	// Close releases the underlying reader and writer.
	Close() error

	// Flush ensures any buffered data is sent immediately.
	Flush() error
}

// MsgpackSerializer encodes values with MessagePack.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// MsgpackTransport frames messages with a 4-byte big-endian length prefix.
// The same framing is used by the fdbridge_frames runtime module, so a host
// Channel and a script can talk over one descriptor pair.
type MsgpackTransport struct {
	reader     io.Reader
	writer     io.Writer
	bufferPool *BufferPool
}

// NewMsgpackTransport frames messages over reader and writer. Either may be
// nil for a one-directional transport.
func NewMsgpackTransport(reader io.Reader, writer io.Writer) *MsgpackTransport {
	return &MsgpackTransport{
		reader:     reader,
		writer:     writer,
		bufferPool: NewBufferPool(frameBufferSize, 10),
	}
}

func (mt *MsgpackTransport) Send(data []byte) error {
	if mt.writer == nil {
		return fmt.Errorf("%w: transport has no writer", ErrInvalidArgument)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	// Small frames go out in a single write so concurrent readers never see
	// a prefix without its payload.
	if len(data)+4 <= mt.bufferPool.Size() {
		buf := mt.bufferPool.Get()
		defer mt.bufferPool.Put(buf)
		binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
		n := copy(buf[4:], data)
		if _, err := mt.writer.Write(buf[:4+n]); err != nil {
			return err
		}
		return mt.Flush()
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := mt.writer.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := mt.writer.Write(data); err != nil {
		return err
	}
	return mt.Flush()
}

// Receive reads the next frame. A clean end of stream before a frame starts
// returns io.EOF. A stream cut inside a frame returns io.ErrUnexpectedEOF.
func (mt *MsgpackTransport) Receive() ([]byte, error) {
	if mt.reader == nil {
		return nil, fmt.Errorf("%w: transport has no reader", ErrInvalidArgument)
	}

	var prefix [4]byte
	if _, err := io.ReadFull(mt.reader, prefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	// For small messages, use buffer pool
	if int(length) <= mt.bufferPool.Size() {
		buf := mt.bufferPool.Get()
		defer mt.bufferPool.Put(buf)
		if _, err := io.ReadFull(mt.reader, buf[:length]); err != nil {
			return nil, unexpectedEOF(err)
		}
		result := make([]byte, length)
		copy(result, buf)
		return result, nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(mt.reader, data); err != nil {
		return nil, unexpectedEOF(err)
	}
	return data, nil
}

// Close closes the reader and writer when they are io.Closers. A single
// io.ReadWriteCloser used for both directions is closed once.
func (mt *MsgpackTransport) Close() error {
	var errs []error
	rc, rok := mt.reader.(io.Closer)
	if rok {
		errs = append(errs, rc.Close())
	}
	if wc, ok := mt.writer.(io.Closer); ok && (!rok || any(wc) != any(rc)) {
		errs = append(errs, wc.Close())
	}
	return errors.Join(errs...)
}

func (mt *MsgpackTransport) Flush() error {
	if flusher, ok := mt.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
