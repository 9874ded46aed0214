package fdbridge

// BufferPool hands out fixed-size byte slices for the redirect relays and the
// frame transport. A pool is a buffered channel, so Get and Put never block.
type BufferPool struct {
	pool    chan []byte
	bufSize int
}

// NewBufferPool creates a pool holding up to count buffers of bufSize bytes.
// The pool starts empty and fills as buffers are returned.
func NewBufferPool(bufSize, count int) *BufferPool {
	if bufSize <= 0 {
		bufSize = DefaultChunkSize
	}
	if count < 0 {
		count = 0
	}
	return &BufferPool{
		pool:    make(chan []byte, count),
		bufSize: bufSize,
	}
}

// Size reports the length of the buffers handed out by Get.
func (bp *BufferPool) Size() int {
	return bp.bufSize
}

// Get returns a pooled buffer of Size bytes, allocating when the pool is empty.
func (bp *BufferPool) Get() []byte {
	select {
	case buf := <-bp.pool:
		return buf[:bp.bufSize]
	default:
		return make([]byte, bp.bufSize)
	}
}

// Put returns buf to the pool. Buffers of a foreign capacity, or arriving
// while the pool is full, are dropped.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.bufSize {
		return
	}
	select {
	case bp.pool <- buf[:bp.bufSize]:
	default:
	}
}
