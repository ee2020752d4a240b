package chain

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var ErrReleased = errors.New("buffer released")

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// Buffer is an in-memory byte stream written once then read, possibly more
// than once. Its memory goes back to a pool with Release.
type Buffer struct {
	buf *bytes.Buffer
	off int64
}

func NewBuffer() *Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &Buffer{
		buf: buf,
	}
}

func (b *Buffer) Write(p []byte) (int, error) {
	if b.buf == nil {
		return 0, ErrReleased
	}
	return b.buf.Write(p)
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.buf == nil {
		return 0, ErrReleased
	}
	data := b.buf.Bytes()
	if b.off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[b.off:])
	b.off += int64(n)
	return n, nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	if b.buf == nil {
		return 0, ErrReleased
	}
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = b.off + offset
	case io.SeekEnd:
		pos = int64(b.buf.Len()) + offset
	default:
		return 0, errors.New("seek: invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.off = pos
	return pos, nil
}

// Rewind moves the read position back to the start.
func (b *Buffer) Rewind() {
	b.off = 0
}

// Bytes returns the unread bytes. They are only valid until Release.
func (b *Buffer) Bytes() []byte {
	if b.buf == nil {
		return nil
	}
	data := b.buf.Bytes()
	if b.off >= int64(len(data)) {
		return nil
	}
	return data[b.off:]
}

func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Release gives the memory of the buffer back. Calling Release more than
// once is harmless.
func (b *Buffer) Release() {
	if b == nil || b.buf == nil {
		return
	}
	bufferPool.Put(b.buf)
	b.buf = nil
	b.off = 0
}
