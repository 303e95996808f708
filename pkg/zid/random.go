package zid

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/zeusync/zid/pkg/generic"
)

const randomBufferSize = 8 * 1024

// randomBuffer amortizes crypto/rand reads. A buffer is only ever held by one
// goroutine at a time, see randomPool.
type randomBuffer struct {
	buf [randomBufferSize]byte
	pos int
}

func newRandomBuffer() *randomBuffer {
	// Start exhausted so the first read fills it.
	return &randomBuffer{pos: randomBufferSize}
}

func (b *randomBuffer) nextUint16() uint16 {
	if b.pos+2 > len(b.buf) {
		// crypto/rand.Read does not return on failure.
		_, _ = rand.Read(b.buf[:])
		b.pos = 0
	}
	v := binary.BigEndian.Uint16(b.buf[b.pos:])
	b.pos += 2
	return v
}

// randomPool hands out buffers per P, which is as close to thread local storage as Go gets.
var randomPool = generic.NewPool(newRandomBuffer)

// nextRandomUint16 returns a uniformly random 16 bit value.
func nextRandomUint16() uint16 {
	return generic.With(randomPool, (*randomBuffer).nextUint16)
}
