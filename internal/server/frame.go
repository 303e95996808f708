package server

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const frameHeaderSize = 4

// ReadFrame reads one 4 byte big-endian length prefixed frame.
func ReadFrame(r io.Reader, maxSize int64) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if int64(size) > maxSize {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d bytes, limit %d", size, maxSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "read frame payload")
	}
	return payload, nil
}

// WriteFrame writes payload behind its length prefix in a single write.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}
