package ipc

import (
	"encoding/binary"
	"io"

	"github.com/nispor/nipart/pkg/nperr"
)

// MaxFrameLength bounds a single frame's payload; exceeding it fails
// with IpcMessageTooLarge.
const MaxFrameLength = 16 * 1024 * 1024

// WriteFrame writes a single length-prefixed frame: a 4-byte big-endian
// length followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return nperr.IpcMessageTooLarge.Newf("frame of %d bytes exceeds max %d", len(payload), MaxFrameLength)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return translateIOErr(err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return translateIOErr(err)
	}
	return nil
}

// ReadFrame reads a single length-prefixed frame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, translateIOErr(err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameLength {
		return nil, nperr.IpcMessageTooLarge.Newf("frame of %d bytes exceeds max %d", length, MaxFrameLength)
	}
	if length == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, translateIOErr(err)
	}
	return payload, nil
}

func translateIOErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nperr.IpcClosed.New(err)
	}
	return nperr.IpcFailure.New(err)
}
