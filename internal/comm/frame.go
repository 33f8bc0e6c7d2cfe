package comm

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
)

// Tag identifies the semantic meaning of a point-to-point message.
// Application code should use small values; the top of the range is
// reserved for the collective operations built on top of Send/IRecv.
type Tag uint8

const (
	TagBarrier Tag = 255
	TagBcast   Tag = 254
	TagGather  Tag = 253
)

// frameHeaderSize is [Tag:1][From:2][Len:4].
const frameHeaderSize = 7

func writeFrame(w io.Writer, tag Tag, from int, payload []byte) error {
	var hdr [frameHeaderSize]byte
	hdr[0] = byte(tag)
	binary.BigEndian.PutUint16(hdr[1:3], uint16(from))
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (tag Tag, from int, payload []byte, err error) {
	var hdr [frameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, nil, err
	}
	tag = Tag(hdr[0])
	from = int(binary.BigEndian.Uint16(hdr[1:3]))
	n := binary.BigEndian.Uint32(hdr[3:7])
	if n == 0 {
		return tag, from, nil, nil
	}
	payload = make([]byte, n)
	_, err = io.ReadFull(r, payload)
	return tag, from, payload, err
}

func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(payload []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(payload)).Decode(v)
}
