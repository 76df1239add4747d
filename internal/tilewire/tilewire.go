// Package tilewire implements the binary tile response format: an 8-byte
// little-endian header of two uint32 values (point count, child mask)
// followed by the raw tile payload. The payload length is not framed; it is
// whatever follows the header in the response body.
package tilewire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
)

// HeaderSize is the length of the fixed tile header.
const HeaderSize = 8

var ErrShort = errors.New("tile body shorter than header")

// Append appends the wire form of t to dst.
func Append(dst []byte, t model.Tile) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, t.NumPoints)
	dst = binary.LittleEndian.AppendUint32(dst, t.ChildMask)
	return append(dst, t.Data...)
}

// Encode returns the wire form of t.
func Encode(t model.Tile) []byte {
	return Append(make([]byte, 0, HeaderSize+len(t.Data)), t)
}

// Decode parses a tile body. The returned payload aliases b.
func Decode(b []byte) (model.Tile, error) {
	if len(b) < HeaderSize {
		return model.Tile{}, fmt.Errorf("%w: %d bytes", ErrShort, len(b))
	}
	t := model.Tile{
		NumPoints: binary.LittleEndian.Uint32(b[0:4]),
		ChildMask: binary.LittleEndian.Uint32(b[4:8]),
	}
	if len(b) > HeaderSize {
		t.Data = b[HeaderSize:]
	}
	return t, nil
}
