package tilewire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mohammed-shakir/pctile-server/internal/core/model"
)

func TestEncode_Absent(t *testing.T) {
	got := Encode(model.Absent)
	if want := make([]byte, 8); !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestEncode_LittleEndianHeader(t *testing.T) {
	got := Encode(model.Tile{NumPoints: 0x01020304, ChildMask: 0x0b, Data: []byte{0xaa, 0xbb}})
	want := []byte{0x04, 0x03, 0x02, 0x01, 0x0b, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestDecode(t *testing.T) {
	in := model.Tile{NumPoints: 42, ChildMask: 9, Data: []byte("payload")}
	out, err := Decode(Encode(in))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.NumPoints != 42 || out.ChildMask != 9 || string(out.Data) != "payload" {
		t.Fatalf("got %+v", out)
	}

	absent, err := Decode(make([]byte, 8))
	if err != nil || !absent.IsAbsent() {
		t.Fatalf("absent decode=%+v err=%v", absent, err)
	}
}

func TestDecode_Short(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); !errors.Is(err, ErrShort) {
		t.Fatalf("err=%v want ErrShort", err)
	}
}
