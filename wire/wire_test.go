package wire

import (
	"bytes"
	"math/big"
	"testing"
)

func TestReadWriteString(t *testing.T) {
	cases := [][]byte{nil, []byte(""), []byte("hello"), bytes.Repeat([]byte{0xff}, 300)}
	for _, c := range cases {
		buf := PutString(nil, c)
		got, rest, err := ReadString(buf)
		if err != nil {
			t.Fatalf("ReadString(%q): %v", c, err)
		}
		if len(rest) != 0 {
			t.Fatalf("ReadString(%q): unexpected trailing bytes %v", c, rest)
		}
		if !bytes.Equal(got, c) && !(len(got) == 0 && len(c) == 0) {
			t.Fatalf("ReadString(%q) = %q", c, got)
		}
	}
}

func TestReadStringShort(t *testing.T) {
	if _, _, err := ReadString([]byte{0, 0, 0, 5, 'a'}); err == nil {
		t.Fatal("expected short-body error")
	}
}

func TestMpintRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 127, 128, -128, -129, 255, 256, 1 << 40, -(1 << 40)}
	for _, c := range cases {
		n := big.NewInt(c)
		buf := PutMpint(nil, n)
		if len(buf) != MpintLength(n) {
			t.Fatalf("MpintLength(%d) = %d, PutMpint wrote %d", c, MpintLength(n), len(buf))
		}
		got, rest, err := ReadMpint(buf)
		if err != nil {
			t.Fatalf("ReadMpint(%d): %v", c, err)
		}
		if len(rest) != 0 {
			t.Fatalf("ReadMpint(%d): trailing bytes %v", c, rest)
		}
		if got.Cmp(n) != 0 {
			t.Fatalf("ReadMpint round trip: got %v, want %v", got, n)
		}
	}
}

func TestNameListRoundTrip(t *testing.T) {
	cases := [][]string{nil, {}, {"a"}, {"diffie-hellman-group14-sha256", "curve25519-sha256"}}
	for _, c := range cases {
		buf := PutNameList(nil, c)
		got, rest, err := ReadNameList(buf)
		if err != nil {
			t.Fatalf("ReadNameList(%v): %v", c, err)
		}
		if len(rest) != 0 {
			t.Fatalf("ReadNameList(%v): trailing bytes", c)
		}
		if len(got) != len(c) {
			t.Fatalf("ReadNameList(%v) = %v", c, got)
		}
		for i := range c {
			if got[i] != c[i] {
				t.Fatalf("ReadNameList(%v) = %v", c, got)
			}
		}
	}
}

type taggedMessage struct {
	Flag   bool    `sshtype:"42"`
	Number uint32
	Name   string
	Blob   []byte
	Rest   []byte `ssh:"rest"`
}

func TestMarshalUnmarshalTagged(t *testing.T) {
	in := &taggedMessage{Flag: true, Number: 7, Name: "hi", Blob: []byte{1, 2, 3}, Rest: []byte{9, 9}}
	packet := Marshal(in)
	if packet[0] != 42 {
		t.Fatalf("expected leading type byte 42, got %d", packet[0])
	}
	var out taggedMessage
	if err := Unmarshal(packet, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Flag != in.Flag || out.Number != in.Number || out.Name != in.Name {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, in)
	}
	if !bytes.Equal(out.Blob, in.Blob) || !bytes.Equal(out.Rest, in.Rest) {
		t.Fatalf("round trip byte-slice mismatch: %+v vs %+v", out, in)
	}
}

func TestUnmarshalWrongType(t *testing.T) {
	in := &taggedMessage{Name: "x"}
	packet := Marshal(in)
	packet[0] = 43
	var out taggedMessage
	err := Unmarshal(packet, &out)
	if err == nil {
		t.Fatal("expected UnexpectedMessageError")
	}
	if _, ok := err.(*UnexpectedMessageError); !ok {
		t.Fatalf("expected *UnexpectedMessageError, got %T", err)
	}
}

type untaggedFragment struct {
	Status uint32
}

// untagged structs have no leading type byte: Marshal must not
// prepend one and Unmarshal must not consume one.
func TestUntaggedHasNoTypeByte(t *testing.T) {
	in := &untaggedFragment{Status: 17}
	packet := Marshal(in)
	if len(packet) != 4 {
		t.Fatalf("expected 4-byte payload with no type byte, got %d bytes", len(packet))
	}
	var out untaggedFragment
	if err := Unmarshal(packet, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Status != in.Status {
		t.Fatalf("got %d, want %d", out.Status, in.Status)
	}
}
