package msg

import "github.com/chara-x/sshcore/wire"

// Decode looks up packet[0] in Decoders and unmarshals packet into a
// freshly allocated instance of the matching type. ok is false for
// message numbers this package does not unambiguously own.
func Decode(packet []byte) (v interface{}, ok bool, err error) {
	if len(packet) == 0 {
		return nil, false, wire.MalformedPacketError{Reason: "empty packet"}
	}
	ctor, found := Decoders[packet[0]]
	if !found {
		return nil, false, nil
	}
	v = ctor()
	if err := wire.Unmarshal(packet, v); err != nil {
		return nil, true, err
	}
	return v, true, nil
}

// Marshal is wire.Marshal, re-exported so callers that only deal in
// msg types need not import wire directly.
func Marshal(v interface{}) []byte { return wire.Marshal(v) }

// Unmarshal is wire.Unmarshal, re-exported for the same reason.
func Unmarshal(packet []byte, out interface{}) error { return wire.Unmarshal(packet, out) }
