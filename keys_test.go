package ssh

import (
	"bytes"
	"crypto"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/chara-x/sshcore/wire"
)

func testKexResult() *kexResult {
	k := new(big.Int).SetBytes([]byte("some shared secret, not actually on a curve"))
	return &kexResult{
		K:         k.Bytes(),
		H:         []byte("exchange hash H"),
		Hash:      crypto.SHA256,
		SessionID: []byte("session id from the first kex"),
	}
}

// manualDigest reproduces RFC 4253 7.2's first iterated-hash output by
// hand, independent of deriveKeyMaterial, to pin the wire shape (mpint
// K, raw H, single tag byte, raw session_id).
func manualDigest(r *kexResult, tag byte, prior []byte) []byte {
	h := sha256.New()
	kBig := new(big.Int).SetBytes(r.K)
	h.Write(wire.PutMpint(nil, kBig))
	h.Write(r.H)
	if prior == nil {
		h.Write([]byte{tag})
		h.Write(r.SessionID)
	} else {
		h.Write(prior)
	}
	return h.Sum(nil)
}

func TestDeriveKeyMaterialMatchesManualDigest(t *testing.T) {
	r := testKexResult()
	want := manualDigest(r, keyTagIVClientToServer, nil)

	out := make([]byte, sha256.Size)
	deriveKeyMaterial(out, keyTagIVClientToServer, r)
	if !bytes.Equal(out, want) {
		t.Fatalf("got %x, want %x", out, want)
	}
}

func TestDeriveKeyMaterialExtendsPastOneDigest(t *testing.T) {
	r := testKexResult()
	k1 := manualDigest(r, keyTagKeyClientToServer, nil)
	k2 := manualDigest(r, keyTagKeyClientToServer, k1)
	want := append(append([]byte{}, k1...), k2...)[:sha256.Size+16]

	out := make([]byte, sha256.Size+16)
	deriveKeyMaterial(out, keyTagKeyClientToServer, r)
	if !bytes.Equal(out, want) {
		t.Fatalf("got %x, want %x", out, want)
	}
}

func TestDeriveKeyMaterialTagsProduceDistinctMaterial(t *testing.T) {
	r := testKexResult()
	tags := []byte{keyTagIVClientToServer, keyTagIVServerToClient, keyTagKeyClientToServer, keyTagKeyServerToClient, keyTagMACClientToServer, keyTagMACServerToClient}
	outs := make([][]byte, len(tags))
	for i, tag := range tags {
		out := make([]byte, 32)
		deriveKeyMaterial(out, tag, r)
		outs[i] = out
	}
	for i := range outs {
		for j := i + 1; j < len(outs); j++ {
			if bytes.Equal(outs[i], outs[j]) {
				t.Fatalf("derived material for tags %d and %d is identical, expected distinct per-tag material", tags[i], tags[j])
			}
		}
	}
}
