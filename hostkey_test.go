package ssh

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/chara-x/sshcore/wire"
)

func TestEd25519SignatureRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer := &Ed25519Signer{Key: priv}
	h := []byte("exchange hash")
	sig, err := signer.Sign(h)
	if err != nil {
		t.Fatal(err)
	}
	if err := verifyHostKeySignature(pub, "ssh-ed25519", h, sig); err != nil {
		t.Fatalf("verifyHostKeySignature: %v", err)
	}
	if err := verifyHostKeySignature(pub, "ssh-ed25519", []byte("different hash"), sig); err == nil {
		t.Fatal("expected verification failure for mismatched hash")
	}
}

func TestRSASignatureVariants(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	h := []byte("exchange hash")
	for _, algo := range []string{"rsa-sha2-512", "rsa-sha2-256", "ssh-rsa"} {
		signer := &RSASigner{Key: key}
		signer.selectAlgorithm([]string{algo})
		if signer.AlgorithmName() != algo {
			t.Fatalf("selectAlgorithm(%q): AlgorithmName() = %q", algo, signer.AlgorithmName())
		}
		sig, err := signer.Sign(h)
		if err != nil {
			t.Fatalf("%s: Sign: %v", algo, err)
		}
		if err := verifyHostKeySignature(&key.PublicKey, algo, h, sig); err != nil {
			t.Fatalf("%s: verifyHostKeySignature: %v", algo, err)
		}
	}
}

func TestRSASignerSelectAlgorithmPrefersStrongest(t *testing.T) {
	key, _ := rsa.GenerateKey(rand.Reader, 2048)
	signer := &RSASigner{Key: key}

	signer.selectAlgorithm(nil)
	if signer.AlgorithmName() != "rsa-sha2-512" {
		t.Fatalf("no server-sig-algs: got %q, want rsa-sha2-512 default", signer.AlgorithmName())
	}

	signer.selectAlgorithm([]string{"ssh-rsa", "rsa-sha2-256"})
	if signer.AlgorithmName() != "rsa-sha2-256" {
		t.Fatalf("got %q, want rsa-sha2-256 (strongest of the two offered)", signer.AlgorithmName())
	}

	signer.selectAlgorithm([]string{"ssh-rsa"})
	if signer.AlgorithmName() != "ssh-rsa" {
		t.Fatalf("got %q, want ssh-rsa fallback", signer.AlgorithmName())
	}
}

func TestECDSASignatureRoundTrip(t *testing.T) {
	curves := map[string]elliptic.Curve{
		"ecdsa-sha2-nistp256": elliptic.P256(),
		"ecdsa-sha2-nistp384": elliptic.P384(),
		"ecdsa-sha2-nistp521": elliptic.P521(),
	}
	h := []byte("exchange hash")
	for algo, curve := range curves {
		priv, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			t.Fatalf("%s: GenerateKey: %v", algo, err)
		}
		digest := ecdsaHashFor(algo, h)
		r, s, err := ecdsa.Sign(rand.Reader, priv, digest)
		if err != nil {
			t.Fatalf("%s: Sign: %v", algo, err)
		}
		var sigValue []byte
		sigValue = wire.PutMpint(sigValue, r)
		sigValue = wire.PutMpint(sigValue, s)
		var sigBlob []byte
		sigBlob = wire.PutString(sigBlob, []byte(algo))
		sigBlob = wire.PutString(sigBlob, sigValue)
		if err := verifyHostKeySignature(&priv.PublicKey, algo, h, sigBlob); err != nil {
			t.Fatalf("%s: verifyHostKeySignature: %v", algo, err)
		}
	}
}
