// Package signature verifies license signatures against the canonical
// signing payload of a license record.
package signature

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

const pemTypeEd25519PublicKey = "ED25519 PUBLIC KEY"

var (
	// ErrInvalidSignature means the signature does not match the payload.
	ErrInvalidSignature = errors.New("invalid license signature")
	// ErrSignatureEncoding means the signature is not valid base64.
	ErrSignatureEncoding = errors.New("license signature is not base64")
	// ErrUnsupportedKey is returned for PEM blocks that hold no usable key.
	ErrUnsupportedKey = errors.New("unsupported public key")
)

// Verifier checks a base64 signature over a payload.
type Verifier interface {
	Verify(payload, signature string) error
}

// RSAVerifier verifies PKCS#1 v1.5 signatures over SHA-256. PSS signatures
// with any salt length are accepted as well.
type RSAVerifier struct {
	key *rsa.PublicKey
}

func NewRSAVerifier(key *rsa.PublicKey) *RSAVerifier {
	return &RSAVerifier{key: key}
}

func (v *RSAVerifier) Verify(payload, signature string) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256([]byte(payload))

	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA256, hashed[:], sig); err == nil {
		return nil
	}
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}
	if err := rsa.VerifyPSS(v.key, crypto.SHA256, hashed[:], sig, opts); err != nil {
		return ErrInvalidSignature
	}
	return nil
}

func (v *RSAVerifier) String() string { return "rsa-sha256" }

// Ed25519Verifier verifies Ed25519 signatures over the raw payload.
type Ed25519Verifier struct {
	key ed25519.PublicKey
}

func NewEd25519Verifier(key ed25519.PublicKey) (*Ed25519Verifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 key size %d", ErrUnsupportedKey, len(key))
	}
	return &Ed25519Verifier{key: key}, nil
}

func (v *Ed25519Verifier) Verify(payload, signature string) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return err
	}
	if !ed25519.Verify(v.key, []byte(payload), sig) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Ed25519Verifier) String() string { return "ed25519" }

// LoadVerifier builds a verifier from a public key. It accepts PKIX
// "PUBLIC KEY" blocks holding RSA or Ed25519 keys, PKCS#1 "RSA PUBLIC KEY"
// blocks, raw "ED25519 PUBLIC KEY" blocks and single OpenSSH
// authorized_keys lines ("ssh-ed25519 AAAA...", "ssh-rsa AAAA...").
func LoadVerifier(keyBytes []byte) (Verifier, error) {
	block, _ := pem.Decode(keyBytes)
	if block == nil {
		if strings.HasPrefix(strings.TrimSpace(string(keyBytes)), "ssh-") {
			return loadAuthorizedKey(keyBytes)
		}
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return fromCryptoKey(pub)
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
		}
		return NewRSAVerifier(key), nil
	case pemTypeEd25519PublicKey:
		return newEd25519(ed25519.PublicKey(block.Bytes))
	default:
		return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrUnsupportedKey, block.Type)
	}
}

func loadAuthorizedKey(line []byte) (Verifier, error) {
	pk, _, _, _, err := ssh.ParseAuthorizedKey(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorized key: %w", err)
	}
	ck, ok := pk.(ssh.CryptoPublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, pk.Type())
	}
	return fromCryptoKey(ck.CryptoPublicKey())
}

func fromCryptoKey(pub crypto.PublicKey) (Verifier, error) {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		return NewRSAVerifier(key), nil
	case ed25519.PublicKey:
		return newEd25519(key)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, pub)
	}
}

func newEd25519(key ed25519.PublicKey) (Verifier, error) {
	v, err := NewEd25519Verifier(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// LoadVerifierFile reads a public key file in any format LoadVerifier accepts.
func LoadVerifierFile(path string) (Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	return LoadVerifier(data)
}

func decodeSignature(signature string) ([]byte, error) {
	s := strings.Join(strings.Fields(signature), "")
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if sig, err := enc.DecodeString(s); err == nil {
			return sig, nil
		}
	}
	return nil, ErrSignatureEncoding
}
