package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Signer issues ed25519 signed license sections for tests.
type Signer struct {
	Public  ed25519.PublicKey
	private ed25519.PrivateKey
}

func NewSigner(t testing.TB) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &Signer{Public: pub, private: priv}
}

// Sign returns the standard base64 signature of payload.
func (s *Signer) Sign(payload string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.private, []byte(payload)))
}

// Section renders an INI section for product signed over payload. The
// caller computes payload from the same pairs, in the same order.
func (s *Signer) Section(product, payload string, pairs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\nlic_ver = 200\nsig = %s\n", product, s.Sign(payload))
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "%s = %s\n", pairs[i], pairs[i+1])
	}
	return b.String()
}

// PublicKeyPEM encodes the public key as a PKIX "PUBLIC KEY" block.
func (s *Signer) PublicKeyPEM(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(s.Public)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
