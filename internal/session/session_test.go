package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquireAndVerify signs a credential and verifies it with the public key.
func TestAcquireAndVerify(t *testing.T) {
	t.Parallel()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := NewAuthenticator(priv)

	cred, err := auth.Acquire("mesos")
	require.NoError(t, err)
	require.Equal(t, "mesos", cred.Principal)
	require.NotEmpty(t, cred.Token)
	require.NoError(t, Verify(cred, auth.PublicKey()))

	// Deterministic for the same principal.
	again, err := auth.Acquire("mesos")
	require.NoError(t, err)
	require.Equal(t, cred.Token, again.Token)

	// A forged principal does not verify.
	forged := &Credential{Principal: "root", Token: cred.Token}
	require.ErrorIs(t, Verify(forged, auth.PublicKey()), ErrInvalidCredential)

	// Another key does not verify.
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	require.ErrorIs(t, Verify(cred, otherPub), ErrInvalidCredential)
}

// TestAcquire_Errors covers missing principal and missing key material.
func TestAcquire_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewAuthenticator(nil).Acquire("mesos")
	require.ErrorIs(t, err, ErrNoSigningKey)

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = NewAuthenticator(priv).Acquire("")
	require.ErrorIs(t, err, ErrPrincipalRequired)

	_, err = LoadAuthenticator(filepath.Join(t.TempDir(), "missing.pem"))
	require.ErrorIs(t, err, ErrNoSigningKey)
}

// TestGenerateKey_Roundtrip writes a key pair and loads both halves back.
func TestGenerateKey_Roundtrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.pem")

	pub, err := GenerateKey(path)
	require.NoError(t, err)

	auth, err := LoadAuthenticator(path)
	require.NoError(t, err)
	require.Equal(t, pub, auth.PublicKey())

	loaded, err := LoadPublicKey(path + ".pub")
	require.NoError(t, err)
	require.Equal(t, pub, loaded)

	cred, err := auth.Acquire("www-data")
	require.NoError(t, err)
	require.NoError(t, Verify(cred, loaded))
}
