package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the issuer claim of every credential.
const Issuer = "jobctl"

var (
	// ErrNoSigningKey is returned when the signing key cannot be loaded.
	ErrNoSigningKey = errors.New("session signing key unavailable")
	// ErrPrincipalRequired is returned when no principal was provided.
	ErrPrincipalRequired = errors.New("principal must be provided")
	// ErrInvalidCredential is returned when a credential fails verification.
	ErrInvalidCredential = errors.New("invalid session credential")
)

// Credential is a principal identity plus a signature over it.
type Credential struct {
	// Principal is the identity the session acts for.
	Principal string `json:"principal"`
	// Token is the signed compact JWT whose subject is Principal.
	Token string `json:"token"`
}

// Authenticator acquires credentials by signing them with an Ed25519 key.
type Authenticator struct {
	key ed25519.PrivateKey
}

// NewAuthenticator wraps an already loaded private key.
func NewAuthenticator(key ed25519.PrivateKey) *Authenticator {
	return &Authenticator{key: key}
}

// LoadAuthenticator reads a PEM-encoded Ed25519 private key from path.
func LoadAuthenticator(path string) (*Authenticator, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSigningKey, err)
	}

	parsed, err := jwt.ParseEdPrivateKeyFromPEM(contents)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSigningKey, err)
	}

	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 key", ErrNoSigningKey)
	}

	return NewAuthenticator(key), nil
}

// Acquire signs a credential for principal.
// The same key and principal always yield the same credential.
func (a *Authenticator) Acquire(principal string) (*Credential, error) {
	if principal == "" {
		return nil, ErrPrincipalRequired
	}

	if a == nil || len(a.key) == 0 {
		return nil, ErrNoSigningKey
	}

	claims := jwt.RegisteredClaims{
		Issuer:  Issuer,
		Subject: principal,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(a.key)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	return &Credential{
		Principal: principal,
		Token:     token,
	}, nil
}

// PublicKey returns the verification key matching the signing key.
func (a *Authenticator) PublicKey() ed25519.PublicKey {
	pub, _ := a.key.Public().(ed25519.PublicKey)
	return pub
}

// Verify checks that the credential was signed by the key matching pub and
// that its subject is the claimed principal.
func Verify(cred *Credential, pub ed25519.PublicKey) error {
	if cred == nil || cred.Token == "" {
		return fmt.Errorf("%w: missing token", ErrInvalidCredential)
	}

	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(
		cred.Token,
		&claims,
		func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithSubject(cred.Principal),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	return nil
}

// LoadPublicKey reads a PEM-encoded Ed25519 public key from path.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	parsed, err := jwt.ParseEdPublicKeyFromPEM(contents)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("parse public key: not an ed25519 key")
	}

	return pub, nil
}

// GenerateKey writes a new Ed25519 key pair as PEM files: the private key to
// privatePath and the public key to privatePath + ".pub".
func GenerateKey(privatePath string) (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	if err = os.WriteFile(filepath.Clean(privatePath), privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err = os.WriteFile(filepath.Clean(privatePath)+".pub", pubPEM, 0o644); err != nil { //nolint:gosec // Public key.
		return nil, fmt.Errorf("write public key: %w", err)
	}

	return pub, nil
}
