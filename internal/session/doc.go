// Package session produces and verifies signed session credentials.
//
// A credential is the principal name plus an EdDSA signature over it, carried
// as a compact JWT. Signing keys are Ed25519 keys stored as PEM files.
package session
