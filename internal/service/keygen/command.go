// Package keygen creates the key pair used to sign and verify jobctl sessions.
package keygen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/oshokin/jobctl/internal/config"
	"github.com/oshokin/jobctl/internal/logger"
	"github.com/oshokin/jobctl/internal/session"
)

// Options controls where the key pair is written.
type Options struct {
	// ConfigPath is read for the signing key location when KeyPath is empty.
	ConfigPath string
	// KeyPath is the private key file. The public key gets a ".pub" suffix.
	KeyPath string
	// Force overwrites an existing key.
	Force bool
	// Out receives the paths of the written files. Defaults to stdout.
	Out io.Writer
}

// ErrKeyExists is returned when the key file already exists and Force is not set.
var ErrKeyExists = errors.New("signing key already exists")

// Run writes a new key pair.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "jobctl-keygen")

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	keyPath := opts.KeyPath
	if keyPath == "" {
		keyPath = config.DefaultSigningKeyFilename

		if settings, err := config.Load(opts.ConfigPath); err == nil {
			keyPath = settings.SigningKey
		}
	}

	if _, err := os.Stat(keyPath); err == nil && !opts.Force {
		return fmt.Errorf("%w: %s", ErrKeyExists, keyPath)
	}

	if _, err := session.GenerateKey(keyPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Session key pair written", "private_key", keyPath)

	_, _ = fmt.Fprintf(out, "private key: %s\npublic key: %s.pub\n", keyPath, keyPath)

	return nil
}
