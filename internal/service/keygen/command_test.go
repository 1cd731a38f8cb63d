package keygen

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/jobctl/internal/session"
)

// TestRun writes a usable key pair and refuses to overwrite it.
func TestRun(t *testing.T) {
	t.Parallel()

	keyPath := filepath.Join(t.TempDir(), "session.pem")

	var out bytes.Buffer

	opts := &Options{
		ConfigPath: filepath.Join(t.TempDir(), "missing.yaml"),
		KeyPath:    keyPath,
		Out:        &out,
	}

	require.NoError(t, Run(context.Background(), opts))
	require.Contains(t, out.String(), keyPath+".pub")

	auth, err := session.LoadAuthenticator(keyPath)
	require.NoError(t, err)

	pub, err := session.LoadPublicKey(keyPath + ".pub")
	require.NoError(t, err)

	cred, err := auth.Acquire("mesos")
	require.NoError(t, err)
	require.NoError(t, session.Verify(cred, pub))

	require.ErrorIs(t, Run(context.Background(), opts), ErrKeyExists)

	opts.Force = true
	require.NoError(t, Run(context.Background(), opts))
}
