package sshproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultPort is the SSH port used when the host carries none.
const DefaultPort = "22"

var (
	// ErrHostRequired is returned when no proxy host is configured.
	ErrHostRequired = errors.New("proxy host must be provided")
	// ErrUserRequired is returned when no remote user is configured.
	ErrUserRequired = errors.New("proxy user must be provided")
	// errNoIdentity is returned when no private key could be found.
	errNoIdentity = errors.New("no ssh identity found")
)

// Config describes how to reach the proxy host.
type Config struct {
	// Host is "host" or "host:port".
	Host string
	// User is the remote login.
	User string
	// KeyPath is the private key file. Defaults to ~/.ssh/id_ed25519, then ~/.ssh/id_rsa.
	KeyPath string
	// KnownHostsPath is the known_hosts file. Defaults to ~/.ssh/known_hosts.
	KnownHostsPath string
	// Timeout bounds the TCP connect and SSH handshake.
	Timeout time.Duration
}

// Proxy is an established SSH connection to the proxy host.
type Proxy struct {
	host   string
	user   string
	client *ssh.Client
}

// Dial connects and authenticates to the proxy host.
func Dial(ctx context.Context, cfg Config) (*Proxy, error) {
	if cfg.Host == "" {
		return nil, ErrHostRequired
	}

	if cfg.User == "" {
		return nil, ErrUserRequired
	}

	signer, err := loadSigner(cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := loadKnownHosts(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	address := cfg.Host
	if _, _, splitErr := net.SplitHostPort(address); splitErr != nil {
		address = net.JoinHostPort(address, DefaultPort)
	}

	//nolint:exhaustruct // Remaining ssh.ClientConfig fields keep their defaults.
	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.Timeout,
	}

	dialer := net.Dialer{Timeout: cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to proxy %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", address, err)
	}

	return &Proxy{
		host:   cfg.Host,
		user:   cfg.User,
		client: ssh.NewClient(sshConn, chans, reqs),
	}, nil
}

// Host returns the configured proxy host.
func (p *Proxy) Host() string {
	return p.host
}

// User returns the remote login.
func (p *Proxy) User() string {
	return p.user
}

// String renders the proxy as user@host.
func (p *Proxy) String() string {
	return p.user + "@" + p.host
}

// Close tears down the SSH connection and every tunnel opened through it.
func (p *Proxy) Close() error {
	if p == nil || p.client == nil {
		return nil
	}

	return p.client.Close()
}

// DialContext opens a TCP connection from the proxy host to address.
func (p *Proxy) DialContext(ctx context.Context, address string) (net.Conn, error) {
	conn, err := p.client.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("tunnel to %s via %s: %w", address, p, err)
	}

	return conn, nil
}

// Run executes argv on the proxy host and returns its exit code.
// A non-nil error means the command could not be run at all.
func (p *Proxy) Run(ctx context.Context, argv []string) (int, error) {
	return p.run(ctx, Join(argv), nil)
}

// Upload copies the local file src into the remote home directory as name.
func (p *Proxy) Upload(ctx context.Context, src, name string) error {
	file, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	defer func() {
		_ = file.Close()
	}()

	code, err := p.run(ctx, "cat > "+Quote(name), file)
	if err != nil {
		return fmt.Errorf("upload %s to %s: %w", src, p, err)
	}

	if code != 0 {
		return fmt.Errorf("upload %s to %s: remote exit status %d", src, p, code)
	}

	return nil
}

func (p *Proxy) run(ctx context.Context, command string, stdin io.Reader) (int, error) {
	sess, err := p.client.NewSession()
	if err != nil {
		return 0, fmt.Errorf("open ssh session: %w", err)
	}

	defer func() {
		_ = sess.Close()
	}()

	if stdin != nil {
		sess.Stdin = stdin
	}

	done := make(chan error, 1)

	go func() {
		done <- sess.Run(command)
	}()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		_ = sess.Close()

		return 0, ctx.Err()
	case err = <-done:
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}

	if err != nil {
		return 0, fmt.Errorf("run %q: %w", command, err)
	}

	return 0, nil
}

// Quote wraps s in single quotes for a POSIX shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes every argument and joins them into one shell command line.
func Join(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = Quote(arg)
	}

	return strings.Join(quoted, " ")
}

func loadSigner(path string) (ssh.Signer, error) {
	candidates := []string{path}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home directory: %w", err)
		}

		candidates = []string{
			filepath.Join(home, ".ssh", "id_ed25519"),
			filepath.Join(home, ".ssh", "id_rsa"),
		}
	}

	for _, candidate := range candidates {
		contents, err := os.ReadFile(filepath.Clean(candidate))
		if errors.Is(err, os.ErrNotExist) && path == "" {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("read ssh key: %w", err)
		}

		signer, err := ssh.ParsePrivateKey(contents)
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %s: %w", candidate, err)
		}

		return signer, nil
	}

	return nil, errNoIdentity
}

func loadKnownHosts(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("home directory: %w", err)
		}

		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}

	return callback, nil
}
