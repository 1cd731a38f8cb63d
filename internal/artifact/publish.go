package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/oshokin/jobctl/internal/logger"
)

var (
	// ErrSourceMissing is returned when the local artifact does not exist.
	ErrSourceMissing = errors.New("app file does not exist")
	// ErrNoDestination is returned when no filesystem destination was given.
	ErrNoDestination = errors.New("no target filesystem path specified")
)

// Publisher places artifacts into the shared filesystem.
type Publisher struct {
	fs FileSystem
	// stager is set when commands run on a proxy host.
	stager Stager
}

// NewPublisher builds a publisher. stager may be nil when the filesystem
// client runs on this machine.
func NewPublisher(fs FileSystem, stager Stager) *Publisher {
	return &Publisher{
		fs:     fs,
		stager: stager,
	}
}

// PublishApp copies src to fsPath below the filesystem root URI.
// An empty root leaves fsPath as is.
func (p *Publisher) PublishApp(ctx context.Context, src, rootURI, fsPath string) error {
	if fsPath == "" {
		return ErrNoDestination
	}

	dst := fsPath
	if rootURI != "" {
		dst = strings.TrimRight(rootURI, "/") + "/" + strings.TrimLeft(fsPath, "/")
	}

	return p.Publish(ctx, src, dst)
}

// Publish copies the local file src to the filesystem URI dst.
// An existing file at dst is removed first; otherwise the parent directory is
// created when absent.
func (p *Publisher) Publish(ctx context.Context, src, dst string) error {
	absSrc, err := expandPath(src)
	if err != nil {
		return err
	}

	if _, err = os.Stat(absSrc); err != nil {
		return fmt.Errorf("%w: %s", ErrSourceMissing, absSrc)
	}

	putSrc := absSrc

	if p.stager != nil {
		logger.InfoKV(ctx, "Staging artifact on proxy host", "src", absSrc)

		putSrc = filepath.Base(absSrc)
		if err = p.stager.Upload(ctx, absSrc, putSrc); err != nil {
			return fmt.Errorf("stage artifact: %w", err)
		}
	}

	exists, err := p.fs.Exists(ctx, dst)
	if err != nil {
		return fmt.Errorf("check %s: %w", dst, err)
	}

	if exists {
		logger.InfoKV(ctx, "Deleting existing file", "path", dst)

		if err = p.fs.Remove(ctx, dst); err != nil {
			return fmt.Errorf("remove %s: %w", dst, err)
		}
	} else {
		dstDir := parentDir(dst)

		dirExists, dirErr := p.fs.Exists(ctx, dstDir)
		if dirErr != nil {
			return fmt.Errorf("check %s: %w", dstDir, dirErr)
		}

		if !dirExists {
			logger.InfoKV(ctx, "Creating directory", "path", dstDir)

			if err = p.fs.Mkdir(ctx, dstDir); err != nil {
				return fmt.Errorf("create %s: %w", dstDir, err)
			}
		}
	}

	logger.InfoKV(ctx, "Copying artifact", "src", putSrc, "dst", dst)

	if err = p.fs.Put(ctx, putSrc, dst); err != nil {
		return fmt.Errorf("put %s: %w", dst, err)
	}

	return nil
}

// parentDir returns the directory part of a filesystem URI, keeping the
// scheme and authority intact.
func parentDir(uri string) string {
	prefix := ""

	if scheme, rest, ok := strings.Cut(uri, "://"); ok {
		authority, p, _ := strings.Cut(rest, "/")
		prefix = scheme + "://" + authority
		uri = "/" + p
	}

	return prefix + path.Dir(uri)
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("home directory: %w", err)
		}

		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}

	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}

	return abs, nil
}
