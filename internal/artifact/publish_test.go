package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var errPutFailed = errors.New("put failed")

// recordingFS is an in-memory FileSystem that records every operation.
type recordingFS struct {
	// existing lists the paths that exist.
	existing map[string]bool
	// ops records operations as "op path" strings.
	ops []string
	// putErr is returned from Put when set.
	putErr error
}

func (f *recordingFS) Exists(_ context.Context, path string) (bool, error) {
	f.ops = append(f.ops, "exists "+path)
	return f.existing[path], nil
}

func (f *recordingFS) Remove(_ context.Context, path string) error {
	f.ops = append(f.ops, "remove "+path)
	delete(f.existing, path)

	return nil
}

func (f *recordingFS) Mkdir(_ context.Context, path string) error {
	f.ops = append(f.ops, "mkdir "+path)
	return nil
}

func (f *recordingFS) Put(_ context.Context, src, dst string) error {
	f.ops = append(f.ops, "put "+src+" "+dst)
	return f.putErr
}

// recordingStager records uploads to the proxy host.
type recordingStager struct {
	// uploads are "src name" pairs.
	uploads []string
}

func (s *recordingStager) Upload(_ context.Context, src, name string) error {
	s.uploads = append(s.uploads, src+" "+name)
	return nil
}

// writeArtifact creates a local artifact file and returns its path.
func writeArtifact(t *testing.T) string {
	t.Helper()

	src := filepath.Join(t.TempDir(), "web.zip")
	require.NoError(t, os.WriteFile(src, []byte("zip"), 0o600))

	return src
}

// TestPublish_ReplacesExistingFile removes the old destination before writing.
func TestPublish_ReplacesExistingFile(t *testing.T) {
	t.Parallel()

	src := writeArtifact(t)
	dst := "hdfs://nn:8020/apps/www/web.zip"
	fs := &recordingFS{existing: map[string]bool{dst: true}}

	require.NoError(t, NewPublisher(fs, nil).Publish(context.Background(), src, dst))
	require.Equal(t, []string{
		"exists " + dst,
		"remove " + dst,
		"put " + src + " " + dst,
	}, fs.ops)
}

// TestPublish_CreatesMissingDirectory creates the parent directory when absent.
func TestPublish_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	src := writeArtifact(t)
	dst := "hdfs://nn:8020/apps/www/web.zip"
	fs := &recordingFS{existing: map[string]bool{}}

	require.NoError(t, NewPublisher(fs, nil).Publish(context.Background(), src, dst))
	require.Equal(t, []string{
		"exists " + dst,
		"exists hdfs://nn:8020/apps/www",
		"mkdir hdfs://nn:8020/apps/www",
		"put " + src + " " + dst,
	}, fs.ops)
}

// TestPublish_ExistingDirectory writes directly when the directory exists.
func TestPublish_ExistingDirectory(t *testing.T) {
	t.Parallel()

	src := writeArtifact(t)
	fs := &recordingFS{existing: map[string]bool{"/apps": true}}

	require.NoError(t, NewPublisher(fs, nil).Publish(context.Background(), src, "/apps/web.zip"))
	require.Equal(t, []string{
		"exists /apps/web.zip",
		"exists /apps",
		"put " + src + " /apps/web.zip",
	}, fs.ops)
}

// TestPublish_ThroughProxy stages the file and puts it by base name.
func TestPublish_ThroughProxy(t *testing.T) {
	t.Parallel()

	src := writeArtifact(t)
	fs := &recordingFS{existing: map[string]bool{"/apps": true}}
	stager := new(recordingStager)

	require.NoError(t, NewPublisher(fs, stager).PublishApp(context.Background(), src, "hdfs://nn", "/apps/web.zip"))
	require.Equal(t, []string{src + " web.zip"}, stager.uploads)
	require.Contains(t, fs.ops, "put web.zip hdfs://nn/apps/web.zip")
}

// TestPublish_Failures covers missing sources, destinations and put errors.
func TestPublish_Failures(t *testing.T) {
	t.Parallel()

	fs := &recordingFS{existing: map[string]bool{}}
	p := NewPublisher(fs, nil)

	err := p.Publish(context.Background(), filepath.Join(t.TempDir(), "missing.zip"), "/apps/web.zip")
	require.ErrorIs(t, err, ErrSourceMissing)
	require.Empty(t, fs.ops)

	err = p.PublishApp(context.Background(), writeArtifact(t), "hdfs://nn", "")
	require.ErrorIs(t, err, ErrNoDestination)

	fs.putErr = errPutFailed
	err = p.Publish(context.Background(), writeArtifact(t), "/apps/web.zip")
	require.ErrorIs(t, err, errPutFailed)
}

// TestParentDir keeps scheme and authority of filesystem URIs.
func TestParentDir(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hdfs://nn:8020/apps/www", parentDir("hdfs://nn:8020/apps/www/web.zip"))
	require.Equal(t, "hdfs://nn/", parentDir("hdfs://nn/web.zip"))
	require.Equal(t, "/apps", parentDir("/apps/web.zip"))
}
