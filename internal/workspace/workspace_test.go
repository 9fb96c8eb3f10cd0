package workspace

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/repobuilder/internal/config"
	foundationerrors "git.home.luguber.info/inful/repobuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/repobuilder/internal/repository"
	"git.home.luguber.info/inful/repobuilder/internal/retry"
)

type fakeStager struct {
	name  string
	calls atomic.Int32
	fail  []error
	files map[string]string
	fp    string
}

func (f *fakeStager) Name() string { return f.name }

func (f *fakeStager) Stage(_ context.Context, _ repository.RepositoryRef, dest string) (string, error) {
	n := int(f.calls.Add(1))
	if n <= len(f.fail) {
		return "", f.fail[n-1]
	}
	for name, content := range f.files {
		p := filepath.Join(dest, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return "", err
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			return "", err
		}
	}
	return f.fp, nil
}

func fastPolicy() retry.Policy {
	return retry.NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
}

func TestAcquireStagesAndReleaseRemoves(t *testing.T) {
	base := t.TempDir()
	stager := &fakeStager{name: "git", files: map[string]string{"go.mod": "module x\n"}, fp: "abc123def4567890"}
	m := NewManager(base, Stagers{Git: stager})

	ref := repository.RepositoryRef{Owner: "acme", Name: "widget", CloneURL: "https://example.com/acme/widget.git"}
	ws, err := m.Acquire(t.Context(), ref)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ws.Path, "go.mod"))
	assert.Equal(t, "abc123def4567890", ws.Ref.Fingerprint)
	assert.Empty(t, ref.Fingerprint, "caller's ref must not change")
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Path), "acme-widget-abc123def456-"))

	require.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Path)
	require.NoError(t, ws.Release(), "release is idempotent")
}

func TestAcquireNeverReusesDirectories(t *testing.T) {
	m := NewManager(t.TempDir(), Stagers{Git: &fakeStager{name: "git"}})
	ref := repository.RepositoryRef{Owner: "a", Name: "b", CloneURL: "u", Fingerprint: "f"}
	ws1, err := m.Acquire(t.Context(), ref)
	require.NoError(t, err)
	ws2, err := m.Acquire(t.Context(), ref)
	require.NoError(t, err)
	assert.NotEqual(t, ws1.Path, ws2.Path)
	require.NoError(t, ws1.Release())
	require.NoError(t, ws2.Release())
}

func TestAcquireKeep(t *testing.T) {
	m := NewManager(t.TempDir(), Stagers{Git: &fakeStager{name: "git"}}, WithKeep(true))
	ws, err := m.Acquire(t.Context(), repository.RepositoryRef{Owner: "a", Name: "b", CloneURL: "u"})
	require.NoError(t, err)
	require.NoError(t, ws.Release())
	assert.DirExists(t, ws.Path)
}

func TestAcquireRetriesTransientFailures(t *testing.T) {
	stager := &fakeStager{name: "archive", fail: []error{
		&repository.HTTPStatusError{URL: "u", StatusCode: 503},
		io.ErrUnexpectedEOF,
	}}
	m := NewManager(t.TempDir(), Stagers{Archive: stager}, WithRetryPolicy(fastPolicy()))
	ws, err := m.Acquire(t.Context(), repository.RepositoryRef{Owner: "a", Name: "b", Fingerprint: "f"})
	require.NoError(t, err)
	defer func() { _ = ws.Release() }()
	assert.Equal(t, int32(3), stager.calls.Load())
}

func TestAcquireFailureLeavesNothingBehind(t *testing.T) {
	base := t.TempDir()
	stager := &fakeStager{name: "archive", fail: []error{&repository.HTTPStatusError{URL: "u", StatusCode: 404}}}
	m := NewManager(base, Stagers{Archive: stager}, WithRetryPolicy(fastPolicy()))
	_, err := m.Acquire(t.Context(), repository.RepositoryRef{Owner: "a", Name: "b", ArchiveURL: "u"})
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryWorkspace))
	assert.Equal(t, int32(1), stager.calls.Load(), "404 is not retried")

	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquireWithoutStager(t *testing.T) {
	_, err := NewManager(t.TempDir(), Stagers{}).Acquire(t.Context(), repository.RepositoryRef{Owner: "a", Name: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoStager))
}

func TestStagersSelection(t *testing.T) {
	local, archive, git := &fakeStager{name: "local"}, &fakeStager{name: "archive"}, &fakeStager{name: "git"}
	s := Stagers{Local: local, Archive: archive, Git: git}

	pick := func(ref repository.RepositoryRef) string {
		st, err := s.For(ref)
		require.NoError(t, err)
		return st.Name()
	}
	assert.Equal(t, "local", pick(repository.RepositoryRef{LocalPath: "/src", CloneURL: "u"}))
	assert.Equal(t, "archive", pick(repository.RepositoryRef{ArchiveURL: "a", CloneURL: "u"}))
	assert.Equal(t, "git", pick(repository.RepositoryRef{CloneURL: "u", Fingerprint: "f"}))
	assert.Equal(t, "archive", pick(repository.RepositoryRef{Fingerprint: "f"}))
}

func TestLocalStagerAndFingerprint(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, ".git"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".git", "HEAD"), []byte("ref"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "pkg"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "a.go"), []byte("package pkg"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "run.sh"), []byte("#!/bin/sh"), 0o700))

	dest := t.TempDir()
	fp, err := LocalStager{}.Stage(t.Context(), repository.RepositoryRef{Owner: "local", Name: "src", LocalPath: src}, dest)
	require.NoError(t, err)
	assert.Len(t, fp, 64)
	assert.FileExists(t, filepath.Join(dest, "pkg", "a.go"))
	assert.NoDirExists(t, filepath.Join(dest, ".git"))

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100)

	copied, err := DirFingerprint(dest)
	require.NoError(t, err)
	assert.Equal(t, fp, copied, ".git does not contribute")

	require.NoError(t, os.WriteFile(filepath.Join(src, "pkg", "a.go"), []byte("package pkg // changed"), 0o600))
	changed, err := DirFingerprint(src)
	require.NoError(t, err)
	assert.NotEqual(t, fp, changed)
}

func TestDirFingerprintIgnoresArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print(1)"), 0o600))
	before, err := DirFingerprint(root)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "__pycache__"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "__pycache__", "main.pyc"), []byte{1, 2}, 0o600))
	after, err := DirFingerprint(root)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDirFingerprintSeesNestedSourceNamedLikeArtifacts(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/x\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "internal", "build"), 0o750))
	src := filepath.Join(root, "internal", "build", "build.go")
	require.NoError(t, os.WriteFile(src, []byte("package build\n"), 0o600))
	before, err := DirFingerprint(root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("package build\n\nfunc Run() {}\n"), 0o600))
	after, err := DirFingerprint(root)
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "an edit below internal/build changes the fingerprint")

	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "build", "app"), []byte{0x7f}, 0o600))
	withOutput, err := DirFingerprint(root)
	require.NoError(t, err)
	assert.Equal(t, after, withOutput, "a root build directory is output")
}

func TestCleanArtifacts(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"dist", "target/debug", "web/node_modules/x", "src/__pycache__", ".git/build", "internal/build", "cmd/dist"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o750))
	}
	n, err := CleanArtifacts(root)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoDirExists(t, filepath.Join(root, "dist"))
	assert.NoDirExists(t, filepath.Join(root, "target"))
	assert.NoDirExists(t, filepath.Join(root, "web", "node_modules"))
	assert.NoDirExists(t, filepath.Join(root, "src", "__pycache__"))
	assert.DirExists(t, filepath.Join(root, "web"))
	assert.DirExists(t, filepath.Join(root, ".git", "build"))
	assert.DirExists(t, filepath.Join(root, "internal", "build"), "nested source is kept")
	assert.DirExists(t, filepath.Join(root, "cmd", "dist"))
}

func tarGz(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "acme-widget-abc/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, content := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content))}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type bytesFetcher []byte

func (b bytesFetcher) Fetch(context.Context, repository.RepositoryRef) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func TestArchiveStagerTarGz(t *testing.T) {
	data := tarGz(t, map[string]string{
		"acme-widget-abc/package.json": "{}",
		"acme-widget-abc/src/index.js": "console.log(1)",
	})
	dest := t.TempDir()
	fp, err := ArchiveStager{Fetcher: bytesFetcher(data)}.Stage(t.Context(), repository.RepositoryRef{Owner: "acme", Name: "widget", Fingerprint: "abc"}, dest)
	require.NoError(t, err)
	assert.Equal(t, "abc", fp)
	assert.FileExists(t, filepath.Join(dest, "package.json"))
	assert.FileExists(t, filepath.Join(dest, "src", "index.js"))
}

func TestArchiveRejectsTraversal(t *testing.T) {
	data := tarGz(t, map[string]string{"top/../../escape.txt": "x"})
	err := Unpack(bytes.NewReader(data), t.TempDir(), 0)
	require.Error(t, err)
}

func TestArchiveSizeLimit(t *testing.T) {
	data := tarGz(t, map[string]string{"top/big.bin": strings.Repeat("x", 1024)})
	err := Unpack(bytes.NewReader(data), t.TempDir(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestArchiveZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("repo-main/go.mod")
	require.NoError(t, err)
	_, err = w.Write([]byte("module x\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	dest := t.TempDir()
	require.NoError(t, Unpack(bytes.NewReader(buf.Bytes()), dest, 0))
	assert.FileExists(t, filepath.Join(dest, "go.mod"))

	require.Error(t, Unpack(strings.NewReader("plain text"), t.TempDir(), 0))
}
