package workspace

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/repobuilder/internal/repository"
)

// ArchiveStager stages by downloading and unpacking a tar.gz or zip snapshot.
// A single top-level directory, as produced by code hosts, is stripped.
type ArchiveStager struct {
	Fetcher repository.ArchiveFetcher
	// MaxBytes bounds the unpacked size; 0 means unlimited.
	MaxBytes int64
}

func (ArchiveStager) Name() string { return "archive" }

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zipMagic  = []byte("PK\x03\x04")
)

func (a ArchiveStager) Stage(ctx context.Context, ref repository.RepositoryRef, dest string) (string, error) {
	rc, err := a.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	if err := Unpack(rc, dest, a.MaxBytes); err != nil {
		return "", err
	}
	if ref.Fingerprint != "" {
		return ref.Fingerprint, nil
	}
	return DirFingerprint(dest)
}

// Unpack extracts a gzip-compressed tar or zip stream into dest.
func Unpack(r io.Reader, dest string, maxBytes int64) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && len(head) < 2 {
		return fmt.Errorf("read archive header: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return fmt.Errorf("open gzip stream: %w", err)
		}
		defer func() { _ = gz.Close() }()
		return untar(gz, dest, maxBytes)
	case bytes.HasPrefix(head, zipMagic):
		return unzip(br, dest, maxBytes)
	default:
		return fmt.Errorf("unsupported archive format")
	}
}

// archivePath maps an archive member name to a path under dest, stripping the
// top-level directory. ok is false for the top-level entry itself.
func archivePath(dest, name string) (string, bool, error) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	parts := strings.SplitN(name, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return "", false, nil
	}
	rel := filepath.FromSlash(parts[1])
	target := filepath.Join(dest, rel)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", false, fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return target, true, nil
}

type budget struct {
	max, used int64
}

func (b *budget) copy(w io.Writer, r io.Reader) error {
	if b.max <= 0 {
		_, err := io.Copy(w, r)
		return err
	}
	n, err := io.Copy(w, io.LimitReader(r, b.max-b.used+1))
	b.used += n
	if err != nil {
		return err
	}
	if b.used > b.max {
		return fmt.Errorf("archive exceeds %d bytes", b.max)
	}
	return nil
}

func writeFile(target string, mode os.FileMode, r io.Reader, b *budget) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm()|0o600)
	if err != nil {
		return err
	}
	if err := b.copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func untar(r io.Reader, dest string, maxBytes int64) error {
	tr := tar.NewReader(r)
	b := &budget{max: maxBytes}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target, ok, err := archivePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, os.FileMode(hdr.Mode), tr, b); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !withinDir(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func unzip(r io.Reader, dest string, maxBytes int64) error {
	tmp, err := os.CreateTemp("", "repobuilder-*.zip")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	size, err := io.Copy(tmp, r)
	if err != nil {
		return fmt.Errorf("spool zip: %w", err)
	}
	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	b := &budget{max: maxBytes}
	for _, f := range zr.File {
		target, ok, err := archivePath(dest, f.Name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeFile(target, f.Mode(), rc, b)
		_ = rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func withinDir(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
