// Package store — blob.go
//
// BlobStore is the filesystem-rooted archive store for uploaded source-code
// and source-map bundles. Unlike the bbolt repositories it does not go
// through a KV value: archive contents are extracted directly to
// <root>/<projectId>/<version>/... by their archive-relative path. Every
// extraction rewrites each file; the sha256 of each file is computed and
// returned in ExtractedFile but not used to skip unchanged files.

package store

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode"
)

// ArchiveType enumerates the supported upload container formats.
type ArchiveType string

const (
	ArchiveZip    ArchiveType = "zip"
	ArchiveTar    ArchiveType = "tar"
	ArchiveGz     ArchiveType = "gz"
	ArchiveRar    ArchiveType = "rar"
	ArchiveSevenZ ArchiveType = "7z"
)

func (t ArchiveType) Valid() bool {
	switch t {
	case ArchiveZip, ArchiveTar, ArchiveGz, ArchiveRar, ArchiveSevenZ:
		return true
	default:
		return false
	}
}

// ExtractedFile describes one file pulled out of an uploaded archive.
type ExtractedFile struct {
	RelPath  string
	FileHash string
	Size     int64
}

// BlobStore roots uploaded archives under a single directory, one
// subdirectory per (projectId, version).
type BlobStore struct {
	root string
}

func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob store root %s: %w", root, err)
	}
	return &BlobStore{root: root}, nil
}

func (b *BlobStore) versionDir(projectID, version string) string {
	return filepath.Join(b.root, projectID, version)
}

// Extract unpacks r (of the given archiveType) under
// <root>/<projectID>/<version>/, rejecting any entry whose cleaned path
// escapes that directory (zip-slip guard), and returns per-file results.
func (b *BlobStore) Extract(ctx context.Context, projectID, version string, archiveType ArchiveType, r io.Reader) ([]ExtractedFile, error) {
	if !archiveType.Valid() {
		return nil, fmt.Errorf("unsupported archive type %q", archiveType)
	}
	dir := b.versionDir(projectID, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create version dir: %w", err)
	}

	switch archiveType {
	case ArchiveZip:
		return b.extractZip(dir, r)
	case ArchiveTar, ArchiveGz:
		return b.extractTar(dir, r, archiveType == ArchiveGz)
	case ArchiveRar:
		return b.extractRar(dir, r)
	case ArchiveSevenZ:
		return b.extractSevenZip(dir, r)
	default:
		return nil, fmt.Errorf("unsupported archive type %q", archiveType)
	}
}

func (b *BlobStore) extractZip(dir string, r io.Reader) ([]ExtractedFile, error) {
	tmp, err := os.CreateTemp("", "monitor-upload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("buffer zip upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("buffer zip upload: %w", err)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}

	var out []ExtractedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, err := safeJoin(dir, f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		ef, err := writeExtracted(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, nil
}

func (b *BlobStore) extractTar(dir string, r io.Reader, gzipped bool) ([]ExtractedFile, error) {
	src := r
	if gzipped {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	tr := tar.NewReader(src)
	var out []ExtractedFile
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		dest, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return nil, err
		}
		ef, err := writeExtracted(dest, hdr.Name, tr)
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, nil
}

func (b *BlobStore) extractRar(dir string, r io.Reader) ([]ExtractedFile, error) {
	rr, err := rardecode.NewReader(r, "")
	if err != nil {
		return nil, fmt.Errorf("open rar archive: %w", err)
	}

	var out []ExtractedFile
	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}
		dest, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return nil, err
		}
		ef, err := writeExtracted(dest, hdr.Name, rr)
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, nil
}

// extractSevenZip buffers r to a temp file: sevenzip.NewReader needs an
// io.ReaderAt plus the total size, the same constraint zip.NewReader has.
func (b *BlobStore) extractSevenZip(dir string, r io.Reader) ([]ExtractedFile, error) {
	tmp, err := os.CreateTemp("", "monitor-upload-*.7z")
	if err != nil {
		return nil, fmt.Errorf("buffer 7z upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()
	size, err := io.Copy(tmp, r)
	if err != nil {
		return nil, fmt.Errorf("buffer 7z upload: %w", err)
	}

	zr, err := sevenzip.NewReader(tmp, size)
	if err != nil {
		return nil, fmt.Errorf("open 7z archive: %w", err)
	}

	var out []ExtractedFile
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest, err := safeJoin(dir, f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open 7z entry %s: %w", f.Name, err)
		}
		ef, err := writeExtracted(dest, f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, nil
}

// safeJoin resolves name under dir and rejects traversal outside it.
func safeJoin(dir, name string) (string, error) {
	clean := filepath.Clean(strings.TrimPrefix(name, "/"))
	dest := filepath.Join(dir, clean)
	if !strings.HasPrefix(dest, filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction root", name)
	}
	return dest, nil
}

func writeExtracted(dest, relName string, r io.Reader) (ExtractedFile, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return ExtractedFile{}, fmt.Errorf("create dir for %s: %w", relName, err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return ExtractedFile{}, fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()

	h := sha256.New()
	size, err := io.Copy(out, io.TeeReader(r, h))
	if err != nil {
		return ExtractedFile{}, fmt.Errorf("write %s: %w", dest, err)
	}
	return ExtractedFile{
		RelPath:  relName,
		FileHash: hex.EncodeToString(h.Sum(nil)),
		Size:     size,
	}, nil
}

// Open returns a reader for a previously extracted file.
func (b *BlobStore) Open(projectID, version, relPath string) (io.ReadCloser, error) {
	dest, err := safeJoin(b.versionDir(projectID, version), relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dest, err)
	}
	return f, nil
}
