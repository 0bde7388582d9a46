package driver

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// ErrMemberNotFound is returned when an archive lacks the requested member.
var ErrMemberNotFound = errors.New("archive member not found")

// JSONLDriver reads records from a JSON-lines file. The file may be gzip
// compressed (.gz), or a member of a tarball (.tar.gz, .tgz) or zip archive
// (.zip) addressed as "archive.zip#path/in/archive.jsonl".
type JSONLDriver struct{}

func (JSONLDriver) Name() string {
	return "jsonl"
}

func (JSONLDriver) Read(ctx context.Context, path string, fn Handler) error {
	rc, err := OpenData(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := readLines(ctx, rc, fn); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// OpenData opens a data file, transparently decompressing it. A "#member"
// suffix selects a file inside a tar or zip archive.
func OpenData(path string) (io.ReadCloser, error) {
	file, member, _ := strings.Cut(path, "#")
	lower := strings.ToLower(file)

	switch {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		return openTarMember(file, member)
	case strings.HasSuffix(lower, ".zip"):
		return openZipMember(file, member)
	case strings.HasSuffix(lower, ".gz"):
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open data: %w", err)
		}
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open data %s: %w", file, err)
		}
		return readCloser{Reader: zr, close: func() error {
			zr.Close()
			return f.Close()
		}}, nil
	default:
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open data: %w", err)
		}
		return f, nil
	}
}

func openTarMember(file, member string) (io.ReadCloser, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open data: %w", err)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open data %s: %w", file, err)
	}
	closeAll := func() error {
		zr.Close()
		return f.Close()
	}

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			closeAll()
			return nil, fmt.Errorf("%s#%s: %w", file, member, ErrMemberNotFound)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open data %s: %w", file, err)
		}
		if hdr.Name == member {
			return readCloser{Reader: tr, close: closeAll}, nil
		}
	}
}

func openZipMember(file, member string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open data: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("open data %s#%s: %w", file, member, err)
		}
		return readCloser{Reader: rc, close: func() error {
			rc.Close()
			return zr.Close()
		}}, nil
	}
	zr.Close()
	return nil, fmt.Errorf("%s#%s: %w", file, member, ErrMemberNotFound)
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	return r.close()
}
