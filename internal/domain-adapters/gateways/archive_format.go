package gateways

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// compression identifies the stream wrapped around a tar archive
type compression string

const (
	compressionNone  compression = "none"
	compressionGzip  compression = "gzip"
	compressionBzip2 compression = "bzip2"
	compressionXz    compression = "xz"
	compressionZstd  compression = "zstd"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicBzip2 = []byte("BZh")
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// detectCompression sniffs the leading bytes of an archive
func detectCompression(header []byte) compression {
	switch {
	case bytes.HasPrefix(header, magicGzip):
		return compressionGzip
	case bytes.HasPrefix(header, magicBzip2):
		return compressionBzip2
	case bytes.HasPrefix(header, magicXz):
		return compressionXz
	case bytes.HasPrefix(header, magicZstd):
		return compressionZstd
	default:
		return compressionNone
	}
}

// compressionFromName picks the codec for an output archive from its extension
func compressionFromName(name string) (compression, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return compressionBzip2, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return compressionGzip, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return compressionXz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return compressionZstd, nil
	case strings.HasSuffix(lower, ".tar"):
		return compressionNone, nil
	default:
		return "", fmt.Errorf("unsupported archive extension: %s", name)
	}
}

// newDecompressor detects the codec of r and returns a reader of the tar stream
func newDecompressor(r io.Reader) (io.ReadCloser, compression, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, "", fmt.Errorf("failed to read archive header: %w", err)
	}

	c := detectCompression(header)
	switch c {
	case compressionGzip:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, c, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gzr, c, nil
	case compressionBzip2:
		bzr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, c, fmt.Errorf("failed to create bzip2 reader: %w", err)
		}
		return bzr, c, nil
	case compressionXz:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, c, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xzr), c, nil
	case compressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, c, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr.IOReadCloser(), c, nil
	default:
		return io.NopCloser(br), c, nil
	}
}

// newCompressor wraps w with the codec; closing the result flushes the codec
// but leaves w open.
func newCompressor(c compression, w io.Writer) (io.WriteCloser, error) {
	switch c {
	case compressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case compressionBzip2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case compressionXz:
		return xz.NewWriter(w)
	case compressionZstd:
		return zstd.NewWriter(w)
	case compressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", c)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
