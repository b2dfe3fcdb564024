// Package decompress selects the transparent decoder for a response's
// Content-Encoding (§4.8 "Decompression"): gzip/deflate via the
// standard library, brotli via github.com/andybalholm/brotli, and zstd
// via github.com/klauspost/compress/zstd — real-ecosystem choices added
// for this job, not present in the retrieval pack (see DESIGN.md;
// neither brotli nor zstd has a stdlib implementation).
package decompress

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// NewReader wraps src with the decoder named by encoding ("gzip",
// "deflate", "br", "zstd", "identity", or "" all pass through
// unchanged). The returned ReadCloser's Close releases any decoder
// resources (e.g. the zstd decoder's goroutines); closing never closes
// src itself.
func NewReader(encoding string, src io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(src), nil
	case "gzip":
		zr, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("decompress: gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		return flate.NewReader(src), nil
	case "br":
		return io.NopCloser(brotli.NewReader(src)), nil
	case "zstd":
		zr, err := zstd.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("decompress: zstd: %w", err)
		}
		return readCloserFunc{Reader: zr, closeFn: zr.Close}, nil
	default:
		return nil, fmt.Errorf("decompress: unsupported Content-Encoding %q", encoding)
	}
}

// readCloserFunc adapts a zstd.Decoder (whose Close takes no error) to
// io.ReadCloser.
type readCloserFunc struct {
	io.Reader
	closeFn func()
}

func (r readCloserFunc) Close() error {
	r.closeFn()
	return nil
}

// Buffered wraps r with a bufio.Reader sized for header+body peeking,
// matching the buffering the h1 wire layer wants before it knows
// whether a body is chunked.
func Buffered(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 4096)
}
