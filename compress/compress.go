// Package compress selects the codec used for archive payloads.
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Codec identifies how an archive payload is encoded. The numeric values are
// written to disk and must not change.
type Codec int32

const (
	Raw Codec = iota
	Zstd
	endCodec
)

var codecNames = []string{"raw", "zstd"}

func (c Codec) String() string {
	if c < 0 || c >= endCodec {
		return fmt.Sprintf("Codec(%d)", int32(c))
	}
	return codecNames[c]
}

// Valid returns true if c is a known codec.
func (c Codec) Valid() bool { return c >= 0 && c < endCodec }

// ParseCodec returns the codec with the given name. The empty string is
// Zstd.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Zstd, nil
	}
	for i, cName := range codecNames {
		if cName == name {
			return Codec(i), nil
		}
	}
	return Raw, fmt.Errorf(
		"codec '%s' not recognized; must be one of [%s]",
		name, strings.Join(codecNames, " | "),
	)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter wraps w so that everything written to the result is encoded with
// c. Close must be called to flush the encoder; it does not close w.
func NewWriter(w io.Writer, c Codec) (io.WriteCloser, error) {
	switch c {
	case Raw:
		return nopWriteCloser{w}, nil
	case Zstd:
		// A single encoder goroutine keeps the output byte-for-byte
		// reproducible.
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	}
	return nil, fmt.Errorf("cannot write with unknown %s", c)
}

// zstdReadCloser exists because *zstd.Decoder's Close has no return value.
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// NewReader wraps r so that reads from the result are decoded with c. Close
// releases the decoder; it does not close r.
func NewReader(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case Raw:
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{dec}, nil
	}
	return nil, fmt.Errorf("cannot read with unknown %s", c)
}
