package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/worklist/codec"
)

// Compression selects the frame a snapshot blob is wrapped in.
type Compression uint8

const (
	// CompressionNone stores the encoded snapshot as is.
	CompressionNone Compression = iota
	// CompressionZstd wraps the snapshot in a zstd frame.
	CompressionZstd
	// CompressionLZ4 wraps the snapshot in an lz4 frame.
	CompressionLZ4
)

// ParseCompression parses "none", "zstd" and "lz4".
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

const formatVersion = 1

var (
	headerMagic = []byte("WLST")
	zstdMagic   = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic    = []byte{0x04, 0x22, 0x4D, 0x18}
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Encode serializes s with c and wraps it in the requested compression frame.
func Encode(s *Snapshot, c codec.Codec, compression Compression) ([]byte, error) {
	if c == nil {
		c = codec.Default
	}

	payload, err := c.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %q: %w", s.Name, err)
	}

	name := c.Name()
	if len(name) > 255 {
		return nil, fmt.Errorf("codec name too long: %q", name)
	}

	plain := make([]byte, 0, len(headerMagic)+2+len(name)+len(payload))
	plain = append(plain, headerMagic...)
	plain = append(plain, formatVersion, byte(len(name)))
	plain = append(plain, name...)
	plain = append(plain, payload...)

	switch compression {
	case CompressionNone:
		return plain, nil
	case CompressionZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(plain, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(plain); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %d", compression)
	}
}

// Decode reverses Encode. The compression frame and codec are detected from
// the data.
func Decode(data []byte) (*Snapshot, error) {
	plain, err := decompress(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	c := codec.Default
	payload := plain

	switch {
	case bytes.HasPrefix(plain, headerMagic):
		rest := plain[len(headerMagic):]
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		if rest[0] != formatVersion {
			return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, rest[0])
		}
		n := int(rest[1])
		if len(rest) < 2+n {
			return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		name := string(rest[2 : 2+n])
		var ok bool
		if c, ok = codec.ByName(name); !ok {
			return nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, name)
		}
		payload = rest[2+n:]
	case bytes.HasPrefix(bytes.TrimLeft(plain, " \t\r\n"), []byte("{")):
		// plain JSON document
	default:
		return nil, fmt.Errorf("%w: unrecognized format", ErrCorrupt)
	}

	s := &Snapshot{}
	if err := c.Unmarshal(payload, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

func decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)
		return dec.DecodeAll(data, nil)
	case bytes.HasPrefix(data, lz4Magic):
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}
