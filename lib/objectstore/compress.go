// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies how an object's stored bytes are encoded.
// The numeric values are persisted by the SQLite and S3 backends;
// changing them makes existing objects unreadable.
type Compression uint8

const (
	// CompressionNone stores the canonical payload unchanged.
	CompressionNone Compression = 0

	// CompressionDeflateRaw stores a raw DEFLATE stream (RFC 1951)
	// with no header or checksum.
	CompressionDeflateRaw Compression = 1

	// CompressionZlib stores a zlib-wrapped DEFLATE stream (RFC 1950)
	// with its Adler-32 trailer.
	CompressionZlib Compression = 2

	// CompressionZstd stores a zstd frame at the default level.
	CompressionZstd Compression = 3

	// CompressionLZ4 stores an LZ4 frame. The frame format (not the
	// block format) is used so incompressible payloads still encode.
	CompressionLZ4 Compression = 4
)

// String returns the configuration name of the compression scheme.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionDeflateRaw:
		return "deflate-raw"
	case CompressionZlib:
		return "zlib"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a scheme name as written in configuration.
// The empty string means none.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "deflate-raw", "deflate":
		return CompressionDeflateRaw, nil
	case "zlib":
		return CompressionZlib, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression scheme %q", name)
	}
}

// Compress encodes data with the given scheme. For CompressionNone the
// input slice is returned unchanged.
//
// Unlike chunk-level compression in content-addressed stores, there is
// no fallback to none for incompressible data: a deployment fixes one
// scheme and clients in passthrough mode rely on every object using it.
func Compress(data []byte, scheme Compression) ([]byte, error) {
	switch scheme {
	case CompressionNone:
		return data, nil

	case CompressionDeflateRaw:
		var buffer bytes.Buffer
		writer, err := flate.NewWriter(&buffer, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("deflate-raw compress: %w", err)
		}
		return finishWriter(&buffer, writer, data, "deflate-raw")

	case CompressionZlib:
		var buffer bytes.Buffer
		writer, err := zlib.NewWriterLevel(&buffer, zlib.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return finishWriter(&buffer, writer, data, "zlib")

	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil

	case CompressionLZ4:
		var buffer bytes.Buffer
		return finishWriter(&buffer, lz4.NewWriter(&buffer), data, "lz4")

	default:
		return nil, fmt.Errorf("unsupported compression scheme: %d", uint8(scheme))
	}
}

// Decompress reverses Compress. The decoded length must equal size
// exactly; a mismatch means the stored bytes or their metadata are
// corrupt and is reported as an error.
func Decompress(stored []byte, scheme Compression, size int64) ([]byte, error) {
	var (
		reader io.Reader
		err    error
	)

	switch scheme {
	case CompressionNone:
		if int64(len(stored)) != size {
			return nil, fmt.Errorf("uncompressed object: size %d does not match expected %d", len(stored), size)
		}
		return stored, nil

	case CompressionDeflateRaw:
		readCloser := flate.NewReader(bytes.NewReader(stored))
		defer readCloser.Close()
		reader = readCloser

	case CompressionZlib:
		readCloser, zlibErr := zlib.NewReader(bytes.NewReader(stored))
		if zlibErr != nil {
			return nil, fmt.Errorf("zlib decompress: %w", zlibErr)
		}
		defer readCloser.Close()
		reader = readCloser

	case CompressionZstd:
		result, zstdErr := zstdDecoder.DecodeAll(stored, make([]byte, 0, size))
		if zstdErr != nil {
			return nil, fmt.Errorf("zstd decompress: %w", zstdErr)
		}
		if int64(len(result)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
		}
		return result, nil

	case CompressionLZ4:
		reader = lz4.NewReader(bytes.NewReader(stored))

	default:
		return nil, fmt.Errorf("unsupported compression scheme: %d", uint8(scheme))
	}

	// Read one byte past the expected size so an over-long stream is
	// detected rather than silently truncated.
	result := bytes.NewBuffer(make([]byte, 0, size))
	if _, err = io.Copy(result, io.LimitReader(reader, size+1)); err != nil {
		return nil, fmt.Errorf("%s decompress: %w", scheme, err)
	}
	if int64(result.Len()) != size {
		return nil, fmt.Errorf("%s decompress: got %d bytes, expected %d", scheme, result.Len(), size)
	}
	return result.Bytes(), nil
}

func finishWriter(buffer *bytes.Buffer, writer io.WriteCloser, data []byte, name string) ([]byte, error) {
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("%s compress: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%s compress: %w", name, err)
	}
	return buffer.Bytes(), nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use when
// driven through EncodeAll/DecodeAll, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("objectstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("objectstore: zstd decoder initialization failed: " + err.Error())
	}
}
