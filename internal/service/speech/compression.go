package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compression 压缩方法
type Compression uint8

const (
	NoCompression   Compression = 0b0000
	GzipCompression Compression = 0b0001
)

// Pack compresses data with c.
func (c Compression) Pack(data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case GzipCompression:
		var buf bytes.Buffer
		writer := gzip.NewWriter(&buf)
		if _, err := writer.Write(data); err != nil {
			writer.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", c)
	}
}

// Unpack reverses Pack.
func (c Compression) Unpack(data []byte) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case GzipCompression:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", c)
	}
}
