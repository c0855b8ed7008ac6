package preparer

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// compress gzips raw at the given level. The header carries no name and a
// zero MTIME, so equal input always yields equal output.
func compress(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer

	buf.Grow(len(raw)/2 + 64)

	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}

	if _, err = zw.Write(raw); err != nil {
		_ = zw.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}

	if err = zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}

	return buf.Bytes(), nil
}
