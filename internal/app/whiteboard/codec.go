package whiteboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// MaxDecodedSize bounds the decompressed size of an inbound snapshot.
const MaxDecodedSize = 4 << 20

// ErrCorruptContent is returned when edit content cannot be decompressed or parsed.
var ErrCorruptContent = errors.New("corrupt whiteboard content")

// Compress serializes objects as JSON and wraps them in an lz4 frame.
func Compress(objects []Object) ([]byte, error) {
	if objects == nil {
		objects = []Object{}
	}
	raw, err := json.Marshal(objects)
	if err != nil {
		return nil, fmt.Errorf("marshal objects: %w", err)
	}

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("lz4 write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("lz4 close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(content []byte) ([]Object, error) {
	zr := lz4.NewReader(bytes.NewReader(content))

	raw, err := io.ReadAll(io.LimitReader(zr, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptContent, err)
	}
	if len(raw) > MaxDecodedSize {
		return nil, fmt.Errorf("%w: decoded size exceeds %d bytes", ErrCorruptContent, MaxDecodedSize)
	}

	var objects []Object
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptContent, err)
	}
	return objects, nil
}
