package cache

import (
	"encoding/base64"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/wosledon/AIReview-sub002/internal/reviewerr"
)

// compressedPrefix marks values stored in compressed form. Serialized JSON
// never starts with this prefix, so plain values pass through untouched.
const compressedPrefix = "zstd1:"

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// codec transparently compresses large serialized values before they reach
// the backend. Diff payloads and aggregated reports routinely exceed the
// threshold; small records stay readable in the store.
type codec struct {
	minBytes int
}

func newCodec(minBytes int) codec {
	return codec{minBytes: minBytes}
}

// encode compresses value when it is large enough to be worth it.
func (c codec) encode(value string) string {
	if c.minBytes <= 0 || len(value) < c.minBytes {
		return value
	}
	compressed := zstdEncoder.EncodeAll([]byte(value), nil)
	encoded := compressedPrefix + base64.StdEncoding.EncodeToString(compressed)
	if len(encoded) >= len(value) {
		// Incompressible payload, keep the original.
		return value
	}
	return encoded
}

// decode reverses encode. A corrupted compressed value is a serialization
// error, never a silent miss.
func (c codec) decode(value string) (string, error) {
	if !strings.HasPrefix(value, compressedPrefix) {
		return value, nil
	}
	compressed, err := base64.StdEncoding.DecodeString(value[len(compressedPrefix):])
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.SerializationFailed, "corrupted compressed cache value", err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", reviewerr.Wrap(reviewerr.SerializationFailed, "failed to decompress cache value", err)
	}
	return string(raw), nil
}
