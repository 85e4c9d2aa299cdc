package nostr

import (
	"encoding/hex"
	"strconv"

	"github.com/minio/sha256-simd"
)

// Serialize returns the canonical serialization the event id is hashed from:
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
//
// Strings are escaped following NIP-01, which differs from encoding/json (no HTML or U+2028 escaping).
func Serialize(e Event) []byte {
	buf := make([]byte, 0, 128+len(e.Content)+len(e.Tags)*64)

	buf = append(buf, `[0,`...)
	buf = appendEscapedString(buf, e.PubKey)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, e.CreatedAt, 10)
	buf = append(buf, ',')
	buf = strconv.AppendInt(buf, int64(e.Kind), 10)
	buf = append(buf, ',', '[')

	for i, tag := range e.Tags {
		if i > 0 {
			buf = append(buf, ',')
		}

		buf = append(buf, '[')
		for j, element := range tag {
			if j > 0 {
				buf = append(buf, ',')
			}
			buf = appendEscapedString(buf, element)
		}
		buf = append(buf, ']')
	}

	buf = append(buf, ']', ',')
	buf = appendEscapedString(buf, e.Content)
	buf = append(buf, ']')

	return buf
}

// ComputeID returns the lowercase hex sha256 of the canonical serialization.
func ComputeID(e Event) string {
	sum := sha256.Sum256(Serialize(e))

	return hex.EncodeToString(sum[:])
}

// HasValidID reports whether the event id matches its content.
func HasValidID(e Event) bool {
	return e.ID == ComputeID(e)
}

func appendEscapedString(buf []byte, s string) []byte {
	buf = append(buf, '"')

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			buf = append(buf, '\\', '"')
		case '\\':
			buf = append(buf, '\\', '\\')
		case '\n':
			buf = append(buf, '\\', 'n')
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\t':
			buf = append(buf, '\\', 't')
		case '\b':
			buf = append(buf, '\\', 'b')
		case '\f':
			buf = append(buf, '\\', 'f')
		default:
			buf = append(buf, c)
		}
	}

	return append(buf, '"')
}
