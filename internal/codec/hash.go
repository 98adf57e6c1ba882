package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Event content identifiers are
// this size.
type Hash [32]byte

// ZeroHash is the previous-content identifier of the first event in
// a stream.
var ZeroHash Hash

// chainKey is the keyed-hash domain key for the event chain. It is a
// fixed constant; changing it invalidates every stored content
// identifier. The bytes are the ASCII domain name zero-padded to 32,
// readable in hex dumps without weakening the hash.
var chainKey = [32]byte{
	'n', 'e', 't', 'f', 'a', 'b', 'r', 'i', 'c', '.',
	'e', 'v', 'e', 'n', 't', '.', 'c', 'h', 'a', 'i', 'n',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ChainHash computes an event's content identifier: a keyed BLAKE3
// digest over the event kind, the canonical payload bytes, and the
// previous event's content identifier. Chaining prev into the input
// makes every digest depend on the whole history before it.
func ChainHash(kind string, payload []byte, prev Hash) Hash {
	hasher, err := blake3.NewKeyed(chainKey[:])
	if err != nil {
		// NewKeyed only fails on wrong key length, which the fixed
		// array rules out.
		panic("codec: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(kind))
	hasher.Write([]byte{0})
	hasher.Write(payload)
	hasher.Write(prev[:])

	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the hex encoding, the canonical form used in storage,
// logs, and API output.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse content hash: %w", err)
	}
	if len(decoded) != len(h) {
		return h, fmt.Errorf("content hash is %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return h, nil
}
