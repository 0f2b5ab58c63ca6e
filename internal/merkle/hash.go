// hash.go - 32-byte node type shared by the accumulator, root history and pool state.

package merkle

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// HashSize is the byte length of every leaf, node and root.
const HashSize = 32

// Hash is a leaf, an internal node or a root of the accumulator.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the 0x-prefixed hex encoding of h.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses a 0x-prefixed, 64 hex digit string.
func HexToHash(s string) (Hash, error) {
	var h Hash
	b, err := hexutil.Decode(s)
	if err != nil {
		return h, errors.Wrapf(err, "decode hash %q", s)
	}
	if len(b) != HashSize {
		return h, errors.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BytesToHash copies b into a Hash, left-padding with zeros when b is short and
// keeping the trailing 32 bytes when b is long.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashSize {
		b = b[len(b)-HashSize:]
	}
	copy(h[HashSize-len(b):], b)
	return h
}
