// pubkey.go - Account addresses and program-derived addresses.

package runtime

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/oasisprotocol/curve25519-voi/curve"
	"github.com/pkg/errors"
)

// PubkeySize is the byte length of an account address.
const PubkeySize = 32

// Seed limits for program-derived addresses.
const (
	MaxSeeds     = 16
	MaxSeedBytes = 32
)

const pdaMarker = "ProgramDerivedAddress"

// Pubkey is an account address: an ed25519 public key or a program-derived address.
type Pubkey [PubkeySize]byte

// SystemProgramID is the address of the native transfer/creation program.
var SystemProgramID = Pubkey{}

func (p Pubkey) String() string { return hexutil.Encode(p[:]) }

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromHex(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PubkeyFromHex parses a 0x-prefixed 32-byte hex string.
func PubkeyFromHex(s string) (Pubkey, error) {
	var p Pubkey
	b, err := hexutil.Decode(s)
	if err != nil {
		return p, errors.Wrapf(err, "decode pubkey %q", s)
	}
	if len(b) != PubkeySize {
		return p, errors.Errorf("pubkey must be %d bytes, got %d", PubkeySize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// PubkeyFromSeed hashes a human-readable label into an address. It is used for
// program ids, which carry no private key.
func PubkeyFromSeed(label string) Pubkey {
	return Pubkey(sha256.Sum256([]byte(label)))
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b [32]byte) bool {
	var compressed curve.CompressedEdwardsY
	if _, err := compressed.SetBytes(b[:]); err != nil {
		return false
	}
	_, err := curve.NewEdwardsPoint().SetCompressedY(&compressed)
	return err == nil
}

// CreateProgramAddress derives the address owned by programID for seeds.
// It fails with ErrInvalidSeeds when the digest lands on the curve, since such an
// address could have a private key.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrInvalidSeeds
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedBytes {
			return Pubkey{}, ErrInvalidSeeds
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var out Pubkey
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{uint8(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrInvalidSeeds) || len(seeds) >= MaxSeeds {
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, errors.New("no viable bump seed")
}
