// instruction.go - Wire format of the deposit payload.

package deposit

import (
	"encoding/binary"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/runtime"
)

// PayloadSize is the exact length of a deposit payload:
// amount u64 LE | commitment [32] | reserved [32].
const PayloadSize = 8 + merkle.HashSize + merkle.HashSize

// Instruction is a decoded deposit payload.
type Instruction struct {
	Amount     uint64
	Commitment merkle.Hash
}

// Encode returns the 72-byte payload with the reserved field zeroed.
func (ix Instruction) Encode() []byte {
	out := make([]byte, PayloadSize)
	binary.LittleEndian.PutUint64(out[0:8], ix.Amount)
	copy(out[8:40], ix.Commitment[:])
	return out
}

// Decode parses a payload. The reserved field must be all zero; roots are never
// accepted from the caller.
func Decode(data []byte) (Instruction, error) {
	if len(data) != PayloadSize {
		return Instruction{}, runtime.ErrInvalidInstructionData
	}
	for _, b := range data[40:] {
		if b != 0 {
			return Instruction{}, runtime.ErrInvalidInstructionData
		}
	}
	var ix Instruction
	ix.Amount = binary.LittleEndian.Uint64(data[0:8])
	copy(ix.Commitment[:], data[8:40])
	return ix, nil
}
