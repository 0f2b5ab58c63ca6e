// system.go - Native transfer and account creation.

package runtime

import "math"

// Transfer moves lamports from a signing, data-less, system-owned account to
// any writable account. system must be the system program account.
func Transfer(system, from, to *AccountInfo, lamports uint64) error {
	if system.Key != SystemProgramID {
		return ErrIncorrectProgramID
	}
	if !from.IsSigner {
		return ErrMissingRequiredSignature
	}
	if !from.IsWritable || !to.IsWritable {
		return ErrInvalidArgument
	}
	if len(from.Data) != 0 || !from.OwnedBy(SystemProgramID) {
		return ErrInvalidArgument
	}
	if from.Lamports < lamports {
		return ErrInsufficientFunds
	}
	if from.Key == to.Key {
		return nil
	}
	if to.Lamports > math.MaxUint64-lamports {
		return ErrArithmeticOverflow
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// CreateAccount allocates space zeroed bytes at target, funds it from payer and
// assigns it to owner. target must be the program address of seeds under the
// calling program, which stands in for its signature.
func CreateAccount(ctx *Context, system, payer, target *AccountInfo, lamports, space uint64, owner Pubkey, seeds [][]byte) error {
	if system.Key != SystemProgramID {
		return ErrIncorrectProgramID
	}
	if space > MaxAccountDataSize {
		return ErrInvalidArgument
	}
	expected, err := CreateProgramAddress(seeds, ctx.ProgramID)
	if err != nil {
		return err
	}
	if expected != target.Key {
		return ErrMissingRequiredSignature
	}
	if !target.IsWritable {
		return ErrInvalidArgument
	}
	if target.Lamports != 0 || len(target.Data) != 0 || !target.OwnedBy(SystemProgramID) {
		return ErrAccountAlreadyInUse
	}
	if err := Transfer(system, payer, target, lamports); err != nil {
		return err
	}
	target.Data = make([]byte, space)
	target.Owner = owner
	return nil
}
