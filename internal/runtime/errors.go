// errors.go - Program error kinds reported by instruction handlers and the runtime.

package runtime

import "fmt"

// ProgramError is a terminal failure of an instruction. Values are compared by
// identity with errors.Is.
type ProgramError struct {
	Code uint32
	Name string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("program error %d: %s", e.Code, e.Name)
}

// customBase offsets program-defined codes away from the builtin ones.
const customBase = 1 << 16

// CustomError declares a program-specific error.
func CustomError(code uint32, name string) *ProgramError {
	return &ProgramError{Code: customBase + code, Name: name}
}

var (
	ErrInvalidArgument           = &ProgramError{1, "invalid argument"}
	ErrInvalidInstructionData    = &ProgramError{2, "invalid instruction data"}
	ErrInvalidAccountData        = &ProgramError{3, "invalid account data"}
	ErrAccountDataTooSmall       = &ProgramError{4, "account data too small"}
	ErrInsufficientFunds         = &ProgramError{5, "insufficient funds"}
	ErrIncorrectProgramID        = &ProgramError{6, "incorrect program id"}
	ErrMissingRequiredSignature  = &ProgramError{7, "missing required signature"}
	ErrAccountAlreadyInitialized = &ProgramError{8, "account already initialized"}
	ErrUninitializedAccount      = &ProgramError{9, "uninitialized account"}
	ErrNotEnoughAccountKeys      = &ProgramError{10, "not enough account keys"}
	ErrInvalidAccountOwner       = &ProgramError{11, "invalid account owner"}
	ErrInvalidSeeds              = &ProgramError{12, "invalid seeds"}
	ErrAccountAlreadyInUse       = &ProgramError{13, "account already in use"}
	ErrArithmeticOverflow        = &ProgramError{14, "arithmetic overflow"}

	// Raised by the runtime itself, never by a handler.
	ErrSignatureFailure       = &ProgramError{100, "transaction signature verification failed"}
	ErrUnknownProgram         = &ProgramError{101, "program not registered"}
	ErrReadonlyAccountChanged = &ProgramError{102, "instruction modified a read-only account"}
	ErrUnbalancedInstruction  = &ProgramError{103, "sum of account balances changed"}
	ErrAlreadyProcessed       = &ProgramError{104, "transaction already processed"}
)
