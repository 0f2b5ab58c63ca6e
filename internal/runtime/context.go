// context.go - Execution context handed to programs.

package runtime

import "github.com/rs/zerolog"

// Program is an on-ledger program. Process must leave accounts untouched when it
// returns an error; the runtime discards the working set in that case anyway.
type Program interface {
	Process(ctx *Context, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(ctx *Context, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ctx *Context, accounts []*AccountInfo, data []byte) error {
	return f(ctx, accounts, data)
}

// Context carries the invoked program id, a logger and an event sink.
type Context struct {
	ProgramID Pubkey
	Log       zerolog.Logger

	events []any
}

// NewContext returns a context for programID. Exposed for tests that drive
// programs directly without a Bank.
func NewContext(programID Pubkey, log zerolog.Logger) *Context {
	return &Context{ProgramID: programID, Log: log}
}

// Emit records an event that is returned to the caller once the transaction
// commits.
func (c *Context) Emit(ev any) {
	c.events = append(c.events, ev)
}

// Events returns everything emitted so far.
func (c *Context) Events() []any {
	return c.events
}
