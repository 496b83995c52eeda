package toolexec

import "errors"

var (
	// ErrUnknownTool means the requested tool is not registered. The turn
	// cannot continue.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments means the arguments failed schema validation. The
	// error text is safe to hand back to the model.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
