// Package toolexec manages the tools the model may call during a turn.
//
// Tools register with a name, description, and typed parameter list; the
// executor compiles the parameters into a JSON Schema and validates every
// invocation against it before the handler runs.
//
// Failures split into two classes. ErrUnknownTool means the model asked for
// a tool that does not exist, which callers treat as fatal for the turn.
// ErrInvalidArguments means the tool exists but the arguments failed schema
// validation; callers feed that back to the model as an error tool result so
// it can retry with corrected arguments.
package toolexec
