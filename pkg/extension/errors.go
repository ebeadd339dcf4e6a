package extension

import "errors"

// Error taxonomy for failures originating in extension code. The host
// catches each of these at the manager boundary and converts it into a
// logged diagnostic plus a safe default; nothing from an extension
// propagates as an unhandled failure.
var (
	// ErrValidation marks a tool definition that violates the tool
	// contract. The tool is dropped, never fatal.
	ErrValidation = errors.New("tool validation failed")

	// ErrLoad marks an extension module that failed to load or
	// instantiate. The extension is simply absent from the registry.
	ErrLoad = errors.New("extension load failed")

	// ErrHook marks an event handler that returned an error or
	// panicked. Dispatch continues with the next extension.
	ErrHook = errors.New("extension hook failed")

	// ErrSupplier marks a tool supplier that returned an error or
	// panicked. The extension contributes zero tools for that request.
	ErrSupplier = errors.New("tool supplier failed")
)
