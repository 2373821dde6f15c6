package conflict

import "errors"

var (
	// ErrUnclassifiable indicates an operation pair that has no conflict classification
	ErrUnclassifiable = errors.New("unclassifiable operation pair")

	// ErrNotObject indicates a payload that is not a JSON object
	ErrNotObject = errors.New("payload is not a JSON object")

	// ErrUnknownHook indicates a merge hook name that is not registered
	ErrUnknownHook = errors.New("unknown merge hook")

	// ErrUnknownPolicy indicates an unsupported delete policy
	ErrUnknownPolicy = errors.New("unknown delete policy")
)
