package registry

import "errors"

// ErrInvalidInput is returned when site input fails validation.
var ErrInvalidInput = errors.New("registry: invalid input")

// ErrNothingToImport is returned when an import payload parses but contains
// no valid entries.
var ErrNothingToImport = errors.New("registry: nothing to import")
