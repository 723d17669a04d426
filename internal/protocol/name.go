package protocol

import (
	"fmt"
	"strings"
)

// ValidateName checks that name can be used as a flat filename in the store.
// Names are opaque byte strings but may not be empty, "." or "..", exceed
// MaxNameLen, or contain '/', NUL or newline.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLen)
	case strings.ContainsAny(name, "/\x00\n"):
		return fmt.Errorf("%w: %q contains a reserved byte", ErrInvalidName, name)
	}
	return nil
}
