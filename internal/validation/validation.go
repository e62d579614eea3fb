// Package validation holds small input-validation helpers shared by the
// dispatcher and worker entrypoints (listen/dial addresses, required
// string fields), adapted from the teacher repository's own
// internal/validation package — narrowed to the checks this specification's
// binaries actually need, since file-path validation has no home here
// (every path this repository touches is a fixed config value, not
// user-supplied).
package validation

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidAddr means a host:port string could not be resolved.
	ErrInvalidAddr = errors.New("invalid listen address")
	// ErrEmptyString means a required field was left blank.
	ErrEmptyString = errors.New("value must not be empty")
)

// ValidateAddr reports whether addr is a resolvable host:port, used by
// cmd/dispatcher and cmd/worker to fail fast on a malformed listen or
// dial address before attempting to bind or connect.
func ValidateAddr(addr string) error {
	if addr == "" {
		return ErrInvalidAddr
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return nil
}

// ValidateStringNonEmpty reports whether s is non-empty, used to guard a
// module name at registration and submission time (§3: the module name is
// the cache key on both sides of the wire protocol).
func ValidateStringNonEmpty(s string) error {
	if s == "" {
		return ErrEmptyString
	}
	return nil
}
