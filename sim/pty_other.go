//go:build !linux

package sim

import (
	"errors"
	"os"
)

// OpenPTY is only implemented on Linux.
func OpenPTY() (master, tty *os.File, err error) {
	return nil, nil, errors.New("pseudo-terminals are not supported on this platform")
}
