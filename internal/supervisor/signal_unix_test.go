//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

func syscallZero() os.Signal { return syscall.Signal(0) }
