package main

import "golang.org/x/sys/unix"

// dieWithParent asks the kernel to SIGTERM the worker when its parent exits.
func dieWithParent() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGTERM), 0, 0, 0)
}
