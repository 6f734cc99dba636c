//go:build linux

package proc

import "syscall"

// child receives SIGTERM when the parent exits
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}
