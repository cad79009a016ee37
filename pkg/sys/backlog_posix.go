//go:build !linux

package sys

import "syscall"

func MaxListenerBacklog() int {
	return syscall.SOMAXCONN
}
