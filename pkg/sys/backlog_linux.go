//go:build linux

package sys

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/brickingsoft/warden/pkg/kernel"
)

var (
	somaxconn   = syscall.SOMAXCONN
	backlogOnce = sync.Once{}
)

func MaxListenerBacklog() int {
	backlogOnce.Do(func() {
		fd, err := os.Open("/proc/sys/net/core/somaxconn")
		if err != nil {
			return
		}
		defer func() {
			_ = fd.Close()
		}()
		rd := bufio.NewReader(fd)

		l, readLineErr := rd.ReadString('\n')
		if readLineErr != nil {
			return
		}
		n, parseErr := strconv.Atoi(strings.TrimSpace(l))
		if parseErr != nil || n == 0 {
			return
		}
		if n > 1<<16-1 {
			n = maxAckBacklog(n)
		}
		somaxconn = n
	})
	return somaxconn
}

// maxAckBacklog caps the backlog by the width of sk_max_ack_backlog, which
// grew to 32 bits in kernel 4.1.
func maxAckBacklog(n int) int {
	var (
		major = 0
		minor = 0
	)
	if version, err := kernel.Get(); err == nil {
		major, minor = version.Kernel, version.Major
	}
	size := 16
	if major > 4 || (major == 4 && minor >= 1) {
		size = 32
	}

	var maxAck uint = 1<<size - 1
	if uint(n) > maxAck {
		n = int(maxAck)
	}
	return n
}
