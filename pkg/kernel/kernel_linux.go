//go:build linux

// Package kernel probes the running kernel release. The reactors use it to
// gate syscall surfaces that only newer kernels provide.
package kernel

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Version is a parsed kernel release, e.g. 6.8.0-41-generic.
type Version struct {
	Kernel int
	Major  int
	Minor  int
	Flavor string
}

// AtLeast reports whether the release is at or past k.major.minor.
func (v *Version) AtLeast(k, major, minor int) bool {
	if v.Kernel != k {
		return v.Kernel > k
	}
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

var (
	version     *Version
	versionErr  error
	versionOnce = sync.Once{}
)

func parse(release string) (v *Version, err error) {
	v = &Version{}
	var partial string
	parsed, _ := fmt.Sscanf(release, "%d.%d%s", &v.Kernel, &v.Major, &partial)
	if parsed < 2 {
		err = fmt.Errorf("cannot parse kernel version: %s", release)
		return
	}
	_, _ = fmt.Sscanf(partial, ".%d%s", &v.Minor, &v.Flavor)
	return
}

func Get() (*Version, error) {
	versionOnce.Do(func() {
		uts := &unix.Utsname{}
		if err := unix.Uname(uts); err != nil {
			versionErr = err
			return
		}
		release := string(uts.Release[:bytes.IndexByte(uts.Release[:], 0)])
		version, versionErr = parse(release)
	})
	return version, versionErr
}

// Enable reports whether the running kernel is at or past k.major.minor.
// An unreadable release reads as feature-absent.
func Enable(k, major, minor int) bool {
	v, err := Get()
	if err != nil {
		return false
	}
	return v.AtLeast(k, major, minor)
}
