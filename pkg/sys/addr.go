package sys

import (
	"errors"
	"syscall"
	"unsafe"
)

// RawAddr packs a syscall.Sockaddr into the flat wire form an asynchronous
// submission interface takes, together with the length the kernel expects
// for that family.
func RawAddr(sa syscall.Sockaddr) (*syscall.RawSockaddrAny, uint32, error) {
	rsa := &syscall.RawSockaddrAny{}
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		raw := (*syscall.RawSockaddrInet4)(unsafe.Pointer(rsa))
		raw.Family = syscall.AF_INET
		putWirePort(&raw.Port, a.Port)
		raw.Addr = a.Addr
		return rsa, syscall.SizeofSockaddrInet4, nil
	case *syscall.SockaddrInet6:
		raw := (*syscall.RawSockaddrInet6)(unsafe.Pointer(rsa))
		raw.Family = syscall.AF_INET6
		putWirePort(&raw.Port, a.Port)
		raw.Scope_id = a.ZoneId
		raw.Addr = a.Addr
		return rsa, syscall.SizeofSockaddrInet6, nil
	case *syscall.SockaddrUnix:
		raw := (*syscall.RawSockaddrUnix)(unsafe.Pointer(rsa))
		raw.Family = syscall.AF_UNIX
		if len(a.Name) >= len(raw.Path) {
			return nil, 0, errors.New("unix socket path too long")
		}
		for i := 0; i < len(a.Name); i++ {
			raw.Path[i] = int8(a.Name[i])
		}
		return rsa, syscall.SizeofSockaddrUnix, nil
	default:
		return nil, 0, errors.New("unsupported address type")
	}
}

// sin_port is in network byte order regardless of host endianness.
func putWirePort(p *uint16, port int) {
	b := (*[2]byte)(unsafe.Pointer(p))
	b[0] = byte(port >> 8)
	b[1] = byte(port)
}
