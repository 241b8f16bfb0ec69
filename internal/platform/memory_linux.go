package platform

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Page access modes for ProtectPages.
const (
	AccessNone = iota
	AccessRead
	AccessReadWrite
	AccessReadWriteExec
)

// MapCodeBuffer maps a page-aligned buffer that can hold generated
// code. The mapping is readable, writable, and executable for the life
// of the buffer; the dispatcher patches live code in place.
func MapCodeBuffer(size int) ([]byte, error) {
	buf, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap code buffer: %w", err)
	}
	return buf, nil
}

// UnmapCodeBuffer releases a buffer mapped by MapCodeBuffer.
func UnmapCodeBuffer(buf []byte) error {
	return unix.Munmap(buf)
}

// ProtectPages changes the access protection of a page-aligned region.
// Used to arm write watches over guest memory.
func ProtectPages(mem []byte, access int) error {
	var prot int
	switch access {
	case AccessNone:
		prot = unix.PROT_NONE
	case AccessRead:
		prot = unix.PROT_READ
	case AccessReadWrite:
		prot = unix.PROT_READ | unix.PROT_WRITE
	case AccessReadWriteExec:
		prot = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	default:
		return fmt.Errorf("unknown access mode %d", access)
	}
	if err := unix.Mprotect(mem, prot); err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}
	return nil
}
