//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

type osRegion struct {
	addr uintptr
}

func osMap(f *os.File, size int, writable bool) ([]byte, osRegion, error) {
	prot := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if writable {
		prot = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, prot, 0, 0, nil)
	if err != nil {
		return nil, osRegion{}, err
	}
	// The view holds its own reference to the mapping object.
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if err != nil {
		return nil, osRegion{}, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	return data, osRegion{addr: addr}, nil
}

func osUnmap(_ []byte, r osRegion) error {
	return windows.UnmapViewOfFile(r.addr)
}

func osFlush(data []byte, r osRegion) error {
	return windows.FlushViewOfFile(r.addr, uintptr(len(data)))
}

func osAdvise(_ []byte, _ AccessPattern) error {
	return nil
}
