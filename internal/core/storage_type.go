package core

import "fmt"

// StorageKind identifies a backend family.
type StorageKind uint8

const (
	// StorageKV is the transactional key-value backend.
	StorageKV StorageKind = iota + 1
	// StorageMmap is the memory-mapped backend.
	StorageMmap
	// StorageInRAM is the volatile, process-local backend.
	StorageInRAM
)

func (k StorageKind) String() string {
	switch k {
	case StorageKV:
		return "kv"
	case StorageMmap:
		return "mmap"
	case StorageInRAM:
		return "in_ram"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// StorageType tells upstream components how a structure is persisted, e.g.
// to choose a snapshot strategy.
type StorageType struct {
	Kind StorageKind
	// OnDisk is meaningful for StorageMmap only: true when pages are left on
	// disk and faulted in on demand rather than populated into RAM.
	OnDisk bool
}

func (t StorageType) String() string {
	if t.Kind == StorageMmap {
		return fmt.Sprintf("mmap(on_disk=%t)", t.OnDisk)
	}
	return t.Kind.String()
}
