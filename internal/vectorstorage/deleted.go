package vectorstorage

import (
	"github.com/hupe1980/vecseg/internal/bitset"
	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/flags"
)

// deletedFlags is the per-point deletion flag store.
type deletedFlags interface {
	Get(i int) bool
	Set(i int, v bool) (bool, error)
	Len() int
	SetLen(n int) error
	Count() int
	View() bitset.View
	Flusher() core.Flusher
	Files() []string
	ClearCache() error
	Close() error
}

type memFlags struct {
	bits *bitset.BitVec
}

func newMemFlags() *memFlags {
	return &memFlags{bits: bitset.New(0)}
}

func (m *memFlags) Get(i int) bool { return m.bits.Get(i) }

func (m *memFlags) Set(i int, v bool) (bool, error) {
	if i >= m.bits.Len() {
		m.bits.Resize(i + 1)
	}
	return m.bits.Replace(i, v), nil
}

func (m *memFlags) Len() int { return m.bits.Len() }

func (m *memFlags) SetLen(n int) error {
	m.bits.Resize(n)
	return nil
}

func (m *memFlags) Count() int            { return m.bits.Count() }
func (m *memFlags) View() bitset.View     { return m.bits }
func (m *memFlags) Flusher() core.Flusher { return core.NoopFlusher }
func (m *memFlags) Files() []string       { return nil }
func (m *memFlags) ClearCache() error     { return nil }
func (m *memFlags) Close() error          { return nil }

type mmapFlags struct {
	*flags.DynamicMmapFlags
}

func (m mmapFlags) View() bitset.View {
	return m.Snapshot()
}
