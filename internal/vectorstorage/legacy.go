package vectorstorage

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/vecseg/internal/core"
	"github.com/hupe1980/vecseg/internal/kvstore"
)

// legacyKV persists records in a column family. Key: big-endian point
// offset. Value: deleted flag byte followed by little-endian float32s.
type legacyKV struct {
	col *kvstore.Column
}

func encodeLegacyRecord(data []float32, deleted bool) []byte {
	buf := make([]byte, 1, 1+4*len(data))
	if deleted {
		buf[0] = 1
	}
	for _, f := range data {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func decodeLegacyRecord(buf []byte) ([]float32, bool, error) {
	if len(buf) < 1 || (len(buf)-1)%4 != 0 {
		return nil, false, fmt.Errorf("vectorstorage: malformed legacy record of %d bytes", len(buf))
	}
	data := make([]float32, (len(buf)-1)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[1+4*i:]))
	}
	return data, buf[0] == 1, nil
}

func (l *legacyKV) put(id core.PointOffset, data []float32, deleted bool) error {
	key := binary.BigEndian.AppendUint32(nil, id)
	if err := l.col.Put(key, encodeLegacyRecord(data, deleted)); err != nil {
		return core.ServiceErrorf("vectorstorage: persist point %d: %w", id, err)
	}
	return nil
}

// load replays every record into s in point order.
func (l *legacyKV) load(s *Storage) error {
	return l.col.Iterate(func(key, value []byte) error {
		if len(key) != 4 {
			return fmt.Errorf("vectorstorage: malformed legacy key of %d bytes", len(key))
		}
		id := binary.BigEndian.Uint32(key)
		data, deleted, err := decodeLegacyRecord(value)
		if err != nil {
			return err
		}
		if err := s.write(id, Vector{Data: data, Dim: s.cfg.Dim}); err != nil {
			return fmt.Errorf("vectorstorage: load point %d: %w", id, err)
		}
		_, err = s.deleted.Set(int(id), deleted)
		return err
	})
}

func (l *legacyKV) flusher() core.Flusher {
	return l.col.Flusher()
}
