package fs

import (
	"encoding/binary"
	"errors"
	"fmt"

	farm "github.com/dgryski/go-farm"
)

// ErrChecksum is returned when a checksummed file fails verification.
var ErrChecksum = errors.New("fs: checksum mismatch")

const checksumSize = 8

// WriteChecksummed atomically writes payload followed by its farmhash
// fingerprint.
func WriteChecksummed(fsys FileSystem, name string, payload []byte) error {
	buf := make([]byte, len(payload)+checksumSize)
	copy(buf, payload)
	binary.LittleEndian.PutUint64(buf[len(payload):], farm.Fingerprint64(payload))
	return WriteFileAtomic(fsys, name, buf)
}

// ReadChecksummed reads a file written by WriteChecksummed and returns the
// verified payload.
func ReadChecksummed(fsys FileSystem, name string) ([]byte, error) {
	buf, err := ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	if len(buf) < checksumSize {
		return nil, fmt.Errorf("%w: %s is truncated", ErrChecksum, name)
	}
	payload := buf[:len(buf)-checksumSize]
	want := binary.LittleEndian.Uint64(buf[len(payload):])
	if farm.Fingerprint64(payload) != want {
		return nil, fmt.Errorf("%w: %s", ErrChecksum, name)
	}
	return payload, nil
}
