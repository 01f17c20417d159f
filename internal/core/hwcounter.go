package core

import "sync/atomic"

// HardwareCounter is an accounting sink for work done on behalf of a request.
// A nil *HardwareCounter discards all measurements.
type HardwareCounter struct {
	cpu                atomic.Int64
	vectorIOWrite      atomic.Int64
	vectorIORead       atomic.Int64
	payloadIndexIORead atomic.Int64
}

// NewHardwareCounter returns an empty counter.
func NewHardwareCounter() *HardwareCounter {
	return &HardwareCounter{}
}

// AddCPU records abstract CPU units.
func (c *HardwareCounter) AddCPU(n int) {
	if c != nil {
		c.cpu.Add(int64(n))
	}
}

// AddVectorIOWrite records bytes of vector data written.
func (c *HardwareCounter) AddVectorIOWrite(n int) {
	if c != nil {
		c.vectorIOWrite.Add(int64(n))
	}
}

// AddVectorIORead records bytes of vector data read.
func (c *HardwareCounter) AddVectorIORead(n int) {
	if c != nil {
		c.vectorIORead.Add(int64(n))
	}
}

// AddPayloadIndexIORead records bytes of index values inspected.
func (c *HardwareCounter) AddPayloadIndexIORead(n int) {
	if c != nil {
		c.payloadIndexIORead.Add(int64(n))
	}
}

// CPU returns the accumulated CPU units.
func (c *HardwareCounter) CPU() int64 {
	if c == nil {
		return 0
	}
	return c.cpu.Load()
}

// VectorIOWrite returns the accumulated vector write bytes.
func (c *HardwareCounter) VectorIOWrite() int64 {
	if c == nil {
		return 0
	}
	return c.vectorIOWrite.Load()
}

// VectorIORead returns the accumulated vector read bytes.
func (c *HardwareCounter) VectorIORead() int64 {
	if c == nil {
		return 0
	}
	return c.vectorIORead.Load()
}

// PayloadIndexIORead returns the accumulated index read bytes.
func (c *HardwareCounter) PayloadIndexIORead() int64 {
	if c == nil {
		return 0
	}
	return c.payloadIndexIORead.Load()
}
