package redgloom

import (
	"context"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// MemoryDriver keeps the bit array in process memory. It gives a filter the
// same semantics as AtomicDriver without a Redis server, which is useful in
// tests and for single-process deployments. Expiration is ignored.
type MemoryDriver struct {
	mu    sync.Mutex
	bits  *bitset.BitSet
	count uint64
}

// NewMemoryDriver returns an empty in-memory driver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{bits: bitset.New(0)}
}

// Name implements Driver.
func (d *MemoryDriver) Name() string { return DriverMemory }

// TestAndSetAll implements Driver.
func (d *MemoryDriver) TestAndSetAll(_ context.Context, positions []uint64, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	added := false
	for _, p := range positions {
		if !d.bits.Test(uint(p)) {
			d.bits.Set(uint(p))
			added = true
		}
	}
	if added {
		d.count++
	}
	return !added, nil
}

// SetAll implements Driver.
func (d *MemoryDriver) SetAll(_ context.Context, positions []uint64, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range positions {
		d.bits.Set(uint(p))
	}
	return nil
}

// TestAll implements Driver.
func (d *MemoryDriver) TestAll(_ context.Context, positions []uint64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range positions {
		if !d.bits.Test(uint(p)) {
			return false, nil
		}
	}
	return true, nil
}

// Count implements Driver.
func (d *MemoryDriver) Count(context.Context) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count, nil
}

// Clear implements Driver.
func (d *MemoryDriver) Clear(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bits.ClearAll()
	d.count = 0
	return nil
}

// SetBits returns the number of bits currently set.
func (d *MemoryDriver) SetBits() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(d.bits.Count())
}
