package bitmap

import "fmt"

// DefaultLimit caps a single pixel buffer allocation (500 MiB).
const DefaultLimit = 500 * 1024 * 1024

// Allocator provides and releases pixel buffers.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(b []byte)
}

// HeapAllocator allocates from the Go heap. Requests larger than Limit bytes
// are refused; a zero Limit means DefaultLimit.
type HeapAllocator struct {
	Limit int
}

// DefaultAllocator is used by New and by bitmaps created without an allocator.
var DefaultAllocator Allocator = HeapAllocator{}

func (a HeapAllocator) Alloc(n int) ([]byte, error) {
	limit := a.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if n < 0 || n > limit {
		return nil, fmt.Errorf("request of %d bytes exceeds limit %d", n, limit)
	}
	return make([]byte, n), nil
}

// Free drops the reference; the garbage collector reclaims the memory.
func (HeapAllocator) Free([]byte) {}
