package memobj

import (
	"sync"

	"github.com/cloverproject/clovercore/internal/constants"
)

// StagingPool provides pooled byte slices for the copy-host staging
// path: when a MemObject is created with HostPtrCopy, the caller's data
// is copied into a pool buffer until the first device allocates its own
// backing storage, at which point the staging copy is copied into that
// storage and released. A device that allocates later does not receive
// the staged data. Size-bucketed, power-of-2 pools avoid a
// hot-path allocation on every object creation.
type StagingPool struct {
	pool64k  sync.Pool
	pool256k sync.Pool
	pool1m   sync.Pool
	pool4m   sync.Pool
}

const (
	stage64k  = constants.StagingBucket64K
	stage256k = constants.StagingBucket256K
	stage1m   = constants.StagingBucket1M
	stage4m   = constants.StagingBucket4M
)

// NewStagingPool constructs an empty pool. There is no process-wide
// global here because staging buffer lifetime is tied to a Context,
// not the whole process.
func NewStagingPool() *StagingPool {
	p := &StagingPool{}
	p.pool64k.New = func() any { b := make([]byte, stage64k); return &b }
	p.pool256k.New = func() any { b := make([]byte, stage256k); return &b }
	p.pool1m.New = func() any { b := make([]byte, stage1m); return &b }
	p.pool4m.New = func() any { b := make([]byte, stage4m); return &b }
	return p
}

// Get returns a pooled buffer of at least size bytes. Sizes above the
// largest bucket are allocated directly and never pooled on return.
func (p *StagingPool) Get(size int64) []byte {
	switch {
	case size <= stage64k:
		return (*p.pool64k.Get().(*[]byte))[:size]
	case size <= stage256k:
		return (*p.pool256k.Get().(*[]byte))[:size]
	case size <= stage1m:
		return (*p.pool1m.Get().(*[]byte))[:size]
	case size <= stage4m:
		return (*p.pool4m.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// Put returns a buffer obtained from Get back to the pool it came from,
// determined by capacity.
func (p *StagingPool) Put(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case stage64k:
		p.pool64k.Put(&buf)
	case stage256k:
		p.pool256k.Put(&buf)
	case stage1m:
		p.pool1m.Put(&buf)
	case stage4m:
		p.pool4m.Put(&buf)
	}
}
