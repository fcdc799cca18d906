package disk

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mit-pdos/go-sfs/common"
)

// FaultyDisk wraps a Disk and fails reads or writes on demand. It is meant
// for exercising error paths.
type FaultyDisk struct {
	Disk
	failReads  int32
	failWrites int32
	writes     uint64

	mu        sync.Mutex
	badBlocks map[uint64]bool // writes to these fail
}

func NewFaultyDisk(d Disk) *FaultyDisk {
	return &FaultyDisk{Disk: d, badBlocks: make(map[uint64]bool)}
}

// FailBlock makes writes to block a fail, or succeed again.
func (f *FaultyDisk) FailBlock(a uint64, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fail {
		f.badBlocks[a] = true
	} else {
		delete(f.badBlocks, a)
	}
}

func (f *FaultyDisk) blockFails(a uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badBlocks[a]
}

func (f *FaultyDisk) FailReads(fail bool) {
	atomic.StoreInt32(&f.failReads, boolInt(fail))
}

func (f *FaultyDisk) FailWrites(fail bool) {
	atomic.StoreInt32(&f.failWrites, boolInt(fail))
}

// Writes is the number of successful writes so far.
func (f *FaultyDisk) Writes() uint64 {
	return atomic.LoadUint64(&f.writes)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (f *FaultyDisk) ReadTo(a uint64, b Block) error {
	if atomic.LoadInt32(&f.failReads) != 0 {
		return fmt.Errorf("read block %d: injected fault: %w", a, common.ErrDevice)
	}
	return f.Disk.ReadTo(a, b)
}

func (f *FaultyDisk) Read(a uint64) (Block, error) {
	b := make(Block, f.BlockSize())
	err := f.ReadTo(a, b)
	return b, err
}

func (f *FaultyDisk) Write(a uint64, v Block) error {
	if atomic.LoadInt32(&f.failWrites) != 0 || f.blockFails(a) {
		return fmt.Errorf("write block %d: injected fault: %w", a, common.ErrDevice)
	}
	err := f.Disk.Write(a, v)
	if err == nil {
		atomic.AddUint64(&f.writes, 1)
	}
	return err
}
