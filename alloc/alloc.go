package alloc

import (
	"fmt"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/util"
)

// Alloc hands out data-block indices from a byte map held in one disk block.
// Byte i describes data block i: 0 is free, anything else is allocated.
//
// There is no in-memory free list; every call reads (and, to mutate, writes)
// the bitmap block while holding its lock in locks.
type Alloc struct {
	d      disk.Disk
	locks  *lockmap.LockMap
	bitmap common.Bnum
	len    uint64
}

func MkAlloc(d disk.Disk, locks *lockmap.LockMap, bitmap common.Bnum, len uint64) *Alloc {
	if len > d.BlockSize() {
		panic("MkAlloc: bitmap does not fit in one block")
	}
	a := &Alloc{
		d:      d,
		locks:  locks,
		bitmap: bitmap,
		len:    len,
	}
	return a
}

func (a *Alloc) lock() {
	a.locks.Acquire(addr.MkBlockAddr(a.bitmap).Flatid())
}

func (a *Alloc) unlock() {
	a.locks.Release(addr.MkBlockAddr(a.bitmap).Flatid())
}

func (a *Alloc) checkNum(n uint64) error {
	if n >= a.len {
		return fmt.Errorf("data block %d: %w", n, common.ErrOutOfRange)
	}
	return nil
}

func (a *Alloc) findFree(blk disk.Block) (uint64, error) {
	for i := uint64(0); i < a.len; i++ {
		if blk[i] == 0 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no free data block: %w", common.ErrFull)
}

// Init clears the whole bitmap.
func (a *Alloc) Init() error {
	a.lock()
	defer a.unlock()
	return a.d.Write(a.bitmap, make(disk.Block, a.d.BlockSize()))
}

// FindFree returns the lowest free index without claiming it.
func (a *Alloc) FindFree() (uint64, error) {
	a.lock()
	defer a.unlock()
	blk, err := a.d.Read(a.bitmap)
	if err != nil {
		return 0, err
	}
	return a.findFree(blk)
}

func (a *Alloc) set(n uint64, v byte) error {
	if err := a.checkNum(n); err != nil {
		return err
	}
	a.lock()
	defer a.unlock()
	blk, err := a.d.Read(a.bitmap)
	if err != nil {
		return err
	}
	blk[n] = v
	return a.d.Write(a.bitmap, blk)
}

func (a *Alloc) MarkAllocated(n uint64) error {
	util.DPrintf(5, "MarkAllocated: %d\n", n)
	return a.set(n, 1)
}

func (a *Alloc) MarkFree(n uint64) error {
	util.DPrintf(5, "MarkFree: %d\n", n)
	return a.set(n, 0)
}

// AllocNum finds and claims the lowest free index in one read-modify-write,
// so concurrent callers never get the same index.
func (a *Alloc) AllocNum() (uint64, error) {
	a.lock()
	defer a.unlock()
	blk, err := a.d.Read(a.bitmap)
	if err != nil {
		return 0, err
	}
	n, err := a.findFree(blk)
	if err != nil {
		return 0, err
	}
	blk[n] = 1
	if err := a.d.Write(a.bitmap, blk); err != nil {
		return 0, err
	}
	util.DPrintf(5, "AllocNum: %d\n", n)
	return n, nil
}

func (a *Alloc) IsAllocated(n uint64) (bool, error) {
	if err := a.checkNum(n); err != nil {
		return false, err
	}
	a.lock()
	defer a.unlock()
	blk, err := a.d.Read(a.bitmap)
	if err != nil {
		return false, err
	}
	return blk[n] != 0, nil
}

func (a *Alloc) NumFree() (uint64, error) {
	a.lock()
	defer a.unlock()
	blk, err := a.d.Read(a.bitmap)
	if err != nil {
		return 0, err
	}
	n := uint64(0)
	for _, b := range blk[:a.len] {
		if b == 0 {
			n++
		}
	}
	return n, nil
}
