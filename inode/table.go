package inode

import (
	"fmt"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/super"
	"github.com/mit-pdos/go-sfs/util"
)

// Table is the on-disk inode table. Inodes are packed INODEBLK to a block, so
// every update is a read-modify-write of the owning block under its lock.
type Table struct {
	d     disk.Disk
	super *super.FsSuper
	locks *lockmap.LockMap
}

func MkTable(d disk.Disk, sb *super.FsSuper, locks *lockmap.LockMap) *Table {
	return &Table{d: d, super: sb, locks: locks}
}

func (t *Table) checkInum(inum common.Inum) error {
	if inum >= t.super.NInode() {
		return fmt.Errorf("inode %d: %w", inum, common.ErrOutOfRange)
	}
	return nil
}

func (t *Table) lockBlock(bn common.Bnum) {
	t.locks.Acquire(addr.MkBlockAddr(bn).Flatid())
}

func (t *Table) unlockBlock(bn common.Bnum) {
	t.locks.Release(addr.MkBlockAddr(bn).Flatid())
}

// Init writes an inactive record into every slot.
func (t *Table) Init() error {
	zero := make(disk.Block, t.d.BlockSize())
	for i := uint64(0); i < t.super.NInodeBlocks; i++ {
		bn := t.super.InodeStart() + common.Bnum(i)
		t.lockBlock(bn)
		err := t.d.Write(bn, zero)
		t.unlockBlock(bn)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Get(inum common.Inum) (*Inode, error) {
	if err := t.checkInum(inum); err != nil {
		return nil, err
	}
	a := t.super.Inum2Addr(inum)
	t.lockBlock(a.Blkno)
	blk, err := t.d.Read(a.Blkno)
	t.unlockBlock(a.Blkno)
	if err != nil {
		return nil, err
	}
	b := buf.MkBufLoad(a, common.INODESZ, blk)
	return Decode(b.Data), nil
}

func (t *Table) Put(inum common.Inum, ip *Inode) error {
	if err := t.checkInum(inum); err != nil {
		return err
	}
	a := t.super.Inum2Addr(inum)
	util.DPrintf(5, "Put: inode %d %v\n", inum, ip)
	b := buf.MkBuf(a, ip.Encode())
	t.lockBlock(a.Blkno)
	defer t.unlockBlock(a.Blkno)
	return b.WriteDirect(t.d)
}

// Alloc claims the lowest-numbered inactive inode, resetting it to an empty
// active file. Inode 0 belongs to the root directory and is never handed out.
func (t *Table) Alloc() (common.Inum, error) {
	for i := uint64(0); i < t.super.NInodeBlocks; i++ {
		bn := t.super.InodeStart() + common.Bnum(i)
		inum, ok, err := t.allocInBlock(bn, common.Inum(i*common.INODEBLK))
		if err != nil {
			return 0, err
		}
		if ok {
			util.DPrintf(1, "Alloc: inode %d\n", inum)
			return inum, nil
		}
	}
	return 0, fmt.Errorf("no free inode: %w", common.ErrFull)
}

func (t *Table) allocInBlock(bn common.Bnum, first common.Inum) (common.Inum, bool, error) {
	t.lockBlock(bn)
	defer t.unlockBlock(bn)
	blk, err := t.d.Read(bn)
	if err != nil {
		return 0, false, err
	}
	for k := uint64(0); k < common.INODEBLK; k++ {
		inum := first + common.Inum(k)
		if inum == common.ROOTINUM {
			continue
		}
		b := buf.MkBufLoad(addr.MkAddr(bn, k*common.INODESZ), common.INODESZ, blk)
		if Decode(b.Data).Active {
			continue
		}
		ip := &Inode{Active: true}
		copy(b.Data, ip.Encode())
		if err := t.d.Write(bn, blk); err != nil {
			return 0, false, err
		}
		return inum, true, nil
	}
	return 0, false, nil
}
